package store

import (
	"context"
	"fmt"

	"github.com/MrSnakeDoc/promobot/internal/domain"
)

// Users loads the users document.
func (s *Store) Users(ctx context.Context) (*domain.Users, error) {
	doc, err := s.Load(ctx, domain.UsersKey)
	if err != nil {
		return nil, err
	}
	return asUsers(doc)
}

// Stats loads the stats document.
func (s *Store) Stats(ctx context.Context) (*domain.Stats, error) {
	doc, err := s.Load(ctx, domain.StatsKey)
	if err != nil {
		return nil, err
	}
	return asStats(doc)
}

// MutateUsers runs fn against the users document.
func (s *Store) MutateUsers(ctx context.Context, fn func(*domain.Users) error) (*domain.Users, error) {
	doc, err := s.Mutate(ctx, domain.UsersKey, func(doc domain.Document) (domain.Document, error) {
		users, err := asUsers(doc)
		if err != nil {
			return nil, err
		}
		if err := fn(users); err != nil {
			return nil, err
		}
		return users, nil
	})
	if err != nil {
		return nil, err
	}
	return asUsers(doc)
}

// MutateStats runs fn against the stats document and stamps its update time.
func (s *Store) MutateStats(ctx context.Context, fn func(*domain.Stats)) (*domain.Stats, error) {
	doc, err := s.Mutate(ctx, domain.StatsKey, func(doc domain.Document) (domain.Document, error) {
		stats, err := asStats(doc)
		if err != nil {
			return nil, err
		}
		fn(stats)
		stats.Touch(s.now())
		return stats, nil
	})
	if err != nil {
		return nil, err
	}
	return asStats(doc)
}

// RecordError increments errors_by_kind[kind].
func (s *Store) RecordError(ctx context.Context, kind string) error {
	_, err := s.MutateStats(ctx, func(st *domain.Stats) { st.RecordError(kind) })
	return err
}

func asUsers(doc domain.Document) (*domain.Users, error) {
	users, ok := doc.(*domain.Users)
	if !ok {
		return nil, fmt.Errorf("unexpected document type %T for users", doc)
	}
	return users, nil
}

func asStats(doc domain.Document) (*domain.Stats, error) {
	stats, ok := doc.(*domain.Stats)
	if !ok {
		return nil, fmt.Errorf("unexpected document type %T for stats", doc)
	}
	return stats, nil
}
