package domain

import (
	"fmt"
	"time"
)

// DocumentKey names one top-level persisted collection.
type DocumentKey string

const (
	UsersKey DocumentKey = "users"
	StatsKey DocumentKey = "stats"
)

// DocumentKeys returns every document the store manages.
func DocumentKeys() []DocumentKey {
	return []DocumentKey{UsersKey, StatsKey}
}

// Document is a top-level collection managed atomically by the store.
type Document interface {
	Key() DocumentKey
	Clone() Document
	Validate() error
}

// NewDocument returns the default (empty) document for key.
func NewDocument(key DocumentKey) (Document, error) {
	switch key {
	case UsersKey:
		return NewUsers(), nil
	case StatsKey:
		return NewStats(), nil
	default:
		return nil, fmt.Errorf("unknown document %q", key)
	}
}

// Users holds every identity record.
type Users struct {
	Users map[Identity]*User `json:"users"`
}

func NewUsers() *Users {
	return &Users{Users: make(map[Identity]*User)}
}

func (u *Users) Key() DocumentKey { return UsersKey }

func (u *Users) Clone() Document {
	c := &Users{}
	if u.Users != nil {
		c.Users = make(map[Identity]*User, len(u.Users))
		for id, user := range u.Users {
			c.Users[id] = user.Clone()
		}
	}
	return c
}

// Get returns the user record for id.
func (u *Users) Get(id Identity) (*User, bool) {
	user, ok := u.Users[id]
	return user, ok
}

// Ensure returns the record for id, creating it on first interaction.
func (u *Users) Ensure(id Identity, now time.Time) (*User, bool) {
	if user, ok := u.Users[id]; ok {
		return user, false
	}
	if u.Users == nil {
		u.Users = make(map[Identity]*User)
	}
	user := NewUser(id, now)
	u.Users[id] = user
	return user, true
}

// Count returns the number of identities.
func (u *Users) Count() int {
	return len(u.Users)
}

func (u *Users) Validate() error {
	for id, user := range u.Users {
		if user == nil {
			return fmt.Errorf("user %q: empty record", id)
		}
		if id == "" || user.ID != id {
			return fmt.Errorf("user %q: id mismatch (%q)", id, user.ID)
		}
		seen := make(map[string]bool, len(user.Products))
		for _, p := range user.Products {
			if p.ID == "" {
				return fmt.Errorf("user %q: product without id", id)
			}
			if seen[p.ID] {
				return fmt.Errorf("user %q: duplicate product %q", id, p.ID)
			}
			seen[p.ID] = true
		}
		for platform, b := range user.Channels {
			if !platform.Valid() || b.Platform != platform {
				return fmt.Errorf("user %q: invalid channel %q", id, platform)
			}
		}
		for _, e := range user.History {
			if e.Status != PostSuccess && e.Status != PostFailure {
				return fmt.Errorf("user %q: invalid history status %q", id, e.Status)
			}
			if !e.Platform.Valid() {
				return fmt.Errorf("user %q: invalid history platform %q", id, e.Platform)
			}
		}
	}
	return nil
}
