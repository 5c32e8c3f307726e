package domain

import (
	"fmt"
	"maps"
	"time"
)

// Error kinds counted in Stats.ErrorsByKind that don't come from a collaborator.
const (
	ErrorKindRateLimited     = "rate_limited"
	ErrorKindDecode          = "decode_error"
	ErrorKindCorruptDocument = "corrupt_document"
	ErrorKindCapacity        = "capacity"
	ErrorKindInvalidContent  = "invalid-content"
)

// Stats holds process-wide aggregate counters. Every counter only grows.
type Stats struct {
	TotalUsers       int64            `json:"total_users"`
	TotalMessages    int64            `json:"total_messages"`
	TotalGenerations int64            `json:"total_generations"`
	TotalPosts       int64            `json:"total_posts"`
	ErrorsByKind     map[string]int64 `json:"errors_by_kind"`
	StartedAt        time.Time        `json:"started_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

func NewStats() *Stats {
	return &Stats{ErrorsByKind: make(map[string]int64)}
}

func (s *Stats) Key() DocumentKey { return StatsKey }

func (s *Stats) Clone() Document {
	c := *s
	c.ErrorsByKind = maps.Clone(s.ErrorsByKind)
	return &c
}

// RecordError increments the counter for kind.
func (s *Stats) RecordError(kind string) {
	if s.ErrorsByKind == nil {
		s.ErrorsByKind = make(map[string]int64)
	}
	s.ErrorsByKind[kind]++
}

// Touch stamps the update time, and the start time on first write.
func (s *Stats) Touch(now time.Time) {
	if s.StartedAt.IsZero() {
		s.StartedAt = now
	}
	s.UpdatedAt = now
}

func (s *Stats) Validate() error {
	if s.TotalUsers < 0 || s.TotalMessages < 0 || s.TotalGenerations < 0 || s.TotalPosts < 0 {
		return fmt.Errorf("negative counter")
	}
	for kind, n := range s.ErrorsByKind {
		if n < 0 {
			return fmt.Errorf("negative error counter %q", kind)
		}
	}
	return nil
}
