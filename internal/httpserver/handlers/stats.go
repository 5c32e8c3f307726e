package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/MrSnakeDoc/promobot/internal/domain"
	"github.com/MrSnakeDoc/promobot/internal/httpserver/deps"
	"github.com/MrSnakeDoc/promobot/internal/logger"
)

type statsResponse struct {
	TotalUsers       int64            `json:"total_users"`
	RegisteredUsers  int              `json:"registered_users"`
	TotalMessages    int64            `json:"total_messages"`
	TotalGenerations int64            `json:"total_generations"`
	TotalPosts       int64            `json:"total_posts"`
	ErrorsByKind     map[string]int64 `json:"errors_by_kind"`
	StartedAt        *time.Time       `json:"started_at,omitempty"`
	UpdatedAt        *time.Time       `json:"updated_at,omitempty"`
	UptimeSeconds    float64          `json:"uptime_seconds"`
}

// snapshot reads the stats and users documents through the read-only store.
func snapshot(ctx context.Context, d deps.Deps) (statsResponse, error) {
	doc, err := d.Store.Load(ctx, domain.StatsKey)
	if err != nil {
		return statsResponse{}, err
	}
	stats, ok := doc.(*domain.Stats)
	if !ok {
		return statsResponse{}, fmt.Errorf("stats document has type %T", doc)
	}

	doc, err = d.Store.Load(ctx, domain.UsersKey)
	if err != nil {
		return statsResponse{}, err
	}
	users, ok := doc.(*domain.Users)
	if !ok {
		return statsResponse{}, fmt.Errorf("users document has type %T", doc)
	}

	resp := statsResponse{
		TotalUsers:       stats.TotalUsers,
		RegisteredUsers:  users.Count(),
		TotalMessages:    stats.TotalMessages,
		TotalGenerations: stats.TotalGenerations,
		TotalPosts:       stats.TotalPosts,
		ErrorsByKind:     stats.ErrorsByKind,
		UptimeSeconds:    d.Now().Sub(d.StartTime).Seconds(),
	}
	if resp.ErrorsByKind == nil {
		resp.ErrorsByKind = map[string]int64{}
	}
	if !stats.StartedAt.IsZero() {
		resp.StartedAt = &stats.StartedAt
	}
	if !stats.UpdatedAt.IsZero() {
		resp.UpdatedAt = &stats.UpdatedAt
	}
	return resp, nil
}

// Stats serves the aggregate counters as JSON.
func Stats(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-store")

		resp, err := snapshot(r.Context(), d)
		if err != nil {
			d.Logger.Error("failed to load stats", logger.Error(err))
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "stats unavailable"})
			return
		}
		_ = json.NewEncoder(w).Encode(resp)
	}
}
