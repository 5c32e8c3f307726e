package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/MrSnakeDoc/promobot/internal/httpserver/deps"
	"github.com/MrSnakeDoc/promobot/internal/logger"
)

type reloadResponse struct {
	Status string `json:"status"`
	Styles int    `json:"styles_loaded"`
}

// Reload queues a style catalog reload. The trigger channel holds at most one
// pending request, so a second call before the reloader picks it up gets 429.
func Reload(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status, code := "queued", http.StatusAccepted
		switch {
		case d.ReloadTrigger == nil:
			status, code = "reloader not running", http.StatusServiceUnavailable
		default:
			select {
			case d.ReloadTrigger <- struct{}{}:
				d.Logger.Info("🔄 styles reload requested", logger.String("remote_addr", r.RemoteAddr))
			default:
				status, code = "reload already pending", http.StatusTooManyRequests
				d.Logger.Debug("styles reload already pending", logger.String("remote_addr", r.RemoteAddr))
			}
		}

		resp := reloadResponse{Status: status}
		if d.Styles != nil {
			resp.Styles = d.Styles.Count()
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			d.Logger.Debug("failed to write reload response", logger.Error(err))
		}
	}
}
