package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/promobot/internal/httpserver/deps"
	"github.com/MrSnakeDoc/promobot/internal/httpserver/handlers"
	"github.com/MrSnakeDoc/promobot/internal/httpserver/mw"
)

const (
	defaultAPIBurst  = 20
	defaultAPIPerMin = 60
)

func init() { Register("api", registerAPI) }

func registerAPI(r chi.Router, d deps.Deps) {
	burst, perMin := d.APIBurst, d.APIPerMin
	if burst <= 0 {
		burst = defaultAPIBurst
	}
	if perMin <= 0 {
		perMin = defaultAPIPerMin
	}

	r.Route("/api", func(api chi.Router) {
		api.Use(
			mw.AllowOnlyCIDRS(d.AllowedCIDRS, d.TrustProxy, d.Logger),
			mw.EnforceHost(d.AllowedHosts, d.Logger),
			mw.RateLimit(mw.RateLimitConfig{
				Burst:      burst,
				PerMinute:  perMin,
				MaxClients: 10_000,
				TrustProxy: d.TrustProxy,
				Now:        d.TimeNow,
			}),
		)
		api.Get("/stats", handlers.Stats(d))
		api.Get("/health", handlers.Healthz(d))
	})
}
