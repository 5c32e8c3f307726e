package routes

import (
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MrSnakeDoc/promobot/internal/httpserver/deps"
	"github.com/MrSnakeDoc/promobot/internal/httpserver/handlers"
	"github.com/MrSnakeDoc/promobot/internal/httpserver/mw"
)

func init() { Register("dashboard", registerDashboard) }

func registerDashboard(r chi.Router, d deps.Deps) {
	cidrs := mw.AllowOnlyCIDRS(d.AllowedCIDRS, d.TrustProxy, d.Logger)

	r.With(cidrs, mw.EnforceHost(d.AllowedHosts, d.Logger)).Get("/", handlers.Index(d))
	r.With(cidrs).Handle("/metrics", promhttp.Handler())
}
