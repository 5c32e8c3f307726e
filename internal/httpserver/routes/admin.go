package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/promobot/internal/httpserver/deps"
	"github.com/MrSnakeDoc/promobot/internal/httpserver/handlers"
	"github.com/MrSnakeDoc/promobot/internal/httpserver/mw"
)

func init() { Register("admin", registerAdmin) }

// registerAdmin mounts the operator endpoints, reachable only from allowed
// networks and hosts.
func registerAdmin(r chi.Router, d deps.Deps) {
	admin := r.With(
		mw.AllowOnlyCIDRS(d.AllowedCIDRS, d.TrustProxy, d.Logger),
		mw.EnforceHost(d.AllowedHosts, d.Logger),
	)
	admin.Get("/infra", handlers.Infra(d))
	admin.Post("/reload", handlers.Reload(d))
}
