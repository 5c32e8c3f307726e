package mw

import (
	"net/http"

	"github.com/MrSnakeDoc/promobot/internal/logger"
	"github.com/MrSnakeDoc/promobot/internal/metrics"
	"github.com/MrSnakeDoc/promobot/internal/utils"
)

// AllowOnlyCIDRS lets through clients whose IP is in one of the allowed IPs or
// CIDRs. An empty list disables the filter. trustProxy resolves the client
// from forwarding headers, for deployments behind a tunnel such as cloudflared.
func AllowOnlyCIDRS(allowed []string, trustProxy bool, log logger.Logger) func(http.Handler) http.Handler {
	m := utils.NewIPMatcher(allowed)
	if m.IsEmpty() {
		return func(next http.Handler) http.Handler { return next }
	}

	log.Debug("network filter enabled",
		logger.Int("rules", len(allowed)),
		logger.Bool("trust_proxy", trustProxy))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := utils.ClientIP(r, trustProxy)
			if m.Allow(ip) {
				next.ServeHTTP(w, r)
				return
			}

			metrics.AccessDenied.WithLabelValues("cidr").Inc()
			log.Debug("🚫 client network refused",
				logger.String("ip", ip),
				logger.String("remote_addr", r.RemoteAddr),
				logger.String("path", r.URL.Path))
			w.WriteHeader(http.StatusForbidden)
		})
	}
}
