package deps

import (
	"context"
	"time"

	"github.com/MrSnakeDoc/promobot/internal/index"
	"github.com/MrSnakeDoc/promobot/internal/logger"
	"github.com/MrSnakeDoc/promobot/internal/store"
)

type Deps struct {
	Logger        logger.Logger
	StartTime     time.Time
	Version       string
	Commit        string
	BuildDate     string
	GoVersion     string
	TimeNow       func() time.Time                // for testing, defaults to time.Now
	AllowedHosts  []string                        // Host headers allowed to access the server
	AllowedCIDRS  []string                        // IPs allowed to access the dashboard
	TrustProxy    bool                            // true if running behind a trusted reverse proxy (e.g., cloudflared)
	Store         store.Reader                    // read-only view of the persisted documents
	Ping          func(ctx context.Context) error // backend health probe
	BackendName   string                          // e.g. "file:data" or "redis:localhost:6379"
	Styles        *index.StyleIndex               // In-memory style catalog
	ReloadTrigger chan struct{}                   // Channel to trigger a manual styles reload
	APIBurst      int                             // per-IP burst on /api, 0 = default
	APIPerMin     int                             // per-IP refill on /api, 0 = default
}

// Now returns TimeNow() when set, time.Now() otherwise.
func (d Deps) Now() time.Time {
	if d.TimeNow != nil {
		return d.TimeNow()
	}
	return time.Now()
}
