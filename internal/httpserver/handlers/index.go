package handlers

import (
	"bytes"
	"embed"
	"html/template"
	"net/http"
	"sort"
	"time"

	"github.com/MrSnakeDoc/promobot/internal/httpserver/deps"
	"github.com/MrSnakeDoc/promobot/internal/logger"
)

//go:embed templates/index.html
var templatesFS embed.FS

var indexTemplate = template.Must(template.ParseFS(templatesFS, "templates/index.html"))

type errorCount struct {
	Kind  string
	Count int64
}

type indexView struct {
	Version string
	Uptime  string
	Stats   statsResponse
	Errors  []errorCount
	Styles  int
	Backend string
}

// Index renders the HTML summary of the stats document.
func Index(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := snapshot(r.Context(), d)
		if err != nil {
			d.Logger.Error("failed to load stats for dashboard", logger.Error(err))
			http.Error(w, "stats unavailable", http.StatusServiceUnavailable)
			return
		}

		view := indexView{
			Version: d.Version,
			Uptime:  time.Duration(stats.UptimeSeconds * float64(time.Second)).Truncate(time.Second).String(),
			Stats:   stats,
			Errors:  sortedErrors(stats.ErrorsByKind),
			Backend: d.BackendName,
		}
		if d.Styles != nil {
			view.Styles = d.Styles.Count()
		}

		var buf bytes.Buffer
		if err := indexTemplate.Execute(&buf, view); err != nil {
			d.Logger.Error("failed to render dashboard", logger.Error(err))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		if _, err := w.Write(buf.Bytes()); err != nil {
			d.Logger.Debug("failed to write response", logger.Error(err))
		}
	}
}

func sortedErrors(m map[string]int64) []errorCount {
	out := make([]errorCount, 0, len(m))
	for k, v := range m {
		out = append(out, errorCount{Kind: k, Count: v})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Kind < out[j].Kind
	})
	return out
}
