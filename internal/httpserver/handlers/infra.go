package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/MrSnakeDoc/promobot/internal/httpserver/deps"
)

type componentStatus struct {
	OK           bool   `json:"ok"`
	Backend      string `json:"backend,omitempty"`
	StylesLoaded *int   `json:"styles_loaded,omitempty"`
	Source       string `json:"source,omitempty"`
	LastReload   string `json:"last_reload,omitempty"`
	Impact       string `json:"impact,omitempty"`
	Error        string `json:"error,omitempty"`
}

type infraResponse struct {
	Mode       string                     `json:"mode"`
	Components map[string]componentStatus `json:"components"`
}

// Infra reports the state of the store and the style catalog.
func Infra(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-store")

		components := map[string]componentStatus{
			"store":  checkStore(r, d),
			"styles": checkStyles(d),
		}

		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(infraResponse{
			Mode:       determineMode(components),
			Components: components,
		})
	}
}

func determineMode(components map[string]componentStatus) string {
	// Without storage nothing can be recorded.
	if st, ok := components["store"]; ok && !st.OK {
		return "critical"
	}
	// Without styles generation fails but stored data stays reachable.
	if st, ok := components["styles"]; ok && !st.OK {
		return "degraded"
	}
	return "operational"
}

func checkStore(r *http.Request, d deps.Deps) componentStatus {
	if err := ping(r.Context(), d); err != nil {
		return componentStatus{
			OK:      false,
			Backend: d.BackendName,
			Impact:  "writes-failing",
			Error:   "unreachable",
		}
	}
	return componentStatus{OK: true, Backend: d.BackendName}
}

func checkStyles(d deps.Deps) componentStatus {
	if d.Styles == nil {
		return componentStatus{OK: false, Impact: "generation-disabled", Error: "catalog not initialized"}
	}

	count := d.Styles.Count()
	lastReload := "never"
	if t := d.Styles.LastReload(); !t.IsZero() {
		lastReload = t.UTC().Format("2006-01-02 15:04:05")
	}
	st := componentStatus{
		OK:           count > 0,
		StylesLoaded: &count,
		Source:       d.Styles.Source(),
		LastReload:   lastReload,
	}
	if count == 0 {
		st.Impact = "generation-disabled"
	}
	return st
}
