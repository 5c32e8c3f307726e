package index

import (
	"sort"
	"sync"
	"time"

	"github.com/MrSnakeDoc/promobot/internal/domain"
)

// StyleIndex provides in-memory lookup of prompt styles. It is replaced as
// a whole on every catalog reload.
type StyleIndex struct {
	mu         sync.RWMutex
	styles     map[string]*domain.Style // Name -> Style
	def        string                   // Name of the default style
	lastReload time.Time                // Timestamp of last reload
	source     string                   // Where the catalog came from
}

// NewStyleIndex creates an empty style index
func NewStyleIndex() *StyleIndex {
	return &StyleIndex{
		styles: make(map[string]*domain.Style),
	}
}

// Update replaces all styles in the index
func (idx *StyleIndex) Update(styles []*domain.Style, def, source string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	// Clear and rebuild
	idx.styles = make(map[string]*domain.Style, len(styles))
	for _, style := range styles {
		idx.styles[style.Name] = style
	}
	idx.def = def
	idx.source = source
	idx.lastReload = time.Now()
}

// Get retrieves a style by name. An empty name returns the default style.
func (idx *StyleIndex) Get(name string) (*domain.Style, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if name == "" {
		name = idx.def
	}
	style, ok := idx.styles[name]
	return style, ok
}

// All returns every style sorted by name
func (idx *StyleIndex) All() []*domain.Style {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	styles := make([]*domain.Style, 0, len(idx.styles))
	for _, style := range idx.styles {
		styles = append(styles, style)
	}
	sort.Slice(styles, func(i, j int) bool { return styles[i].Name < styles[j].Name })
	return styles
}

// Default returns the name of the default style
func (idx *StyleIndex) Default() string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	return idx.def
}

// Count returns the number of styles in the index
func (idx *StyleIndex) Count() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	return len(idx.styles)
}

// Source returns where the current catalog was loaded from
func (idx *StyleIndex) Source() string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	return idx.source
}

// LastReload returns the timestamp of the last reload
func (idx *StyleIndex) LastReload() time.Time {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	return idx.lastReload
}
