package index

import (
	"sync"
	"testing"

	"github.com/MrSnakeDoc/promobot/internal/domain"
)

func testStyles() []*domain.Style {
	return []*domain.Style{
		{Name: "short", Templates: map[string]domain.StyleTemplate{"en": {Prompt: "short"}}},
		{Name: "classic", Templates: map[string]domain.StyleTemplate{"en": {Prompt: "classic"}}},
	}
}

func TestNewStyleIndex(t *testing.T) {
	index := NewStyleIndex()
	if index.Count() != 0 {
		t.Errorf("NewStyleIndex() should start empty, got %d", index.Count())
	}
	if !index.LastReload().IsZero() {
		t.Error("NewStyleIndex() should not have a reload time")
	}
	if _, ok := index.Get(""); ok {
		t.Error("Get() on an empty index should miss")
	}
}

func TestStyleIndexUpdate(t *testing.T) {
	index := NewStyleIndex()
	index.Update(testStyles(), "classic", "builtin")

	if index.Count() != 2 {
		t.Errorf("Update() stored %d styles, want 2", index.Count())
	}
	if index.Source() != "builtin" || index.LastReload().IsZero() {
		t.Errorf("Update() source = %q, lastReload = %v", index.Source(), index.LastReload())
	}

	all := index.All()
	if all[0].Name != "classic" || all[1].Name != "short" {
		t.Errorf("All() not sorted: %s, %s", all[0].Name, all[1].Name)
	}

	def, ok := index.Get("")
	if !ok || def.Name != "classic" {
		t.Errorf("Get(\"\") = %v, %v, want classic", def, ok)
	}
	if _, ok := index.Get("loud"); ok {
		t.Error("Get(loud) should miss")
	}
}

func TestStyleIndexUpdateOverwrites(t *testing.T) {
	index := NewStyleIndex()
	index.Update(testStyles(), "classic", "builtin")
	index.Update([]*domain.Style{{Name: "plain"}}, "plain", "/etc/styles.yaml")

	if index.Count() != 1 || index.Default() != "plain" {
		t.Errorf("Update() should overwrite, got %d styles default %q", index.Count(), index.Default())
	}
	if _, ok := index.Get("classic"); ok {
		t.Error("old style survived the update")
	}
}

func TestStyleIndexConcurrentAccess(t *testing.T) {
	index := NewStyleIndex()
	var wg sync.WaitGroup

	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			index.Update(testStyles(), "classic", "builtin")
		}()
		go func() {
			defer wg.Done()
			_ = index.All()
			_, _ = index.Get("short")
		}()
	}
	wg.Wait()

	if index.Count() != 2 {
		t.Errorf("Count() = %d after concurrent updates, want 2", index.Count())
	}
}
