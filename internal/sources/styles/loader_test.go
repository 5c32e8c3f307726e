package styles

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoaderLoadBuiltin(t *testing.T) {
	loader := NewLoader("")
	if loader.Source() != "builtin" {
		t.Errorf("Source() = %q, want builtin", loader.Source())
	}

	config, err := loader.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if config.Default != "classic" {
		t.Errorf("Default = %q, want classic", config.Default)
	}

	styles, def, err := MapStyles(config)
	if err != nil {
		t.Fatalf("MapStyles() error = %v", err)
	}
	if def != "classic" || len(styles) != 2 {
		t.Fatalf("MapStyles() = %d styles, default %q", len(styles), def)
	}
	for _, s := range styles {
		for _, lang := range []string{"en", "ru", "ro"} {
			if _, ok := s.Templates[lang]; !ok {
				t.Errorf("style %s has no %s templates", s.Name, lang)
			}
		}
	}
}

func TestLoaderLoadFile(t *testing.T) {
	yamlPath := filepath.Join(t.TempDir(), "styles.yaml")

	yamlContent := `default: plain
styles:
  Plain:
    description: Just the facts
    languages:
      en:
        system: Be brief.
        prompt: "Describe {{.Title}}"
      ru-RU:
        prompt: "Опиши {{.Title}}"
`
	if err := os.WriteFile(yamlPath, []byte(yamlContent), 0o644); err != nil {
		t.Fatalf("Failed to create test YAML file: %v", err)
	}

	config, err := NewLoader(yamlPath).Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	styles, def, err := MapStyles(config)
	if err != nil {
		t.Fatalf("MapStyles() error = %v", err)
	}
	if def != "plain" {
		t.Errorf("default = %q, want plain", def)
	}
	if got := styles[0].Templates["ru"].Prompt; got != "Опиши {{.Title}}" {
		t.Errorf("ru prompt = %q", got)
	}
}

func TestLoaderLoadFileNotFound(t *testing.T) {
	_, err := NewLoader("/nonexistent/path/styles.yaml").Load()
	if err == nil {
		t.Error("Load() with non-existent file should return error")
	}
}

func TestMapStylesRejects(t *testing.T) {
	en := map[string]TemplateConfig{"en": {Prompt: "{{.Title}}"}}

	tests := []struct {
		name   string
		config Config
	}{
		{name: "empty", config: Config{}},
		{name: "unknown default", config: Config{Default: "loud", Styles: map[string]StyleConfig{"plain": {Languages: en}}}},
		{name: "missing english", config: Config{Styles: map[string]StyleConfig{"plain": {Languages: map[string]TemplateConfig{"ro": {Prompt: "x"}}}}}},
		{name: "unsupported language", config: Config{Styles: map[string]StyleConfig{"plain": {Languages: map[string]TemplateConfig{"en": {Prompt: "x"}, "xx-invalid-tag": {Prompt: "x"}}}}}},
		{name: "broken template", config: Config{Styles: map[string]StyleConfig{"plain": {Languages: map[string]TemplateConfig{"en": {Prompt: "{{.Title"}}}}}},
		{name: "empty prompt", config: Config{Styles: map[string]StyleConfig{"plain": {Languages: map[string]TemplateConfig{"en": {System: "x"}}}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := MapStyles(tt.config); err == nil {
				t.Error("MapStyles() error = nil, want error")
			}
		})
	}
}
