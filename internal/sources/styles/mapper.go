package styles

import (
	"fmt"
	"sort"
	"strings"
	"text/template"

	"github.com/MrSnakeDoc/promobot/internal/domain"
)

// MapStyles converts a catalog to domain styles, sorted by name. Every style
// needs templates for the default language; templates must parse.
func MapStyles(config Config) ([]*domain.Style, string, error) {
	names := make([]string, 0, len(config.Styles))
	for name := range config.Styles {
		names = append(names, name)
	}
	sort.Strings(names)

	styles := make([]*domain.Style, 0, len(names))
	for _, name := range names {
		sc := config.Styles[name]
		key := strings.ToLower(strings.TrimSpace(name))
		if key == "" {
			continue
		}

		style := &domain.Style{
			Name:        key,
			Description: strings.TrimSpace(sc.Description),
			Templates:   make(map[string]domain.StyleTemplate, len(sc.Languages)),
		}
		for lang, tc := range sc.Languages {
			base, ok := domain.MatchLanguage(lang)
			if !ok {
				return nil, "", fmt.Errorf("style %s: unsupported language %q", key, lang)
			}
			if strings.TrimSpace(tc.Prompt) == "" {
				return nil, "", fmt.Errorf("style %s/%s: empty prompt", key, lang)
			}
			for field, src := range map[string]string{"system": tc.System, "prompt": tc.Prompt} {
				if _, err := template.New(field).Option("missingkey=error").Parse(src); err != nil {
					return nil, "", fmt.Errorf("style %s/%s: invalid %s template: %w", key, lang, field, err)
				}
			}
			style.Templates[base] = domain.StyleTemplate{System: tc.System, Prompt: tc.Prompt}
		}
		if _, ok := style.Templates[domain.DefaultLanguage]; !ok {
			return nil, "", fmt.Errorf("style %s: missing %q templates", key, domain.DefaultLanguage)
		}

		styles = append(styles, style)
	}

	if len(styles) == 0 {
		return nil, "", fmt.Errorf("no valid styles found in catalog")
	}

	def := strings.ToLower(strings.TrimSpace(config.Default))
	if def == "" {
		def = styles[0].Name
	}
	found := false
	for _, s := range styles {
		if s.Name == def {
			found = true
			break
		}
	}
	if !found {
		return nil, "", fmt.Errorf("default style %q is not defined", def)
	}

	return styles, def, nil
}
