package generate

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"github.com/MrSnakeDoc/promobot/internal/domain"
)

// PromptData is what style templates are rendered against.
type PromptData struct {
	Title       string
	Price       string
	Description string
	Brand       string
	URL         string
	// Summary joins the known fields into one line.
	Summary  string
	Language string
}

// NewPromptData collects the template fields of a product.
func NewPromptData(p domain.Product, lang string) PromptData {
	parts := []string{p.Title}
	if p.Brand != "" {
		parts = append(parts, "Brand: "+p.Brand)
	}
	if p.Price != "" {
		parts = append(parts, "Price: "+p.Price)
	}
	if p.Description != "" {
		parts = append(parts, p.Description)
	}
	return PromptData{
		Title:       p.Title,
		Price:       p.Price,
		Description: p.Description,
		Brand:       p.Brand,
		URL:         p.SourceURL,
		Summary:     strings.Join(parts, ". "),
		Language:    lang,
	}
}

// BuildPrompt renders style's templates for lang against p.
func BuildPrompt(style *domain.Style, lang string, p domain.Product) (Prompt, error) {
	tmpl, ok := style.Template(lang)
	if !ok {
		return Prompt{}, fmt.Errorf("style %s has no templates for %s", style.Name, lang)
	}

	data := NewPromptData(p, lang)
	system, err := render(style.Name+"/system", tmpl.System, data)
	if err != nil {
		return Prompt{}, err
	}
	user, err := render(style.Name+"/prompt", tmpl.Prompt, data)
	if err != nil {
		return Prompt{}, err
	}
	return Prompt{System: strings.TrimSpace(system), User: strings.TrimSpace(user)}, nil
}

func render(name, src string, data PromptData) (string, error) {
	t, err := template.New(name).Option("missingkey=error").Parse(src)
	if err != nil {
		return "", fmt.Errorf("failed to parse %s: %w", name, err)
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render %s: %w", name, err)
	}
	return buf.String(), nil
}
