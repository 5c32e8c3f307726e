package domain

// StyleTemplate is the prompt pair for one language. Both fields are
// text/template sources rendered against a product.
type StyleTemplate struct {
	System string
	Prompt string
}

// Style is a named way of writing promotional copy.
type Style struct {
	Name        string
	Description string
	Templates   map[string]StyleTemplate // language -> templates
}

// Template returns the templates for lang, falling back to the default
// language.
func (s *Style) Template(lang string) (StyleTemplate, bool) {
	if t, ok := s.Templates[lang]; ok {
		return t, true
	}
	t, ok := s.Templates[DefaultLanguage]
	return t, ok
}
