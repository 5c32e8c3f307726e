package styles

// Config is the root structure of styles.yaml
type Config struct {
	// Default names the style used when a request doesn't pick one
	Default string                 `yaml:"default"`
	Styles  map[string]StyleConfig `yaml:"styles"`
}

// StyleConfig describes one style and its per-language prompts
type StyleConfig struct {
	Description string                    `yaml:"description,omitempty"`
	Languages   map[string]TemplateConfig `yaml:"languages"`
}

// TemplateConfig holds the system and user prompt templates of one language
type TemplateConfig struct {
	System string `yaml:"system"`
	Prompt string `yaml:"prompt"`
}
