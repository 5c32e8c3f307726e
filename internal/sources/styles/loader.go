package styles

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed default_styles.yaml
var defaultStyles []byte

// Loader handles loading and parsing of the styles catalog
type Loader struct {
	filePath string
}

// NewLoader creates a new styles loader. An empty path loads the built-in catalog.
func NewLoader(filePath string) *Loader {
	return &Loader{
		filePath: filePath,
	}
}

// Source describes where styles are loaded from
func (l *Loader) Source() string {
	if l.filePath == "" {
		return "builtin"
	}
	return l.filePath
}

// Load reads and parses the catalog
func (l *Loader) Load() (Config, error) {
	data := defaultStyles
	if l.filePath != "" {
		var err error
		data, err = os.ReadFile(l.filePath)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read styles file: %w", err)
		}
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Config{}, fmt.Errorf("failed to parse styles yaml: %w", err)
	}

	return config, nil
}
