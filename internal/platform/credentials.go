package platform

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// ErrNoCredentials is returned when a credentials reference resolves to nothing.
var ErrNoCredentials = errors.New("no credentials configured")

const envRefPrefix = "env:"

// Credentials resolves a binding's credentials_ref to a secret at send time.
// "env:NAME" reads the environment; any other reference names a secret
// supplied at startup.
type Credentials struct {
	secrets map[string]string
	lookup  func(string) (string, bool)
}

func NewCredentials(secrets map[string]string) *Credentials {
	c := &Credentials{secrets: make(map[string]string, len(secrets)), lookup: os.LookupEnv}
	for k, v := range secrets {
		if v != "" {
			c.secrets[k] = v
		}
	}
	return c
}

// Resolve returns the secret for ref, falling back to fallback when ref is empty.
func (c *Credentials) Resolve(ref, fallback string) (string, error) {
	if ref == "" {
		ref = fallback
	}
	if ref == "" {
		return "", ErrNoCredentials
	}

	if name, ok := strings.CutPrefix(ref, envRefPrefix); ok {
		if v, ok := c.lookup(name); ok && v != "" {
			return v, nil
		}
		return "", fmt.Errorf("%w: environment variable %s is empty", ErrNoCredentials, name)
	}
	if v, ok := c.secrets[ref]; ok {
		return v, nil
	}
	return "", fmt.Errorf("%w: unknown secret %q", ErrNoCredentials, ref)
}
