package secrets

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// ErrNotConfigured is wrapped by Load when a source resolves to nothing.
var ErrNotConfigured = errors.New("not configured")

// Source describes how to load a secret value.
type Source struct {
	// Name is used in error messages to give more context about the secret.
	Name string `mapstructure:"name"`
	// Value is an inline secret value provided via configuration or flags.
	Value string `mapstructure:"value"`
	// File points to a file containing the secret value. When set it takes
	// precedence over Env and Value.
	File string `mapstructure:"file"`
	// Env names an environment variable holding the secret. It takes
	// precedence over Value.
	Env string `mapstructure:"env"`
}

// Label returns a printable, non-secret description of the source.
func (s Source) Label() string {
	switch {
	case strings.TrimSpace(s.Name) != "":
		return strings.TrimSpace(s.Name)
	case strings.TrimSpace(s.File) != "":
		return "file:" + strings.TrimSpace(s.File)
	case strings.TrimSpace(s.Env) != "":
		return "env:" + strings.TrimSpace(s.Env)
	default:
		return "inline"
	}
}

// Load returns the resolved secret value from the provided source. The
// returned secret is always trimmed. An error wrapping ErrNotConfigured is
// returned when nothing usable is found.
func Load(src Source) (string, error) {
	name := strings.TrimSpace(src.Name)
	if name == "" {
		name = "secret"
	}

	file := strings.TrimSpace(src.File)
	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("reading %s from file %q: %w", name, file, err)
		}
		src.Value = string(data)
		src.File = file
	} else if env := strings.TrimSpace(src.Env); env != "" {
		if value, ok := os.LookupEnv(env); ok {
			src.Value = value
		}
	}

	secret := strings.TrimSpace(src.Value)
	if secret == "" {
		if src.File != "" {
			return "", fmt.Errorf("%s file %q is empty: %w", name, src.File, ErrNotConfigured)
		}
		return "", fmt.Errorf("%s is %w", name, ErrNotConfigured)
	}

	return secret, nil
}

// Credential is a resolved secret together with its non-secret label.
type Credential struct {
	Label string
	Value string
}

// LoadAll resolves every source in order and returns the usable ones.
// Sources resolving to nothing are dropped; duplicate values are kept once.
// Read errors are returned alongside the credentials that did resolve.
func LoadAll(sources []Source) ([]Credential, error) {
	var (
		creds []Credential
		errs  []error
		seen  = make(map[string]struct{}, len(sources))
	)

	for _, src := range sources {
		value, err := Load(src)
		if err != nil {
			if !errors.Is(err, ErrNotConfigured) {
				errs = append(errs, err)
			}
			continue
		}

		if _, dup := seen[value]; dup {
			continue
		}
		seen[value] = struct{}{}

		creds = append(creds, Credential{Label: src.Label(), Value: value})
	}

	return creds, errors.Join(errs...)
}

// FromEnv builds sources from environment variable names.
func FromEnv(names ...string) []Source {
	sources := make([]Source, 0, len(names))
	for _, name := range names {
		sources = append(sources, Source{Env: name})
	}
	return sources
}
