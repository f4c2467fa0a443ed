package capability

import (
	_ "embed"
	"fmt"

	contractx "github.com/tanpawarit/clubhouse/agent/contract"
	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalog []byte

type catalogFile struct {
	Capabilities []catalogEntry `yaml:"capabilities"`
}

type catalogEntry struct {
	Operation   string   `yaml:"operation"`
	Executor    string   `yaml:"executor"`
	Description string   `yaml:"description"`
	Aliases     []string `yaml:"aliases"`
	Entities    []string `yaml:"entities"`
	Internal    bool     `yaml:"internal"`
	Params      []Param  `yaml:"params"`
}

// Default builds and freezes the registry from the embedded catalog.
func Default() (*Registry, error) {
	return Load(defaultCatalog)
}

// MustDefault is Default for wiring code; it panics on a broken catalog.
func MustDefault() *Registry {
	r, err := Default()
	if err != nil {
		panic(err)
	}
	return r
}

// Load parses a YAML catalog and returns a frozen registry.
func Load(data []byte) (*Registry, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("%w: decode capability catalog: %v", contractx.ErrValidation, err)
	}

	r := NewRegistry()
	for i, entry := range file.Capabilities {
		opts := []Option{WithAliases(entry.Aliases...)}
		for _, raw := range entry.Entities {
			entity, err := contractx.ParseEntityType(raw)
			if err != nil {
				return nil, fmt.Errorf("catalog entry %d (%s): %w", i, entry.Operation, err)
			}
			opts = append(opts, AllowedFor(entity))
		}
		if entry.Internal {
			opts = append(opts, Internal())
		}
		if err := r.Register(entry.Executor, entry.Operation, entry.Params, entry.Description, opts...); err != nil {
			return nil, fmt.Errorf("catalog entry %d: %w", i, err)
		}
	}

	if err := r.Freeze(); err != nil {
		return nil, err
	}
	return r, nil
}
