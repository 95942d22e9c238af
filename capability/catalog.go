package capability

import (
	"fmt"
	"os"
	"slices"
	"sync"

	"gopkg.in/yaml.v3"
)

// Builder creates a capability spec from manifest options.
type Builder func(options map[string]any) (Spec, error)

// Catalog maps names to builders so manifests can refer to capabilities by
// name.
type Catalog struct {
	mu       sync.RWMutex
	builders map[string]Builder
}

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{builders: make(map[string]Builder)}
}

// Add registers or replaces a builder.
func (c *Catalog) Add(name string, b Builder) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.builders[name] = b
}

// AddSpec registers a builder that ignores options and returns spec.
func (c *Catalog) AddSpec(spec Spec) {
	c.Add(spec.Name, func(map[string]any) (Spec, error) { return spec, nil })
}

// Build creates the named capability spec.
func (c *Catalog) Build(name string, options map[string]any) (Spec, error) {
	c.mu.RLock()
	b, ok := c.builders[name]
	c.mu.RUnlock()
	if !ok {
		return Spec{}, fmt.Errorf("%w: %s", ErrUnknownCapability, name)
	}
	spec, err := b(options)
	if err != nil {
		return Spec{}, fmt.Errorf("build capability %s: %w", name, err)
	}
	return spec, nil
}

// Names returns the catalog entries in sorted order.
func (c *Catalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.builders))
	for name := range c.builders {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Entry is one capability line of a manifest. Use names the catalog builder
// and defaults to Name; Description and Limit override the built spec.
type Entry struct {
	Name        string         `yaml:"name"`
	Use         string         `yaml:"use,omitempty"`
	Description string         `yaml:"description,omitempty"`
	Limit       int            `yaml:"limit,omitempty"`
	Disabled    bool           `yaml:"disabled,omitempty"`
	Options     map[string]any `yaml:"options,omitempty"`
}

// Manifest declares a set of capabilities.
type Manifest struct {
	Capabilities []Entry `yaml:"capabilities"`
}

// ParseManifest decodes a YAML manifest.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse capability manifest: %w", err)
	}
	return &m, nil
}

// LoadManifest reads and decodes a YAML manifest file.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read capability manifest: %w", err)
	}
	return ParseManifest(data)
}

// Specs builds every entry through c. Disabled entries are returned without
// building so they can hide defaults.
func (m *Manifest) Specs(c *Catalog) ([]Spec, error) {
	specs := make([]Spec, 0, len(m.Capabilities))
	for _, e := range m.Capabilities {
		if e.Name == "" {
			return nil, ErrEmptyName
		}
		if e.Disabled {
			specs = append(specs, Spec{Name: e.Name, Disabled: true})
			continue
		}
		use := e.Use
		if use == "" {
			use = e.Name
		}
		spec, err := c.Build(use, e.Options)
		if err != nil {
			return nil, err
		}
		spec.Name = e.Name
		if e.Description != "" {
			spec.Description = e.Description
		}
		if e.Limit > 0 {
			spec.Limit = e.Limit
		}
		specs = append(specs, spec)
	}
	return specs, nil
}
