package extension

import (
	"fmt"
	"os"
	"slices"
	"sync"

	"gopkg.in/yaml.v3"
)

// Factory builds an extension from manifest options.
type Factory func(options map[string]any) (Extension, error)

// Catalog maps names to extension factories so manifests can refer to
// extensions by name.
type Catalog struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{factories: make(map[string]Factory)}
}

// Add registers or replaces a factory.
func (c *Catalog) Add(name string, f Factory) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.factories[name] = f
}

// Build creates the named extension.
func (c *Catalog) Build(name string, options map[string]any) (Extension, error) {
	c.mu.RLock()
	f, ok := c.factories[name]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownExtension, name)
	}
	ext, err := f(options)
	if err != nil {
		return nil, fmt.Errorf("build extension %s: %w", name, err)
	}
	return ext, nil
}

// Names returns the catalog entries in sorted order.
func (c *Catalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.factories))
	for name := range c.factories {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Entry is one extension line of a manifest. Use names the catalog factory
// and defaults to Name.
type Entry struct {
	Point    Point          `yaml:"point"`
	Name     string         `yaml:"name"`
	Priority int            `yaml:"priority"`
	Use      string         `yaml:"use,omitempty"`
	Disabled bool           `yaml:"disabled,omitempty"`
	Options  map[string]any `yaml:"options,omitempty"`
}

// Manifest declares a set of extension registrations.
type Manifest struct {
	Extensions []Entry `yaml:"extensions"`
}

// ParseManifest decodes a YAML manifest.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse extension manifest: %w", err)
	}
	return &m, nil
}

// LoadManifest reads and decodes a YAML manifest file.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read extension manifest: %w", err)
	}
	return ParseManifest(data)
}

// Registrations builds every entry through c. Disabled entries are returned
// without building so they can shadow defaults.
func (m *Manifest) Registrations(c *Catalog, scope Scope) ([]Registration, error) {
	regs := make([]Registration, 0, len(m.Extensions))
	for _, e := range m.Extensions {
		reg := Registration{
			Point:    e.Point,
			Priority: e.Priority,
			Name:     e.Name,
			Scope:    scope,
			Disabled: e.Disabled,
		}
		if !e.Disabled {
			use := e.Use
			if use == "" {
				use = e.Name
			}
			ext, err := c.Build(use, e.Options)
			if err != nil {
				return nil, err
			}
			reg.Extension = ext
		}
		if err := reg.validate(); err != nil {
			return nil, err
		}
		regs = append(regs, reg)
	}
	return regs, nil
}
