package kernel

import (
	"context"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tailored-agentic-units/monologue/capability"
	"github.com/tailored-agentic-units/monologue/extension"
	"github.com/tailored-agentic-units/monologue/observability"
)

// Profile overrides default extensions and capabilities for one agent
// persona. Entries are resolved against the kernel's catalogs.
//
//	name: researcher
//	extensions:
//	  - point: iteration-start
//	    name: recall_memories
//	    disabled: true
//	capabilities:
//	  - name: memory_forget
//	    disabled: true
type Profile struct {
	Name         string             `yaml:"name"`
	Extensions   []extension.Entry  `yaml:"extensions"`
	Capabilities []capability.Entry `yaml:"capabilities"`
}

// ParseProfile decodes a YAML profile.
func ParseProfile(data []byte) (*Profile, error) {
	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse profile: %w", err)
	}
	return &p, nil
}

// ReadProfile reads and decodes a YAML profile file.
func ReadProfile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profile: %w", err)
	}
	return ParseProfile(data)
}

// ApplyProfile replaces the profile tier of both registries. Defaults are
// kept. It waits for in-flight work on the previous registries, so it must
// not be called from inside an extension or capability.
func (k *Kernel) ApplyProfile(ctx context.Context, p *Profile) error {
	em := extension.Manifest{Extensions: p.Extensions}
	regs, err := em.Registrations(k.extCatalog, extension.ScopeProfile)
	if err != nil {
		return fmt.Errorf("profile %s: %w", p.Name, err)
	}
	cm := capability.Manifest{Capabilities: p.Capabilities}
	specs, err := cm.Specs(k.capCatalog)
	if err != nil {
		return fmt.Errorf("profile %s: %w", p.Name, err)
	}

	if err := k.capabilities.Reload(ctx, k.capDefaults, specs); err != nil {
		return err
	}
	if err := k.pipeline.Reload(ctx, k.extDefaults, regs); err != nil {
		return err
	}

	k.observer.OnEvent(ctx, observability.Event{
		Type:      EventProfile,
		Level:     observability.LevelInfo,
		Timestamp: time.Now(),
		Source:    "kernel",
		Data: map[string]any{
			"profile":      p.Name,
			"extensions":   len(regs),
			"capabilities": len(specs),
		},
	})
	return nil
}

// LoadProfile reads the profile at path and applies it.
func (k *Kernel) LoadProfile(ctx context.Context, path string) error {
	p, err := ReadProfile(path)
	if err != nil {
		return err
	}
	return k.ApplyProfile(ctx, p)
}
