package extension_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/tailored-agentic-units/monologue/core/loop"
	"github.com/tailored-agentic-units/monologue/core/protocol"
	"github.com/tailored-agentic-units/monologue/extension"
	"github.com/tailored-agentic-units/monologue/observability"
)

var emptyMessage = protocol.UserMessage{}

type captureObserver struct {
	mu     sync.Mutex
	events []observability.Event
}

func (c *captureObserver) OnEvent(_ context.Context, e observability.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
}

func (c *captureObserver) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

func labelCatalog() *extension.Catalog {
	c := extension.NewCatalog()
	c.Add("label", func(options map[string]any) (extension.Extension, error) {
		text, ok := options["text"].(string)
		if !ok {
			return nil, fmt.Errorf("label requires a text option")
		}
		return recorder(text), nil
	})
	return c
}

const manifest = `
extensions:
  - point: iteration-start
    name: greeting
    priority: 20
    use: label
    options:
      text: hello
  - point: iteration-start
    name: label
    priority: 10
    options:
      text: first
  - point: iteration-start
    name: recall
    disabled: true
`

func TestManifest_Registrations(t *testing.T) {
	m, err := extension.ParseManifest([]byte(manifest))
	if err != nil {
		t.Fatalf("ParseManifest() error = %v", err)
	}

	regs, err := m.Registrations(labelCatalog(), extension.ScopeProfile)
	if err != nil {
		t.Fatalf("Registrations() error = %v", err)
	}
	if len(regs) != 3 {
		t.Fatalf("got %d registrations", len(regs))
	}
	for _, r := range regs {
		if r.Scope != extension.ScopeProfile {
			t.Errorf("%s scope = %s", r.Name, r.Scope)
		}
	}
	if !regs[2].Disabled || regs[2].Extension != nil {
		t.Errorf("disabled entry built: %+v", regs[2])
	}

	p := extension.New(nil)
	if err := p.LoadProfile(regs...); err != nil {
		t.Fatal(err)
	}
	st := p.Invoke(context.Background(), extension.IterationStart, loop.New(nil, emptyMessage, 0))
	if got := order(st); got != "first,hello" {
		t.Errorf("order = %q", got)
	}
}

func TestManifest_Errors(t *testing.T) {
	tests := []struct {
		name     string
		manifest string
		want     error
	}{
		{"unknown factory", "extensions:\n  - point: iteration-end\n    name: missing\n", extension.ErrUnknownExtension},
		{"unknown point", "extensions:\n  - point: sometime\n    name: label\n    options: {text: x}\n", extension.ErrUnknownPoint},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := extension.ParseManifest([]byte(tt.manifest))
			if err != nil {
				t.Fatal(err)
			}
			if _, err := m.Registrations(labelCatalog(), extension.ScopeDefault); !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
		})
	}

	if _, err := extension.ParseManifest([]byte("extensions: [")); err == nil {
		t.Error("expected YAML error")
	}
}

func TestCatalog_Names(t *testing.T) {
	c := labelCatalog()
	c.Add("alpha", func(map[string]any) (extension.Extension, error) { return recorder("a"), nil })

	names := c.Names()
	if len(names) != 2 || names[0] != "alpha" || names[1] != "label" {
		t.Errorf("Names() = %v", names)
	}
	if _, err := c.Build("label", nil); err == nil {
		t.Error("factory error not propagated")
	}
}
