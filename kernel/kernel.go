// Package kernel runs monologues: it turns one user message into a bounded
// sequence of model calls and capability executions against a session,
// invoking extensions at each lifecycle point.
//
// The kernel initializes from configuration via New. Functional options
// supply collaborators directly; anything not supplied is built from the
// matching config section.
//
//	k, err := kernel.New(&cfg)
//	result, err := k.Run(ctx, "", protocol.UserMessage{Text: "What's the weather in Boston?"})
package kernel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/tailored-agentic-units/monologue/capability"
	capbuiltin "github.com/tailored-agentic-units/monologue/capability/builtin"
	"github.com/tailored-agentic-units/monologue/evolution"
	"github.com/tailored-agentic-units/monologue/extension"
	extbuiltin "github.com/tailored-agentic-units/monologue/extension/builtin"
	"github.com/tailored-agentic-units/monologue/history"
	"github.com/tailored-agentic-units/monologue/memory"
	"github.com/tailored-agentic-units/monologue/model"
	"github.com/tailored-agentic-units/monologue/observability"
	"github.com/tailored-agentic-units/monologue/prompts"
	"github.com/tailored-agentic-units/monologue/session"
)

const tracerName = "github.com/tailored-agentic-units/monologue/kernel"

// Option configures a Kernel before config-driven initialization fills in
// whatever the options left unset.
type Option func(*Kernel)

// WithModel sets the chat model.
func WithModel(m model.Model) Option {
	return func(k *Kernel) { k.model = m }
}

// WithUtilityModel sets the model used for summaries and analysis.
func WithUtilityModel(m model.Model) Option {
	return func(k *Kernel) { k.utility = m }
}

// WithSessions sets the session registry.
func WithSessions(r *session.Registry) Option {
	return func(k *Kernel) { k.sessions = r }
}

// WithVector sets the vector memory shared by every session.
func WithVector(v memory.Vector) Option {
	return func(k *Kernel) { k.vector = v }
}

// WithPrompts sets the prompt library.
func WithPrompts(lib *prompts.Library) Option {
	return func(k *Kernel) { k.prompts = lib }
}

// WithObserver replaces the observer built from the observability config.
func WithObserver(o observability.Observer) Option {
	return func(k *Kernel) { k.observer = o }
}

// WithLogger sets the logger behind the "slog" observer. Without it events
// go to slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(k *Kernel) { k.logger = l }
}

// WithTracer overrides the global OpenTelemetry tracer.
func WithTracer(t trace.Tracer) Option {
	return func(k *Kernel) { k.tracer = t }
}

// WithCapabilities adds default-scope capabilities and makes them available
// to profiles by name.
func WithCapabilities(specs ...capability.Spec) Option {
	return func(k *Kernel) { k.extraSpecs = append(k.extraSpecs, specs...) }
}

// WithExtensions adds default-scope extension registrations.
func WithExtensions(regs ...extension.Registration) Option {
	return func(k *Kernel) { k.extraRegs = append(k.extraRegs, regs...) }
}

// Kernel owns the registries and collaborators of a monologue runtime.
type Kernel struct {
	cfg      Config
	model    model.Model
	utility  model.Model
	sessions *session.Registry
	vector   memory.Vector
	prompts  *prompts.Library
	observer observability.Observer
	logger   *slog.Logger
	tracer   trace.Tracer

	pipeline     *extension.Pipeline
	capabilities *capability.Registry
	dispatcher   *capability.Dispatcher
	extCatalog   *extension.Catalog
	capCatalog   *capability.Catalog
	extDefaults  []extension.Registration
	capDefaults  []capability.Spec
	evolution    *evolution.Trigger
	meta         *evolution.Manager

	extraSpecs []capability.Spec
	extraRegs  []extension.Registration
}

// New creates a Kernel from configuration.
func New(cfg *Config, opts ...Option) (*Kernel, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	k := &Kernel{cfg: *cfg}
	for _, opt := range opts {
		opt(k)
	}

	if k.observer == nil {
		obs, err := observability.New(cfg.Observability, k.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create observer: %w", err)
		}
		k.observer = obs
	}
	if k.tracer == nil {
		k.tracer = otel.Tracer(tracerName)
	}
	if err := k.initModels(); err != nil {
		return nil, err
	}
	if err := k.initMemory(); err != nil {
		return nil, err
	}
	if err := k.initSessions(); err != nil {
		return nil, err
	}

	analyzer := evolution.NewAnalyzer(cfg.Evolution, k.utility, k.prompts, evolution.WithObserver(k.observer))
	k.evolution = evolution.NewTrigger(analyzer)
	k.meta = evolution.NewManager(k.evolution, k.sessions.Vector())

	if err := k.initCapabilities(analyzer); err != nil {
		return nil, err
	}
	if err := k.initExtensions(); err != nil {
		return nil, err
	}

	if cfg.Profile != "" {
		if err := k.LoadProfile(context.Background(), cfg.Profile); err != nil {
			return nil, err
		}
	}
	return k, nil
}

func (k *Kernel) initModels() error {
	if k.model == nil {
		m, err := model.New(k.cfg.Model)
		if err != nil {
			return fmt.Errorf("failed to create model: %w", err)
		}
		k.model = m
	}
	if k.utility == nil {
		if k.cfg.Utility.Provider == "" {
			k.utility = k.model
		} else {
			m, err := model.New(k.cfg.Utility)
			if err != nil {
				return fmt.Errorf("failed to create utility model: %w", err)
			}
			k.utility = m
		}
	}
	return nil
}

func (k *Kernel) initMemory() error {
	if k.prompts == nil {
		store, err := memory.NewStore(&k.cfg.Memory)
		if err != nil {
			return fmt.Errorf("failed to create memory store: %w", err)
		}
		k.prompts = prompts.NewLibrary(store, k.cfg.PromptLayers...)
		if err := k.prompts.Load(context.Background()); err != nil {
			return err
		}
	}
	if k.vector == nil && k.sessions == nil {
		v, err := memory.NewVector(&k.cfg.Memory)
		if err != nil {
			return fmt.Errorf("failed to create vector memory: %w", err)
		}
		k.vector = v
	}
	return nil
}

func (k *Kernel) initSessions() error {
	if k.sessions != nil {
		return nil
	}
	opts := []session.RegistryOption{
		session.WithVector(k.vector),
		session.WithObserver(k.observer),
		session.WithSummarizer(Summarizer(k.utility, k.prompts)),
	}
	j, err := history.NewJournal(k.cfg.Session.History.Journal)
	switch {
	case errors.Is(err, history.ErrJournalDisabled):
	case err != nil:
		return fmt.Errorf("failed to create journal: %w", err)
	default:
		opts = append(opts, session.WithJournal(j))
	}
	k.sessions = session.NewRegistry(k.cfg.Session, opts...)
	return nil
}

func (k *Kernel) initCapabilities(analyzer *evolution.Analyzer) error {
	k.capCatalog = capability.NewCatalog()
	capbuiltin.Install(k.capCatalog)

	own := append([]capability.Spec{
		k.subordinate(),
		evolution.Capability(analyzer),
		evolution.SuggestionsCapability(analyzer),
	}, k.extraSpecs...)
	for _, spec := range own {
		k.capCatalog.AddSpec(spec)
	}
	k.capDefaults = append(capbuiltin.Specs(), own...)

	k.capabilities = capability.NewRegistry(k.observer)
	if err := k.capabilities.LoadDefaults(k.capDefaults...); err != nil {
		return fmt.Errorf("failed to load capabilities: %w", err)
	}
	k.dispatcher = capability.NewDispatcher(k.capabilities, capability.WithObserver(k.observer))
	return nil
}

func (k *Kernel) initExtensions() error {
	k.extCatalog = extension.NewCatalog()
	extbuiltin.Install(k.extCatalog, extbuiltin.Deps{
		Prompts:      k.prompts,
		Capabilities: k.capabilities,
		AgentName:    k.cfg.AgentName,
	})
	k.extCatalog.Add("prompt_evolution", func(map[string]any) (extension.Extension, error) {
		return k.evolution, nil
	})

	regs, err := extbuiltin.Defaults(k.extCatalog)
	if err != nil {
		return fmt.Errorf("failed to build default extensions: %w", err)
	}
	k.extDefaults = append(regs, k.evolution.Registration())
	k.extDefaults = append(k.extDefaults, k.extraRegs...)

	k.pipeline = extension.New(k.observer)
	if err := k.pipeline.LoadDefaults(k.extDefaults...); err != nil {
		return fmt.Errorf("failed to load extensions: %w", err)
	}
	return nil
}

// Sessions returns the session registry.
func (k *Kernel) Sessions() *session.Registry { return k.sessions }

// Pipeline returns the extension pipeline.
func (k *Kernel) Pipeline() *extension.Pipeline { return k.pipeline }

// Capabilities returns the capability registry.
func (k *Kernel) Capabilities() *capability.Registry { return k.capabilities }

// Prompts returns the prompt library.
func (k *Kernel) Prompts() *prompts.Library { return k.prompts }

// Evolution returns the manager of stored analyses and prompt versions.
func (k *Kernel) Evolution() *evolution.Manager { return k.meta }

// Pause asks the session's running monologue to stop at its next checkpoint.
func (k *Kernel) Pause(id string) error {
	s, err := k.sessions.Get(id)
	if err != nil {
		return err
	}
	s.Pause()
	return nil
}

// Resume releases a paused session.
func (k *Kernel) Resume(id string) error {
	s, err := k.sessions.Get(id)
	if err != nil {
		return err
	}
	s.Resume()
	return nil
}

// Terminate stops the session's running monologue at its next checkpoint.
func (k *Kernel) Terminate(id string) error {
	s, err := k.sessions.Get(id)
	if err != nil {
		return err
	}
	s.Terminate()
	return nil
}

// Delete terminates and removes the session and its subordinates.
func (k *Kernel) Delete(id string) error {
	return k.sessions.Delete(id)
}

// Wait blocks until background work started by extensions has finished.
func (k *Kernel) Wait() { k.evolution.Wait() }
