package session

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/tailored-agentic-units/monologue/history"
	"github.com/tailored-agentic-units/monologue/memory"
	"github.com/tailored-agentic-units/monologue/observability"
)

// Registry maps session identifiers to sessions. Sessions live until Delete;
// nothing is collected implicitly.
type Registry struct {
	cfg        Config
	vector     memory.Vector
	journal    history.Journal
	summarizer history.Summarizer
	observer   observability.Observer

	mu       sync.RWMutex
	sessions map[string]*Session
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithVector sets the vector memory handle shared by every session.
func WithVector(v memory.Vector) RegistryOption {
	return func(r *Registry) { r.vector = v }
}

// WithJournal persists session histories and restores them on creation.
func WithJournal(j history.Journal) RegistryOption {
	return func(r *Registry) { r.journal = j }
}

// WithSummarizer sets the summarizer used by session histories.
func WithSummarizer(s history.Summarizer) RegistryOption {
	return func(r *Registry) { r.summarizer = s }
}

// WithObserver sets the observer passed to session histories.
func WithObserver(o observability.Observer) RegistryOption {
	return func(r *Registry) { r.observer = o }
}

// NewRegistry creates an empty Registry whose sessions start from cfg.
func NewRegistry(cfg Config, opts ...RegistryOption) *Registry {
	r := &Registry{
		cfg:      cfg,
		observer: observability.NoOpObserver{},
		sessions: make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Config returns the configuration new sessions are created with.
func (r *Registry) Config() Config { return r.cfg }

// Vector returns the shared vector memory handle, which may be nil.
func (r *Registry) Vector() memory.Vector { return r.vector }

// Get returns the session registered under id.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return s, nil
}

// Create registers a new session. An empty id is replaced by a UUIDv7. When
// a journal is configured the session's history is restored from it.
func (r *Registry) Create(ctx context.Context, id, parentID string) (*Session, error) {
	if id == "" {
		id = uuid.Must(uuid.NewV7()).String()
	}
	if parentID != "" {
		if _, err := r.Get(parentID); err != nil {
			return nil, fmt.Errorf("parent: %w", err)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; ok {
		return nil, fmt.Errorf("%w: %s", ErrExists, id)
	}

	h, err := history.Open(ctx, id, r.cfg.History, r.historyOptions()...)
	if err != nil {
		return nil, fmt.Errorf("restore history %s: %w", id, err)
	}

	s := newSession(id, parentID, r.cfg, h, r.vector)
	r.sessions[id] = s
	return s, nil
}

// Ensure returns the session for id, creating it on first use. The boolean
// reports whether it was created.
func (r *Registry) Ensure(ctx context.Context, id string) (*Session, bool, error) {
	if id != "" {
		if s, err := r.Get(id); err == nil {
			return s, false, nil
		}
	}
	s, err := r.Create(ctx, id, "")
	if err != nil {
		// Lost a creation race; the winner's session is the one to use.
		if existing, gerr := r.Get(id); gerr == nil {
			return existing, false, nil
		}
		return nil, false, err
	}
	return s, true, nil
}

// Delete terminates the session and removes it with all of its
// descendants. Persisted journals are kept.
func (r *Registry) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	r.deleteLocked(id)
	return nil
}

func (r *Registry) deleteLocked(id string) {
	s := r.sessions[id]
	s.Terminate()
	delete(r.sessions, id)
	for cid, c := range r.sessions {
		if c.ParentID == id {
			r.deleteLocked(cid)
		}
	}
}

// List returns the sorted identifiers of every registered session.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Children returns the sessions delegated from id.
func (r *Registry) Children(id string) []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Session
	for _, s := range r.sessions {
		if s.ParentID == id {
			out = append(out, s)
		}
	}
	slices.SortFunc(out, func(a, b *Session) int { return a.Created.Compare(b.Created) })
	return out
}

func (r *Registry) historyOptions() []history.Option {
	opts := []history.Option{history.WithObserver(r.observer)}
	if r.journal != nil {
		opts = append(opts, history.WithJournal(r.journal))
	}
	if r.summarizer != nil {
		opts = append(opts, history.WithSummarizer(r.summarizer))
	}
	return opts
}
