package session_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/tailored-agentic-units/monologue/core/protocol"
	"github.com/tailored-agentic-units/monologue/history"
	"github.com/tailored-agentic-units/monologue/memory"
	"github.com/tailored-agentic-units/monologue/session"
)

func TestRegistry_CreateGet(t *testing.T) {
	r := session.NewRegistry(session.DefaultConfig())
	ctx := context.Background()

	s, err := r.Create(ctx, "", "")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if s.ID == "" {
		t.Fatal("generated id is empty")
	}
	if s.History == nil || s.Log == nil {
		t.Fatal("session missing history or log")
	}

	got, err := r.Get(s.ID)
	if err != nil || got != s {
		t.Errorf("Get() = %v, %v", got, err)
	}

	if _, err := r.Create(ctx, s.ID, ""); !errors.Is(err, session.ErrExists) {
		t.Errorf("duplicate Create() error = %v, want ErrExists", err)
	}
	if _, err := r.Get("nope"); !errors.Is(err, session.ErrNotFound) {
		t.Errorf("Get(nope) error = %v, want ErrNotFound", err)
	}
}

func TestRegistry_Ensure(t *testing.T) {
	r := session.NewRegistry(session.DefaultConfig())
	ctx := context.Background()

	s, created, err := r.Ensure(ctx, "chat-1")
	if err != nil || !created {
		t.Fatalf("first Ensure() = %v, %v", created, err)
	}
	again, created, err := r.Ensure(ctx, "chat-1")
	if err != nil || created || again != s {
		t.Errorf("second Ensure() = %p, %v, %v; want existing", again, created, err)
	}
}

func TestRegistry_Ensure_Concurrent(t *testing.T) {
	r := session.NewRegistry(session.DefaultConfig())

	var wg sync.WaitGroup
	results := make([]*session.Session, 16)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s, _, err := r.Ensure(context.Background(), "shared")
			if err != nil {
				t.Errorf("Ensure() error = %v", err)
			}
			results[i] = s
		}(i)
	}
	wg.Wait()

	for _, s := range results {
		if s != results[0] {
			t.Fatal("concurrent Ensure() produced distinct sessions")
		}
	}
}

func TestRegistry_ChildrenShareVector(t *testing.T) {
	cfg := memory.DefaultConfig()
	v, err := memory.NewVector(&cfg)
	if err != nil {
		t.Fatal(err)
	}
	r := session.NewRegistry(session.DefaultConfig(), session.WithVector(v))
	ctx := context.Background()

	parent, _ := r.Create(ctx, "parent", "")
	child, err := r.Create(ctx, "", parent.ID)
	if err != nil {
		t.Fatalf("Create(child) error = %v", err)
	}

	if child.ParentID != parent.ID {
		t.Errorf("ParentID = %q", child.ParentID)
	}
	if child.Vector != parent.Vector {
		t.Error("child does not share the parent's vector handle")
	}
	if child.History == parent.History {
		t.Error("child must own its history")
	}
	if kids := r.Children(parent.ID); len(kids) != 1 || kids[0] != child {
		t.Errorf("Children() = %v", kids)
	}

	if _, err := r.Create(ctx, "", "missing"); !errors.Is(err, session.ErrNotFound) {
		t.Errorf("Create() with unknown parent error = %v", err)
	}
}

func TestRegistry_Delete(t *testing.T) {
	r := session.NewRegistry(session.DefaultConfig())
	ctx := context.Background()

	parent, _ := r.Create(ctx, "p", "")
	child, _ := r.Create(ctx, "c", "p")
	r.Create(ctx, "other", "")

	if err := r.Delete("p"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	if got := r.List(); len(got) != 1 || got[0] != "other" {
		t.Errorf("List() = %v, want [other]", got)
	}
	if parent.Status() != session.StatusTerminated || child.Status() != session.StatusTerminated {
		t.Error("deleted sessions should be terminated")
	}
	if err := r.Delete("p"); !errors.Is(err, session.ErrNotFound) {
		t.Errorf("second Delete() error = %v", err)
	}
}

func TestRegistry_RestoresFromJournal(t *testing.T) {
	j := history.NewFileJournal(t.TempDir())
	ctx := context.Background()

	first := session.NewRegistry(session.DefaultConfig(), session.WithJournal(j))
	s, _ := first.Create(ctx, "persisted", "")
	s.History.Append(ctx, protocol.NewTurn(protocol.RoleUser, "remember me"))
	s.History.Append(ctx, protocol.NewTurn(protocol.RoleAgent, "ok"))

	second := session.NewRegistry(session.DefaultConfig(), session.WithJournal(j))
	restored, created, err := second.Ensure(ctx, "persisted")
	if err != nil || !created {
		t.Fatalf("Ensure() = %v, %v", created, err)
	}
	turns := restored.History.Snapshot()
	if len(turns) != 2 || turns[0].Content != "remember me" {
		t.Errorf("restored turns = %+v", turns)
	}
}
