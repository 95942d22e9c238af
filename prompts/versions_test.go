package prompts_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/tailored-agentic-units/monologue/prompts"
)

func versionedLibrary(t *testing.T) (*prompts.Library, *prompts.Versions, string) {
	t.Helper()
	root := t.TempDir()
	writePrompt(t, root, "default", "role.md", "v1 role\n")
	writePrompt(t, root, "default", "tone.md", "calm\n")
	lib := loadedLibrary(t, root, "default")
	return lib, lib.Versions("default"), root
}

func TestSafeLabel(t *testing.T) {
	tests := []struct {
		label string
		want  bool
	}{
		{"baseline", true},
		{"pre_rollback_v-2", true},
		{"", false},
		{"../up", false},
		{"with space", false},
		{"dots.not.allowed", false},
	}
	for _, tt := range tests {
		if got := prompts.SafeLabel(tt.label); got != tt.want {
			t.Errorf("SafeLabel(%q) = %v, want %v", tt.label, got, tt.want)
		}
	}
}

func TestVersions_SnapshotAndGet(t *testing.T) {
	_, v, root := versionedLibrary(t)
	ctx := context.Background()

	id, err := v.Snapshot(ctx, "baseline", nil)
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if id != "baseline" {
		t.Errorf("id = %q", id)
	}

	m, err := v.Get(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if m.FileCount != 2 || m.CreatedBy != "manual" || m.Label != "baseline" {
		t.Errorf("metadata = %+v", m)
	}
	if _, err := os.Stat(filepath.Join(root, "versioned", "default", "baseline", "metadata.json")); err != nil {
		t.Errorf("metadata.json not written: %v", err)
	}

	again, err := v.Snapshot(ctx, "baseline", nil)
	if err != nil || again == id {
		t.Errorf("repeated label produced %q, %v", again, err)
	}

	unsafe, err := v.Snapshot(ctx, "bad label!", nil)
	if err != nil || !prompts.SafeLabel(unsafe) || unsafe == "bad label!" {
		t.Errorf("unsafe label produced id %q, %v", unsafe, err)
	}

	if _, err := v.Get(ctx, "missing"); !errors.Is(err, prompts.ErrVersionNotFound) {
		t.Errorf("Get(missing) error = %v", err)
	}
}

func TestVersions_ApplyRollbackDiff(t *testing.T) {
	lib, v, _ := versionedLibrary(t)
	ctx := context.Background()

	before, err := v.Apply(ctx, "role.md", "v2 role\nwith more\n", "clarify role")
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if got, _ := lib.Get("role.md"); got != "v2 role\nwith more\n" {
		t.Errorf("role after apply = %q", got)
	}

	m, err := v.Get(ctx, before)
	if err != nil {
		t.Fatal(err)
	}
	if m.CreatedBy != "meta_learning" || len(m.Changes) != 1 || m.Changes[0].File != "role.md" {
		t.Errorf("apply metadata = %+v", m)
	}

	after, err := v.Snapshot(ctx, "after", nil)
	if err != nil {
		t.Fatal(err)
	}
	diff, err := v.Diff(ctx, before, after)
	if err != nil {
		t.Fatal(err)
	}
	if len(diff) != 1 || diff["role.md"].Status != "modified" || diff["role.md"].LinesA != 1 || diff["role.md"].LinesB != 2 {
		t.Errorf("Diff() = %+v", diff)
	}

	backup, err := v.Rollback(ctx, before, true)
	if err != nil {
		t.Fatalf("Rollback() error = %v", err)
	}
	if backup != "pre_rollback_"+before {
		t.Errorf("backup id = %q", backup)
	}
	if got, _ := lib.Get("role.md"); got != "v1 role\n" {
		t.Errorf("role after rollback = %q", got)
	}

	if _, err := v.Rollback(ctx, "missing", false); !errors.Is(err, prompts.ErrVersionNotFound) {
		t.Errorf("Rollback(missing) error = %v", err)
	}
}

func TestVersions_DiffAddedDeleted(t *testing.T) {
	lib, v, _ := versionedLibrary(t)
	ctx := context.Background()

	a, _ := v.Snapshot(ctx, "a", nil)
	lib.Put(ctx, "default", "extra.md", "new\n")
	b, _ := v.Snapshot(ctx, "b", nil)

	diff, err := v.Diff(ctx, a, b)
	if err != nil {
		t.Fatal(err)
	}
	if diff["extra.md"].Status != "added" {
		t.Errorf("a->b = %+v", diff)
	}
	diff, _ = v.Diff(ctx, b, a)
	if diff["extra.md"].Status != "deleted" {
		t.Errorf("b->a = %+v", diff)
	}
}

func TestVersions_ListPruneExport(t *testing.T) {
	_, v, _ := versionedLibrary(t)
	ctx := context.Background()

	for _, label := range []string{"one", "two", "three"} {
		if _, err := v.Snapshot(ctx, label, nil); err != nil {
			t.Fatal(err)
		}
	}

	list, err := v.List(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[0].ID != "three" || list[1].ID != "two" {
		t.Errorf("List(2) = %+v", list)
	}

	removed, err := v.Prune(ctx, 1)
	if err != nil || removed != 2 {
		t.Fatalf("Prune() = %d, %v", removed, err)
	}
	list, _ = v.List(ctx, 0)
	if len(list) != 1 || list[0].ID != "three" {
		t.Errorf("after prune = %+v", list)
	}

	dir := t.TempDir()
	if err := v.Export(ctx, "three", dir); err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	for _, name := range []string{"role.md", "tone.md", "metadata.json"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("exported %s missing: %v", name, err)
		}
	}
}
