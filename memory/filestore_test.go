package memory_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/tailored-agentic-units/monologue/memory"
)

func TestFileStore_List(t *testing.T) {
	tests := []struct {
		name  string
		files map[string]string
		want  []string
	}{
		{"empty dir", nil, nil},
		{
			"sorted keys",
			map[string]string{
				"prompts/default/agent.system.main.md": "main",
				"prompts/default/agent.system.tools.md": "tools",
				"versioned/v1/metadata.json":            "{}",
			},
			[]string{
				"prompts/default/agent.system.main.md",
				"prompts/default/agent.system.tools.md",
				"versioned/v1/metadata.json",
			},
		},
		{
			"skips hidden",
			map[string]string{
				"agent.system.main.md": "visible",
				".lock":                "hidden",
				".git/HEAD":            "hidden dir",
			},
			[]string{"agent.system.main.md"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := t.TempDir()
			for key, content := range tt.files {
				writeTestFile(t, root, key, content)
			}

			keys, err := memory.NewFileStore(root).List(context.Background())
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if !slices.Equal(keys, tt.want) {
				t.Errorf("List() = %v, want %v", keys, tt.want)
			}
		})
	}
}

func TestFileStore_List_MissingRoot(t *testing.T) {
	store := memory.NewFileStore(filepath.Join(t.TempDir(), "nonexistent"))

	keys, err := store.List(context.Background())
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(keys) != 0 {
		t.Errorf("List() returned %d keys, want 0", len(keys))
	}
}

func TestFileStore_Load(t *testing.T) {
	root := t.TempDir()
	writeTestFile(t, root, "prompts/default/agent.system.main.md", "You are an agent.")
	writeTestFile(t, root, "versioned/v1/metadata.json", `{"id":"v1"}`)

	store := memory.NewFileStore(root)

	entries, err := store.Load(context.Background(), "prompts/default/agent.system.main.md", "versioned/v1/metadata.json")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("Load() returned %d entries, want 2", len(entries))
	}
	if string(entries[0].Value) != "You are an agent." {
		t.Errorf("entries[0].Value = %q", entries[0].Value)
	}
	if entries[1].Key != "versioned/v1/metadata.json" {
		t.Errorf("entries[1].Key = %q", entries[1].Key)
	}
}

func TestFileStore_Load_KeyNotFound(t *testing.T) {
	store := memory.NewFileStore(t.TempDir())

	_, err := store.Load(context.Background(), "agent.system.missing.md")
	if !errors.Is(err, memory.ErrKeyNotFound) {
		t.Errorf("Load() error = %v, want %v", err, memory.ErrKeyNotFound)
	}
}

func TestFileStore_RejectsEscapingKeys(t *testing.T) {
	store := memory.NewFileStore(t.TempDir())

	for _, key := range []string{"../outside.md", "", "a/../../b.md"} {
		if _, err := store.Load(context.Background(), key); !errors.Is(err, memory.ErrLoadFailed) {
			t.Errorf("Load(%q) error = %v, want ErrLoadFailed", key, err)
		}
		err := store.Save(context.Background(), memory.Entry{Key: key, Value: []byte("x")})
		if !errors.Is(err, memory.ErrSaveFailed) {
			t.Errorf("Save(%q) error = %v, want ErrSaveFailed", key, err)
		}
	}
}

func TestFileStore_Save_Overwrite(t *testing.T) {
	root := t.TempDir()
	store := memory.NewFileStore(root)
	key := "prompts/default/agent.system.main.md"

	for _, v := range []string{"v1", "v2"} {
		if err := store.Save(context.Background(), memory.Entry{Key: key, Value: []byte(v)}); err != nil {
			t.Fatalf("Save(%s) error = %v", v, err)
		}
	}

	got, err := os.ReadFile(filepath.Join(root, "prompts", "default", "agent.system.main.md"))
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if string(got) != "v2" {
		t.Errorf("file content = %q, want %q", got, "v2")
	}

	leftovers, _ := filepath.Glob(filepath.Join(root, "prompts", "default", ".tmp-*"))
	if len(leftovers) != 0 {
		t.Errorf("temp files left behind: %v", leftovers)
	}
}

func TestFileStore_Delete(t *testing.T) {
	root := t.TempDir()
	writeTestFile(t, root, "versioned/v1/agent.system.main.md", "a")
	writeTestFile(t, root, "versioned/v2/agent.system.main.md", "b")

	store := memory.NewFileStore(root)

	if err := store.Delete(context.Background(), "versioned/v1/agent.system.main.md", "never-existed.md"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	if _, err := os.Stat(filepath.Join(root, "versioned", "v1")); !os.IsNotExist(err) {
		t.Error("empty snapshot directory should be removed after Delete")
	}
	if _, err := os.Stat(filepath.Join(root, "versioned")); err != nil {
		t.Error("parent with remaining snapshots should be preserved")
	}
}

func TestFileStore_RoundTrip(t *testing.T) {
	store := memory.NewFileStore(t.TempDir())
	ctx := context.Background()

	original := []memory.Entry{
		{Key: "prompts/default/agent.system.main.md", Value: []byte("main")},
		{Key: "prompts/researcher/agent.system.main.md", Value: []byte("override")},
		{Key: "versioned/v1/metadata.json", Value: []byte(`{"label":"v1"}`)},
	}
	if err := store.Save(ctx, original...); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	keys, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	loaded, err := store.Load(ctx, keys...)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	for i, e := range original {
		if loaded[i].Key != e.Key || string(loaded[i].Value) != string(e.Value) {
			t.Errorf("loaded[%d] = %s=%q, want %s=%q", i, loaded[i].Key, loaded[i].Value, e.Key, e.Value)
		}
	}
}

// writeTestFile creates a file with the given content under root.
func writeTestFile(t *testing.T, root, key, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
}
