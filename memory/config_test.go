package memory_test

import (
	"testing"

	"github.com/tailored-agentic-units/monologue/memory"
)

func TestDefaultConfig(t *testing.T) {
	cfg := memory.DefaultConfig()

	if cfg.Path != "" {
		t.Errorf("got Path %q, want empty string", cfg.Path)
	}
	if cfg.Vector.Embedding != "hash" {
		t.Errorf("got Embedding %q, want hash", cfg.Vector.Embedding)
	}
	if cfg.Vector.Collection == "" {
		t.Error("expected a default collection name")
	}
}

func TestConfig_Merge(t *testing.T) {
	cfg := memory.DefaultConfig()

	source := &memory.Config{
		Path:   "/data/prompts",
		Vector: memory.VectorConfig{Embedding: "ollama", Model: "nomic-embed-text"},
	}
	cfg.Merge(source)

	if cfg.Path != "/data/prompts" {
		t.Errorf("got Path %q, want %q", cfg.Path, "/data/prompts")
	}
	if cfg.Vector.Embedding != "ollama" || cfg.Vector.Model != "nomic-embed-text" {
		t.Errorf("vector not merged: %+v", cfg.Vector)
	}
	if cfg.Vector.Dimensions != 256 {
		t.Errorf("got Dimensions %d, want default 256 preserved", cfg.Vector.Dimensions)
	}
}

func TestConfig_Merge_EmptyPreservesDefault(t *testing.T) {
	cfg := memory.Config{Path: "/original"}

	cfg.Merge(&memory.Config{})

	if cfg.Path != "/original" {
		t.Errorf("got Path %q, want %q (preserved)", cfg.Path, "/original")
	}
}

func TestNewStore(t *testing.T) {
	store, err := memory.NewStore(&memory.Config{})
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	if store != nil {
		t.Error("expected nil store for empty path")
	}

	store, err = memory.NewStore(&memory.Config{Path: t.TempDir()})
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	if store == nil {
		t.Fatal("expected non-nil store for valid path")
	}
}

func TestNewVector(t *testing.T) {
	tests := []struct {
		name    string
		vc      memory.VectorConfig
		wantErr bool
	}{
		{"hash", memory.VectorConfig{Embedding: "hash", Collection: "t"}, false},
		{"empty defaults to hash", memory.VectorConfig{Collection: "t"}, false},
		{"openai without key", memory.VectorConfig{Embedding: "openai", APIKeyEnv: "MONOLOGUE_TEST_UNSET_KEY", Collection: "t"}, true},
		{"unknown", memory.VectorConfig{Embedding: "word2vec", Collection: "t"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := memory.NewVector(&memory.Config{Vector: tt.vc})
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewVector() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && v.Count() != 0 {
				t.Errorf("new vector has %d snippets", v.Count())
			}
		})
	}
}
