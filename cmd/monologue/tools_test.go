package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tailored-agentic-units/monologue/core/protocol"
)

func TestLocalCapabilities(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("remember this"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Mkdir(filepath.Join(dir, "sub"), 0o755); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		tool    string
		args    protocol.Args
		want    string
		isError bool
	}{
		{"read file", "read_file", protocol.Args{"path": filepath.Join(dir, "notes.txt")}, "remember this", false},
		{"read missing path", "read_file", protocol.Args{}, "path is required", true},
		{"read missing file", "read_file", protocol.Args{"path": filepath.Join(dir, "nope")}, "no such file", true},
		{"list directory", "list_directory", protocol.Args{"path": dir}, "notes.txt\nsub/\n", false},
		{"list missing directory", "list_directory", protocol.Args{"path": filepath.Join(dir, "nope")}, "no such file", true},
	}

	specs := localCapabilities()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var run func() (protocol.Result, error)
			for _, s := range specs {
				if s.Name == tt.tool {
					c := s.Factory()
					run = func() (protocol.Result, error) {
						return c.Run(context.Background(), protocol.Call{Name: tt.tool, Args: tt.args}, nil)
					}
				}
			}
			if run == nil {
				t.Fatalf("capability %s not found", tt.tool)
			}

			res, err := run()
			if err != nil {
				t.Fatalf("Run() error = %v", err)
			}
			if res.IsError != tt.isError {
				t.Errorf("IsError = %v, want %v (%s)", res.IsError, tt.isError, res.Message)
			}
			if !strings.Contains(res.Message, tt.want) {
				t.Errorf("Message = %q, want %q", res.Message, tt.want)
			}
		})
	}
}
