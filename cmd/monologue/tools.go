package main

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/tailored-agentic-units/monologue/capability"
	"github.com/tailored-agentic-units/monologue/core/loop"
	"github.com/tailored-agentic-units/monologue/core/protocol"
)

func localCapabilities() []capability.Spec {
	return []capability.Spec{
		{
			Name:        "datetime",
			Description: "Returns the current date and time in RFC3339 format.",
			Factory:     capability.Simple(datetime),
		},
		{
			Name:        "read_file",
			Description: "Reads the contents of a file at the given path.",
			Params: []protocol.Param{{
				Name:        "path",
				Type:        protocol.TypeString,
				Description: "Absolute or relative path to the file to read.",
				Required:    true,
			}},
			Factory: capability.Simple(readFile),
		},
		{
			Name:        "list_directory",
			Description: "Lists files and directories at the given path.",
			Params: []protocol.Param{{
				Name:        "path",
				Type:        protocol.TypeString,
				Description: "Absolute or relative path to the directory to list. Defaults to the working directory.",
			}},
			Factory: capability.Simple(listDirectory),
		},
	}
}

func datetime(context.Context, protocol.Call, *loop.State) (protocol.Result, error) {
	return protocol.Result{Message: time.Now().Format(time.RFC3339)}, nil
}

func readFile(_ context.Context, call protocol.Call, _ *loop.State) (protocol.Result, error) {
	path := call.Args.String("path")
	if path == "" {
		return protocol.ErrorResult("path is required"), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return protocol.ErrorResult("%s", err), nil
	}
	return protocol.Result{Message: string(data)}, nil
}

func listDirectory(_ context.Context, call protocol.Call, _ *loop.State) (protocol.Result, error) {
	path := call.Args.String("path")
	if path == "" {
		path = "."
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return protocol.ErrorResult("%s", err), nil
	}

	var b strings.Builder
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() {
			name += "/"
		}
		b.WriteString(name)
		b.WriteByte('\n')
	}
	return protocol.Result{Message: b.String()}, nil
}
