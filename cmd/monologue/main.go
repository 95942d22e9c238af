// Command monologue runs the agent kernel. It delivers one message to a
// session and prints the result, serves the kernel over Connect RPC, or acts
// as a client of such a server, including its meta-learning procedures.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/pflag"

	"github.com/tailored-agentic-units/monologue/core/protocol"
	"github.com/tailored-agentic-units/monologue/kernel"
	"github.com/tailored-agentic-units/monologue/observability"
	"github.com/tailored-agentic-units/monologue/session"
	"github.com/tailored-agentic-units/monologue/transport"
)

func main() {
	var (
		configFile    = pflag.StringP("config", "c", "", "Path to kernel config JSON/JSONC file")
		message       = pflag.StringP("message", "m", "", "Message to send to the agent")
		sessionID     = pflag.StringP("session", "s", "", "Session to deliver the message to (new session when empty)")
		profile       = pflag.String("profile", "", "Path to a YAML profile (overrides config)")
		memoryPath    = pflag.String("memory", "", "Path to the prompt and snapshot store (overrides config)")
		maxIterations = pflag.Int("max-iterations", 0, "Maximum loop iterations per message (overrides config)")
		serve         = pflag.String("serve", "", "Serve the kernel over Connect RPC on this address")
		remote        = pflag.String("remote", "", "Send the message to the kernel server at this URL")
		meta          = pflag.String("meta", "", "Meta-learning action against --remote (analyses, proposals, apply, analyze, suggest, versions, rollback, diff)")
		approve       = pflag.Bool("approve", false, "Approve the proposal named by --meta apply")
		follow        = pflag.BoolP("follow", "f", false, "Print the session log to stderr while running")
		verbose       = pflag.BoolP("verbose", "v", false, "Enable verbose logging to stderr")
	)
	pflag.Parse()

	if *serve == "" && *message == "" && *meta == "" {
		fmt.Fprintln(os.Stderr, "Usage: monologue [-c config] -m <message> | --serve <addr> | --remote <url> --meta <action>")
		pflag.PrintDefaults()
		os.Exit(1)
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if *meta != "" && *remote == "" {
		log.Fatal("--meta needs --remote")
	}

	if *remote != "" {
		client := transport.NewClient(http.DefaultClient, *remote)
		if *meta != "" {
			if err := runMeta(ctx, os.Stdout, client, *meta, *sessionID, *approve, pflag.Args()); err != nil {
				log.Fatalf("Meta-learning %s failed: %v", *meta, err)
			}
			return
		}
		if *follow && *sessionID != "" {
			go func() {
				if err := client.Subscribe(ctx, *sessionID, 0, printEntry(os.Stderr)); err != nil {
					logger.Warn("log subscription ended", "error", err)
				}
			}()
		}
		report(client.Run(ctx, *sessionID, protocol.UserMessage{Text: *message}))
		return
	}

	cfg := kernel.DefaultConfig()
	if *configFile != "" {
		loaded, err := kernel.LoadConfig(*configFile)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
		cfg = *loaded
	}
	if *profile != "" {
		cfg.Profile = *profile
	}
	if *memoryPath != "" {
		cfg.Memory.Path = *memoryPath
	}
	if *maxIterations > 0 {
		cfg.Session.MaxIterations = *maxIterations
	}
	if *verbose {
		cfg.Observability.Level = "verbose"
	}

	runtime, err := kernel.New(&cfg,
		kernel.WithLogger(logger),
		kernel.WithCapabilities(localCapabilities()...),
	)
	if err != nil {
		log.Fatalf("Failed to create kernel runtime: %v", err)
	}
	defer runtime.Wait()

	if *serve != "" {
		if err := listen(ctx, *serve, runtime, logger); err != nil {
			log.Fatalf("Server failed: %v", err)
		}
		return
	}

	if *follow {
		s, _, err := runtime.Sessions().Ensure(ctx, *sessionID)
		if err != nil {
			log.Fatalf("Failed to open session: %v", err)
		}
		*sessionID = s.ID
		entries, cancel := s.Log.Subscribe(0)
		defer cancel()
		go func() {
			show := printEntry(os.Stderr)
			for e := range entries {
				show(e)
			}
		}()
	}

	report(runtime.Run(ctx, *sessionID, protocol.UserMessage{Text: *message}))
}

func listen(ctx context.Context, addr string, k *kernel.Kernel, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle(transport.NewServer(k,
		transport.WithObserver(observability.NewSlogObserver(logger)),
	).Handler())

	var protocols http.Protocols
	protocols.SetHTTP1(true)
	protocols.SetUnencryptedHTTP2(true)

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		Protocols:         &protocols,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Shutdown(shutdown)
	}()

	logger.Info("serving kernel", "addr", addr, "service", transport.ServiceName)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func report(result *kernel.Result, err error) {
	if err != nil {
		var f *kernel.Failure
		if errors.As(err, &f) && f.Partial != "" {
			fmt.Printf("Partial: %s\n", f.Partial)
		}
		log.Fatalf("Kernel run failed: %v", err)
	}

	fmt.Printf("Session: %s\n", result.SessionID)
	fmt.Printf("Response: %s\n", result.Response)

	if len(result.Calls) > 0 {
		fmt.Println("\nCapability Calls:")
		for i, c := range result.Calls {
			fmt.Printf("  [%d] %s (iteration %d)\n", i+1, c.Name, c.Iteration)
			switch {
			case c.Result.IsError:
				fmt.Printf("    error: %s\n", c.Result.Message)
			case len(c.Result.Message) > 200:
				fmt.Printf("    -> %s...\n", c.Result.Message[:200])
			default:
				fmt.Printf("    -> %s\n", c.Result.Message)
			}
		}
	}

	fmt.Printf("\nIterations: %d\n", result.Iterations)
}

// printEntry writes log entries to w. Streamed chunks are written raw.
func printEntry(w io.Writer) func(session.LogEntry) {
	return func(e session.LogEntry) {
		if stream, _ := e.Data["stream"].(bool); stream {
			fmt.Fprint(w, e.Content)
			return
		}
		fmt.Fprintf(w, "\n[%s] %s\n", e.Kind, e.Heading)
		if e.Content != "" {
			fmt.Fprintln(w, e.Content)
		}
	}
}
