package model

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/teilomillet/gollm"
)

// Gollm adapts a gollm.LLM to Model. Text between <think> tags is streamed
// as reasoning.
type Gollm struct {
	provider string
	llm      gollm.LLM
}

// NewGollm creates a provider client from cfg. Retries are left to WithRetry.
func NewGollm(cfg Config) (*Gollm, error) {
	opts := []gollm.ConfigOption{
		gollm.SetProvider(cfg.Provider),
		gollm.SetModel(cfg.Name),
		gollm.SetMaxTokens(cfg.MaxTokens),
		gollm.SetTemperature(cfg.Temperature),
		gollm.SetMaxRetries(0),
		gollm.SetLogLevel(gollm.LogLevelWarn),
	}
	if cfg.APIKeyEnv != "" {
		if key := os.Getenv(cfg.APIKeyEnv); key != "" {
			opts = append(opts, gollm.SetAPIKey(key))
		}
	}

	llm, err := gollm.NewLLM(opts...)
	if err != nil {
		return nil, fmt.Errorf("create %s client: %w", cfg.Provider, err)
	}
	return &Gollm{provider: cfg.Provider, llm: llm}, nil
}

// NewGollmFromLLM wraps an existing client.
func NewGollmFromLLM(provider string, llm gollm.LLM) *Gollm {
	return &Gollm{provider: provider, llm: llm}
}

func (g *Gollm) Stream(ctx context.Context, p Prompt) (*Stream, error) {
	prompt := g.prompt(p)

	if !g.llm.SupportsStreaming() {
		return NewStream(ctx, func(ctx context.Context, send func(Chunk) error) error {
			text, err := g.llm.Generate(ctx, prompt)
			if err != nil {
				return Classify(g.provider, err)
			}
			var split thinkSplitter
			for _, c := range append(split.feed(text), split.flush()...) {
				if err := send(c); err != nil {
					return err
				}
			}
			return nil
		}), nil
	}

	ts, err := g.llm.Stream(ctx, prompt)
	if err != nil {
		return nil, Classify(g.provider, err)
	}

	return NewStream(ctx, func(ctx context.Context, send func(Chunk) error) error {
		defer ts.Close()
		var split thinkSplitter
		for {
			token, err := ts.Next(ctx)
			if err == io.EOF {
				break
			}
			if err != nil {
				return Classify(g.provider, err)
			}
			if token == nil {
				continue
			}
			for _, c := range split.feed(token.Text) {
				if err := send(c); err != nil {
					return err
				}
			}
		}
		for _, c := range split.flush() {
			if err := send(c); err != nil {
				return err
			}
		}
		return nil
	}), nil
}

func (g *Gollm) prompt(p Prompt) *gollm.Prompt {
	text := p.ConversationText()
	if text == "" {
		text = "Begin."
	}
	var opts []gollm.PromptOption
	if sys := p.SystemText(); sys != "" {
		opts = append(opts, gollm.WithSystemPrompt(sys, gollm.CacheTypeEphemeral))
	}
	return gollm.NewPrompt(text, opts...)
}

const (
	thinkOpen  = "<think>"
	thinkClose = "</think>"
)

// thinkSplitter separates <think> sections from response text across chunk
// boundaries.
type thinkSplitter struct {
	inThink bool
	pending string
}

func (s *thinkSplitter) feed(text string) []Chunk {
	s.pending += text
	var out []Chunk
	for {
		tag, kind := thinkOpen, ChunkResponse
		if s.inThink {
			tag, kind = thinkClose, ChunkReasoning
		}

		if i := strings.Index(s.pending, tag); i >= 0 {
			if i > 0 {
				out = append(out, Chunk{Kind: kind, Text: s.pending[:i]})
			}
			s.pending = s.pending[i+len(tag):]
			s.inThink = !s.inThink
			continue
		}

		keep := partialSuffix(s.pending, tag)
		if emit := s.pending[:len(s.pending)-keep]; emit != "" {
			out = append(out, Chunk{Kind: kind, Text: emit})
		}
		s.pending = s.pending[len(s.pending)-keep:]
		return out
	}
}

func (s *thinkSplitter) flush() []Chunk {
	if s.pending == "" {
		return nil
	}
	kind := ChunkResponse
	if s.inThink {
		kind = ChunkReasoning
	}
	c := Chunk{Kind: kind, Text: s.pending}
	s.pending = ""
	return []Chunk{c}
}

// partialSuffix returns the length of the longest proper prefix of tag that
// text ends with.
func partialSuffix(text, tag string) int {
	for k := min(len(tag)-1, len(text)); k > 0; k-- {
		if strings.HasSuffix(text, tag[:k]) {
			return k
		}
	}
	return 0
}
