package history

import (
	"context"
	"fmt"
	"slices"

	"github.com/tailored-agentic-units/monologue/core/protocol"
)

// Journal persists one append-only turn log per session plus digest records
// keyed by the ordinal range they summarize.
type Journal interface {
	Append(ctx context.Context, sessionID string, turn protocol.Turn) error
	SaveDigest(ctx context.Context, sessionID string, digest protocol.Turn) error
	Load(ctx context.Context, sessionID string) (Record, error)
	Delete(ctx context.Context, sessionID string) error
}

// Record is everything persisted for one session.
type Record struct {
	Turns   []protocol.Turn
	Digests []protocol.Turn
}

// NewJournal creates the journal selected by cfg. It returns
// ErrJournalDisabled when no kind is configured.
func NewJournal(cfg JournalConfig) (Journal, error) {
	switch cfg.Kind {
	case "":
		return nil, ErrJournalDisabled
	case "file":
		if cfg.Path == "" {
			return nil, fmt.Errorf("file journal: path is required")
		}
		return NewFileJournal(cfg.Path), nil
	case "redis":
		return NewRedisJournal(cfg)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownJournal, cfg.Kind)
	}
}

// Restore rebuilds the turns the model last saw: at each position the widest
// digest starting there replaces the raw turns it covers, and ranges without
// a digest are taken from the raw log.
func Restore(rec Record) []protocol.Turn {
	raw := make(map[int]protocol.Turn, len(rec.Turns))
	last := -1
	for _, t := range rec.Turns {
		raw[t.Ordinal] = t
		last = max(last, t.Ordinal)
	}

	widest := make(map[int]protocol.Turn, len(rec.Digests))
	for _, d := range rec.Digests {
		if d.Digest == nil {
			continue
		}
		cur, ok := widest[d.Digest.From]
		if !ok || d.Digest.To > cur.Digest.To {
			widest[d.Digest.From] = d
		}
		last = max(last, d.Digest.To)
	}

	var out []protocol.Turn
	for o := 0; o <= last; {
		if d, ok := widest[o]; ok {
			out = append(out, d.Clone())
			o = d.Digest.To + 1
			continue
		}
		if t, ok := raw[o]; ok {
			out = append(out, t.Clone())
		}
		o++
	}
	return out
}

func sortRecord(rec *Record) {
	slices.SortFunc(rec.Turns, func(a, b protocol.Turn) int { return a.Ordinal - b.Ordinal })
	slices.SortFunc(rec.Digests, func(a, b protocol.Turn) int {
		if a.Digest.From != b.Digest.From {
			return a.Digest.From - b.Digest.From
		}
		return a.Digest.To - b.Digest.To
	})
}
