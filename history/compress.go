package history

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/tailored-agentic-units/monologue/core/protocol"
	"github.com/tailored-agentic-units/monologue/observability"
)

// minDigestTokens floors the per-topic summary budget.
const minDigestTokens = 32

// Summarizer condenses a contiguous range of turns into at most budget
// tokens of text. For DigestBulk the range may begin with the previous bulk
// digest.
type Summarizer interface {
	Summarize(ctx context.Context, kind protocol.DigestKind, turns []protocol.Turn, budget int) (string, error)
}

// SummarizerFunc adapts a function to Summarizer.
type SummarizerFunc func(ctx context.Context, kind protocol.DigestKind, turns []protocol.Turn, budget int) (string, error)

func (f SummarizerFunc) Summarize(ctx context.Context, kind protocol.DigestKind, turns []protocol.Turn, budget int) (string, error) {
	return f(ctx, kind, turns, budget)
}

// Truncator summarizes without a model by keeping the head and tail of the
// rendered range.
type Truncator struct{}

func (Truncator) Summarize(_ context.Context, _ protocol.DigestKind, turns []protocol.Turn, budget int) (string, error) {
	lines := make([]string, len(turns))
	for i, t := range turns {
		lines[i] = t.Text()
	}
	text := strings.Join(lines, "\n")

	limit := budget * 3
	if len(text) <= limit || limit < 16 {
		return text, nil
	}
	head, tail := (limit-5)/2, len(text)-(limit-5)/2
	for head > 0 && !utf8.RuneStart(text[head]) {
		head--
	}
	for tail < len(text) && !utf8.RuneStart(text[tail]) {
		tail++
	}
	return text[:head] + "\n...\n" + text[tail:], nil
}

// Compress summarizes everything older than the KeepRecent most recent
// turns. Raw turns are grouped by user turn and each group becomes one topic
// digest. While topic digests exceed their budget the oldest are folded into
// the single rolling bulk digest. Existing digests are never summarized as
// raw conversation, so a second pass without new turns reports false and
// leaves the history unchanged.
func (h *History) Compress(ctx context.Context) (bool, error) {
	h.compressMu.Lock()
	defer h.compressMu.Unlock()

	snap := h.Snapshot()
	if len(snap) <= h.cfg.KeepRecent {
		return false, nil
	}
	older := snap[:len(snap)-h.cfg.KeepRecent]
	before := h.estimate(snap)

	var bulk *protocol.Turn
	if older[0].IsDigest() && older[0].Digest.Kind == protocol.DigestBulk {
		bulk = &older[0]
		older = older[1:]
	}

	segments := segment(older)
	groups := 0
	for _, seg := range segments {
		if seg.digest == nil {
			groups++
		}
	}

	var added []protocol.Turn
	topics := make([]protocol.Turn, 0, len(segments))
	if groups > 0 {
		per := max(minDigestTokens, h.cfg.topicBudget()/groups)
		for _, seg := range segments {
			if seg.digest != nil {
				topics = append(topics, *seg.digest)
				continue
			}
			d, err := h.digest(ctx, protocol.DigestTopic, seg.raw, per)
			if err != nil {
				return false, err
			}
			topics = append(topics, d)
			added = append(added, d)
		}
	} else {
		for _, seg := range segments {
			topics = append(topics, *seg.digest)
		}
	}

	if fold := h.foldCount(topics); fold > 0 {
		input := topics[:fold]
		if bulk != nil {
			input = append([]protocol.Turn{*bulk}, input...)
		}
		d, err := h.digest(ctx, protocol.DigestBulk, input, h.cfg.bulkBudget())
		if err != nil {
			return false, err
		}
		bulk = &d
		topics = topics[fold:]
		added = append(added, d)
	}

	if len(added) == 0 {
		return false, nil
	}

	head := make([]protocol.Turn, 0, len(topics)+1)
	if bulk != nil {
		head = append(head, *bulk)
	}
	head = append(head, topics...)
	consumed := len(snap) - h.cfg.KeepRecent

	h.mu.Lock()
	rest := h.turns[consumed:]
	h.turns = append(head, rest...)
	after := h.estimate(h.turns)
	h.mu.Unlock()

	if h.journal != nil {
		for _, d := range added {
			if err := h.journal.SaveDigest(ctx, h.sessionID, d); err != nil {
				h.emit(ctx, EventJournalError, observability.LevelWarning, map[string]any{
					"digest": d.Digest.Key(),
					"error":  err.Error(),
				})
			}
		}
	}

	h.emit(ctx, EventCompress, observability.LevelInfo, map[string]any{
		"digests":       len(added),
		"tokens_before": before,
		"tokens_after":  after,
	})
	return true, nil
}

// foldCount returns how many of the oldest topic digests must move into the
// bulk digest for the rest to fit the topic budget.
func (h *History) foldCount(topics []protocol.Turn) int {
	total := h.estimate(topics)
	budget := h.cfg.topicBudget()
	n := 0
	for total > budget && n < len(topics) {
		total -= TurnTokens(h.est, topics[n])
		n++
	}
	return n
}

func (h *History) digest(ctx context.Context, kind protocol.DigestKind, turns []protocol.Turn, budget int) (protocol.Turn, error) {
	d := protocol.Turn{
		Ordinal: turns[0].Ordinal,
		Role:    protocol.RoleSystem,
		Digest: &protocol.Digest{
			Kind: kind,
			From: turns[0].Ordinal,
			To:   turns[len(turns)-1].Last(),
		},
	}

	text, err := h.summarizer.Summarize(ctx, kind, cloneTurns(turns), budget)
	if err != nil {
		return protocol.Turn{}, fmt.Errorf("summarize %s %s: %w", kind, d.Digest.Key(), err)
	}
	room := budget - TurnTokens(h.est, d)
	d.Content = clip(h.est, strings.TrimSpace(text), room)
	return d, nil
}

type seg struct {
	digest *protocol.Turn
	raw    []protocol.Turn
}

// segment splits turns into existing digests and raw groups, starting a new
// group at every user turn.
func segment(turns []protocol.Turn) []seg {
	var out []seg
	var cur []protocol.Turn
	flush := func() {
		if len(cur) > 0 {
			out = append(out, seg{raw: cur})
			cur = nil
		}
	}
	for i := range turns {
		t := turns[i]
		if t.IsDigest() {
			flush()
			out = append(out, seg{digest: &t})
			continue
		}
		if t.Role == protocol.RoleUser {
			flush()
		}
		cur = append(cur, t)
	}
	flush()
	return out
}

// clip shortens text until est counts at most budget tokens.
func clip(est Estimator, text string, budget int) string {
	if budget <= 0 {
		return ""
	}
	for {
		n := est.Count(text)
		if n <= budget {
			return text
		}
		runes := []rune(text)
		keep := len(runes) * budget / n
		if keep >= len(runes) {
			keep = len(runes) - 1
		}
		if keep <= 0 {
			return ""
		}
		text = string(runes[:keep])
	}
}
