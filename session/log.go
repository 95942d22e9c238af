package session

import (
	"sync"
	"time"
)

// EntryKind classifies a log entry for presentation.
type EntryKind string

const (
	KindUser      EntryKind = "user"
	KindReasoning EntryKind = "reasoning"
	KindResponse  EntryKind = "response"
	KindTool      EntryKind = "tool"
	KindInfo      EntryKind = "info"
	KindWarning   EntryKind = "warning"
	KindError     EntryKind = "error"
)

// LogEntry is one record in a session log.
type LogEntry struct {
	Seq     int            `json:"seq"`
	Time    time.Time      `json:"time"`
	Kind    EntryKind      `json:"kind"`
	Heading string         `json:"heading,omitempty"`
	Content string         `json:"content,omitempty"`
	Data    map[string]any `json:"data,omitempty"`
}

// Log is the user-facing sink of a session. Entries are retained up to a
// limit and fanned out to subscribers; a slow subscriber misses entries
// rather than blocking the writer.
type Log struct {
	mu      sync.Mutex
	limit   int
	seq     int
	entries []LogEntry
	subs    map[int]chan LogEntry
	nextSub int
}

// NewLog creates a Log retaining at most limit entries. A non-positive limit
// retains everything.
func NewLog(limit int) *Log {
	return &Log{limit: limit, subs: make(map[int]chan LogEntry)}
}

// Write appends an entry and returns it with its sequence number set.
func (l *Log) Write(kind EntryKind, heading, content string, data map[string]any) LogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.seq++
	e := LogEntry{
		Seq:     l.seq,
		Time:    time.Now(),
		Kind:    kind,
		Heading: heading,
		Content: content,
		Data:    data,
	}
	l.entries = append(l.entries, e)
	if l.limit > 0 && len(l.entries) > l.limit {
		l.entries = append([]LogEntry(nil), l.entries[len(l.entries)-l.limit:]...)
	}

	for _, ch := range l.subs {
		select {
		case ch <- e:
		default:
		}
	}
	return e
}

// Since returns retained entries with a sequence number greater than seq.
func (l *Log) Since(seq int) []LogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []LogEntry
	for _, e := range l.entries {
		if e.Seq > seq {
			out = append(out, e)
		}
	}
	return out
}

// Entries returns every retained entry.
func (l *Log) Entries() []LogEntry { return l.Since(0) }

// Subscribe returns a channel receiving every entry written after the call
// and a cancel function that closes it.
func (l *Log) Subscribe(buffer int) (<-chan LogEntry, func()) {
	if buffer <= 0 {
		buffer = 256
	}
	ch := make(chan LogEntry, buffer)

	l.mu.Lock()
	id := l.nextSub
	l.nextSub++
	l.subs[id] = ch
	l.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.subs, id)
			l.mu.Unlock()
			close(ch)
		})
	}
}
