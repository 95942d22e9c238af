package history

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/tailored-agentic-units/monologue/core/protocol"
	"github.com/tailored-agentic-units/monologue/memory"
)

const (
	turnLogName = "turns.jsonl"
	digestDir   = "digests"
)

// FileJournal stores each session under <root>/<session id>/ as a JSONL turn
// log plus one digests/<from>-<to>.json file per digest.
type FileJournal struct {
	root string
	mu   sync.Mutex
}

// NewFileJournal creates a FileJournal rooted at root.
func NewFileJournal(root string) *FileJournal {
	return &FileJournal{root: root}
}

func (j *FileJournal) dir(sessionID string) (string, error) {
	if sessionID == "" || strings.ContainsAny(sessionID, `/\`) || sessionID == "." || sessionID == ".." {
		return "", fmt.Errorf("invalid session id %q", sessionID)
	}
	return filepath.Join(j.root, sessionID), nil
}

func (j *FileJournal) Append(_ context.Context, sessionID string, turn protocol.Turn) error {
	dir, err := j.dir(sessionID)
	if err != nil {
		return err
	}
	line, err := json.Marshal(turn)
	if err != nil {
		return fmt.Errorf("encode turn %d: %w", turn.Ordinal, err)
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(filepath.Join(dir, turnLogName), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func (j *FileJournal) SaveDigest(_ context.Context, sessionID string, digest protocol.Turn) error {
	if digest.Digest == nil {
		return fmt.Errorf("turn %d is not a digest", digest.Ordinal)
	}
	dir, err := j.dir(sessionID)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(digest, "", "  ")
	if err != nil {
		return fmt.Errorf("encode digest %s: %w", digest.Digest.Key(), err)
	}
	return memory.WriteAtomic(filepath.Join(dir, digestDir, digest.Digest.Key()+".json"), data)
}

func (j *FileJournal) Load(_ context.Context, sessionID string) (Record, error) {
	var rec Record
	dir, err := j.dir(sessionID)
	if err != nil {
		return rec, err
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	f, err := os.Open(filepath.Join(dir, turnLogName))
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return rec, err
	default:
		defer f.Close()
		sc := bufio.NewScanner(f)
		sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
		for n := 1; sc.Scan(); n++ {
			if len(strings.TrimSpace(sc.Text())) == 0 {
				continue
			}
			var t protocol.Turn
			if err := json.Unmarshal(sc.Bytes(), &t); err != nil {
				return rec, fmt.Errorf("%w: %s line %d: %v", ErrCorruptRecord, turnLogName, n, err)
			}
			rec.Turns = append(rec.Turns, t)
		}
		if err := sc.Err(); err != nil {
			return rec, err
		}
	}

	entries, err := os.ReadDir(filepath.Join(dir, digestDir))
	if err != nil && !os.IsNotExist(err) {
		return rec, err
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, digestDir, e.Name()))
		if err != nil {
			return rec, err
		}
		var d protocol.Turn
		if err := json.Unmarshal(data, &d); err != nil || d.Digest == nil {
			return rec, fmt.Errorf("%w: %s", ErrCorruptRecord, e.Name())
		}
		rec.Digests = append(rec.Digests, d)
	}

	sortRecord(&rec)
	return rec, nil
}

func (j *FileJournal) Delete(_ context.Context, sessionID string) error {
	dir, err := j.dir(sessionID)
	if err != nil {
		return err
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	return os.RemoveAll(dir)
}
