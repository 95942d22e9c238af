package prompts

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/tailored-agentic-units/monologue/memory"
)

const metadataFile = "metadata.json"

// Change records one edit carried by a snapshot.
type Change struct {
	File        string    `json:"file"`
	Description string    `json:"description"`
	Timestamp   time.Time `json:"timestamp"`
}

// Metadata describes a snapshot.
type Metadata struct {
	ID        string    `json:"version_id"`
	Timestamp time.Time `json:"timestamp"`
	Label     string    `json:"label,omitempty"`
	FileCount int       `json:"file_count"`
	Changes   []Change  `json:"changes"`
	CreatedBy string    `json:"created_by"`
}

// FileDiff is the comparison of one file between two snapshots. Status is
// "modified", "added" or "deleted".
type FileDiff struct {
	Status string `json:"status"`
	LinesA int    `json:"lines_a,omitempty"`
	LinesB int    `json:"lines_b,omitempty"`
	SizeA  int    `json:"size_a,omitempty"`
	SizeB  int    `json:"size_b,omitempty"`
}

// Versions snapshots the fragments of one library layer so edits can be
// rolled back.
type Versions struct {
	lib   *Library
	layer string
	now   func() time.Time
}

// Versions returns the version history of layer.
func (l *Library) Versions(layer string) *Versions {
	return &Versions{lib: l, layer: layer, now: time.Now}
}

func (v *Versions) root(id string) string {
	return memory.Join(memory.NamespaceVersions, v.layer, id)
}

func (v *Versions) cache() (*memory.Cache, error) {
	if v.lib.cache == nil {
		return nil, ErrReadOnly
	}
	return v.lib.cache, nil
}

// SafeLabel reports whether label may name a snapshot.
func SafeLabel(label string) bool {
	if label == "" {
		return false
	}
	for _, r := range label {
		if !(r == '_' || r == '-' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
			return false
		}
	}
	return true
}

// Snapshot copies every fragment of the layer into a new version. The id is
// label when it is safe, a timestamp otherwise.
func (v *Versions) Snapshot(ctx context.Context, label string, changes []Change) (string, error) {
	c, err := v.cache()
	if err != nil {
		return "", err
	}
	now := v.now()

	id := now.Format("20060102_150405")
	if SafeLabel(label) {
		id = label
	}
	id = v.unique(c, id)

	files := v.lib.files(v.layer)
	keys := make([]string, len(files))
	for i, f := range files {
		keys[i] = layerKey(v.layer, f)
	}
	if err := c.Resolve(ctx, keys...); err != nil {
		return "", err
	}
	for i, f := range files {
		data, _ := c.Get(keys[i])
		c.Set(memory.Join(v.root(id), f), data)
	}

	meta := Metadata{
		ID:        id,
		Timestamp: now,
		Label:     label,
		FileCount: len(files),
		Changes:   changes,
		CreatedBy: "manual",
	}
	if meta.Changes == nil {
		meta.Changes = []Change{}
	}
	if len(changes) > 0 {
		meta.CreatedBy = "meta_learning"
	}
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return "", err
	}
	c.Set(memory.Join(v.root(id), metadataFile), data)

	if err := c.Flush(ctx); err != nil {
		return "", fmt.Errorf("snapshot %s: %w", id, err)
	}
	return id, nil
}

func (v *Versions) unique(c *memory.Cache, id string) string {
	candidate := id
	for n := 2; c.Has(memory.Join(v.root(candidate), metadataFile)); n++ {
		candidate = fmt.Sprintf("%s_%d", id, n)
	}
	return candidate
}

// List returns up to limit snapshots, newest first. Snapshots with
// unreadable metadata are skipped.
func (v *Versions) List(ctx context.Context, limit int) ([]Metadata, error) {
	c, err := v.cache()
	if err != nil {
		return nil, err
	}
	prefix := memory.Join(memory.NamespaceVersions, v.layer) + "/"
	var keys []string
	for _, key := range c.Keys(prefix) {
		rest := strings.TrimPrefix(key, prefix)
		if id, file, ok := strings.Cut(rest, "/"); ok && file == metadataFile && id != "" {
			keys = append(keys, key)
		}
	}

	var out []Metadata
	for _, key := range keys {
		if err := c.Resolve(ctx, key); err != nil {
			continue
		}
		data, _ := c.Get(key)
		var m Metadata
		if json.Unmarshal(data, &m) != nil {
			continue
		}
		out = append(out, m)
	}

	slices.SortFunc(out, func(a, b Metadata) int {
		if d := b.Timestamp.Compare(a.Timestamp); d != 0 {
			return d
		}
		return strings.Compare(b.ID, a.ID)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Get returns the metadata of one snapshot.
func (v *Versions) Get(ctx context.Context, id string) (Metadata, error) {
	var m Metadata
	c, err := v.cache()
	if err != nil {
		return m, err
	}
	key := memory.Join(v.root(id), metadataFile)
	if !SafeLabel(id) || !c.Has(key) {
		return m, fmt.Errorf("%w: %s", ErrVersionNotFound, id)
	}
	if err := c.Resolve(ctx, key); err != nil {
		return m, err
	}
	data, _ := c.Get(key)
	if err := json.Unmarshal(data, &m); err != nil {
		return m, fmt.Errorf("read metadata of %s: %w", id, err)
	}
	return m, nil
}

// files returns name to content for the fragments of a snapshot.
func (v *Versions) files(ctx context.Context, id string) (map[string][]byte, error) {
	if _, err := v.Get(ctx, id); err != nil {
		return nil, err
	}
	c := v.lib.cache
	prefix := v.root(id) + "/"
	var keys []string
	for _, key := range c.Keys(prefix) {
		if strings.HasSuffix(key, ".md") {
			keys = append(keys, key)
		}
	}
	if err := c.Resolve(ctx, keys...); err != nil {
		return nil, err
	}
	out := make(map[string][]byte, len(keys))
	for _, key := range keys {
		data, _ := c.Get(key)
		out[strings.TrimPrefix(key, prefix)] = data
	}
	return out, nil
}

// Rollback restores the fragments of snapshot id into the layer. With
// backup set the current state is snapshotted first and its id returned.
// Fragments added after the snapshot are left in place.
func (v *Versions) Rollback(ctx context.Context, id string, backup bool) (string, error) {
	files, err := v.files(ctx, id)
	if err != nil {
		return "", err
	}
	var backupID string
	if backup {
		if backupID, err = v.Snapshot(ctx, "pre_rollback_"+id, nil); err != nil {
			return "", err
		}
	}
	c := v.lib.cache
	for name, data := range files {
		c.Set(layerKey(v.layer, name), data)
	}
	if err := c.Flush(ctx); err != nil {
		return backupID, fmt.Errorf("rollback %s: %w", id, err)
	}
	return backupID, nil
}

// Diff compares the fragments of two snapshots. Unchanged files are
// omitted.
func (v *Versions) Diff(ctx context.Context, a, b string) (map[string]FileDiff, error) {
	fa, err := v.files(ctx, a)
	if err != nil {
		return nil, err
	}
	fb, err := v.files(ctx, b)
	if err != nil {
		return nil, err
	}

	diffs := make(map[string]FileDiff)
	for name, da := range fa {
		db, ok := fb[name]
		switch {
		case !ok:
			diffs[name] = FileDiff{Status: "deleted", LinesA: lines(da), SizeA: len(da)}
		case string(da) != string(db):
			diffs[name] = FileDiff{Status: "modified", LinesA: lines(da), LinesB: lines(db), SizeA: len(da), SizeB: len(db)}
		}
	}
	for name, db := range fb {
		if _, ok := fa[name]; !ok {
			diffs[name] = FileDiff{Status: "added", LinesB: lines(db), SizeB: len(db)}
		}
	}
	return diffs, nil
}

func lines(data []byte) int {
	s := strings.TrimSuffix(string(data), "\n")
	if s == "" {
		return 0
	}
	return strings.Count(s, "\n") + 1
}

// Apply snapshots the layer, recording the change, then writes content to
// file. It returns the id of the snapshot taken before the change.
func (v *Versions) Apply(ctx context.Context, file, content, description string) (string, error) {
	if err := checkName(file); err != nil {
		return "", err
	}
	id, err := v.Snapshot(ctx, "", []Change{{File: file, Description: description, Timestamp: v.now()}})
	if err != nil {
		return "", err
	}
	if err := v.lib.Put(ctx, v.layer, file, content); err != nil {
		return id, err
	}
	return id, nil
}

// Prune deletes all but the keep newest snapshots and returns how many were
// removed.
func (v *Versions) Prune(ctx context.Context, keep int) (int, error) {
	all, err := v.List(ctx, 0)
	if err != nil {
		return 0, err
	}
	if len(all) <= keep {
		return 0, nil
	}
	c := v.lib.cache
	for _, m := range all[keep:] {
		for _, key := range c.Keys(v.root(m.ID) + "/") {
			c.Delete(key)
		}
	}
	if err := c.Flush(ctx); err != nil {
		return 0, fmt.Errorf("prune: %w", err)
	}
	return len(all) - keep, nil
}

// Export writes the files of snapshot id, metadata included, into dir.
func (v *Versions) Export(ctx context.Context, id, dir string) error {
	files, err := v.files(ctx, id)
	if err != nil {
		return err
	}
	meta, _ := v.lib.cache.Get(memory.Join(v.root(id), metadataFile))
	files[metadataFile] = meta

	for name, data := range files {
		if err := memory.WriteAtomic(filepath.Join(dir, name), data); err != nil {
			return fmt.Errorf("export %s: %w", name, err)
		}
	}
	return nil
}
