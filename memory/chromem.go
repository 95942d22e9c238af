package memory

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"
	chromem "github.com/philippgille/chromem-go"
)

const areaKey = "area"

// ChromemVector is a Vector backed by an embedded chromem-go collection.
type ChromemVector struct {
	col *chromem.Collection

	mu  sync.Mutex
	ids map[string]Area
}

// NewChromemVector opens collection name in db, embedding with fn.
func NewChromemVector(db *chromem.DB, name string, fn chromem.EmbeddingFunc) (*ChromemVector, error) {
	col, err := db.GetOrCreateCollection(name, nil, fn)
	if err != nil {
		return nil, fmt.Errorf("open collection %s: %w", name, err)
	}
	return &ChromemVector{col: col, ids: make(map[string]Area)}, nil
}

func (v *ChromemVector) Insert(ctx context.Context, area Area, text string, meta map[string]string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyText
	}
	if area == "" {
		area = AreaMain
	}

	md := maps.Clone(meta)
	if md == nil {
		md = make(map[string]string, 1)
	}
	md[areaKey] = string(area)

	id := uuid.NewString()
	doc := chromem.Document{ID: id, Metadata: md, Content: text}
	if err := v.col.AddDocument(ctx, doc); err != nil {
		return "", fmt.Errorf("%w: %v", ErrSaveFailed, err)
	}

	v.mu.Lock()
	v.ids[id] = area
	v.mu.Unlock()
	return id, nil
}

func (v *ChromemVector) Search(ctx context.Context, query string, limit int, threshold float64, areas ...Area) ([]Snippet, error) {
	total := v.col.Count()
	if total == 0 || limit <= 0 || strings.TrimSpace(query) == "" {
		return nil, nil
	}
	if len(areas) == 0 {
		areas = Areas()
	}
	n := min(limit, total)

	var out []Snippet
	for _, area := range areas {
		results, err := v.col.Query(ctx, query, n, map[string]string{areaKey: string(area)}, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: query %s: %v", ErrLoadFailed, area, err)
		}
		for _, r := range results {
			score := float64(r.Similarity)
			if score < threshold {
				continue
			}
			meta := maps.Clone(r.Metadata)
			delete(meta, areaKey)
			out = append(out, Snippet{ID: r.ID, Area: area, Text: r.Content, Meta: meta, Score: score})
		}
	}

	slices.SortStableFunc(out, func(a, b Snippet) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		}
		return 0
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (v *ChromemVector) Get(ctx context.Context, id string) (Snippet, error) {
	doc, err := v.col.GetByID(ctx, id)
	if err != nil {
		return Snippet{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	meta := maps.Clone(doc.Metadata)
	area := Area(meta[areaKey])
	delete(meta, areaKey)
	return Snippet{ID: doc.ID, Area: area, Text: doc.Content, Meta: meta}, nil
}

// List queries with the area name as text so every filtered document comes
// back; chromem has no plain scan.
func (v *ChromemVector) List(ctx context.Context, area Area, where map[string]string) ([]Snippet, error) {
	total := v.col.Count()
	if total == 0 {
		return nil, nil
	}
	filter := maps.Clone(where)
	if filter == nil {
		filter = make(map[string]string, 1)
	}
	filter[areaKey] = string(area)

	results, err := v.col.Query(ctx, string(area), total, filter, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: list %s: %v", ErrLoadFailed, area, err)
	}
	out := make([]Snippet, len(results))
	for i, r := range results {
		meta := maps.Clone(r.Metadata)
		delete(meta, areaKey)
		out[i] = Snippet{ID: r.ID, Area: area, Text: r.Content, Meta: meta}
	}
	return out, nil
}

func (v *ChromemVector) Delete(ctx context.Context, ids ...string) (int, error) {
	v.mu.Lock()
	var known []string
	for _, id := range ids {
		if _, ok := v.ids[id]; ok {
			known = append(known, id)
		}
	}
	v.mu.Unlock()

	if len(known) == 0 {
		return 0, nil
	}
	if err := v.col.Delete(ctx, nil, nil, known...); err != nil {
		return 0, fmt.Errorf("delete snippets: %w", err)
	}

	v.mu.Lock()
	for _, id := range known {
		delete(v.ids, id)
	}
	v.mu.Unlock()
	return len(known), nil
}

func (v *ChromemVector) Count() int {
	return v.col.Count()
}
