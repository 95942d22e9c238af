package memory_test

import (
	"context"
	"errors"
	"testing"

	chromem "github.com/philippgille/chromem-go"

	"github.com/tailored-agentic-units/monologue/memory"
)

func newTestVector(t *testing.T) *memory.ChromemVector {
	t.Helper()
	v, err := memory.NewChromemVector(chromem.NewDB(), "test", memory.HashEmbedding(128))
	if err != nil {
		t.Fatalf("NewChromemVector() error = %v", err)
	}
	return v
}

func TestChromemVector_InsertSearch(t *testing.T) {
	v := newTestVector(t)
	ctx := context.Background()

	docs := []struct {
		area memory.Area
		text string
	}{
		{memory.AreaMain, "the deploy pipeline runs on kubernetes clusters"},
		{memory.AreaFragments, "user prefers tabs over spaces"},
		{memory.AreaSolutions, "fixed the kubernetes deploy by raising the memory limit"},
	}
	for _, d := range docs {
		if _, err := v.Insert(ctx, d.area, d.text, map[string]string{"source": "test"}); err != nil {
			t.Fatalf("Insert() error = %v", err)
		}
	}
	if v.Count() != 3 {
		t.Fatalf("Count() = %d, want 3", v.Count())
	}

	got, err := v.Search(ctx, "kubernetes deploy", 10, 0.1)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(got) < 2 {
		t.Fatalf("Search() returned %d snippets, want at least 2", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i].Score > got[i-1].Score {
			t.Errorf("results not ordered by score: %v", got)
		}
	}
	if got[0].Meta["source"] != "test" {
		t.Errorf("metadata not preserved: %v", got[0].Meta)
	}
	if _, ok := got[0].Meta["area"]; ok {
		t.Error("internal area key leaked into metadata")
	}

	only, err := v.Search(ctx, "kubernetes deploy", 10, 0.1, memory.AreaSolutions)
	if err != nil {
		t.Fatal(err)
	}
	if len(only) != 1 || only[0].Area != memory.AreaSolutions {
		t.Errorf("area filter returned %v", only)
	}
}

func TestChromemVector_SearchLimitAboveCount(t *testing.T) {
	v := newTestVector(t)
	ctx := context.Background()

	if _, err := v.Insert(ctx, memory.AreaMain, "single note", nil); err != nil {
		t.Fatal(err)
	}
	got, err := v.Search(ctx, "single note", 50, 0)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(got) != 1 {
		t.Errorf("Search() returned %d, want 1", len(got))
	}
}

func TestChromemVector_Empty(t *testing.T) {
	v := newTestVector(t)

	got, err := v.Search(context.Background(), "anything", 5, 0)
	if err != nil || got != nil {
		t.Errorf("Search() on empty = %v, %v", got, err)
	}

	if _, err := v.Insert(context.Background(), memory.AreaMain, "   ", nil); !errors.Is(err, memory.ErrEmptyText) {
		t.Errorf("Insert(blank) error = %v, want ErrEmptyText", err)
	}
}

func TestChromemVector_Delete(t *testing.T) {
	v := newTestVector(t)
	ctx := context.Background()

	id, err := v.Insert(ctx, memory.AreaMain, "remember the milk", nil)
	if err != nil {
		t.Fatal(err)
	}

	n, err := v.Delete(ctx, id, "unknown-id")
	if err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if n != 1 {
		t.Errorf("Delete() = %d, want 1", n)
	}
	if v.Count() != 0 {
		t.Errorf("Count() = %d after delete", v.Count())
	}
}

func TestHashEmbedding(t *testing.T) {
	fn := memory.HashEmbedding(64)
	ctx := context.Background()

	a, _ := fn(ctx, "memory limit raised")
	b, _ := fn(ctx, "memory limit raised")
	c, _ := fn(ctx, "completely different words")

	if dot(a, b) < 0.999 {
		t.Errorf("identical texts should embed identically, dot = %v", dot(a, b))
	}
	if dot(a, c) >= dot(a, b) {
		t.Errorf("unrelated text scored as similar: %v", dot(a, c))
	}

	empty, _ := fn(ctx, "")
	if dot(empty, empty) < 0.999 {
		t.Error("empty text should still produce a unit vector")
	}
}

func dot(a, b []float32) float64 {
	var s float64
	for i := range a {
		s += float64(a[i] * b[i])
	}
	return s
}

func TestChromemVector_GetList(t *testing.T) {
	v := newTestVector(t)
	ctx := context.Background()

	id, err := v.Insert(ctx, memory.AreaSolutions, "analysis one", map[string]string{"type": "meta_learning"})
	if err != nil {
		t.Fatal(err)
	}
	for _, d := range []struct {
		area memory.Area
		typ  string
	}{
		{memory.AreaSolutions, "meta_learning"},
		{memory.AreaSolutions, "tool_suggestion"},
		{memory.AreaMain, "meta_learning"},
	} {
		if _, err := v.Insert(ctx, d.area, "other "+d.typ, map[string]string{"type": d.typ}); err != nil {
			t.Fatal(err)
		}
	}

	got, err := v.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Text != "analysis one" || got.Area != memory.AreaSolutions || got.Meta["type"] != "meta_learning" {
		t.Errorf("Get() = %+v", got)
	}
	if _, err := v.Get(ctx, "missing"); !errors.Is(err, memory.ErrNotFound) {
		t.Errorf("Get(missing) error = %v, want ErrNotFound", err)
	}

	tests := []struct {
		name  string
		area  memory.Area
		where map[string]string
		want  int
	}{
		{"filtered", memory.AreaSolutions, map[string]string{"type": "meta_learning"}, 2},
		{"whole area", memory.AreaSolutions, nil, 3},
		{"no match", memory.AreaInstruments, nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			list, err := v.List(ctx, tt.area, tt.where)
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if len(list) != tt.want {
				t.Errorf("List() returned %d snippets, want %d", len(list), tt.want)
			}
			for _, s := range list {
				if s.Area != tt.area {
					t.Errorf("snippet from area %s", s.Area)
				}
			}
		})
	}
}
