package memory

import "context"

// Area partitions the vector memory by purpose.
type Area string

const (
	AreaMain        Area = "main"
	AreaFragments   Area = "fragments"
	AreaSolutions   Area = "solutions"
	AreaInstruments Area = "instruments"
)

// Areas lists every known area in recall order.
func Areas() []Area {
	return []Area{AreaMain, AreaFragments, AreaSolutions, AreaInstruments}
}

// Snippet is one piece of text held in vector memory.
type Snippet struct {
	ID    string            `json:"id"`
	Area  Area              `json:"area"`
	Text  string            `json:"text"`
	Meta  map[string]string `json:"meta,omitempty"`
	Score float64           `json:"score,omitempty"`
}

// Vector is semantic memory queried by similarity. Sessions spawned for
// subordinate work share their parent's handle.
type Vector interface {
	// Insert stores text under area and returns its generated id.
	Insert(ctx context.Context, area Area, text string, meta map[string]string) (string, error)
	// Search returns up to limit snippets scoring at least threshold, best
	// first. With no areas every area is searched.
	Search(ctx context.Context, query string, limit int, threshold float64, areas ...Area) ([]Snippet, error)
	// Get returns the snippet stored under id.
	Get(ctx context.Context, id string) (Snippet, error)
	// List returns every snippet in area whose metadata carries all of
	// where, in no particular order.
	List(ctx context.Context, area Area, where map[string]string) ([]Snippet, error)
	// Delete removes snippets by id and reports how many existed.
	Delete(ctx context.Context, ids ...string) (int, error)
	// Count returns the number of stored snippets.
	Count() int
}
