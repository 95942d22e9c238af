// Package memory holds the two storage collaborators the kernel consumes.
//
// Store is a hierarchical key-value namespace over raw bytes, used for prompt
// fragments and prompt version snapshots. Vector is the semantic memory that
// extensions and capabilities query and enrich; the kernel itself never calls
// it directly.
package memory

import "context"

// Store translates between external storage and the key-value namespace.
// Implementations are stateless: every call performs I/O.
type Store interface {
	// List returns all available keys in the store.
	List(ctx context.Context) ([]string, error)
	// Load retrieves entries for the specified keys.
	Load(ctx context.Context, keys ...string) ([]Entry, error)
	// Save persists entries, creating or overwriting as needed.
	Save(ctx context.Context, entries ...Entry) error
	// Delete removes entries. Missing keys are ignored.
	Delete(ctx context.Context, keys ...string) error
}
