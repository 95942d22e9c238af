package memory

import "strings"

// Top-level namespace conventions for the key hierarchy.
const (
	NamespacePrompts  = "prompts"
	NamespaceVersions = "versioned"
)

// Entry is a key-value pair. Keys are /-separated paths; values are raw bytes.
type Entry struct {
	Key   string
	Value []byte
}

// Join builds a key from path segments, dropping empty ones.
func Join(parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.Trim(p, "/")
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, "/")
}
