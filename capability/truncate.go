package capability

import (
	"fmt"
	"unicode/utf8"
)

// DefaultLimit is the result size cap used when neither the capability nor
// the dispatcher sets one.
const DefaultLimit = 30000

// Truncate keeps the head and tail of s within limit bytes, replacing the
// middle with a notice telling the model how much was removed. Cuts fall on
// rune boundaries, so valid UTF-8 stays valid.
func Truncate(s string, limit int) string {
	if limit <= 0 || len(s) <= limit {
		return s
	}
	head, tail := cut(s, limit/2)
	removed := utf8.RuneCountInString(s[head:tail])
	return s[:head] +
		fmt.Sprintf("\n\n[WARNING: output truncated, %d characters removed from the middle. "+
			"Re-run with narrower arguments to see them.]\n\n", removed) +
		s[tail:]
}

// cut returns the end of a head and the start of a tail of s, each at most
// n bytes and both on rune boundaries.
func cut(s string, n int) (head, tail int) {
	head, tail = n, len(s)-n
	for head > 0 && !utf8.RuneStart(s[head]) {
		head--
	}
	for tail < len(s) && !utf8.RuneStart(s[tail]) {
		tail++
	}
	return head, tail
}
