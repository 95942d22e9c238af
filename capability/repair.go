package capability

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode"

	"github.com/tidwall/jsonc"
)

// ParseValue decodes a JSON-like payload. Strict JSON is tried first; on
// failure the payload is repaired and decoded again. The repair converts
// single-quoted strings, quotes bare keys and bare word values, maps Python
// literals, strips comments and trailing commas, drops excess closers and
// fixes mismatched ones. A payload whose brackets are never closed is
// reported as ErrTruncated; nothing is invented to close it.
func ParseValue(payload string) (any, error) {
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return nil, fmt.Errorf("%w: empty", ErrMalformed)
	}

	var v any
	if err := json.Unmarshal([]byte(payload), &v); err == nil {
		return v, nil
	}

	fixed, err := repair(payload)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(jsonc.ToJSON([]byte(fixed)), &v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return v, nil
}

// ParseArgs decodes a payload into an argument bag. A payload that is not an
// object is stored under the "input" key.
func ParseArgs(payload string) (map[string]any, error) {
	v, err := ParseValue(payload)
	if err != nil {
		return nil, err
	}
	if m, ok := v.(map[string]any); ok {
		return m, nil
	}
	return map[string]any{"input": v}, nil
}

var closerFor = map[byte]byte{'{': '}', '[': ']'}

type repairer struct {
	src   string
	i     int
	out   strings.Builder
	stack []byte
}

func repair(src string) (string, error) {
	r := &repairer{src: src}
	if err := r.run(); err != nil {
		return "", err
	}
	return r.out.String(), nil
}

func (r *repairer) run() error {
	for r.i < len(r.src) {
		c := r.src[r.i]
		switch {
		case c == '"' || (c == '\'' && opensString(r.src, r.i)):
			r.quoted(c)
		case c == '/' && r.i+1 < len(r.src) && (r.src[r.i+1] == '/' || r.src[r.i+1] == '*'):
			r.comment()
		case c == '{' || c == '[':
			r.stack = append(r.stack, c)
			r.out.WriteByte(c)
			r.i++
		case c == '}' || c == ']':
			r.closer(c)
		case isWordStart(c):
			r.word()
		default:
			r.out.WriteByte(c)
			r.i++
		}
	}
	if len(r.stack) > 0 {
		return fmt.Errorf("%w: %d unclosed bracket(s)", ErrTruncated, len(r.stack))
	}
	return nil
}

// quoted copies a string literal as a double-quoted JSON string.
func (r *repairer) quoted(q byte) {
	r.i++
	var b strings.Builder
	closed := false
	for r.i < len(r.src) {
		c := r.src[r.i]
		if c == '\\' && r.i+1 < len(r.src) {
			next := r.src[r.i+1]
			if next == '\'' {
				b.WriteByte('\'')
			} else {
				b.WriteByte(c)
				b.WriteByte(next)
			}
			r.i += 2
			continue
		}
		if c == q {
			r.i++
			closed = true
			break
		}
		switch c {
		case '"':
			b.WriteString(`\"`)
		case '\n':
			b.WriteString(`\n`)
		case '\t':
			b.WriteString(`\t`)
		case '\r':
		default:
			b.WriteByte(c)
		}
		r.i++
	}
	r.out.WriteByte('"')
	r.out.WriteString(b.String())
	if closed {
		r.out.WriteByte('"')
	}
}

func (r *repairer) comment() {
	end := "\n"
	if r.src[r.i+1] == '*' {
		end = "*/"
	}
	j := strings.Index(r.src[r.i+2:], end)
	if j < 0 {
		r.out.WriteString(r.src[r.i:])
		r.i = len(r.src)
		return
	}
	stop := r.i + 2 + j + len(end)
	r.out.WriteString(r.src[r.i:stop])
	r.i = stop
}

func (r *repairer) closer(c byte) {
	r.i++
	if len(r.stack) == 0 {
		return
	}
	// A closer for an outer bracket also closes everything opened inside it.
	// One with no matching opener closes the innermost bracket.
	target := len(r.stack) - 1
	for j := len(r.stack) - 1; j >= 0; j-- {
		if closerFor[r.stack[j]] == c {
			target = j
			break
		}
	}
	for j := len(r.stack) - 1; j >= target; j-- {
		r.out.WriteByte(closerFor[r.stack[j]])
	}
	r.stack = r.stack[:target]
}

// word handles an unquoted run: a key, a literal, a number or a bare value.
func (r *repairer) word() {
	start := r.i
	for r.i < len(r.src) && isWordChar(r.src[r.i]) {
		r.i++
	}
	word := r.src[start:r.i]

	if r.followedByColon() {
		r.out.WriteString(quote(word))
		return
	}

	switch word {
	case "true", "True", "TRUE":
		r.out.WriteString("true")
		return
	case "false", "False", "FALSE":
		r.out.WriteString("false")
		return
	case "null", "None", "nil", "undefined":
		r.out.WriteString("null")
		return
	}

	// A bare value runs to the next delimiter on the same line.
	for r.i < len(r.src) {
		c := r.src[r.i]
		if c == ',' || c == '}' || c == ']' || c == '\n' ||
			(c == '/' && r.i+1 < len(r.src) && r.src[r.i+1] == '/') {
			break
		}
		r.i++
	}
	r.out.WriteString(quote(strings.TrimSpace(r.src[start:r.i])))
}

func (r *repairer) followedByColon() bool {
	for j := r.i; j < len(r.src); j++ {
		switch r.src[j] {
		case ' ', '\t':
			continue
		case ':':
			return true
		}
		return false
	}
	return false
}

// opensString reports whether the single quote at i starts a string: it
// must follow a structural character, so apostrophes in bare words do not.
func opensString(text string, i int) bool {
	for j := i - 1; j >= 0; j-- {
		switch text[j] {
		case ' ', '\t', '\n', '\r':
			continue
		case ':', ',', '[', '{', '(':
			return true
		}
		return false
	}
	return true
}

func isWordStart(c byte) bool {
	return c == '_' || c == '$' || c >= 0x80 || unicode.IsLetter(rune(c))
}

func isWordChar(c byte) bool {
	return isWordStart(c) || c == '-' || c == '.' || (c >= '0' && c <= '9')
}

func quote(s string) string {
	data, _ := json.Marshal(s)
	return string(data)
}
