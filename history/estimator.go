package history

import (
	"fmt"
	"math"
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/tailored-agentic-units/monologue/core/protocol"
)

// turnOverhead is charged per turn for role and framing tokens.
const turnOverhead = 4

// Estimator counts tokens in text. Implementations over-estimate rather than
// under-estimate so a window never silently exceeds the model's hard limit.
type Estimator interface {
	Count(text string) int
}

// TurnTokens returns the estimated cost of a turn as rendered in a prompt.
func TurnTokens(est Estimator, t protocol.Turn) int {
	return est.Count(t.Text()) + turnOverhead
}

// Heuristic estimates three ASCII characters per token and two tokens per
// non-ASCII rune, both above what BPE tokenizers produce for typical text.
type Heuristic struct{}

func (Heuristic) Count(text string) int {
	ascii, other := 0, 0
	for _, r := range text {
		if r < 128 {
			ascii++
		} else {
			other++
		}
	}
	return (ascii+2)/3 + other*2
}

// Tiktoken counts cl100k_base tokens and pads the count by ten percent to
// cover tokenizer drift between model families.
type Tiktoken struct {
	enc *tiktoken.Tiktoken
}

var (
	cl100k     *tiktoken.Tiktoken
	cl100kErr  error
	cl100kOnce sync.Once
)

// NewTiktoken loads the cl100k_base encoding. The first call may download the
// BPE ranks; callers fall back to Heuristic when it fails.
func NewTiktoken() (*Tiktoken, error) {
	cl100kOnce.Do(func() {
		cl100k, cl100kErr = tiktoken.GetEncoding("cl100k_base")
	})
	if cl100kErr != nil {
		return nil, fmt.Errorf("load cl100k_base: %w", cl100kErr)
	}
	return &Tiktoken{enc: cl100k}, nil
}

func (t *Tiktoken) Count(text string) int {
	n := len(t.enc.Encode(text, nil, nil))
	return int(math.Ceil(float64(n) * 1.1))
}

// NewEstimator returns the estimator named by kind, falling back to
// Heuristic when tiktoken cannot be loaded.
func NewEstimator(kind string) Estimator {
	if kind == "tiktoken" {
		if t, err := NewTiktoken(); err == nil {
			return t
		}
	}
	return Heuristic{}
}
