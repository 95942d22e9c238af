package memory

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"

	chromem "github.com/philippgille/chromem-go"
)

// HashEmbedding returns an offline embedding function that hashes word
// unigrams and bigrams into dim buckets and normalizes the result. Texts
// sharing vocabulary score as similar; it needs no network and is
// deterministic, which makes it the default for tests and local runs.
func HashEmbedding(dim int) chromem.EmbeddingFunc {
	if dim <= 0 {
		dim = 256
	}
	return func(_ context.Context, text string) ([]float32, error) {
		vec := make([]float32, dim)
		words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		for i, w := range words {
			vec[bucket(w, dim)] += 1
			if i > 0 {
				vec[bucket(words[i-1]+" "+w, dim)] += 0.5
			}
		}

		var norm float64
		for _, x := range vec {
			norm += float64(x * x)
		}
		if norm == 0 {
			vec[0] = 1
			return vec, nil
		}
		scale := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= scale
		}
		return vec, nil
	}
}

func bucket(s string, dim int) int {
	h := fnv.New32a()
	h.Write([]byte(s))
	return int(h.Sum32() % uint32(dim))
}
