package memory

import (
	"fmt"
	"os"

	chromem "github.com/philippgille/chromem-go"
)

// Config holds store and vector memory initialization parameters.
type Config struct {
	// Path is the FileStore root for prompts and version snapshots. Empty
	// disables the store.
	Path   string       `json:"path,omitempty"`
	Vector VectorConfig `json:"vector"`
}

// VectorConfig selects the embedding backend of the vector memory.
type VectorConfig struct {
	Collection string `json:"collection,omitempty"`
	// Embedding is one of "hash", "openai" or "ollama".
	Embedding string `json:"embedding,omitempty"`
	Model     string `json:"model,omitempty"`
	BaseURL   string `json:"base_url,omitempty"`
	// APIKeyEnv names the environment variable holding the embedding key.
	APIKeyEnv string `json:"api_key_env,omitempty"`
	// Persist, when set, is the directory chromem persists documents under.
	Persist    string `json:"persist,omitempty"`
	Dimensions int    `json:"dimensions,omitempty"`
}

// DefaultConfig returns the default memory configuration: no store and an
// in-process vector memory with hash embeddings.
func DefaultConfig() Config {
	return Config{
		Vector: VectorConfig{
			Collection: "monologue",
			Embedding:  "hash",
			Model:      "text-embedding-3-small",
			APIKeyEnv:  "OPENAI_API_KEY",
			Dimensions: 256,
		},
	}
}

// Merge applies non-zero values from source into c.
func (c *Config) Merge(source *Config) {
	if source.Path != "" {
		c.Path = source.Path
	}
	v, s := &c.Vector, &source.Vector
	if s.Collection != "" {
		v.Collection = s.Collection
	}
	if s.Embedding != "" {
		v.Embedding = s.Embedding
	}
	if s.Model != "" {
		v.Model = s.Model
	}
	if s.BaseURL != "" {
		v.BaseURL = s.BaseURL
	}
	if s.APIKeyEnv != "" {
		v.APIKeyEnv = s.APIKeyEnv
	}
	if s.Persist != "" {
		v.Persist = s.Persist
	}
	if s.Dimensions > 0 {
		v.Dimensions = s.Dimensions
	}
}

// NewStore creates a Store from configuration. It returns a nil Store when
// Path is empty.
func NewStore(cfg *Config) (Store, error) {
	if cfg.Path == "" {
		return nil, nil
	}
	return NewFileStore(cfg.Path), nil
}

// NewVector creates the vector memory described by cfg.Vector.
func NewVector(cfg *Config) (*ChromemVector, error) {
	vc := cfg.Vector

	var fn chromem.EmbeddingFunc
	switch vc.Embedding {
	case "", "hash":
		fn = HashEmbedding(vc.Dimensions)
	case "openai":
		key := os.Getenv(vc.APIKeyEnv)
		if key == "" {
			return nil, fmt.Errorf("openai embeddings: %s is not set", vc.APIKeyEnv)
		}
		fn = chromem.NewEmbeddingFuncOpenAI(key, chromem.EmbeddingModelOpenAI(vc.Model))
	case "ollama":
		fn = chromem.NewEmbeddingFuncOllama(vc.Model, vc.BaseURL)
	default:
		return nil, fmt.Errorf("unknown embedding backend: %s", vc.Embedding)
	}

	db := chromem.NewDB()
	if vc.Persist != "" {
		var err error
		db, err = chromem.NewPersistentDB(vc.Persist, false)
		if err != nil {
			return nil, fmt.Errorf("open vector db: %w", err)
		}
	}

	return NewChromemVector(db, vc.Collection, fn)
}
