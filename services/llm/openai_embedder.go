package llm

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
)

// EmbedderConfig configures an OpenAI-compatible /embeddings endpoint such
// as Hugging Face text-embeddings-inference.
type EmbedderConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// DefaultEmbedderConfig targets a local TEI server running
// all-MiniLM-L6-v2. EMBEDDING_BASE_URL, EMBEDDING_MODEL_NAME and
// EMBEDDING_API_KEY override the defaults.
func DefaultEmbedderConfig() EmbedderConfig {
	cfg := EmbedderConfig{
		APIKey:  os.Getenv("EMBEDDING_API_KEY"),
		BaseURL: "http://localhost:8081/v1",
		Model:   "sentence-transformers/all-MiniLM-L6-v2",
		Timeout: 30 * time.Second,
	}
	if v := os.Getenv("EMBEDDING_BASE_URL"); v != "" {
		cfg.BaseURL = v
	}
	if v := os.Getenv("EMBEDDING_MODEL_NAME"); v != "" {
		cfg.Model = v
	}
	return cfg
}

// OpenAIEmbedder implements Embedder with go-openai.
type OpenAIEmbedder struct {
	client *openai.Client
	model  string
}

// NewOpenAIEmbedder builds an embedder. The API key may be empty for
// self-hosted endpoints.
func NewOpenAIEmbedder(cfg EmbedderConfig) (*OpenAIEmbedder, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("embedding base url not configured")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("embedding model not configured")
	}
	oc := openai.DefaultConfig(cfg.APIKey)
	oc.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout > 0 {
		oc.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &OpenAIEmbedder{client: openai.NewClientWithConfig(oc), model: cfg.Model}, nil
}

// Model returns the embedding model name.
func (e *OpenAIEmbedder) Model() string { return e.model }

// Embed returns the vector for a single text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch returns one vector per input, in input order.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(e.model),
	})
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("%w: got %d for %d inputs", ErrEmptyEmbedding, len(resp.Data), len(texts))
	}

	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(out) {
			return nil, fmt.Errorf("embedding index %d out of range", d.Index)
		}
		out[d.Index] = d.Embedding
	}
	for i, v := range out {
		if len(v) == 0 {
			return nil, fmt.Errorf("%w: no vector for input %d", ErrEmptyEmbedding, i)
		}
	}
	return out, nil
}

var _ Embedder = (*OpenAIEmbedder)(nil)
