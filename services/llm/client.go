package llm

import (
	"context"
	"errors"
)

// Role is the speaker of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry of a chat completion request.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// GenerationParams overrides per-call sampling settings. Nil pointers keep
// the client defaults.
type GenerationParams struct {
	Temperature *float32 `json:"temperature"`
	TopP        *float32 `json:"top_p"`
	MaxTokens   *int     `json:"max_tokens"`
	Stop        []string `json:"stop"`
}

// ChatClient produces one completion for an ordered list of messages.
type ChatClient interface {
	Chat(ctx context.Context, messages []Message, params GenerationParams) (string, error)
}

// Embedder maps text to vectors. Every call must use the same model that was
// used when the vector index was populated.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// ErrEmptyCompletion is returned when the provider answers with no choices.
var ErrEmptyCompletion = errors.New("llm returned no choices")

// ErrEmptyEmbedding is returned when the provider answers with fewer vectors
// than inputs.
var ErrEmptyEmbedding = errors.New("embedding provider returned no vectors")
