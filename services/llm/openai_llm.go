package llm

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
)

// GroqBaseURL is the OpenAI-compatible endpoint of Groq's hosted models.
const GroqBaseURL = "https://api.groq.com/openai/v1"

// OpenAIConfig configures any OpenAI-compatible chat endpoint (OpenAI, Groq,
// vLLM, TEI routers).
type OpenAIConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float32
	Timeout     time.Duration
}

// DefaultChatConfig returns the Groq settings the service ships with.
// GROQ_API_KEY, LLM_BASE_URL and LLM_MODEL override the defaults.
func DefaultChatConfig() OpenAIConfig {
	cfg := OpenAIConfig{
		APIKey:      os.Getenv("GROQ_API_KEY"),
		BaseURL:     GroqBaseURL,
		Model:       "openai/gpt-oss-120b",
		Temperature: 0.7,
		Timeout:     60 * time.Second,
	}
	if v := os.Getenv("LLM_BASE_URL"); v != "" {
		cfg.BaseURL = v
	}
	if v := os.Getenv("LLM_MODEL"); v != "" {
		cfg.Model = v
	}
	return cfg
}

// OpenAIClient implements ChatClient with go-openai.
type OpenAIClient struct {
	client      *openai.Client
	model       string
	temperature float32
}

// NewOpenAIClient builds a chat client. An API key is required; when the
// config has none, the Podman/Docker secret file is tried, the way the rest of
// the stack reads secrets.
func NewOpenAIClient(cfg OpenAIConfig) (*OpenAIClient, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		secretPath := "/run/secrets/llm_api_key"
		if b, err := os.ReadFile(secretPath); err == nil {
			apiKey = strings.TrimSpace(string(b))
			slog.Info("Read the LLM API key from mounted secret")
		} else {
			return nil, fmt.Errorf("llm api key not configured (set GROQ_API_KEY or mount %s)", secretPath)
		}
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("llm model not configured")
	}

	oc := openai.DefaultConfig(apiKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	if cfg.Timeout > 0 {
		oc.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}

	slog.Info("Initializing OpenAI-compatible chat client", "model", cfg.Model, "base_url", oc.BaseURL)
	return &OpenAIClient{
		client:      openai.NewClientWithConfig(oc),
		model:       cfg.Model,
		temperature: cfg.Temperature,
	}, nil
}

// Chat sends messages as one chat completion and returns the first choice.
func (o *OpenAIClient) Chat(ctx context.Context, messages []Message, params GenerationParams) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:       o.model,
		Messages:    toOpenAIMessages(messages),
		Temperature: o.temperature,
	}
	if params.Temperature != nil {
		req.Temperature = *params.Temperature
	}
	if params.MaxTokens != nil {
		req.MaxCompletionTokens = *params.MaxTokens
	}
	if params.TopP != nil {
		req.TopP = *params.TopP
	}
	if len(params.Stop) > 0 {
		req.Stop = params.Stop
	}

	slog.Debug("Generating text via OpenAI-compatible API", "model", o.model, "messages", len(messages))
	resp, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyCompletion
	}
	slog.Debug("Received chat completion", "finish_reason", resp.Choices[0].FinishReason)
	return resp.Choices[0].Message.Content, nil
}

func toOpenAIMessages(messages []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		role := openai.ChatMessageRoleUser
		switch m.Role {
		case RoleSystem:
			role = openai.ChatMessageRoleSystem
		case RoleAssistant:
			role = openai.ChatMessageRoleAssistant
		}
		out = append(out, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}
	return out
}

var _ ChatClient = (*OpenAIClient)(nil)
