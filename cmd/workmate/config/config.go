// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads the workmate configuration: defaults, then an
// optional YAML file, then environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/igrowicare/workmate/pkg/logging"
	"github.com/igrowicare/workmate/services/ingest"
	"github.com/igrowicare/workmate/services/llm"
	"github.com/igrowicare/workmate/services/orchestrator"
	"github.com/igrowicare/workmate/services/orchestrator/conversation"
	"github.com/igrowicare/workmate/services/orchestrator/ledger"
	"github.com/igrowicare/workmate/services/orchestrator/middleware"
	"github.com/igrowicare/workmate/services/orchestrator/retrieval"
	"github.com/igrowicare/workmate/services/orchestrator/services"
)

// DefaultPath is read when no --config flag is given. A missing file at
// the default path is not an error.
const DefaultPath = "workmate.yaml"

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Port            int           `yaml:"port" validate:"min=1,max=65535"`
	GinMode         string        `yaml:"gin_mode" validate:"omitempty,oneof=debug release test"`
	AllowedOrigins  []string      `yaml:"allowed_origins" validate:"min=1,dive,url"`
	JWTSecret       string        `yaml:"-"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" validate:"gt=0"`
}

// LLMConfig configures the OpenAI-compatible chat endpoint.
type LLMConfig struct {
	BaseURL     string        `yaml:"base_url" validate:"required,url"`
	Model       string        `yaml:"model" validate:"required"`
	Temperature float32       `yaml:"temperature" validate:"min=0,max=2"`
	Timeout     time.Duration `yaml:"timeout" validate:"gt=0"`
	APIKey      string        `yaml:"-"`
}

// EmbedderConfig configures the embedding endpoint.
type EmbedderConfig struct {
	BaseURL string        `yaml:"base_url" validate:"required,url"`
	Model   string        `yaml:"model" validate:"required"`
	Timeout time.Duration `yaml:"timeout" validate:"gt=0"`
	APIKey  string        `yaml:"-"`
}

// DatabaseConfig enables and configures the MySQL ledger.
type DatabaseConfig struct {
	Enabled         bool `yaml:"enabled"`
	ledger.DBConfig `yaml:",inline"`
}

// SessionConfig configures conversation memory.
type SessionConfig struct {
	StorePath        string        `yaml:"store_path"`
	TTL              time.Duration `yaml:"ttl" validate:"gt=0"`
	EvictionInterval time.Duration `yaml:"eviction_interval" validate:"gt=0"`
}

// PipelineConfig holds per-stage budgets.
type PipelineConfig struct {
	TopK                   int           `yaml:"top_k" validate:"min=1,max=3"`
	ContextualizerTimeout  time.Duration `yaml:"contextualizer_timeout" validate:"gt=0"`
	RetrieverTimeout       time.Duration `yaml:"retriever_timeout" validate:"gt=0"`
	GeneratorTimeout       time.Duration `yaml:"generator_timeout" validate:"gt=0"`
	FallbackOnRewriteError bool          `yaml:"fallback_on_rewrite_error"`
}

// RateLimitConfig bounds chat turns per client. PerMinute 0 disables it.
type RateLimitConfig struct {
	PerMinute int `yaml:"per_minute" validate:"min=0"`
	Burst     int `yaml:"burst" validate:"min=1"`
}

// LoggingConfig configures pkg/logging.
type LoggingConfig struct {
	Level  string `yaml:"level" validate:"omitempty,oneof=debug info warn warning error"`
	Format string `yaml:"format" validate:"omitempty,oneof=auto json text"`
	Dir    string `yaml:"dir"`
}

// IngestConfig configures `workmate ingest`.
type IngestConfig struct {
	ChunkSize    int `yaml:"chunk_size" validate:"min=1"`
	ChunkOverlap int `yaml:"chunk_overlap" validate:"min=0,ltfield=ChunkSize"`
	BatchSize    int `yaml:"batch_size" validate:"min=1"`
	Concurrency  int `yaml:"concurrency" validate:"min=1"`
}

// Config is the root configuration.
type Config struct {
	Server       ServerConfig    `yaml:"server"`
	LLM          LLMConfig       `yaml:"llm"`
	Embedder     EmbedderConfig  `yaml:"embedder"`
	WeaviateURL  string          `yaml:"weaviate_url" validate:"omitempty,url"`
	OTelEndpoint string          `yaml:"otel_endpoint"`
	Database     DatabaseConfig  `yaml:"database"`
	Sessions     SessionConfig   `yaml:"sessions"`
	Pipeline     PipelineConfig  `yaml:"pipeline"`
	RateLimit    RateLimitConfig `yaml:"rate_limit"`
	Logging      LoggingConfig   `yaml:"logging"`
	Ingest       IngestConfig    `yaml:"ingest"`
}

// DefaultConfig returns built-in defaults. It does not read the
// environment.
func DefaultConfig() Config {
	retriever := retrieval.DefaultRetrieverConfig()
	rateLimit := middleware.DefaultRateLimitConfig()
	chunking := ingest.DefaultConfig()
	return Config{
		Server: ServerConfig{
			Port:            3001,
			AllowedOrigins:  []string{"http://localhost:5173"},
			JWTSecret:       middleware.DefaultJWTSecret,
			ShutdownTimeout: 10 * time.Second,
		},
		LLM: LLMConfig{
			BaseURL:     llm.GroqBaseURL,
			Model:       "openai/gpt-oss-120b",
			Temperature: 0.7,
			Timeout:     60 * time.Second,
		},
		Embedder: EmbedderConfig{
			BaseURL: "http://localhost:8081/v1",
			Model:   "sentence-transformers/all-MiniLM-L6-v2",
			Timeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			DBConfig: ledger.DBConfig{
				Host:            "localhost",
				Port:            3306,
				User:            "root",
				Name:            "workmate",
				MaxOpenConns:    10,
				MaxIdleConns:    5,
				ConnMaxLifetime: 30 * time.Minute,
			},
		},
		Sessions: SessionConfig{
			TTL:              2 * time.Hour,
			EvictionInterval: 5 * time.Minute,
		},
		Pipeline: PipelineConfig{
			TopK:                  retriever.TopK,
			ContextualizerTimeout: 15 * time.Second,
			RetrieverTimeout:      retriever.Timeout,
			GeneratorTimeout:      services.DefaultGeneratorConfig().Timeout,
		},
		RateLimit: RateLimitConfig{PerMinute: rateLimit.PerMinute, Burst: rateLimit.Burst},
		Logging:   LoggingConfig{Level: "info", Format: "auto"},
		Ingest: IngestConfig{
			ChunkSize:    chunking.ChunkSize,
			ChunkOverlap: chunking.ChunkOverlap,
			BatchSize:    chunking.BatchSize,
			Concurrency:  chunking.Concurrency,
		},
	}
}

// LoadDotEnv loads .env files into the process environment. Missing files
// are ignored; variables already set win.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// Load builds the configuration from defaults, the YAML file at path and
// the environment, then validates it.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("parse %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist) && path == DefaultPath:
		default:
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var validate = validator.New()

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// applyEnv overlays environment variables. Secrets only come from here.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = n
		return nil
	}
	flag := func(key string, dst *bool) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = b
		return nil
	}

	if err := num("PORT", &c.Server.Port); err != nil {
		return err
	}
	str("GIN_MODE", &c.Server.GinMode)
	if v, ok := lookup("ALLOWED_ORIGINS"); ok && v != "" {
		c.Server.AllowedOrigins = splitList(v)
	}
	str("JWT_SECRET", &c.Server.JWTSecret)

	str("GROQ_API_KEY", &c.LLM.APIKey)
	str("LLM_BASE_URL", &c.LLM.BaseURL)
	str("LLM_MODEL", &c.LLM.Model)

	str("EMBEDDING_API_KEY", &c.Embedder.APIKey)
	str("EMBEDDING_BASE_URL", &c.Embedder.BaseURL)
	str("EMBEDDING_MODEL_NAME", &c.Embedder.Model)

	str("WEAVIATE_URL", &c.WeaviateURL)
	str("OTEL_EXPORTER_OTLP_ENDPOINT", &c.OTelEndpoint)

	if err := flag("DB_ENABLED", &c.Database.Enabled); err != nil {
		return err
	}
	str("DB_HOST", &c.Database.Host)
	if err := num("DB_PORT", &c.Database.Port); err != nil {
		return err
	}
	str("DB_USER", &c.Database.User)
	str("DB_PASSWORD", &c.Database.Password)
	str("DB_NAME", &c.Database.Name)

	str("SESSION_STORE_PATH", &c.Sessions.StorePath)
	if err := flag("CONTEXTUALIZER_FALLBACK_ON_ERROR", &c.Pipeline.FallbackOnRewriteError); err != nil {
		return err
	}
	str("LOG_LEVEL", &c.Logging.Level)
	str("LOG_FORMAT", &c.Logging.Format)
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Orchestrator maps the configuration onto the service configuration.
func (c *Config) Orchestrator() orchestrator.Config {
	return orchestrator.Config{
		Port:           c.Server.Port,
		GinMode:        c.Server.GinMode,
		AllowedOrigins: c.Server.AllowedOrigins,
		JWTSecret:      c.Server.JWTSecret,
		OTelEndpoint:   c.OTelEndpoint,
		WeaviateURL:    c.WeaviateURL,
		Chat:           c.ChatClient(),
		Embedder:       c.EmbeddingClient(),

		DatabaseEnabled: c.Database.Enabled,
		Database:        c.Database.DBConfig,

		SessionStorePath: c.Sessions.StorePath,
		SessionTTL:       c.Sessions.TTL,
		EvictionInterval: c.Sessions.EvictionInterval,

		Contextualizer: conversation.ContextualizerConfig{
			Timeout:         c.Pipeline.ContextualizerTimeout,
			FallbackOnError: c.Pipeline.FallbackOnRewriteError,
		},
		Retriever: retrieval.RetrieverConfig{
			TopK:    c.Pipeline.TopK,
			Timeout: c.Pipeline.RetrieverTimeout,
		},
		Generator: services.GeneratorConfig{Timeout: c.Pipeline.GeneratorTimeout},
		RateLimit: middleware.RateLimitConfig{
			PerMinute: c.RateLimit.PerMinute,
			Burst:     c.RateLimit.Burst,
		},
		ShutdownTimeout: c.Server.ShutdownTimeout,
	}
}

// ChatClient returns the chat client configuration.
func (c *Config) ChatClient() llm.OpenAIConfig {
	return llm.OpenAIConfig{
		APIKey:      c.LLM.APIKey,
		BaseURL:     c.LLM.BaseURL,
		Model:       c.LLM.Model,
		Temperature: c.LLM.Temperature,
		Timeout:     c.LLM.Timeout,
	}
}

// EmbeddingClient returns the embedder configuration.
func (c *Config) EmbeddingClient() llm.EmbedderConfig {
	return llm.EmbedderConfig{
		APIKey:  c.Embedder.APIKey,
		BaseURL: c.Embedder.BaseURL,
		Model:   c.Embedder.Model,
		Timeout: c.Embedder.Timeout,
	}
}

// IngestOptions returns the ingestion configuration.
func (c *Config) IngestOptions() ingest.Config {
	return ingest.Config{
		ChunkSize:    c.Ingest.ChunkSize,
		ChunkOverlap: c.Ingest.ChunkOverlap,
		BatchSize:    c.Ingest.BatchSize,
		Concurrency:  c.Ingest.Concurrency,
	}
}

// LoggerConfig returns the pkg/logging configuration for service.
func (c *Config) LoggerConfig(service string) logging.Config {
	format := logging.Format(c.Logging.Format)
	if format == "" {
		format = logging.FormatAuto
	}
	return logging.Config{
		Level:   logging.ParseLevel(c.Logging.Level),
		LogDir:  c.Logging.Dir,
		Service: service,
		Format:  format,
	}
}
