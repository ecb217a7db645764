// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package retrieval fetches knowledge-base passages for a query and flattens
// them into the context block handed to the response generator.
//
// # Flow
//
//	query ──► Embedder.Embed ──► VectorIndex.Search(k=3) ──► FormatContext
//
// The embedder must be the same model that populated the index. A mismatch
// is not detected; it only degrades the results.
package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/igrowicare/workmate/services/llm"
	"github.com/igrowicare/workmate/services/orchestrator/datatypes"
)

var retrievalTracer = otel.Tracer("workmate.orchestrator.retrieval")

// MaxTopK is the fan-out of every retrieval. Configs asking for more are
// clamped.
const MaxTopK = 3

// ContextSeparator joins chunk texts in the context block.
const ContextSeparator = "\n\n"

// =============================================================================
// Interfaces
// =============================================================================

// VectorIndex is a nearest-neighbour store of chunk vectors.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use.
type VectorIndex interface {
	// Search returns at most k chunks ordered by ascending distance
	// (most similar first). An empty index yields an empty slice, not an
	// error.
	Search(ctx context.Context, vector []float32, k int) ([]datatypes.RetrievedChunk, error)
}

// sizedIndex is implemented by indexes that know their size up front. An
// empty one is answered without embedding the query.
type sizedIndex interface {
	Len() int
}

// ContextRetriever is what the pipeline depends on.
type ContextRetriever interface {
	Retrieve(ctx context.Context, query string) (*Result, error)
}

// =============================================================================
// Configuration
// =============================================================================

// RetrieverConfig configures Retriever.
type RetrieverConfig struct {
	// TopK is the number of chunks requested. Values <= 0 or above MaxTopK
	// are replaced by MaxTopK.
	TopK int

	// Timeout bounds embedding plus search together.
	Timeout time.Duration
}

// DefaultRetrieverConfig returns k=3 and a 20s budget.
func DefaultRetrieverConfig() RetrieverConfig {
	return RetrieverConfig{
		TopK:    MaxTopK,
		Timeout: 20 * time.Second,
	}
}

func validateRetrieverConfig(config RetrieverConfig) RetrieverConfig {
	defaults := DefaultRetrieverConfig()
	if config.TopK <= 0 || config.TopK > MaxTopK {
		slog.Warn("Invalid retriever TopK, using default",
			"provided", config.TopK, "default", defaults.TopK)
		config.TopK = defaults.TopK
	}
	if config.Timeout <= 0 {
		slog.Warn("Invalid retriever Timeout, using default",
			"provided", config.Timeout, "default", defaults.Timeout)
		config.Timeout = defaults.Timeout
	}
	return config
}

// =============================================================================
// Retriever
// =============================================================================

// Result is the output of one retrieval.
//
// # Fields
//
//   - Chunks: Hits in similarity-descending order, never more than TopK
//   - Context: Chunk texts joined by ContextSeparator; "" when Chunks is empty
type Result struct {
	Chunks  []datatypes.RetrievedChunk
	Context string
}

// Empty reports whether nothing relevant was found.
func (r *Result) Empty() bool {
	return r == nil || len(r.Chunks) == 0
}

// Retriever embeds a query and searches the index with a fixed fan-out.
//
// # Description
//
// No deduplication, no similarity threshold and no re-ranking are applied:
// the index order is the context order. An empty result is valid.
//
// # Thread Safety
//
// Safe for concurrent use if the embedder and index are.
type Retriever struct {
	embedder llm.Embedder
	index    VectorIndex
	config   RetrieverConfig
}

// NewRetriever creates a Retriever.
func NewRetriever(embedder llm.Embedder, index VectorIndex, config RetrieverConfig) *Retriever {
	return &Retriever{
		embedder: embedder,
		index:    index,
		config:   validateRetrieverConfig(config),
	}
}

// TopK returns the effective fan-out.
func (r *Retriever) TopK() int {
	return r.config.TopK
}

// Retrieve implements ContextRetriever.
//
// # Outputs
//
//   - *Result: Never nil on success. Context is "" when no chunk matched.
//   - error: Wrapped embedder or index failure. Index failures are
//     *RetrievalError when the index reported a status code.
func (r *Retriever) Retrieve(ctx context.Context, query string) (*Result, error) {
	ctx, span := retrievalTracer.Start(ctx, "Retriever.Retrieve")
	defer span.End()
	span.SetAttributes(attribute.Int("retrieval.top_k", r.config.TopK))

	if sized, ok := r.index.(sizedIndex); ok && sized.Len() == 0 {
		span.SetAttributes(attribute.Int("retrieval.chunks", 0))
		slog.Debug("Retrieval skipped, index is empty")
		return &Result{}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, r.config.Timeout)
	defer cancel()

	vector, err := r.embedder.Embed(ctx, query)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "embedding failed")
		return nil, fmt.Errorf("embed query: %w", err)
	}

	chunks, err := r.index.Search(ctx, vector, r.config.TopK)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "vector search failed")
		return nil, fmt.Errorf("search vector index: %w", err)
	}
	if len(chunks) > r.config.TopK {
		chunks = chunks[:r.config.TopK]
	}

	span.SetAttributes(attribute.Int("retrieval.chunks", len(chunks)))
	if len(chunks) == 0 {
		slog.Debug("Retrieval found no chunks")
	}
	return &Result{Chunks: chunks, Context: FormatContext(chunks)}, nil
}

// FormatContext joins chunk texts in order, separated by a blank line.
func FormatContext(chunks []datatypes.RetrievedChunk) string {
	if len(chunks) == 0 {
		return ""
	}
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	return strings.Join(texts, ContextSeparator)
}

var _ ContextRetriever = (*Retriever)(nil)
