// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package retrieval

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/fault"

	"github.com/igrowicare/workmate/services/orchestrator/datatypes"
)

// =============================================================================
// Test Helpers
// =============================================================================

type fakeEmbedder struct {
	vector []float32
	err    error
	calls  int
	last   string
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	f.calls++
	f.last = text
	return f.vector, f.err
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := f.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

type recordingIndex struct {
	chunks []datatypes.RetrievedChunk
	err    error
	lastK  int
}

func (r *recordingIndex) Search(_ context.Context, _ []float32, k int) ([]datatypes.RetrievedChunk, error) {
	r.lastK = k
	return r.chunks, r.err
}

func chunks(texts ...string) []datatypes.RetrievedChunk {
	out := make([]datatypes.RetrievedChunk, len(texts))
	for i, t := range texts {
		out[i] = datatypes.RetrievedChunk{Text: t, Source: "kb.md", ChunkIndex: i}
	}
	return out
}

func testConfig() RetrieverConfig {
	return RetrieverConfig{TopK: 3, Timeout: time.Second}
}

// =============================================================================
// Retriever Tests
// =============================================================================

func TestRetrieve_JoinsChunksWithBlankLine(t *testing.T) {
	emb := &fakeEmbedder{vector: []float32{1, 0}}
	idx := &recordingIndex{chunks: chunks("first", "second", "third")}
	r := NewRetriever(emb, idx, testConfig())

	res, err := r.Retrieve(context.Background(), "EAP booking")

	require.NoError(t, err)
	assert.Equal(t, "first\n\nsecond\n\nthird", res.Context)
	assert.Len(t, res.Chunks, 3)
	assert.Equal(t, "EAP booking", emb.last)
	assert.Equal(t, 3, idx.lastK)
}

func TestRetrieve_EmptyIndexIsNotAnError(t *testing.T) {
	r := NewRetriever(&fakeEmbedder{vector: []float32{1}}, &recordingIndex{}, testConfig())

	res, err := r.Retrieve(context.Background(), "anything")

	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, "", res.Context)
	assert.True(t, res.Empty())
}

func TestRetrieve_EmptyMemoryIndexSkipsEmbedding(t *testing.T) {
	emb := &fakeEmbedder{err: errors.New("embedding server unreachable")}
	r := NewRetriever(emb, NewMemoryIndex(), testConfig())

	res, err := r.Retrieve(context.Background(), "hello")

	require.NoError(t, err)
	assert.True(t, res.Empty())
	assert.Equal(t, 0, emb.calls)
}

func TestRetrieve_FilledMemoryIndexEmbeds(t *testing.T) {
	idx := NewMemoryIndex()
	_, err := idx.Upsert(context.Background(), []ChunkObject{{Source: "kb.md", Content: "EAP", Vector: []float32{1}}})
	require.NoError(t, err)
	emb := &fakeEmbedder{vector: []float32{1}}
	r := NewRetriever(emb, idx, testConfig())

	res, err := r.Retrieve(context.Background(), "EAP?")

	require.NoError(t, err)
	assert.Equal(t, "EAP", res.Context)
	assert.Equal(t, 1, emb.calls)
}

func TestRetrieve_NeverReturnsMoreThanTopK(t *testing.T) {
	idx := &recordingIndex{chunks: chunks("a", "b", "c", "d", "e")}
	r := NewRetriever(&fakeEmbedder{vector: []float32{1}}, idx, testConfig())

	res, err := r.Retrieve(context.Background(), "q")

	require.NoError(t, err)
	assert.Len(t, res.Chunks, 3)
	assert.Equal(t, "a\n\nb\n\nc", res.Context)
}

func TestRetrieve_TopKIsClamped(t *testing.T) {
	tests := []struct {
		name string
		topK int
		want int
	}{
		{"zero", 0, 3},
		{"negative", -1, 3},
		{"too large", 10, 3},
		{"smaller is kept", 2, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			idx := &recordingIndex{}
			r := NewRetriever(&fakeEmbedder{vector: []float32{1}}, idx, RetrieverConfig{TopK: tt.topK, Timeout: time.Second})

			_, err := r.Retrieve(context.Background(), "q")

			require.NoError(t, err)
			assert.Equal(t, tt.want, idx.lastK)
			assert.Equal(t, tt.want, r.TopK())
		})
	}
}

func TestRetrieve_EmbedderFailurePropagates(t *testing.T) {
	idx := &recordingIndex{}
	r := NewRetriever(&fakeEmbedder{err: errors.New("tei down")}, idx, testConfig())

	_, err := r.Retrieve(context.Background(), "q")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "embed query")
	assert.Equal(t, 0, idx.lastK, "index must not be searched")
}

func TestRetrieve_IndexFailurePropagates(t *testing.T) {
	cause := &RetrievalError{StatusCode: 503, Message: "unavailable", Retryable: true}
	r := NewRetriever(&fakeEmbedder{vector: []float32{1}}, &recordingIndex{err: cause}, testConfig())

	_, err := r.Retrieve(context.Background(), "q")

	require.Error(t, err)
	assert.True(t, IsRetrievalError(err))
	var re *RetrievalError
	require.True(t, errors.As(err, &re))
	assert.True(t, re.Retryable)
}

func TestFormatContext_Empty(t *testing.T) {
	assert.Equal(t, "", FormatContext(nil))
	assert.Equal(t, "only", FormatContext(chunks("only")))
}

// =============================================================================
// Error Mapping Tests
// =============================================================================

func TestToRetrievalError(t *testing.T) {
	tests := []struct {
		status    int
		retryable bool
	}{
		{503, true},
		{502, true},
		{429, true},
		{400, false},
		{422, false},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("status_%d", tt.status), func(t *testing.T) {
			err := toRetrievalError(&fault.WeaviateClientError{StatusCode: tt.status, Msg: "boom"})

			var re *RetrievalError
			require.True(t, errors.As(err, &re))
			assert.Equal(t, tt.status, re.StatusCode)
			assert.Equal(t, tt.retryable, re.Retryable)
		})
	}

	plain := errors.New("plain")
	assert.Same(t, plain, toRetrievalError(plain))
}

func TestChunkID_Deterministic(t *testing.T) {
	assert.Equal(t, ChunkID("handbook.md", 2), ChunkID("handbook.md", 2))
	assert.NotEqual(t, ChunkID("handbook.md", 2), ChunkID("handbook.md", 3))
	assert.NotEqual(t, ChunkID("a.md", 1), ChunkID("b.md", 1))
}
