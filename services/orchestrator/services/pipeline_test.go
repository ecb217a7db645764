// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/igrowicare/workmate/services/llm"
	"github.com/igrowicare/workmate/services/orchestrator/conversation"
	"github.com/igrowicare/workmate/services/orchestrator/datatypes"
	"github.com/igrowicare/workmate/services/orchestrator/observability"
	"github.com/igrowicare/workmate/services/orchestrator/retrieval"
)

// =============================================================================
// Test Doubles
// =============================================================================

// scriptedChat is a concurrency-safe ChatFunc that records every call.
type scriptedChat struct {
	mu    sync.Mutex
	calls [][]llm.Message
	reply func(messages []llm.Message) (string, error)
}

func (s *scriptedChat) fn() conversation.ChatFunc {
	return func(_ context.Context, messages []llm.Message) (string, error) {
		s.mu.Lock()
		s.calls = append(s.calls, messages)
		s.mu.Unlock()
		return s.reply(messages)
	}
}

func (s *scriptedChat) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func (s *scriptedChat) last() []llm.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[len(s.calls)-1]
}

// recordingRetriever wraps a ContextRetriever and records every query.
type recordingRetriever struct {
	mu      sync.Mutex
	inner   retrieval.ContextRetriever
	queries []string
	err     error
}

func (r *recordingRetriever) Retrieve(ctx context.Context, query string) (*retrieval.Result, error) {
	r.mu.Lock()
	r.queries = append(r.queries, query)
	r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	return r.inner.Retrieve(ctx, query)
}

// recordingGenerator captures the GenerateInput of every call.
type recordingGenerator struct {
	mu     sync.Mutex
	inputs []GenerateInput
	answer func(in GenerateInput) (string, error)
}

func (g *recordingGenerator) Generate(_ context.Context, in GenerateInput) (string, error) {
	g.mu.Lock()
	g.inputs = append(g.inputs, in)
	g.mu.Unlock()
	return g.answer(in)
}

type constEmbedder struct{}

func (constEmbedder) Embed(context.Context, string) ([]float32, error) {
	return []float32{1, 0}, nil
}

func (constEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0}
	}
	return out, nil
}

type fixture struct {
	store     *conversation.MemoryStore
	rewriter  *scriptedChat
	retriever *recordingRetriever
	generator *recordingGenerator
	metrics   *observability.PipelineMetrics
	pipeline  *ChatPipeline
}

// newFixture builds a pipeline over an index holding the given passages.
func newFixture(t *testing.T, passages ...string) *fixture {
	t.Helper()

	index := retrieval.NewMemoryIndex()
	objects := make([]retrieval.ChunkObject, len(passages))
	for i, p := range passages {
		objects[i] = retrieval.ChunkObject{Source: "kb.md", ChunkIndex: i, Content: p, Vector: []float32{1, float32(i) * 0.1}}
	}
	_, err := index.Upsert(context.Background(), objects)
	require.NoError(t, err)

	f := &fixture{
		store: conversation.NewMemoryStore(time.Hour),
		rewriter: &scriptedChat{reply: func(messages []llm.Message) (string, error) {
			return "standalone: " + messages[len(messages)-1].Content, nil
		}},
		retriever: &recordingRetriever{
			inner: retrieval.NewRetriever(constEmbedder{}, index, retrieval.RetrieverConfig{TopK: 3, Timeout: time.Second}),
		},
		generator: &recordingGenerator{answer: func(in GenerateInput) (string, error) {
			return "answer to " + in.Question, nil
		}},
		metrics: observability.NewPipelineMetrics(prometheus.NewRegistry()),
	}
	contextualizer := conversation.NewLLMContextualizer(f.rewriter.fn(), conversation.ContextualizerConfig{Timeout: time.Second})
	f.pipeline = NewChatPipeline(f.store, contextualizer, f.retriever, f.generator, f.metrics)
	return f
}

func (f *fixture) history(t *testing.T, sessionID string) []datatypes.Turn {
	t.Helper()
	h, err := f.store.GetOrCreate(context.Background(), sessionID)
	require.NoError(t, err)
	return h
}

func req(session, question string) datatypes.PipelineRequest {
	return datatypes.PipelineRequest{SessionID: session, Question: question}
}

// =============================================================================
// Contextualizing
// =============================================================================

func TestRun_EmptyHistorySkipsContextualizer(t *testing.T) {
	f := newFixture(t, "EAP offers six free sessions.")

	resp, err := f.pipeline.Run(context.Background(), req("s1", "What is EAP?"))

	require.NoError(t, err)
	assert.Equal(t, 0, f.rewriter.count(), "rewrite must not run without history")
	assert.False(t, resp.Rewritten)
	assert.Equal(t, "What is EAP?", resp.Query)
	assert.Equal(t, []string{"What is EAP?"}, f.retriever.queries)
}

func TestRun_WithHistoryRewritesOnceBeforeRetrieval(t *testing.T) {
	f := newFixture(t, "EAP offers six free sessions.")
	_, err := f.pipeline.Run(context.Background(), req("s1", "What is EAP?"))
	require.NoError(t, err)

	resp, err := f.pipeline.Run(context.Background(), req("s1", "How do I book it?"))

	require.NoError(t, err)
	assert.Equal(t, 1, f.rewriter.count())
	assert.True(t, resp.Rewritten)
	assert.Equal(t, "standalone: How do I book it?", resp.Query)
	assert.Equal(t, "standalone: How do I book it?", f.retriever.queries[1])

	rewriteCall := f.rewriter.last()
	assert.Equal(t, llm.RoleSystem, rewriteCall[0].Role)
	assert.Equal(t, "What is EAP?", rewriteCall[1].Content)
	assert.Equal(t, llm.RoleAssistant, rewriteCall[2].Role)
	assert.Equal(t, "How do I book it?", rewriteCall[3].Content)
}

// =============================================================================
// Retrieving / Generating
// =============================================================================

func TestRun_EmptyIndexStillCompletes(t *testing.T) {
	f := newFixture(t)

	resp, err := f.pipeline.Run(context.Background(), req("s1", "Hello?"))

	require.NoError(t, err)
	assert.Empty(t, resp.Chunks)
	require.Len(t, f.generator.inputs, 1)
	assert.Equal(t, "", f.generator.inputs[0].Context)
	assert.Len(t, f.history(t, "s1"), 2)
}

type downEmbedder struct{}

func (downEmbedder) Embed(context.Context, string) ([]float32, error) {
	return nil, errors.New("dial tcp localhost:8081: connection refused")
}

func (downEmbedder) EmbedBatch(context.Context, []string) ([][]float32, error) {
	return nil, errors.New("dial tcp localhost:8081: connection refused")
}

func TestRun_EmptyIndexAnswersWithoutEmbedding(t *testing.T) {
	// Arrange
	store := conversation.NewMemoryStore(time.Hour)
	chat := &scriptedChat{reply: func([]llm.Message) (string, error) { return "general answer", nil }}
	retriever := retrieval.NewRetriever(downEmbedder{}, retrieval.NewMemoryIndex(), retrieval.RetrieverConfig{TopK: 3, Timeout: time.Second})
	generator := NewResponseGenerator(chat.fn(), GeneratorConfig{Timeout: time.Second})
	contextualizer := conversation.NewLLMContextualizer(chat.fn(), conversation.ContextualizerConfig{Timeout: time.Second})
	pipeline := NewChatPipeline(store, contextualizer, retriever, generator, nil)

	// Act
	resp, err := pipeline.Run(context.Background(), req("s1", "hello"))

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "general answer", resp.Reply)
	require.Equal(t, 1, chat.count(), "generator must run once")
	var sawMarker bool
	for _, m := range chat.last() {
		if strings.Contains(m.Content, NoContextMarker) {
			sawMarker = true
		}
	}
	assert.True(t, sawMarker, "empty context must be replaced by the marker")
}

func TestRun_RetrievesAtMostThreeChunks(t *testing.T) {
	f := newFixture(t, "a", "b", "c", "d", "e")

	resp, err := f.pipeline.Run(context.Background(), req("s1", "q"))

	require.NoError(t, err)
	assert.Len(t, resp.Chunks, 3)
	assert.Equal(t, 2, strings.Count(f.generator.inputs[0].Context, retrieval.ContextSeparator))
}

func TestRun_GeneratorGetsOriginalQuestionAndHistory(t *testing.T) {
	f := newFixture(t, "EAP offers six free sessions.")
	_, err := f.pipeline.Run(context.Background(), req("s1", "What is EAP?"))
	require.NoError(t, err)

	_, err = f.pipeline.Run(context.Background(), datatypes.PipelineRequest{
		SessionID: "s1", Question: "How do I book it?", Mood: datatypes.MoodVerySad,
	})

	require.NoError(t, err)
	in := f.generator.inputs[1]
	assert.Equal(t, "How do I book it?", in.Question)
	assert.Equal(t, datatypes.MoodVerySad, in.Mood)
	assert.Equal(t, "EAP offers six free sessions.", in.Context)
	require.Len(t, in.History, 2)
	assert.Equal(t, "What is EAP?", in.History[0].Text)
}

// =============================================================================
// Committing
// =============================================================================

func TestRun_CommitsExactlyOnePairWithOriginalQuestion(t *testing.T) {
	f := newFixture(t, "passage")
	_, err := f.pipeline.Run(context.Background(), req("s1", "first"))
	require.NoError(t, err)
	before := len(f.history(t, "s1"))

	_, err = f.pipeline.Run(context.Background(), req("s1", "and the second?"))

	require.NoError(t, err)
	after := f.history(t, "s1")
	assert.Equal(t, before+2, len(after))
	assert.Equal(t, datatypes.UserTurn("and the second?"), after[len(after)-2])
	assert.Equal(t, datatypes.AssistantTurn("answer to and the second?"), after[len(after)-1])
	for _, turn := range after {
		assert.NotContains(t, turn.Text, "standalone:", "rewritten query must never be stored")
	}
}

// =============================================================================
// Failures
// =============================================================================

func TestRun_StageFailuresDoNotCommit(t *testing.T) {
	upstream := errors.New("connection refused")

	tests := []struct {
		name      string
		setup     func(f *fixture)
		wantStage Stage
		wantKind  ErrorKind
	}{
		{
			name: "contextualizing",
			setup: func(f *fixture) {
				f.rewriter.reply = func([]llm.Message) (string, error) { return "", upstream }
			},
			wantStage: StageContextualizing,
			wantKind:  KindUpstreamUnavailable,
		},
		{
			name:      "retrieving",
			setup:     func(f *fixture) { f.retriever.err = upstream },
			wantStage: StageRetrieving,
			wantKind:  KindUpstreamUnavailable,
		},
		{
			name: "generating",
			setup: func(f *fixture) {
				f.generator.answer = func(GenerateInput) (string, error) { return "", upstream }
			},
			wantStage: StageGenerating,
			wantKind:  KindUpstreamUnavailable,
		},
		{
			name: "generating timeout",
			setup: func(f *fixture) {
				f.generator.answer = func(GenerateInput) (string, error) {
					return "", fmt.Errorf("generate answer: %w", context.DeadlineExceeded)
				}
			},
			wantStage: StageGenerating,
			wantKind:  KindTimeout,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, "passage")
			_, err := f.pipeline.Run(context.Background(), req("s1", "seed"))
			require.NoError(t, err)
			tt.setup(f)

			resp, err := f.pipeline.Run(context.Background(), req("s1", "follow-up"))

			assert.Nil(t, resp)
			pe := AsPipelineError(err)
			require.NotNil(t, pe)
			assert.Equal(t, tt.wantStage, pe.Stage)
			assert.Equal(t, tt.wantKind, pe.Kind)
			assert.Len(t, f.history(t, "s1"), 2, "failed run must not commit")
			assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.RunsTotal.WithLabelValues("failed")))
		})
	}
}

func TestRun_MalformedInputRejectedBeforeStages(t *testing.T) {
	tests := []struct {
		name string
		req  datatypes.PipelineRequest
	}{
		{"missing session", req("", "q")},
		{"blank question", req("s1", "   ")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, "passage")

			_, err := f.pipeline.Run(context.Background(), tt.req)

			pe := AsPipelineError(err)
			require.NotNil(t, pe)
			assert.Equal(t, KindMalformedInput, pe.Kind)
			assert.Equal(t, StageReceived, pe.Stage)
			assert.Empty(t, f.retriever.queries)
			assert.Empty(t, f.generator.inputs)
		})
	}
}

// =============================================================================
// Concurrency
// =============================================================================

func TestRun_ConcurrentSessionsAreIsolated(t *testing.T) {
	f := newFixture(t, "passage")
	const perSession = 10

	var wg sync.WaitGroup
	for _, session := range []string{"alice", "bob"} {
		for i := 0; i < perSession; i++ {
			wg.Add(1)
			go func(session string, i int) {
				defer wg.Done()
				_, err := f.pipeline.Run(context.Background(), req(session, fmt.Sprintf("%s-q%d", session, i)))
				assert.NoError(t, err)
			}(session, i)
		}
	}
	wg.Wait()

	for _, session := range []string{"alice", "bob"} {
		h := f.history(t, session)
		require.Len(t, h, 2*perSession)
		for _, turn := range h {
			assert.True(t, strings.Contains(turn.Text, session), "session %s saw %q", session, turn.Text)
		}
	}

	for _, in := range f.generator.inputs {
		owner := strings.SplitN(in.Question, "-", 2)[0]
		for _, turn := range in.History {
			assert.Contains(t, turn.Text, owner, "history leaked across sessions")
		}
	}
}

func TestRun_SameSessionRunsAreSerialized(t *testing.T) {
	f := newFixture(t, "passage")
	const runs = 8

	var wg sync.WaitGroup
	for i := 0; i < runs; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.pipeline.Run(context.Background(), req("shared", fmt.Sprintf("q%d", i)))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	h := f.history(t, "shared")
	require.Len(t, h, 2*runs)
	for i := 0; i < len(h); i += 2 {
		assert.Equal(t, datatypes.RoleUser, h[i].Role)
		assert.Equal(t, "answer to "+h[i].Text, h[i+1].Text, "pairs must never interleave")
	}

	seen := make(map[int]bool)
	for _, in := range f.generator.inputs {
		seen[len(in.History)] = true
	}
	assert.Len(t, seen, runs, "every run must see the history left by the previous one")
}

func TestRun_WaitingForBusySessionHonorsDeadline(t *testing.T) {
	f := newFixture(t, "passage")
	unlock, err := f.store.Lock(context.Background(), "busy")
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	resp, err := f.pipeline.Run(ctx, req("busy", "hello?"))

	assert.Nil(t, resp)
	pe := AsPipelineError(err)
	require.NotNil(t, pe)
	assert.Equal(t, KindTimeout, pe.Kind)
	assert.Equal(t, StageReceived, pe.Stage)
	assert.Empty(t, f.retriever.queries)
	assert.Empty(t, f.generator.inputs)
}

// =============================================================================
// Errors
// =============================================================================

func TestErrorKind_HTTPStatus(t *testing.T) {
	assert.Equal(t, 400, KindMalformedInput.HTTPStatus())
	assert.Equal(t, 502, KindUpstreamUnavailable.HTTPStatus())
	assert.Equal(t, 504, KindTimeout.HTTPStatus())
	assert.Equal(t, 500, KindInternal.HTTPStatus())
	assert.True(t, KindTimeout.Retryable())
	assert.False(t, KindMalformedInput.Retryable())
}

func TestPipelineError_Wraps(t *testing.T) {
	cause := errors.New("boom")
	err := fmt.Errorf("outer: %w", &PipelineError{Kind: KindInternal, Stage: StageCommitting, Err: cause})

	assert.True(t, IsPipelineError(err))
	assert.ErrorIs(t, err, cause)
	assert.Nil(t, AsPipelineError(cause))
}
