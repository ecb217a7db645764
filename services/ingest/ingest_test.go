// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/igrowicare/workmate/services/orchestrator/retrieval"
)

type fakeEmbedder struct {
	mu      sync.Mutex
	batches [][]string
	err     error
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	return []float32{float32(len(text)), 1}, f.err
}

func (f *fakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	f.batches = append(f.batches, texts)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t)), 1}
	}
	return out, nil
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func paragraph(words int) string {
	return strings.TrimSpace(strings.Repeat("steady breathing helps ", words))
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 600, cfg.ChunkSize)
	assert.Equal(t, 60, cfg.ChunkOverlap)
	assert.Equal(t, []string{".txt", ".md"}, cfg.Extensions)
}

func TestValidateConfig_FixesOverlap(t *testing.T) {
	cfg := validateConfig(Config{ChunkSize: 100, ChunkOverlap: 100})
	assert.Equal(t, 60, cfg.ChunkOverlap)
	assert.Equal(t, 32, cfg.BatchSize)
	assert.Equal(t, 4, cfg.Concurrency)
}

func TestCollectFiles(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.txt", "x")
	b := writeFile(t, dir, "nested/b.MD", "x")
	writeFile(t, dir, "nested/c.pdf", "x")
	writeFile(t, dir, ".git/d.txt", "x")
	pdf := writeFile(t, t.TempDir(), "e.pdf", "x")

	in := New(&fakeEmbedder{}, retrieval.NewMemoryIndex(), DefaultConfig())
	files, skipped, err := in.CollectFiles([]string{dir, a, pdf})

	require.NoError(t, err)
	assert.Equal(t, []string{a, b}, files, "deduplicated, sorted, hidden dirs skipped")
	assert.Equal(t, []string{pdf}, skipped)
}

func TestCollectFiles_MissingPath(t *testing.T) {
	in := New(&fakeEmbedder{}, retrieval.NewMemoryIndex(), DefaultConfig())
	_, _, err := in.CollectFiles([]string{filepath.Join(t.TempDir(), "nope")})
	assert.Error(t, err)
}

func TestRun_SplitsEmbedsAndWrites(t *testing.T) {
	// Arrange
	dir := t.TempDir()
	writeFile(t, dir, "long.txt", paragraph(120)+"\n\n"+paragraph(120))
	writeFile(t, dir, "short.md", "# Rest\n\nSleep well.")
	writeFile(t, dir, "empty.txt", "   \n")
	index := retrieval.NewMemoryIndex()
	embedder := &fakeEmbedder{}
	in := New(embedder, index, Config{BatchSize: 2})

	// Act
	report, err := in.Run(context.Background(), []string{dir})

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 3, report.Files)
	assert.Greater(t, report.Chunks, 2, "the long file spans several chunks")
	assert.Equal(t, report.Chunks, report.Written)
	assert.Equal(t, report.Chunks, index.Len())
	for _, batch := range embedder.batches {
		assert.LessOrEqual(t, len(batch), 2)
		for _, chunk := range batch {
			assert.LessOrEqual(t, len(chunk), 600)
		}
	}
}

func TestRun_ReingestIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "doc.txt", paragraph(200))
	index := retrieval.NewMemoryIndex()
	in := New(&fakeEmbedder{}, index, DefaultConfig())

	first, err := in.Run(context.Background(), []string{dir})
	require.NoError(t, err)
	_, err = in.Run(context.Background(), []string{dir})
	require.NoError(t, err)

	assert.Equal(t, first.Chunks, index.Len())
}

func TestRun_ChunksAreRetrievable(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "tips.txt", "Take a short walk when you feel stressed.")
	index := retrieval.NewMemoryIndex()
	embedder := &fakeEmbedder{}
	_, err := New(embedder, index, DefaultConfig()).Run(context.Background(), []string{dir})
	require.NoError(t, err)

	vector, err := embedder.Embed(context.Background(), "Take a short walk when you feel stressed.")
	require.NoError(t, err)
	chunks, err := index.Search(context.Background(), vector, 3)

	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "Take a short walk when you feel stressed.", chunks[0].Text)
}

func TestRun_Errors(t *testing.T) {
	t.Run("no documents", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, "a.pdf", "x")

		_, err := New(&fakeEmbedder{}, retrieval.NewMemoryIndex(), DefaultConfig()).Run(context.Background(), []string{dir})

		assert.ErrorIs(t, err, ErrNoDocuments)
	})

	t.Run("embedding failure", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, "a.txt", "hello")
		boom := errors.New("embedder down")
		index := retrieval.NewMemoryIndex()

		_, err := New(&fakeEmbedder{err: boom}, index, DefaultConfig()).Run(context.Background(), []string{dir})

		assert.ErrorIs(t, err, boom)
		assert.Zero(t, index.Len())
	})
}
