// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ingest loads the knowledge base: it walks text and markdown files,
// splits them into overlapping chunks, embeds the chunks and writes them to
// the vector index.
//
// Chunk ids are derived from (source, chunk index), so ingesting the same
// file twice overwrites the earlier chunks instead of duplicating them.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/tmc/langchaingo/textsplitter"
	"golang.org/x/sync/errgroup"

	"github.com/igrowicare/workmate/services/llm"
	"github.com/igrowicare/workmate/services/orchestrator/retrieval"
)

// ChunkWriter stores embedded chunks. Both retrieval.WeaviateIndex and
// retrieval.MemoryIndex implement it.
type ChunkWriter interface {
	Upsert(ctx context.Context, objects []retrieval.ChunkObject) (int, error)
}

// ErrNoDocuments is returned when none of the given paths holds a
// supported file.
var ErrNoDocuments = errors.New("no ingestible documents found")

var markdownSeparators = []string{"\n# ", "\n## ", "\n### ", "\n\n", "\n", " ", ""}

// Config controls chunking and parallelism.
type Config struct {
	ChunkSize    int
	ChunkOverlap int

	// BatchSize is the number of chunks per embedding request and per
	// index write.
	BatchSize int

	// Concurrency bounds how many files are processed at once.
	Concurrency int

	// Extensions lists accepted file extensions, lower case with the dot.
	Extensions []string
}

// DefaultConfig splits into 600 character chunks with a 60 character
// overlap and accepts .txt and .md files.
func DefaultConfig() Config {
	return Config{
		ChunkSize:    600,
		ChunkOverlap: 60,
		BatchSize:    32,
		Concurrency:  4,
		Extensions:   []string{".txt", ".md"},
	}
}

func validateConfig(config Config) Config {
	defaults := DefaultConfig()
	if config.ChunkSize <= 0 {
		config.ChunkSize = defaults.ChunkSize
	}
	if config.ChunkOverlap < 0 || config.ChunkOverlap >= config.ChunkSize {
		slog.Warn("Invalid chunk overlap, using default", "overlap", config.ChunkOverlap)
		config.ChunkOverlap = defaults.ChunkOverlap
	}
	if config.BatchSize <= 0 {
		config.BatchSize = defaults.BatchSize
	}
	if config.Concurrency <= 0 {
		config.Concurrency = defaults.Concurrency
	}
	if len(config.Extensions) == 0 {
		config.Extensions = defaults.Extensions
	}
	return config
}

// Report summarises one ingestion run.
type Report struct {
	Files   int      `json:"files"`
	Chunks  int      `json:"chunks"`
	Written int      `json:"written"`
	Skipped []string `json:"skipped,omitempty"`
}

// Ingester embeds documents into a ChunkWriter.
//
// # Thread Safety
//
// Safe for concurrent use; Run may be called from several goroutines.
type Ingester struct {
	embedder llm.Embedder
	writer   ChunkWriter
	config   Config
}

// New creates an Ingester. The embedder must be the one the retriever
// uses at query time.
func New(embedder llm.Embedder, writer ChunkWriter, config Config) *Ingester {
	return &Ingester{
		embedder: embedder,
		writer:   writer,
		config:   validateConfig(config),
	}
}

// Run ingests every supported file under paths. Directories are walked
// recursively. The first file error cancels the remaining work.
func (in *Ingester) Run(ctx context.Context, paths []string) (Report, error) {
	files, skipped, err := in.CollectFiles(paths)
	if err != nil {
		return Report{}, err
	}
	report := Report{Files: len(files), Skipped: skipped}
	if len(files) == 0 {
		return report, ErrNoDocuments
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(in.config.Concurrency)
	for _, file := range files {
		g.Go(func() error {
			chunks, written, err := in.IngestFile(gctx, file)
			if err != nil {
				return fmt.Errorf("ingest %s: %w", file, err)
			}
			mu.Lock()
			report.Chunks += chunks
			report.Written += written
			mu.Unlock()
			slog.Info("Ingested document", "source", file, "chunks", chunks)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return report, err
	}
	return report, nil
}

// CollectFiles expands paths into the sorted list of supported files.
// Unsupported files named directly are returned as skipped; unsupported
// files inside directories are ignored.
func (in *Ingester) CollectFiles(paths []string) (files, skipped []string, err error) {
	for _, root := range paths {
		info, statErr := os.Stat(root)
		if statErr != nil {
			return nil, nil, fmt.Errorf("stat %s: %w", root, statErr)
		}
		if !info.IsDir() {
			if in.supported(root) {
				files = append(files, filepath.Clean(root))
			} else {
				skipped = append(skipped, root)
			}
			continue
		}
		walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if path != root && strings.HasPrefix(d.Name(), ".") {
					return filepath.SkipDir
				}
				return nil
			}
			if in.supported(path) {
				files = append(files, path)
			}
			return nil
		})
		if walkErr != nil {
			return nil, nil, fmt.Errorf("walk %s: %w", root, walkErr)
		}
	}
	slices.Sort(files)
	return slices.Compact(files), skipped, nil
}

// IngestFile splits, embeds and writes one file. It returns the number of
// chunks produced and the number the writer accepted.
func (in *Ingester) IngestFile(ctx context.Context, path string) (chunks, written int, err error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, 0, fmt.Errorf("read: %w", err)
	}
	text := strings.TrimSpace(string(raw))
	if text == "" {
		slog.Warn("Skipping empty document", "source", path)
		return 0, 0, nil
	}

	parts, err := in.splitterFor(path).SplitText(text)
	if err != nil {
		return 0, 0, fmt.Errorf("split: %w", err)
	}
	source := filepath.ToSlash(path)

	for start := 0; start < len(parts); start += in.config.BatchSize {
		end := min(start+in.config.BatchSize, len(parts))
		batch := parts[start:end]

		vectors, err := in.embedder.EmbedBatch(ctx, batch)
		if err != nil {
			return chunks, written, fmt.Errorf("embed chunks %d-%d: %w", start, end-1, err)
		}
		if len(vectors) != len(batch) {
			return chunks, written, fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(batch))
		}

		objects := make([]retrieval.ChunkObject, len(batch))
		for i, content := range batch {
			objects[i] = retrieval.ChunkObject{
				Source:     source,
				ChunkIndex: start + i,
				Content:    content,
				Vector:     vectors[i],
			}
		}
		n, err := in.writer.Upsert(ctx, objects)
		if err != nil {
			return chunks, written, fmt.Errorf("write chunks %d-%d: %w", start, end-1, err)
		}
		chunks += len(batch)
		written += n
	}
	return chunks, written, nil
}

func (in *Ingester) supported(path string) bool {
	return slices.Contains(in.config.Extensions, strings.ToLower(filepath.Ext(path)))
}

func (in *Ingester) splitterFor(path string) textsplitter.TextSplitter {
	opts := []textsplitter.Option{
		textsplitter.WithChunkSize(in.config.ChunkSize),
		textsplitter.WithChunkOverlap(in.config.ChunkOverlap),
	}
	if strings.EqualFold(filepath.Ext(path), ".md") {
		opts = append(opts, textsplitter.WithSeparators(markdownSeparators))
	}
	return textsplitter.NewRecursiveCharacter(opts...)
}
