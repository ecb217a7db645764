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
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/go-openapi/strfmt"

	"github.com/igrowicare/workmate/services/orchestrator/datatypes"
)

// MemoryIndex is a brute-force cosine VectorIndex held in process memory.
// It backs lightweight mode (no Weaviate configured) and tests.
//
// # Thread Safety
//
// Safe for concurrent use.
type MemoryIndex struct {
	mu      sync.RWMutex
	entries map[strfmt.UUID]memoryEntry
}

type memoryEntry struct {
	object ChunkObject
	norm   float64
}

// NewMemoryIndex creates an empty index.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{entries: make(map[strfmt.UUID]memoryEntry)}
}

// Upsert stores objects keyed by ChunkID, replacing earlier versions.
func (m *MemoryIndex) Upsert(_ context.Context, objects []ChunkObject) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, o := range objects {
		if len(o.Vector) == 0 {
			return 0, fmt.Errorf("chunk %s#%d has no vector", o.Source, o.ChunkIndex)
		}
		m.entries[ChunkID(o.Source, o.ChunkIndex)] = memoryEntry{object: o, norm: norm(o.Vector)}
	}
	return len(objects), nil
}

// Len returns the number of stored chunks.
func (m *MemoryIndex) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Search implements VectorIndex. Distance is 1 - cosine similarity; ties
// are broken by source and chunk index so results are stable.
func (m *MemoryIndex) Search(_ context.Context, vector []float32, k int) ([]datatypes.RetrievedChunk, error) {
	if k <= 0 {
		return []datatypes.RetrievedChunk{}, nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	qNorm := norm(vector)
	type scored struct {
		obj      ChunkObject
		distance float64
	}
	hits := make([]scored, 0, len(m.entries))
	for _, e := range m.entries {
		if len(e.object.Vector) != len(vector) {
			continue
		}
		hits = append(hits, scored{obj: e.object, distance: 1 - cosine(vector, e.object.Vector, qNorm, e.norm)})
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].distance != hits[j].distance {
			return hits[i].distance < hits[j].distance
		}
		if hits[i].obj.Source != hits[j].obj.Source {
			return hits[i].obj.Source < hits[j].obj.Source
		}
		return hits[i].obj.ChunkIndex < hits[j].obj.ChunkIndex
	})
	if len(hits) > k {
		hits = hits[:k]
	}

	out := make([]datatypes.RetrievedChunk, len(hits))
	for i, h := range hits {
		d := float32(h.distance)
		out[i] = datatypes.RetrievedChunk{
			Text:       h.obj.Content,
			Source:     h.obj.Source,
			ChunkIndex: h.obj.ChunkIndex,
			Distance:   &d,
		}
	}
	return out, nil
}

func cosine(a, b []float32, normA, normB float64) float64 {
	if normA == 0 || normB == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot / (normA * normB)
}

func norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

var _ VectorIndex = (*MemoryIndex)(nil)
