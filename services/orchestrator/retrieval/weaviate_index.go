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
	"log/slog"
	"strconv"
	"time"

	"github.com/go-openapi/strfmt"
	"github.com/google/uuid"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/fault"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"

	"github.com/igrowicare/workmate/services/orchestrator/datatypes"
)

// chunkNamespace seeds deterministic chunk ids so re-ingesting a file
// overwrites its previous chunks instead of duplicating them.
var chunkNamespace = uuid.MustParse("6f1c1a52-3d0e-4c1b-9a4e-8f2b7f6f0e11")

// ChunkID returns the object id of chunk index of source.
func ChunkID(source string, index int) strfmt.UUID {
	return strfmt.UUID(uuid.NewSHA1(chunkNamespace, []byte(source+"#"+strconv.Itoa(index))).String())
}

// ChunkObject is one chunk ready to be written to the index.
type ChunkObject struct {
	Source     string
	ChunkIndex int
	Content    string
	Vector     []float32
}

// WeaviateIndex is the VectorIndex backed by the WorkmateChunk class.
//
// # Thread Safety
//
// Safe for concurrent use; the Weaviate client is.
type WeaviateIndex struct {
	client    *weaviate.Client
	className string
}

// NewWeaviateIndex wraps client. The class must already exist; see
// datatypes.EnsureWeaviateSchema.
func NewWeaviateIndex(client *weaviate.Client) *WeaviateIndex {
	return &WeaviateIndex{client: client, className: datatypes.ChunkClassName}
}

// Search implements VectorIndex with a nearVector query.
func (w *WeaviateIndex) Search(ctx context.Context, vector []float32, k int) ([]datatypes.RetrievedChunk, error) {
	nearVector := w.client.GraphQL().NearVectorArgBuilder().
		WithVector(vector)

	fields := []graphql.Field{
		{Name: "content"},
		{Name: "source"},
		{Name: "chunk_index"},
		{Name: "_additional", Fields: []graphql.Field{
			{Name: "id"},
			{Name: "distance"},
		}},
	}

	result, err := w.client.GraphQL().Get().
		WithClassName(w.className).
		WithFields(fields...).
		WithNearVector(nearVector).
		WithLimit(k).
		Do(ctx)
	if err != nil {
		slog.Error("Weaviate nearVector search failed", "class", w.className, "error", err)
		return nil, toRetrievalError(err)
	}

	parsed, err := datatypes.ParseGraphQLResponse[datatypes.ChunkQueryResponse](result)
	if err != nil {
		return nil, fmt.Errorf("parse search results: %w", err)
	}

	hits := parsed.Get.WorkmateChunk
	chunks := make([]datatypes.RetrievedChunk, 0, len(hits))
	for _, h := range hits {
		chunks = append(chunks, h.ToChunk())
	}
	return chunks, nil
}

// Upsert writes objects in one batch request and returns how many were
// accepted. Items rejected by Weaviate are logged and counted as failures.
func (w *WeaviateIndex) Upsert(ctx context.Context, objects []ChunkObject) (int, error) {
	if len(objects) == 0 {
		return 0, nil
	}

	now := time.Now().UnixMilli()
	batch := make([]*models.Object, len(objects))
	for i, o := range objects {
		batch[i] = &models.Object{
			Class:  w.className,
			ID:     ChunkID(o.Source, o.ChunkIndex),
			Vector: o.Vector,
			Properties: map[string]interface{}{
				"content":     o.Content,
				"source":      o.Source,
				"chunk_index": o.ChunkIndex,
				"ingested_at": now,
			},
		}
	}

	resp, err := w.client.Batch().ObjectsBatcher().WithObjects(batch...).Do(ctx)
	if err != nil {
		return 0, fmt.Errorf("weaviate batch import: %w", toRetrievalError(err))
	}

	written := 0
	for _, item := range resp {
		if item.Result != nil && item.Result.Errors != nil && len(item.Result.Errors.Error) > 0 {
			for _, e := range item.Result.Errors.Error {
				slog.Warn("Weaviate rejected chunk", "id", item.ID, "error", e.Message)
			}
			continue
		}
		written++
	}
	return written, nil
}

// toRetrievalError converts a Weaviate client fault into a *RetrievalError
// so callers can tell retryable failures apart.
func toRetrievalError(err error) error {
	var clientErr *fault.WeaviateClientError
	if errors.As(err, &clientErr) {
		return &RetrievalError{
			StatusCode: clientErr.StatusCode,
			Message:    clientErr.Msg,
			Retryable:  isRetryableStatusCode(clientErr.StatusCode),
			Err:        err,
		}
	}
	return err
}

var _ VectorIndex = (*WeaviateIndex)(nil)
