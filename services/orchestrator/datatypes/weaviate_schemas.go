// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate/entities/models"
)

// ChunkClassName is the Weaviate class holding knowledge-base chunks.
const ChunkClassName = "WorkmateChunk"

// GetChunkSchema returns the WorkmateChunk class. Vectors are supplied by
// the ingestion job, so the class has no vectorizer.
func GetChunkSchema() *models.Class {
	indexFilterable := new(bool)
	*indexFilterable = true

	return &models.Class{
		Class:       ChunkClassName,
		Description: "A chunk of an iGrow & iCare knowledge-base document.",
		Vectorizer:  "none",
		InvertedIndexConfig: &models.InvertedIndexConfig{
			IndexNullState:  true,
			IndexTimestamps: true,
		},
		Properties: []*models.Property{
			{
				Name:         "content",
				DataType:     []string{"text"},
				Description:  "The chunk text.",
				Tokenization: "word",
			},
			{
				Name:            "source",
				DataType:        []string{"text"},
				Description:     "Path of the file the chunk was cut from.",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:            "chunk_index",
				DataType:        []string{"int"},
				Description:     "Position of the chunk within its source.",
				IndexFilterable: indexFilterable,
			},
			{
				Name:            "ingested_at",
				DataType:        []string{"number"},
				Description:     "Unix ms timestamp of ingestion.",
				IndexFilterable: indexFilterable,
			},
		},
	}
}

// EnsureWeaviateSchema creates every class this service owns if it is not
// already present. Existing classes are left untouched.
func EnsureWeaviateSchema(ctx context.Context, client *weaviate.Client) error {
	schemaGetters := []func() *models.Class{
		GetChunkSchema,
	}

	for _, getSchema := range schemaGetters {
		class := getSchema()
		exists, err := client.Schema().ClassExistenceChecker().WithClassName(class.Class).Do(ctx)
		if err != nil {
			return fmt.Errorf("check schema %s: %w", class.Class, err)
		}
		if exists {
			slog.Info("Schema already exists", "class", class.Class)
			continue
		}
		slog.Info("Schema not found, creating it...", "class", class.Class)
		if err := client.Schema().ClassCreator().WithClass(class).Do(ctx); err != nil {
			return fmt.Errorf("create schema %s: %w", class.Class, err)
		}
		slog.Info("Successfully created schema", "class", class.Class)
	}
	return nil
}
