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
	"encoding/json"
	"fmt"

	"github.com/weaviate/weaviate/entities/models"
)

// ParseGraphQLResponse decodes resp.Data into T by round-tripping through
// JSON. GraphQL-level errors are returned before decoding.
//
// # Examples
//
//	parsed, err := datatypes.ParseGraphQLResponse[datatypes.ChunkQueryResponse](resp)
func ParseGraphQLResponse[T any](resp *models.GraphQLResponse) (*T, error) {
	if resp == nil {
		return nil, fmt.Errorf("nil GraphQL response")
	}
	if len(resp.Errors) > 0 && resp.Errors[0] != nil {
		return nil, fmt.Errorf("graphql error: %s", resp.Errors[0].Message)
	}

	respBytes, err := json.Marshal(resp.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal GraphQL response data: %w", err)
	}

	var result T
	if err := json.Unmarshal(respBytes, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal into target type: %w", err)
	}
	return &result, nil
}

// ChunkQueryResponse is the Get shape of a WorkmateChunk nearVector query.
type ChunkQueryResponse struct {
	Get struct {
		WorkmateChunk []ChunkResult `json:"WorkmateChunk"`
	} `json:"Get"`
}

// ChunkResult is one WorkmateChunk hit.
type ChunkResult struct {
	Content    string `json:"content"`
	Source     string `json:"source"`
	ChunkIndex int    `json:"chunk_index"`
	Additional struct {
		ID       string   `json:"id"`
		Distance *float32 `json:"distance"`
	} `json:"_additional"`
}

// ToChunk converts a GraphQL hit to the pipeline's value type.
func (r ChunkResult) ToChunk() RetrievedChunk {
	return RetrievedChunk{
		Text:       r.Content,
		Source:     r.Source,
		ChunkIndex: r.ChunkIndex,
		Distance:   r.Additional.Distance,
	}
}
