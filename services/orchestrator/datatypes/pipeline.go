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

// PipelineRequest is one conversational turn handed to the chat pipeline.
//
// SessionID is an opaque, untrusted partition key: it selects a history and
// nothing else. Mood is optional and only selects the opening register of
// the reply.
type PipelineRequest struct {
	SessionID string
	Question  string
	Mood      Mood
}

// PipelineResponse is the result of a completed run.
//
// # Fields
//
//   - Reply: The generated answer
//   - Query: The query used for retrieval (rewritten or original)
//   - Rewritten: True when the contextualizer ran
//   - Chunks: Passages that formed the context, most similar first
type PipelineResponse struct {
	Reply     string
	Query     string
	Rewritten bool
	Chunks    []RetrievedChunk
}
