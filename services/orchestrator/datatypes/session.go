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

// TurnRole identifies who produced a Turn.
type TurnRole string

const (
	RoleUser      TurnRole = "user"
	RoleAssistant TurnRole = "assistant"
)

// Turn is one utterance in a session. Turns are values and are never
// modified after they are appended to a history.
type Turn struct {
	Role TurnRole `json:"role"`
	Text string   `json:"text"`
}

// UserTurn builds a Turn spoken by the employee.
func UserTurn(text string) Turn { return Turn{Role: RoleUser, Text: text} }

// AssistantTurn builds a Turn produced by the model.
func AssistantTurn(text string) Turn { return Turn{Role: RoleAssistant, Text: text} }

// CloneHistory returns a copy of h so callers can never alias a store's
// internal slice. A nil or empty input yields an empty, non-nil slice.
func CloneHistory(h []Turn) []Turn {
	out := make([]Turn, len(h))
	copy(out, h)
	return out
}

// RetrievedChunk is one passage returned by the vector index. It lives for
// a single retrieval call and is never persisted.
type RetrievedChunk struct {
	Text       string   `json:"text"`
	Source     string   `json:"source"`
	ChunkIndex int      `json:"chunk_index"`
	Distance   *float32 `json:"distance,omitempty"`
}
