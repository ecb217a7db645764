// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package conversation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/igrowicare/workmate/services/llm"
	"github.com/igrowicare/workmate/services/orchestrator/datatypes"
)

// RewriteInstruction is the system message of the rewrite call.
const RewriteInstruction = "Given the chat history and the latest user question, " +
	"which might reference context in the chat history, formulate a standalone question " +
	"which can be understood without the chat history. Keep the original intent and language. " +
	"Do NOT answer the question, just reformulate it if needed and otherwise return it as is."

// LLMContextualizer rewrites follow-up questions with one chat completion.
//
// # Description
//
// With an empty history the question is returned as-is and the model is
// never called. Otherwise the model receives RewriteInstruction, the history
// as alternating user/assistant messages, and the question as the final
// user message. The trimmed reply is the standalone query; a blank reply
// falls back to the original question.
//
// # Limitations
//
//   - The reply is trusted verbatim; an answer instead of a rewrite is not
//     detected.
//
// # Thread Safety
//
// Safe for concurrent use; holds no mutable state.
type LLMContextualizer struct {
	chat   ChatFunc
	config ContextualizerConfig
}

// NewLLMContextualizer creates a contextualizer backed by chat.
func NewLLMContextualizer(chat ChatFunc, config ContextualizerConfig) *LLMContextualizer {
	return &LLMContextualizer{
		chat:   chat,
		config: validateContextualizerConfig(config),
	}
}

// Contextualize implements Contextualizer.
func (c *LLMContextualizer) Contextualize(ctx context.Context, question string, history []datatypes.Turn) (string, error) {
	if len(history) == 0 {
		return question, nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	rewritten, err := c.chat(ctx, BuildRewriteMessages(question, history))
	if err != nil {
		if c.config.FallbackOnError {
			slog.Warn("Question rewrite failed, using original question", "error", err)
			return question, nil
		}
		return "", fmt.Errorf("contextualize question: %w", err)
	}

	rewritten = strings.TrimSpace(rewritten)
	if rewritten == "" {
		slog.Warn("Question rewrite was empty, using original question")
		return question, nil
	}
	return rewritten, nil
}

// BuildRewriteMessages renders the rewrite request.
func BuildRewriteMessages(question string, history []datatypes.Turn) []llm.Message {
	messages := make([]llm.Message, 0, len(history)+2)
	messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: RewriteInstruction})
	messages = append(messages, HistoryMessages(history)...)
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: question})
	return messages
}

// HistoryMessages maps turns to chat messages preserving order.
func HistoryMessages(history []datatypes.Turn) []llm.Message {
	out := make([]llm.Message, 0, len(history))
	for _, t := range history {
		role := llm.RoleUser
		if t.Role == datatypes.RoleAssistant {
			role = llm.RoleAssistant
		}
		out = append(out, llm.Message{Role: role, Content: t.Text})
	}
	return out
}

var _ Contextualizer = (*LLMContextualizer)(nil)
