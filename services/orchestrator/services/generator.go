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
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/igrowicare/workmate/services/llm"
	"github.com/igrowicare/workmate/services/orchestrator/conversation"
	"github.com/igrowicare/workmate/services/orchestrator/datatypes"
)

// =============================================================================
// Prompt Content
// =============================================================================

// Persona is the fixed system instruction of every answer. The RAG usage
// rule is a behavioural contract on the model: it cannot be enforced in
// code, only checked through the text sent to the model.
const Persona = `You are the WorkMate assistant of the iGrow & iCare employee well-being programme.
Your job is to help employees with career development and physical and mental well-being, and to offer support.

Opening line:
{{OPENING}}

How to use the context information:
- When the question is about iGrow & iCare services, resources or policies, base your answer on the context information below and cite it.
- When the question is not about iGrow & iCare, answer from general knowledge and ignore the context information.
- When the context has nothing relevant, say so briefly and answer from general knowledge.

Guidelines:
1. Tone: professional, warm, supportive and neutral. Keep replies short, direct and to the point.
2. Career: give practical advice and encouragement on work, promotion and skill growth.
3. Mental health: respond to stress and anxiety with empathy and supportive suggestions, and make clear this does not replace professional care.
4. Physical health: offer general tips on rest, exercise and diet.
5. Safety: never give medical diagnoses or legal advice, and never ask for or handle sensitive personal data.
6. Reply in the language the employee writes in.

Goal: a clear, short and helpful reply that lets the employee rely on iGrow & iCare for support.`

// NoContextMarker replaces an empty context block.
const NoContextMarker = "(no relevant context found)"

// ContextHeader prefixes the context system message.
const ContextHeader = "Context information:"

const openingPlaceholder = "{{OPENING}}"

// defaultOpening applies when no mood was sent.
const defaultOpening = "Start directly with the answer; no special greeting is needed."

var moodOpenings = map[datatypes.Mood]string{
	datatypes.MoodVerySad:    "The employee says they feel very sad today. Open with one gentle sentence acknowledging that today feels heavy and that it is fine to feel this way, then answer.",
	datatypes.MoodNotSoGood:  "The employee says they are not feeling so good today. Open with one short, caring sentence, then answer.",
	datatypes.MoodOkay:       "The employee says they feel okay today. Open with one friendly, calm sentence, then answer.",
	datatypes.MoodPrettyGood: "The employee says they feel pretty good today. Open with one warm, upbeat sentence, then answer.",
	datatypes.MoodVeryHappy:  "The employee says they feel very happy today. Open with one sentence sharing their joy, then answer.",
}

// OpeningFor returns the opening-register instruction for mood.
func OpeningFor(mood datatypes.Mood) string {
	if line, ok := moodOpenings[mood]; ok {
		return line
	}
	return defaultOpening
}

// SystemPrompt renders Persona for mood.
func SystemPrompt(mood datatypes.Mood) string {
	return strings.Replace(Persona, openingPlaceholder, OpeningFor(mood), 1)
}

// =============================================================================
// Configuration
// =============================================================================

// GeneratorConfig configures ResponseGenerator.
type GeneratorConfig struct {
	// Timeout bounds the completion call.
	Timeout time.Duration
}

// DefaultGeneratorConfig returns a 60s budget.
func DefaultGeneratorConfig() GeneratorConfig {
	return GeneratorConfig{Timeout: 60 * time.Second}
}

func validateGeneratorConfig(config GeneratorConfig) GeneratorConfig {
	defaults := DefaultGeneratorConfig()
	if config.Timeout <= 0 {
		slog.Warn("Invalid generator Timeout, using default",
			"provided", config.Timeout, "default", defaults.Timeout)
		config.Timeout = defaults.Timeout
	}
	return config
}

// =============================================================================
// ResponseGenerator
// =============================================================================

// GenerateInput is everything the generator needs for one answer.
//
// Question must be the user's original wording, never the rewritten query.
type GenerateInput struct {
	Question string
	Context  string
	History  []datatypes.Turn
	Mood     datatypes.Mood
}

// Generator produces the final answer.
type Generator interface {
	Generate(ctx context.Context, in GenerateInput) (string, error)
}

// ResponseGenerator builds the answer prompt and runs one completion.
//
// # Thread Safety
//
// Safe for concurrent use; holds no mutable state.
type ResponseGenerator struct {
	chat   conversation.ChatFunc
	config GeneratorConfig
}

// NewResponseGenerator creates a generator backed by chat.
func NewResponseGenerator(chat conversation.ChatFunc, config GeneratorConfig) *ResponseGenerator {
	return &ResponseGenerator{chat: chat, config: validateGeneratorConfig(config)}
}

// Generate implements Generator. The model reply is returned trimmed; an
// empty reply is an error.
func (g *ResponseGenerator) Generate(ctx context.Context, in GenerateInput) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.config.Timeout)
	defer cancel()

	answer, err := g.chat(ctx, BuildGenerationMessages(in))
	if err != nil {
		return "", fmt.Errorf("generate answer: %w", err)
	}
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return "", fmt.Errorf("generate answer: %w", llm.ErrEmptyCompletion)
	}
	return answer, nil
}

// BuildGenerationMessages lays out the answer prompt:
//
//	system:    SystemPrompt(mood)
//	system:    ContextHeader + context (or NoContextMarker)
//	user/asst: history, oldest first
//	user:      original question
func BuildGenerationMessages(in GenerateInput) []llm.Message {
	contextBlock := strings.TrimSpace(in.Context)
	if contextBlock == "" {
		contextBlock = NoContextMarker
	}

	messages := make([]llm.Message, 0, len(in.History)+3)
	messages = append(messages,
		llm.Message{Role: llm.RoleSystem, Content: SystemPrompt(in.Mood)},
		llm.Message{Role: llm.RoleSystem, Content: ContextHeader + "\n" + contextBlock},
	)
	messages = append(messages, conversation.HistoryMessages(in.History)...)
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: in.Question})
	return messages
}

var _ Generator = (*ResponseGenerator)(nil)
