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
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/igrowicare/workmate/services/llm"
	"github.com/igrowicare/workmate/services/orchestrator/datatypes"
)

func TestSystemPrompt_MoodSelectsOpening(t *testing.T) {
	for _, mood := range datatypes.AllMoods() {
		t.Run(string(mood), func(t *testing.T) {
			prompt := SystemPrompt(mood)

			assert.Contains(t, prompt, OpeningFor(mood))
			assert.NotContains(t, prompt, openingPlaceholder)
			assert.NotEqual(t, defaultOpening, OpeningFor(mood))
		})
	}
}

func TestSystemPrompt_NoMoodUsesDefault(t *testing.T) {
	prompt := SystemPrompt("")

	assert.Contains(t, prompt, defaultOpening)
	assert.Contains(t, prompt, "base your answer on the context information")
	assert.Contains(t, prompt, "answer from general knowledge")
}

func TestBuildGenerationMessages_Layout(t *testing.T) {
	in := GenerateInput{
		Question: "How do I book?",
		Context:  "passage one\n\npassage two",
		History: []datatypes.Turn{
			datatypes.UserTurn("What is EAP?"),
			datatypes.AssistantTurn("A counselling service."),
		},
		Mood: datatypes.MoodOkay,
	}

	messages := BuildGenerationMessages(in)

	require.Len(t, messages, 5)
	assert.Equal(t, llm.RoleSystem, messages[0].Role)
	assert.Equal(t, SystemPrompt(datatypes.MoodOkay), messages[0].Content)
	assert.Equal(t, llm.RoleSystem, messages[1].Role)
	assert.Equal(t, ContextHeader+"\npassage one\n\npassage two", messages[1].Content)
	assert.Equal(t, llm.Message{Role: llm.RoleUser, Content: "What is EAP?"}, messages[2])
	assert.Equal(t, llm.Message{Role: llm.RoleAssistant, Content: "A counselling service."}, messages[3])
	assert.Equal(t, llm.Message{Role: llm.RoleUser, Content: "How do I book?"}, messages[4])
}

func TestBuildGenerationMessages_EmptyContextUsesMarker(t *testing.T) {
	messages := BuildGenerationMessages(GenerateInput{Question: "hi", Context: "  "})

	require.Len(t, messages, 3)
	assert.True(t, strings.HasSuffix(messages[1].Content, NoContextMarker))
}

func TestResponseGenerator_Generate(t *testing.T) {
	t.Run("trims reply", func(t *testing.T) {
		chat := &scriptedChat{reply: func([]llm.Message) (string, error) { return "  fine  \n", nil }}
		gen := NewResponseGenerator(chat.fn(), GeneratorConfig{Timeout: time.Second})

		answer, err := gen.Generate(context.Background(), GenerateInput{Question: "q"})

		require.NoError(t, err)
		assert.Equal(t, "fine", answer)
		assert.Equal(t, 1, chat.count())
	})

	t.Run("empty reply is an error", func(t *testing.T) {
		chat := &scriptedChat{reply: func([]llm.Message) (string, error) { return " ", nil }}
		gen := NewResponseGenerator(chat.fn(), GeneratorConfig{Timeout: time.Second})

		_, err := gen.Generate(context.Background(), GenerateInput{Question: "q"})

		assert.ErrorIs(t, err, llm.ErrEmptyCompletion)
	})

	t.Run("upstream error is wrapped", func(t *testing.T) {
		cause := errors.New("503")
		chat := &scriptedChat{reply: func([]llm.Message) (string, error) { return "", cause }}
		gen := NewResponseGenerator(chat.fn(), GeneratorConfig{Timeout: time.Second})

		_, err := gen.Generate(context.Background(), GenerateInput{Question: "q"})

		assert.ErrorIs(t, err, cause)
	})

	t.Run("timeout surfaces deadline", func(t *testing.T) {
		gen := NewResponseGenerator(func(ctx context.Context, _ []llm.Message) (string, error) {
			<-ctx.Done()
			return "", ctx.Err()
		}, GeneratorConfig{Timeout: 10 * time.Millisecond})

		_, err := gen.Generate(context.Background(), GenerateInput{Question: "q"})

		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Equal(t, KindTimeout, classify(StageGenerating, err).Kind)
	})
}

func TestValidateGeneratorConfig_DefaultsTimeout(t *testing.T) {
	assert.Equal(t, 60*time.Second, validateGeneratorConfig(GeneratorConfig{}).Timeout)
}
