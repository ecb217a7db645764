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
	"log/slog"
	"os"
	"strconv"
	"time"
)

// ContextualizerConfig configures LLMContextualizer.
type ContextualizerConfig struct {
	// Timeout bounds the single rewrite call.
	Timeout time.Duration

	// FallbackOnError returns the raw question when the rewrite call fails
	// instead of failing the turn. Off by default.
	FallbackOnError bool
}

// DefaultContextualizerConfig reads CONTEXTUALIZER_TIMEOUT_MS and
// CONTEXTUALIZER_FALLBACK_ON_ERROR.
func DefaultContextualizerConfig() ContextualizerConfig {
	return ContextualizerConfig{
		Timeout:         time.Duration(getEnvInt("CONTEXTUALIZER_TIMEOUT_MS", 15000)) * time.Millisecond,
		FallbackOnError: getEnvBool("CONTEXTUALIZER_FALLBACK_ON_ERROR", false),
	}
}

func validateContextualizerConfig(config ContextualizerConfig) ContextualizerConfig {
	defaults := DefaultContextualizerConfig()
	if config.Timeout <= 0 {
		slog.Warn("Invalid contextualizer Timeout, using default",
			"provided", config.Timeout, "default", defaults.Timeout)
		config.Timeout = defaults.Timeout
	}
	return config
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if boolVal, err := strconv.ParseBool(val); err == nil {
			return boolVal
		}
	}
	return defaultVal
}
