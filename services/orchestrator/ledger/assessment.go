// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ledger

// Level is the stress band of an assessment total (0 to 12).
type Level string

const (
	LevelLow      Level = "low"
	LevelMild     Level = "mild"
	LevelModerate Level = "moderate"
	LevelHigh     Level = "high"
)

var levelAdvice = map[Level]string{
	LevelLow:      "You are doing well. Keep a regular routine, stay active and stay in touch with people.",
	LevelMild:     "Some stress is showing. Try a breathing exercise, a short walk, or a chat with a colleague or friend.",
	LevelModerate: "Moderate stress. Have a look at the resource wall, or talk with your manager or HR about adjustments.",
	LevelHigh:     "High stress. Please use the employee assistance programme or book a professional counselling session soon.",
}

// LevelFor bands an assessment total.
func LevelFor(total int) Level {
	switch {
	case total <= 2:
		return LevelLow
	case total <= 5:
		return LevelMild
	case total <= 8:
		return LevelModerate
	default:
		return LevelHigh
	}
}

// Advice returns the canned advice of the level, or "" for unknown levels.
func (l Level) Advice() string {
	return levelAdvice[l]
}
