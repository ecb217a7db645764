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
	"errors"
	"fmt"
	"strings"
)

// Mood is the self-reported mood label sent with a chat message or a daily
// check-in. The zero value means "no mood supplied".
type Mood string

const (
	MoodVerySad    Mood = "Very Sad"
	MoodNotSoGood  Mood = "Not So Good"
	MoodOkay       Mood = "Okay"
	MoodPrettyGood Mood = "Pretty Good"
	MoodVeryHappy  Mood = "Very Happy"
)

// ErrInvalidMood is returned by ParseMood for labels outside the fixed enum.
var ErrInvalidMood = errors.New("invalid mood")

var moodScores = map[Mood]int{
	MoodVerySad:    1,
	MoodNotSoGood:  2,
	MoodOkay:       3,
	MoodPrettyGood: 4,
	MoodVeryHappy:  5,
}

// AllMoods lists the labels in ascending score order.
func AllMoods() []Mood {
	return []Mood{MoodVerySad, MoodNotSoGood, MoodOkay, MoodPrettyGood, MoodVeryHappy}
}

// ParseMood matches s against the enum, ignoring case and surrounding
// whitespace.
func ParseMood(s string) (Mood, error) {
	trimmed := strings.TrimSpace(s)
	for m := range moodScores {
		if strings.EqualFold(string(m), trimmed) {
			return m, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidMood, s)
}

// Score returns 1 (Very Sad) to 5 (Very Happy), or 0 for an unknown label.
func (m Mood) Score() int {
	return moodScores[m]
}

// IsValid reports whether m is one of the five labels.
func (m Mood) IsValid() bool {
	_, ok := moodScores[m]
	return ok
}
