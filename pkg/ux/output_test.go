// Copyright (C) 2025 Selaras AI (engineering@selaras.id)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ux

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProgressBar_MachineMode(t *testing.T) {
	SetPersonalityLevel(PersonalityMachine)
	defer SetPersonality(DefaultPersonality())

	assert.Equal(t, "3/10", ProgressBar(3, 10, 20))
}

func TestProgressBar_Full(t *testing.T) {
	SetPersonalityLevel(PersonalityFull)
	defer SetPersonality(DefaultPersonality())

	bar := ProgressBar(5, 10, 20)
	assert.Contains(t, bar, "50%")
}

func TestParsePersonalityLevel(t *testing.T) {
	t.Parallel()

	cases := map[string]PersonalityLevel{
		"full":    PersonalityFull,
		"f":       PersonalityFull,
		"std":     PersonalityStandard,
		"minimal": PersonalityMinimal,
		"quiet":   PersonalityMachine,
		"bogus":   PersonalityStandard,
	}
	for input, want := range cases {
		assert.Equal(t, want, ParsePersonalityLevel(input), input)
	}
}

func TestRepeatChar(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "", repeatChar('x', 0))
	assert.Equal(t, "", repeatChar('x', -1))
	assert.Equal(t, strings.Repeat("x", 4), repeatChar('x', 4))
}

func TestIconRender_CarriesText(t *testing.T) {
	t.Parallel()

	for _, icon := range []Icon{IconSuccess, IconWarning, IconError, IconPending, IconArrow} {
		assert.Contains(t, icon.Render(), string(icon))
	}
}
