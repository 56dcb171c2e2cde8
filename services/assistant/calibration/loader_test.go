// Copyright (C) 2025 Selaras AI (engineering@selaras.id)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package calibration

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validRuleFile = `
facts:
  - topic: pt_pma_formation
    value: "Rp 20.000.000"
    source: pricing-sheet-2025
rules:
  - id: pricing-pt-pma
    topic: pt_pma_formation
    severity: critical
    patterns:
      - 'pt ?pma.*price'
    override: "Harga resmi adalah Rp 20.000.000."
`

func writeRuleFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestNewLoader(t *testing.T) {
	t.Parallel()

	loader, err := NewLoader(writeRuleFile(t, validRuleFile))
	require.NoError(t, err)

	table := loader.Table()
	require.NotNil(t, table)
	assert.Equal(t, 1, table.RuleCount())
	assert.Equal(t, 1, table.FactCount())
}

func TestNewLoader_MissingFile(t *testing.T) {
	t.Parallel()

	_, err := NewLoader(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestRefresh_BadFileKeepsServingTable(t *testing.T) {
	t.Parallel()

	path := writeRuleFile(t, validRuleFile)
	loader, err := NewLoader(path)
	require.NoError(t, err)
	before := loader.Table()

	require.NoError(t, os.WriteFile(path, []byte("rules: [{id: broken, severity: nonsense}]"), 0o644))
	assert.Error(t, loader.Refresh())
	assert.Same(t, before, loader.Table(), "a bad reload must not replace the serving table")
}

func TestRefresh_SwapsTable(t *testing.T) {
	t.Parallel()

	path := writeRuleFile(t, validRuleFile)
	loader, err := NewLoader(path)
	require.NoError(t, err)

	updated := validRuleFile + `
  - id: second-rule
    severity: low
    patterns:
      - 'permit'
    override: "Updated."
`
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o644))
	require.NoError(t, loader.Refresh())
	assert.Equal(t, 2, loader.Table().RuleCount())
}

func TestParseSpec_RejectsUnknownFields(t *testing.T) {
	t.Parallel()

	_, err := ParseSpec([]byte("rules:\n  - id: x\n    severty: critical\n"))
	assert.Error(t, err, "a typo in a rule file must fail loudly")
}

func TestCompile_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		spec TableSpec
	}{
		{
			name: "duplicate rule id",
			spec: TableSpec{Rules: []RuleSpec{
				{ID: "a", Severity: SeverityLow, Patterns: []string{"x"}},
				{ID: "a", Severity: SeverityLow, Patterns: []string{"y"}},
			}},
		},
		{
			name: "invalid severity",
			spec: TableSpec{Rules: []RuleSpec{
				{ID: "a", Severity: "urgent", Patterns: []string{"x"}},
			}},
		},
		{
			name: "no patterns",
			spec: TableSpec{Rules: []RuleSpec{
				{ID: "a", Severity: SeverityLow},
			}},
		},
		{
			name: "bad regex",
			spec: TableSpec{Rules: []RuleSpec{
				{ID: "a", Severity: SeverityLow, Patterns: []string{"(unclosed"}},
			}},
		},
		{
			name: "duplicate fact topic",
			spec: TableSpec{Facts: []FactSpec{
				{Topic: "x", Value: "1"},
				{Topic: "X", Value: "2"},
			}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Compile(tt.spec)
			assert.Error(t, err)
		})
	}
}
