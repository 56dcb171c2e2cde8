// Copyright (C) 2025 Selaras AI (engineering@selaras.id)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAccumulator(t *testing.T) ChunkAccumulator {
	t.Helper()
	acc, err := NewChunkAccumulator()
	if err != nil {
		t.Skipf("secure memory unavailable on this system: %v", err)
	}
	t.Cleanup(acc.Destroy)
	return acc
}

func TestAccumulator_WriteAndFinalize(t *testing.T) {
	acc := newAccumulator(t)

	require.NoError(t, acc.Write("Biaya pendirian "))
	require.NoError(t, acc.Write("PT PMA adalah Rp 20.000.000."))

	text, hashStr, err := acc.Finalize()
	require.NoError(t, err)
	assert.Equal(t, "Biaya pendirian PT PMA adalah Rp 20.000.000.", text)

	expected := sha256.Sum256([]byte(text))
	assert.Equal(t, hex.EncodeToString(expected[:]), hashStr,
		"incremental hash matches hash of the full text")
}

func TestAccumulator_WriteAfterFinalizeFails(t *testing.T) {
	acc := newAccumulator(t)

	require.NoError(t, acc.Write("x"))
	_, _, err := acc.Finalize()
	require.NoError(t, err)

	assert.Error(t, acc.Write("y"))
	_, _, err = acc.Finalize()
	assert.Error(t, err)
}

func TestAccumulator_Overflow(t *testing.T) {
	acc := newAccumulator(t)

	big := strings.Repeat("a", SecureBufferSize+1)
	require.Error(t, acc.Write(big))

	_, _, err := acc.Finalize()
	assert.Error(t, err, "overflowed accumulator refuses to finalize")
}

func TestAccumulator_DestroyIdempotent(t *testing.T) {
	acc := newAccumulator(t)

	require.NoError(t, acc.Write("x"))
	acc.Destroy()
	acc.Destroy()
	assert.Error(t, acc.Write("y"))
}

func TestInsecureAccumulator(t *testing.T) {
	acc := newInsecureChunkAccumulator()
	defer acc.Destroy()

	require.NoError(t, acc.Write("halo "))
	require.NoError(t, acc.Write("dunia"))

	text, hashStr, err := acc.Finalize()
	require.NoError(t, err)
	assert.Equal(t, "halo dunia", text)
	assert.Len(t, hashStr, 64)
}
