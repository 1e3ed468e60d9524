package main

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"photo-shrinker-go/internal/compressor"
)

func TestSaveResultSkipsEmptyResult(t *testing.T) {
	output := filepath.Join(t.TempDir(), "a_small.jpg")

	err := saveResult("a.jpg", output, &compressor.Result{}, false)
	assert.ErrorIs(t, err, compressor.ErrInvalidInput)
	assert.NoFileExists(t, output)

	assert.Error(t, saveResult("a.jpg", output, nil, false))
	assert.NoFileExists(t, output)
}

func TestSaveResultStrictBudget(t *testing.T) {
	output := filepath.Join(t.TempDir(), "a_small.jpg")
	res := &compressor.Result{Data: []byte{0xFF, 0xD8}, BudgetMet: false}

	err := saveResult("a.jpg", output, res, true)
	assert.ErrorIs(t, err, compressor.ErrBudgetUnreachable)
	assert.NoFileExists(t, output)

	require.NoError(t, saveResult("a.jpg", output, res, false))
	assert.FileExists(t, output)
}
