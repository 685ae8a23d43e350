// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package xslices

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIotaAndFill(t *testing.T) {
	assert.Equal(t, []float32{3, 4, 5}, Iota(float32(3), 3))
	assert.Equal(t, []int{7, 7}, SliceWithValue(2, 7))
	s := make([]float64, 3)
	FillSlice(s, 1.5)
	assert.Equal(t, []float64{1.5, 1.5, 1.5}, s)
	assert.Equal(t, []int{2, 4}, Map([]int{1, 2}, func(e int) int { return 2 * e }))
	assert.Equal(t, 9, Max([]int{3, 9, -1}))
}

func TestRelativeError(t *testing.T) {
	want := []float32{100, 0.001, -2}
	got := []float32{100.01, 0.0011, -2}
	maxErr, idx := MaxRelativeError(got, want)
	assert.Equal(t, 0, idx)
	assert.InDelta(t, 1e-4, maxErr, 1e-6)

	require.NoError(t, SlicesInRelData(got, want, 1e-3))
	require.Error(t, SlicesInRelData(got, want, 1e-5))
	require.Error(t, SlicesInRelData(got[:2], want, 1))

	nan := []float32{float32(math.NaN()), 0.001, -2}
	require.Error(t, SlicesInRelData(nan, want, 1))
}
