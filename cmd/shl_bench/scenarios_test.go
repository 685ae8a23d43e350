// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"testing"

	"github.com/gomlx/shl/backends/shl"
	"github.com/gomlx/shl/backends/shl/conv"
	"github.com/gomlx/shl/pkg/core/dtypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectScenarios(t *testing.T) {
	all, err := selectScenarios("all")
	require.NoError(t, err)
	total := 0
	for _, group := range scenarioGroups {
		total += len(group)
	}
	assert.Len(t, all, total)

	// Repeated groups are only included once.
	selected, err := selectScenarios("1x1, winograd,1x1")
	require.NoError(t, err)
	assert.Len(t, selected, len(scenarioGroups["1x1"])+len(scenarioGroups["winograd"]))
	assert.Equal(t, "gemm-1x1", selected[0].name)

	selected, err = selectScenarios("")
	require.NoError(t, err)
	assert.Empty(t, selected)

	_, err = selectScenarios("winograd,gpu")
	require.Error(t, err)
}

func TestParseShape(t *testing.T) {
	s, err := parseShape("2, 16, 32, 30, 8, 3, 2, 1")
	require.NoError(t, err)
	assert.Equal(t, 2, s.batch)
	assert.Equal(t, 30, s.inW)
	assert.Equal(t, conv.Params{StrideH: 2, StrideW: 2, PadTop: 1, PadDown: 1, PadLeft: 1, PadRight: 1}, s.params)
	d := s.dims()
	assert.Equal(t, []int{16, 15}, []int{d.OutH, d.OutW})
	assert.Equal(t, "2x16x32x30 * 8x16x3x3", s.shape())

	s, err = parseShape("1,8,10,10,8,3,1,1,8")
	require.NoError(t, err)
	assert.Equal(t, 8, s.params.Group)

	for _, bad := range []string{"1,2,3", "1,8,10,10,8,3,1,x", "1,8,10,10,8,3,0,1", "1,8,10,10,8,3,1,-1",
		"1,8,10,10,6,3,1,1,4", "1,8,2,2,8,5,1,0"} {
		_, err := parseShape(bad)
		require.Error(t, err, bad)
	}
}

func TestRunScenario(t *testing.T) {
	backend, err := shl.NewWithConfig("c906:parallelism=2")
	require.NoError(t, err)
	for _, s := range []scenario{
		{"winograd", 1, 8, 12, 12, 8, 3, padded(1)},
		{"gemm-1x1", 2, 6, 5, 5, 4, 1, conv.Params{}},
		{"depthwise", 1, 4, 9, 9, 4, 3, grouped(strided(padded(1), 2), 4)},
	} {
		t.Run(s.name, func(t *testing.T) {
			for _, dtype := range []dtypes.DType{dtypes.Float32, dtypes.Float16} {
				r, err := runScenario(backend, s, dtype, 2, false)
				require.NoError(t, err)
				assert.NotEqual(t, conv.StrategyUnset, r.strategy)
				assert.Less(t, r.maxError, tolerance(dtype), "dtype=%s", dtype)
				assert.Positive(t, r.flops)
			}
		})
	}
}
