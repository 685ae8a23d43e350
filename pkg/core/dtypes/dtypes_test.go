// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package dtypes

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/x448/float16"
)

func TestMapOfNames(t *testing.T) {
	for _, name := range []string{"Float16", "float16", "F16", "f16", "fp16"} {
		dtype, err := FromName(name)
		require.NoError(t, err, "name %q", name)
		assert.Equal(t, Float16, dtype, "name %q", name)
	}
	dtype, err := FromName("FLOAT32")
	require.NoError(t, err)
	assert.Equal(t, Float32, dtype)

	_, err = FromName("complex64")
	require.Error(t, err)
}

func TestSizeAndString(t *testing.T) {
	assert.Equal(t, 2, Float16.Size())
	assert.Equal(t, 32, Float32.Bits())
	assert.Equal(t, "Float32", Float32.String())
	assert.Equal(t, "DType(99)", DType(99).String())
	assert.Panics(t, func() { _ = InvalidDType.Size() })

	assert.True(t, Float16.IsFloat())
	assert.True(t, Float16.IsHalf())
	assert.False(t, Int8.IsFloat())
	assert.Equal(t, Float16, FromGenericsType[float16.Float16]())
	assert.Equal(t, Float32, FromGenericsType[float32]())
}

func TestFloat16Conversions(t *testing.T) {
	values := []float32{0, 1, -2.5, 0.1, 65504}
	halves := make([]float16.Float16, len(values))
	FromFloat32(halves, values)
	back := make([]float32, len(values))
	ToFloat32(back, halves)
	for ii, v := range values {
		assert.InDelta(t, v, back[ii], 1e-3*float64(max(1, v)), "value #%d", ii)
	}
	assert.Panics(t, func() { ToFloat32(back[:1], halves) })
}
