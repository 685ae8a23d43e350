// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package tensors

import (
	"testing"

	"github.com/gomlx/shl/pkg/core/dtypes"
	"github.com/gomlx/shl/pkg/core/shapes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/x448/float16"
)

func TestFromFlatDataAndDimensions(t *testing.T) {
	data := []float32{1, 2, 3, 4, 5, 6}
	tensor, err := FromFlatDataAndDimensions(shapes.LayoutNCHW, data, 1, 1, 2, 3)
	require.NoError(t, err)
	assert.Equal(t, dtypes.Float32, tensor.DType())
	assert.Equal(t, []int{1, 1, 2, 3}, tensor.Dims())
	assert.Equal(t, shapes.LayoutNCHW, tensor.Layout())

	// Borrowed: writes are visible in the caller's slice.
	tensor.Flat32()[0] = 100
	assert.Equal(t, float32(100), data[0])

	_, err = FromFlatDataAndDimensions(shapes.LayoutNCHW, data, 1, 1, 2, 2)
	require.Error(t, err)

	// Wrong accessor type.
	assert.Panics(t, func() { _ = tensor.FlatFloat16() })
}

func TestFloat16Tensors(t *testing.T) {
	tensor, err := FromFloat32(dtypes.Float16, shapes.LayoutRowMajor, []float32{0.5, -1, 2}, 3)
	require.NoError(t, err)
	assert.Equal(t, dtypes.Float16, tensor.DType())
	assert.Equal(t, float16.Fromfloat32(-1), tensor.FlatFloat16()[1])

	values, err := tensor.AsFloat32()
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5, -1, 2}, values)

	clone := tensor.Clone()
	require.NoError(t, clone.SetFromFloat32([]float32{1, 1, 1}))
	assert.Equal(t, float16.Fromfloat32(0.5), tensor.FlatFloat16()[0])
	assert.False(t, clone.SameData(tensor))
	assert.True(t, tensor.SameData(tensor))

	_, err = FromFloat32(dtypes.Int32, shapes.LayoutRowMajor, []float32{1}, 1)
	require.Error(t, err)
}

func TestFromShape(t *testing.T) {
	tensor := FromShape(shapes.LayoutOIHW, shapes.Make(dtypes.Float32, 4, 2, 3, 3))
	assert.Len(t, tensor.Flat32(), 72)
	assert.Equal(t, "TensorOIHW{(Float32)[4 2 3 3]}", tensor.String())

	view, err := FromFlatDataAndDimensions(shapes.LayoutOIHW, tensor.Flat32(), 4, 2, 3, 3)
	require.NoError(t, err)
	assert.True(t, view.SameData(tensor))
}
