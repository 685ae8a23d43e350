// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package shapes

import (
	"testing"

	"github.com/gomlx/shl/pkg/core/dtypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShape(t *testing.T) {
	shape0 := Make(dtypes.Float32, 1, 16, 34, 34)
	assert.Equal(t, 4, shape0.Rank())
	assert.Equal(t, 16*34*34, shape0.Size())
	assert.Equal(t, uintptr(4*16*34*34), shape0.Memory())
	assert.Equal(t, 34, shape0.Dim(-1))
	assert.Equal(t, 16, shape0.Dim(1))
	assert.Panics(t, func() { _ = shape0.Dim(4) })
	assert.Equal(t, "(Float32)[1 16 34 34]", shape0.String())

	shape1 := shape0.Clone()
	shape1.Dimensions[1] = 15
	assert.Equal(t, 16, shape0.Dim(1))
	assert.False(t, shape0.Equal(shape1))

	shape2 := Make(dtypes.Float16, 1, 16, 34, 34)
	assert.False(t, shape0.Equal(shape2))
	require.Equal(t, shape0.Dimensions, shape2.Dimensions)

	assert.Panics(t, func() { _ = Make(dtypes.Float32, 3, 0) })
}

func TestLayout(t *testing.T) {
	assert.Equal(t, "NCHW", LayoutNCHW.String())
	assert.Equal(t, "OIHW", LayoutOIHW.String())
	assert.Equal(t, "Layout(7)", Layout(7).String())
}
