// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package matmul_test

import (
	"fmt"
	"math/rand/v2"
	"testing"

	"github.com/gomlx/shl/backends/shl/matmul"
	"github.com/gomlx/shl/internal/workerspool"
	"github.com/gomlx/shl/pkg/core/dtypes"
	"github.com/gomlx/shl/pkg/core/shapes"
	"github.com/gomlx/shl/pkg/core/tensors"
	"github.com/gomlx/shl/pkg/support/xslices"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func randomTensor(t *testing.T, rng *rand.Rand, dtype dtypes.DType, dims ...int) *tensors.Tensor {
	size := 1
	for _, dim := range dims {
		size *= dim
	}
	values := make([]float32, size)
	for ii := range values {
		values[ii] = rng.Float32()*2 - 1
	}
	tensor, err := tensors.FromFloat32(dtype, shapes.LayoutRowMajor, values, dims...)
	require.NoError(t, err)
	return tensor
}

// matrices returns the batches of tensor as gonum matrices, transposing the last two axes if requested.
func matrices(t *testing.T, tensor *tensors.Tensor, transposed bool) []mat.Matrix {
	values, err := tensor.AsFloat32()
	require.NoError(t, err)
	dims := tensor.Dims()
	rows, cols := dims[len(dims)-2], dims[len(dims)-1]
	var result []mat.Matrix
	for start := 0; start < len(values); start += rows * cols {
		batch := xslices.Map(values[start:start+rows*cols], func(v float32) float64 { return float64(v) })
		var m mat.Matrix = mat.NewDense(rows, cols, batch)
		if transposed {
			m = m.T()
		}
		result = append(result, m)
	}
	return result
}

func expected(t *testing.T, a, b *tensors.Tensor, transA, transB bool) []float32 {
	as, bs := matrices(t, a, transA), matrices(t, b, transB)
	var want []float32
	for ii, am := range as {
		bm := bs[0]
		if len(bs) > 1 {
			bm = bs[ii]
		}
		var c mat.Dense
		c.Mul(am, bm)
		rows, cols := c.Dims()
		for i := range rows {
			for j := range cols {
				want = append(want, float32(c.At(i, j)))
			}
		}
	}
	return want
}

func TestMatMul(t *testing.T) {
	rng := rand.New(rand.NewPCG(20, 21))
	testCases := []struct {
		aDims, bDims, outDims []int
		transA, transB        bool
	}{
		{[]int{5, 7}, []int{7, 3}, []int{5, 3}, false, false},
		{[]int{2, 3, 9, 6}, []int{2, 3, 6, 10}, []int{2, 3, 9, 10}, false, false},
		{[]int{4, 6, 5}, []int{5, 7}, []int{4, 6, 7}, false, false},
		{[]int{3, 7, 5}, []int{1, 5, 2}, []int{3, 7, 2}, false, false},
		{[]int{7, 5}, []int{7, 3}, []int{5, 3}, true, false},
		{[]int{5, 7}, []int{3, 7}, []int{5, 3}, false, true},
		{[]int{2, 7, 5}, []int{2, 3, 7}, []int{2, 5, 3}, true, true},
	}
	for _, tc := range testCases {
		for _, constantB := range []bool{false, true} {
			name := fmt.Sprintf("%v(T=%v)x%v(T=%v)/const=%v", tc.aDims, tc.transA, tc.bDims, tc.transB, constantB)
			t.Run(name, func(t *testing.T) {
				a := randomTensor(t, rng, dtypes.Float32, tc.aDims...)
				b := randomTensor(t, rng, dtypes.Float32, tc.bDims...)
				output := tensors.FromShape(shapes.LayoutRowMajor, shapes.Make(dtypes.Float32, tc.outDims...))
				op := matmul.New(tc.transA, tc.transB, matmul.Options{Pool: workerspool.NewWithParallelism(2)})
				require.NoError(t, op.Init(a, b, output, constantB))
				require.NoError(t, op.Run(a, b, output))
				require.NoError(t, xslices.SlicesInRelData(output.Flat32(), expected(t, a, b, tc.transA, tc.transB), 1e-5))
			})
		}
	}
}

func TestMatMulConstantB(t *testing.T) {
	// With a constant right-hand side, later changes to b are not seen by Run.
	rng := rand.New(rand.NewPCG(22, 23))
	a := randomTensor(t, rng, dtypes.Float32, 4, 6)
	b := randomTensor(t, rng, dtypes.Float32, 6, 5)
	want := expected(t, a, b, false, false)
	output := tensors.FromShape(shapes.LayoutRowMajor, shapes.Make(dtypes.Float32, 4, 5))
	op := matmul.New(false, false, matmul.Options{})
	require.NoError(t, op.Init(a, b, output, true))
	xslices.FillSlice(b.Flat32(), 0)
	require.NoError(t, op.Run(a, b, output))
	require.NoError(t, xslices.SlicesInRelData(output.Flat32(), want, 1e-5))
}

func TestMatMulFloat16(t *testing.T) {
	rng := rand.New(rand.NewPCG(24, 25))
	a := randomTensor(t, rng, dtypes.Float16, 3, 9, 8)
	b := randomTensor(t, rng, dtypes.Float16, 8, 4)
	output := tensors.FromShape(shapes.LayoutRowMajor, shapes.Make(dtypes.Float16, 3, 9, 4))
	op := matmul.New(false, false, matmul.Options{})
	require.NoError(t, op.Init(a, b, output, false))
	require.NoError(t, op.Run(a, b, output))
	got, err := output.AsFloat32()
	require.NoError(t, err)
	require.NoError(t, xslices.SlicesInRelData(got, expected(t, a, b, false, false), 3e-3))

	// Transposes are rejected for float16.
	for _, trans := range [][2]bool{{true, false}, {false, true}} {
		err := matmul.New(trans[0], trans[1], matmul.Options{}).Init(a, b, output, false)
		require.ErrorIs(t, err, matmul.ErrUnsupportedTranspose)
	}
}

func TestMatMulErrors(t *testing.T) {
	rng := rand.New(rand.NewPCG(26, 27))
	f32 := dtypes.Float32
	newOutput := func(dims ...int) *tensors.Tensor {
		return tensors.FromShape(shapes.LayoutRowMajor, shapes.Make(f32, dims...))
	}

	// batchA == 1 and batchB > 1 is not supported.
	err := matmul.New(false, false, matmul.Options{}).Init(
		randomTensor(t, rng, f32, 1, 4, 5), randomTensor(t, rng, f32, 3, 5, 2), newOutput(1, 4, 2), false)
	require.ErrorIs(t, err, matmul.ErrUnsupportedBroadcast)

	// Different batch sizes.
	err = matmul.New(false, false, matmul.Options{}).Init(
		randomTensor(t, rng, f32, 3, 4, 5), randomTensor(t, rng, f32, 2, 5, 2), newOutput(3, 4, 2), false)
	require.ErrorIs(t, err, matmul.ErrUnsupportedBroadcast)

	// Contracting dimensions.
	err = matmul.New(false, false, matmul.Options{}).Init(
		randomTensor(t, rng, f32, 4, 5), randomTensor(t, rng, f32, 4, 2), newOutput(4, 2), false)
	require.ErrorIs(t, err, matmul.ErrShapeMismatch)

	// Output shape.
	err = matmul.New(false, false, matmul.Options{}).Init(
		randomTensor(t, rng, f32, 4, 5), randomTensor(t, rng, f32, 5, 2), newOutput(4, 3), false)
	require.ErrorIs(t, err, matmul.ErrShapeMismatch)

	// Run before Init.
	a, b := randomTensor(t, rng, f32, 4, 5), randomTensor(t, rng, f32, 5, 2)
	op := matmul.New(false, false, matmul.Options{})
	require.ErrorIs(t, op.Run(a, b, newOutput(4, 2)), matmul.ErrNotInitialized)
	require.NoError(t, op.Init(a, b, newOutput(4, 2), false))
	m, k, n := op.Dims()
	assert.Equal(t, []int{4, 5, 2}, []int{m, k, n})
	require.ErrorIs(t, op.Run(randomTensor(t, rng, f32, 4, 6), b, newOutput(4, 2)), matmul.ErrShapeMismatch)
}
