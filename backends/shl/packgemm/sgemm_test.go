// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package packgemm_test

import (
	"fmt"
	"math/rand/v2"
	"testing"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/shl/backends/shl/packgemm"
	"github.com/gomlx/shl/internal/workerspool"
	"github.com/gomlx/shl/pkg/support/xslices"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func randomMatrix(rng *rand.Rand, size int) []float32 {
	values := make([]float32, size)
	for ii := range values {
		values[ii] = rng.Float32()*2 - 1
	}
	return values
}

// referenceGEMM uses gonum (float64) as an independent oracle: a x b + bias.
func referenceGEMM(a, b, bias []float32, m, k, n int, fuseRelu bool) []float32 {
	toF64 := func(v float32) float64 { return float64(v) }
	want := make([]float32, m*n)
	if k > 0 {
		var c mat.Dense
		c.Mul(mat.NewDense(m, k, xslices.Map(a, toF64)), mat.NewDense(k, n, xslices.Map(b, toF64)))
		for i := range m {
			for j := range n {
				want[i*n+j] = float32(c.At(i, j))
			}
		}
	}
	for i := range m {
		for j := range n {
			if bias != nil {
				want[i*n+j] += bias[i]
			}
			if fuseRelu && want[i*n+j] < 0 {
				want[i*n+j] = 0
			}
		}
	}
	return want
}

func packAndMultiply(a, b, bias []float32, m, k, n int, fuseRelu bool) []float32 {
	sa := make([]float32, packgemm.PackedSize(m, k))
	sb := make([]float32, packgemm.PackedSize(k, n))
	packgemm.ReorderA(a, k, sa, m, k)
	packgemm.ReorderB(b, n, sb, k, n)
	dst := make([]float32, m*n)
	packgemm.SGEMM(dst, n, sa, sb, m, k, n, bias, fuseRelu)
	return dst
}

func TestSGEMM(t *testing.T) {
	rng := rand.New(rand.NewPCG(42, 7))
	testCases := [][3]int{
		{1, 1, 1}, {5, 7, 3}, {4, 4, 4}, {3, 9, 2}, {2, 1, 5}, {8, 16, 8},
		{13, 17, 11}, {16, 144, 36}, {7, 8, 6}, {6, 15, 9},
	}
	for _, tc := range testCases {
		m, k, n := tc[0], tc[1], tc[2]
		t.Run(fmt.Sprintf("m=%d,k=%d,n=%d", m, k, n), func(t *testing.T) {
			a := randomMatrix(rng, m*k)
			b := randomMatrix(rng, k*n)
			bias := randomMatrix(rng, m)

			got := packAndMultiply(a, b, bias, m, k, n, false)
			require.NoError(t, xslices.SlicesInRelData(got, referenceGEMM(a, b, bias, m, k, n, false), 1e-5))

			// Nil bias is a zero bias.
			got = packAndMultiply(a, b, nil, m, k, n, false)
			require.NoError(t, xslices.SlicesInRelData(got, referenceGEMM(a, b, nil, m, k, n, false), 1e-5))
		})
	}
}

func TestSGEMMFusedRelu(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	var numNegatives int
	for _, tc := range [][3]int{{5, 7, 3}, {9, 20, 13}, {1, 3, 1}} {
		m, k, n := tc[0], tc[1], tc[2]
		a := randomMatrix(rng, m*k)
		b := randomMatrix(rng, k*n)
		bias := randomMatrix(rng, m)
		// Row 0 is pushed below zero, so every shape (including a single output) is clamped somewhere.
		bias[0] = -10
		plain := packAndMultiply(a, b, bias, m, k, n, false)
		fused := packAndMultiply(a, b, bias, m, k, n, true)
		caseNegatives := 0
		for ii, v := range plain {
			if v < 0 {
				caseNegatives++
				v = 0
			}
			assert.Equal(t, v, fused[ii], "m=%d,k=%d,n=%d: element %d", m, k, n, ii)
		}
		assert.Positive(t, caseNegatives, "m=%d,k=%d,n=%d: no output was clamped", m, k, n)
		numNegatives += caseNegatives
	}
	assert.Greater(t, numNegatives, 3)
}

func TestSGEMMStride(t *testing.T) {
	// Write into a wider output (ldc > n): columns beyond n must be left untouched.
	m, k, n, ldc := 6, 5, 3, 8
	rng := rand.New(rand.NewPCG(3, 4))
	a := randomMatrix(rng, m*k)
	b := randomMatrix(rng, k*n)
	sa := make([]float32, m*k)
	sb := make([]float32, k*n)
	packgemm.ReorderA(a, k, sa, m, k)
	packgemm.ReorderB(b, n, sb, k, n)
	dst := xslices.SliceWithValue(m*ldc, float32(-7))
	packgemm.SGEMM(dst, ldc, sa, sb, m, k, n, nil, false)
	want := referenceGEMM(a, b, nil, m, k, n, false)
	for i := range m {
		require.NoError(t, xslices.SlicesInRelData(dst[i*ldc:i*ldc+n], want[i*n:(i+1)*n], 1e-5))
		for j := n; j < ldc; j++ {
			require.Equal(t, float32(-7), dst[i*ldc+j])
		}
	}
}

func TestSGEMMParallel(t *testing.T) {
	rng := rand.New(rand.NewPCG(5, 6))
	pool := workerspool.NewWithParallelism(4)
	for _, m := range []int{1, 4, 15, 33, 64} {
		k, n := 37, 29
		a := randomMatrix(rng, m*k)
		b := randomMatrix(rng, k*n)
		bias := randomMatrix(rng, m)
		sa := make([]float32, m*k)
		sb := make([]float32, k*n)
		packgemm.ReorderA(a, k, sa, m, k)
		packgemm.ReorderB(b, n, sb, k, n)

		sequential := make([]float32, m*n)
		packgemm.SGEMM(sequential, n, sa, sb, m, k, n, bias, true)
		parallel := make([]float32, m*n)
		packgemm.SGEMMParallel(pool, parallel, n, sa, sb, m, k, n, bias, true)
		// Same tiling, same accumulation order: results must be bit-identical.
		require.Equal(t, sequential, parallel, "m=%d", m)
	}
}

func TestSGEMMParallelPanicIsCaught(t *testing.T) {
	// A too short packed B makes every row block fail, including the ones running on pool workers: the
	// failure must surface on the calling goroutine.
	pool := workerspool.NewWithParallelism(4)
	m, k, n := 64, 64, 64
	sa := make([]float32, m*k)
	sb := make([]float32, k*n-1)
	dst := make([]float32, m*n)
	err := exceptions.TryCatch[error](func() {
		packgemm.SGEMMParallel(pool, dst, n, sa, sb, m, k, n, nil, false)
	})
	require.Error(t, err)
}
