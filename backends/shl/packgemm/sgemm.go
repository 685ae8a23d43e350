// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package packgemm

import (
	"github.com/gomlx/exceptions"
	"github.com/gomlx/shl/internal/workerspool"
)

// SGEMM computes dst = A x B + bias, with A (m x k) packed by ReorderA into sa and B (k x n) packed by
// ReorderB into sb. Row i of dst starts at dst[i*ldc].
//
// bias has one value per row of A (per output channel); nil is the same as all zeros.
// If fuseRelu is set, negative results are clamped to 0.
//
// Each output starts from its bias and accumulates the products in increasing k, in float32.
func SGEMM(dst []float32, ldc int, sa, sb []float32, m, k, n int, bias []float32, fuseRelu bool) {
	if m <= 0 || n <= 0 {
		return
	}
	if bias == nil {
		bias = make([]float32, m)
	} else if len(bias) < m {
		exceptions.Panicf("packgemm.SGEMM: bias has %d elements, needs %d", len(bias), m)
	}
	if len(sa) < m*k || len(sb) < k*n || len(dst) < (m-1)*ldc+n {
		exceptions.Panicf("packgemm.SGEMM: buffers too small for m=%d, k=%d, n=%d, ldc=%d (len(sa)=%d, len(sb)=%d, len(dst)=%d)",
			m, k, n, ldc, len(sa), len(sb), len(dst))
	}
	sgemmRows(dst, ldc, sa, sb, m, k, n, bias, fuseRelu)
}

// SGEMMParallel is like SGEMM, but splits the rows of A, in multiples of 4, across the pool workers.
// A nil pool runs sequentially.
func SGEMMParallel(pool *workerspool.Pool, dst []float32, ldc int, sa, sb []float32, m, k, n int, bias []float32, fuseRelu bool) {
	if m <= 0 || n <= 0 {
		return
	}
	if bias == nil {
		bias = make([]float32, m)
	}
	numBlocks := (m + 3) / 4
	// Don't bother splitting tiny amounts of work.
	minBlocks := max(1, 4096/max(1, k*n))
	pool.ParallelFor(numBlocks, minBlocks, func(startBlock, endBlock int) {
		r0 := startBlock * 4
		r1 := min(endBlock*4, m)
		// Only the last chunk can hold the 2/1-row tails, and since r0 is a multiple of 4 the
		// packing of rows [r0, r1) is the packing of a (r1-r0) x k matrix starting at sa[r0*k].
		SGEMM(dst[r0*ldc:], ldc, sa[r0*k:], sb, r1-r0, k, n, bias[r0:], fuseRelu)
	})
}

// sgemmRows decomposes m into 4-row panels, then a 2-row and a 1-row tail.
func sgemmRows(dst []float32, ldc int, sa, sb []float32, m, k, n int, bias []float32, fuseRelu bool) {
	row := 0
	for ; row+3 < m; row += 4 {
		kernelRows(dst[row*ldc:], ldc, sa[row*k:], 4, sb, k, n, bias[row:row+4], fuseRelu)
	}
	switch m - row {
	case 3:
		kernelRows(dst[row*ldc:], ldc, sa[row*k:], 2, sb, k, n, bias[row:row+2], fuseRelu)
		row += 2
		kernelRows(dst[row*ldc:], ldc, sa[row*k:], 1, sb, k, n, bias[row:row+1], fuseRelu)
	case 2:
		kernelRows(dst[row*ldc:], ldc, sa[row*k:], 2, sb, k, n, bias[row:row+2], fuseRelu)
	case 1:
		kernelRows(dst[row*ldc:], ldc, sa[row*k:], 1, sb, k, n, bias[row:row+1], fuseRelu)
	}
}

// kernelRows runs the mr-rows micro-kernel (mr = 4, 2 or 1) over every column panel of sb.
func kernelRows(dst []float32, ldc int, pa []float32, mr int, sb []float32, k, n int, bias []float32, fuseRelu bool) {
	pa = pa[:mr*k]
	col := 0
	if mr == 4 {
		for ; col+3 < n; col += 4 {
			tileM4N4(dst[col:], ldc, pa, sb[col*k:col*k+4*k], k, bias, fuseRelu)
		}
	} else {
		for ; col+3 < n; col += 4 {
			tile(dst[col:], ldc, pa, mr, sb[col*k:col*k+4*k], 4, k, bias, fuseRelu)
		}
	}
	if col+1 < n {
		tile(dst[col:], ldc, pa, mr, sb[col*k:col*k+2*k], 2, k, bias, fuseRelu)
		col += 2
	}
	if col < n {
		tile(dst[col:], ldc, pa, mr, sb[col*k:col*k+k], 1, k, bias, fuseRelu)
	}
}

// tileM4N4 is the main register tile: 4 rows of A times 4 columns of B, 16 accumulators.
// The reduction is unrolled by 8, then 4, 2 and 1.
func tileM4N4(dst []float32, ldc int, pa, pb []float32, k int, bias []float32, fuseRelu bool) {
	var acc [4][4]float32
	for i := range 4 {
		acc[i] = [4]float32{bias[i], bias[i], bias[i], bias[i]}
	}
	p := 0
	for ; p+7 < k; p += 8 {
		m4n4Steps(&acc, pa[p*4:(p+8)*4], pb[p*4:(p+8)*4], 8)
	}
	// The remaining k % 8 steps take at most one each of 4, 2 and 1.
	for _, step := range [3]int{4, 2, 1} {
		if p+step <= k {
			m4n4Steps(&acc, pa[p*4:(p+step)*4], pb[p*4:(p+step)*4], step)
			p += step
		}
	}
	storeTile(dst, ldc, acc[:], 4, 4, fuseRelu)
}

// m4n4Steps accumulates steps consecutive rank-1 updates into acc.
func m4n4Steps(acc *[4][4]float32, pa, pb []float32, steps int) {
	for s := range steps {
		a := (*[4]float32)(pa[s*4 : s*4+4])
		b := (*[4]float32)(pb[s*4 : s*4+4])
		acc[0][0] += a[0] * b[0]
		acc[0][1] += a[0] * b[1]
		acc[0][2] += a[0] * b[2]
		acc[0][3] += a[0] * b[3]
		acc[1][0] += a[1] * b[0]
		acc[1][1] += a[1] * b[1]
		acc[1][2] += a[1] * b[2]
		acc[1][3] += a[1] * b[3]
		acc[2][0] += a[2] * b[0]
		acc[2][1] += a[2] * b[1]
		acc[2][2] += a[2] * b[2]
		acc[2][3] += a[2] * b[3]
		acc[3][0] += a[3] * b[0]
		acc[3][1] += a[3] * b[1]
		acc[3][2] += a[3] * b[2]
		acc[3][3] += a[3] * b[3]
	}
}

// tile is the generic micro-kernel for an mr x nr tile (both at most 4), used for the tails.
func tile(dst []float32, ldc int, pa []float32, mr int, pb []float32, nr int, k int, bias []float32, fuseRelu bool) {
	var acc [4][4]float32
	for i := range mr {
		for j := range nr {
			acc[i][j] = bias[i]
		}
	}
	for p := range k {
		a := pa[p*mr : p*mr+mr]
		b := pb[p*nr : p*nr+nr]
		for i, av := range a {
			for j, bv := range b {
				acc[i][j] += av * bv
			}
		}
	}
	storeTile(dst, ldc, acc[:], mr, nr, fuseRelu)
}

func storeTile(dst []float32, ldc int, acc [][4]float32, mr, nr int, fuseRelu bool) {
	for i := range mr {
		out := dst[i*ldc : i*ldc+nr]
		for j := range out {
			v := acc[i][j]
			if fuseRelu && v < 0 {
				v = 0
			}
			out[j] = v
		}
	}
}
