// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package packgemm implements the packed single-precision GEMM used by the SHL convolution and matmul
// kernels: C[m,n] = A[m,k] x B[k,n] + bias[m], with an optional fused ReLU.
//
// The stationary operand A (usually the convolution weights) is packed once with ReorderA, and the streamed
// operand B (the im2col'ed input, or the input itself for 1x1 convolutions) is packed per call with ReorderB.
// Both packings decompose their cross dimension in panels of 4, then 2, then 1, and the micro-kernels in
// SGEMM mirror that decomposition exactly: a 4-row panel of A is consumed by the m4 kernel, a 2-row panel by
// the m2 kernel, a single row by the m1 kernel, and likewise for the n4/n2/n1 column tiles of B.
//
// A panel of P rows (or columns) that starts at row (column) r0 occupies the contiguous range
// [r0*k, (r0+P)*k) of the packed buffer, stored as [k][P]. There is no zero padding, so packed buffers
// have exactly the same number of elements as the original matrices.
package packgemm

// PanelSizes used for the m and n decompositions, from the largest to the smallest.
var PanelSizes = [3]int{4, 2, 1}

// PackedSize returns the number of elements needed to pack a rows x cols matrix.
func PackedSize(rows, cols int) int {
	return rows * cols
}

// PanelWidth returns the width of the panel that starts at offset start (a panel boundary) of a dimension
// of size total: 4 while at least 4 elements remain, then 2, then 1.
func PanelWidth(start, total int) int {
	remaining := total - start
	for _, width := range PanelSizes {
		if remaining >= width {
			return width
		}
	}
	return 0
}
