// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package conv

import (
	"github.com/gomlx/shl/backends/shl/packgemm"
	"github.com/gomlx/shl/internal/workerspool"
)

// packGEMMWeights packs each group of the [OutC][InC/group][KernelH][KernelW] kernel as the A operand of the
// GEMM: (OutC/group) x (InC/group * KernelH * KernelW). Group g starts at g * (OutC/group) * k.
func packGEMMWeights(kernel []float32, d Dims, group int) []float32 {
	m := d.OutC / group
	k := (d.InC / group) * d.KernelH * d.KernelW
	packed := make([]float32, len(kernel))
	for g := range group {
		packgemm.ReorderA(kernel[g*m*k:(g+1)*m*k], k, packed[g*m*k:(g+1)*m*k], m, k)
	}
	return packed
}

// gemm1x1 runs a 1x1, stride 1, unpadded convolution of one image: per group the input channels already are
// the k x n B operand (n = H*W).
func gemm1x1(pool *workerspool.Pool, input, output, packedA, bias []float32, d Dims, p Params) {
	m, k, n := d.OutC/p.Group, d.InC/p.Group, d.OutH*d.OutW
	sb := make([]float32, packgemm.PackedSize(k, n))
	for g := range p.Group {
		packgemm.ReorderB(input[g*k*n:(g+1)*k*n], n, sb, k, n)
		packgemm.SGEMMParallel(pool, output[g*m*n:(g+1)*m*n], n, packedA[g*m*k:(g+1)*m*k], sb, m, k, n,
			groupBias(bias, g, m), p.FuseRelu)
	}
}

// gemmIm2col runs the general convolution of one image: per group the input is unrolled into the
// (InC/group * KernelH * KernelW) x (OutH * OutW) im2col matrix, packed, and multiplied by the packed kernel.
func gemmIm2col(pool *workerspool.Pool, input, output, packedA, bias []float32, d Dims, p Params) {
	icPerGroup := d.InC / p.Group
	m, k, n := d.OutC/p.Group, icPerGroup*d.KernelH*d.KernelW, d.OutH*d.OutW
	cols := make([]float32, k*n)
	sb := make([]float32, packgemm.PackedSize(k, n))
	for g := range p.Group {
		groupInput := input[g*icPerGroup*d.InH*d.InW : (g+1)*icPerGroup*d.InH*d.InW]
		pool.ParallelFor(icPerGroup, 1, func(ic0, ic1 int) {
			im2col(groupInput, cols, d, p, ic0, ic1)
		})
		packgemm.ReorderB(cols, n, sb, k, n)
		packgemm.SGEMMParallel(pool, output[g*m*n:(g+1)*m*n], n, packedA[g*m*k:(g+1)*m*k], sb, m, k, n,
			groupBias(bias, g, m), p.FuseRelu)
	}
}

// im2col fills the rows of the input channels [ic0, ic1): row (ic*KernelH + ky)*KernelW + kx holds, for
// every output position, the input value under kernel tap (ky, kx), or 0 in the padding.
func im2col(input, cols []float32, d Dims, p Params, ic0, ic1 int) {
	n := d.OutH * d.OutW
	for ic := ic0; ic < ic1; ic++ {
		plane := input[ic*d.InH*d.InW : (ic+1)*d.InH*d.InW]
		for ky := range d.KernelH {
			for kx := range d.KernelW {
				row := cols[((ic*d.KernelH+ky)*d.KernelW+kx)*n:][:n]
				for y := range d.OutH {
					out := row[y*d.OutW : (y+1)*d.OutW]
					iy := y*p.StrideH - p.PadTop + ky*p.DilationH
					if iy < 0 || iy >= d.InH {
						clear(out)
						continue
					}
					inRow := plane[iy*d.InW : (iy+1)*d.InW]
					ix := kx*p.DilationW - p.PadLeft
					for x := range out {
						if ix >= 0 && ix < d.InW {
							out[x] = inRow[ix]
						} else {
							out[x] = 0
						}
						ix += p.StrideW
					}
				}
			}
		}
	}
}

func groupBias(bias []float32, g, m int) []float32 {
	if bias == nil {
		return nil
	}
	return bias[g*m : (g+1)*m]
}
