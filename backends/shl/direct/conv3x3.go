// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package direct

import (
	"github.com/gomlx/shl/internal/workerspool"
)

// Conv3x3S1 is the dense 3x3, stride 1 convolution: kernel is [OutC][InC][3][3].
//
// The input channels are padded once, and the output channels are split across the pool. Each output plane
// starts from its bias and accumulates one input channel at a time, two rows per step.
func Conv3x3S1(pool *workerspool.Pool, input, output, kernel, bias []float32, g Geometry, fuseRelu bool) error {
	if err := g.check("Conv3x3S1", input, output, kernel, bias, 3, false); err != nil {
		return err
	}
	ph, pw := g.PaddedSize(3, 1)
	padded := make([]float32, g.InC*ph*pw)
	pool.ParallelFor(g.InC, 1, func(c0, c1 int) {
		for c := c0; c < c1; c++ {
			padPlaneInto(padded[c*ph*pw:(c+1)*ph*pw], input[c*g.InH*g.InW:(c+1)*g.InH*g.InW],
				g.InH, g.InW, g.PadTop, g.PadLeft, ph, pw)
		}
	})

	planeSize := g.OutH * g.OutW
	pool.ParallelFor(g.OutC, 1, func(oc0, oc1 int) {
		for oc := oc0; oc < oc1; oc++ {
			out := output[oc*planeSize : (oc+1)*planeSize]
			b := biasOf(bias, oc)
			for ii := range out {
				out[ii] = b
			}
			for ic := range g.InC {
				accumulate3x3S1(out, padded[ic*ph*pw:(ic+1)*ph*pw], pw, g.OutH, g.OutW,
					kernel[(oc*g.InC+ic)*9:(oc*g.InC+ic+1)*9])
			}
			if fuseRelu {
				for ii, v := range out {
					out[ii] = relu(v, true)
				}
			}
		}
	})
	return nil
}

// accumulate3x3S1 adds the 3x3 correlation of one padded input plane to out.
func accumulate3x3S1(out, padded []float32, pw, outH, outW int, w []float32) {
	w0, w1, w2 := w[0], w[1], w[2]
	w3, w4, w5 := w[3], w[4], w[5]
	w6, w7, w8 := w[6], w[7], w[8]
	y := 0
	for ; y+1 < outH; y += 2 {
		r0 := padded[y*pw : y*pw+outW+2]
		r1 := padded[(y+1)*pw : (y+1)*pw+outW+2]
		r2 := padded[(y+2)*pw : (y+2)*pw+outW+2]
		r3 := padded[(y+3)*pw : (y+3)*pw+outW+2]
		out0 := out[y*outW : (y+1)*outW]
		out1 := out[(y+1)*outW : (y+2)*outW]
		for x := range outW {
			out0[x] += w0*r0[x] + w1*r0[x+1] + w2*r0[x+2] +
				w3*r1[x] + w4*r1[x+1] + w5*r1[x+2] +
				w6*r2[x] + w7*r2[x+1] + w8*r2[x+2]
			out1[x] += w0*r1[x] + w1*r1[x+1] + w2*r1[x+2] +
				w3*r2[x] + w4*r2[x+1] + w5*r2[x+2] +
				w6*r3[x] + w7*r3[x+1] + w8*r3[x+2]
		}
	}
	if y < outH {
		r0 := padded[y*pw : y*pw+outW+2]
		r1 := padded[(y+1)*pw : (y+1)*pw+outW+2]
		r2 := padded[(y+2)*pw : (y+2)*pw+outW+2]
		out0 := out[y*outW : (y+1)*outW]
		for x := range outW {
			out0[x] += w0*r0[x] + w1*r0[x+1] + w2*r0[x+2] +
				w3*r1[x] + w4*r1[x+1] + w5*r1[x+2] +
				w6*r2[x] + w7*r2[x+1] + w8*r2[x+2]
		}
	}
}
