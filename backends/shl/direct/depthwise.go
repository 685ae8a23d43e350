// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package direct

import (
	"github.com/gomlx/shl/internal/workerspool"
)

// Depthwise3x3S1 convolves each channel with its own 3x3 kernel ([C][1][3][3]), stride 1.
func Depthwise3x3S1(pool *workerspool.Pool, input, output, kernel, bias []float32, g Geometry, fuseRelu bool) error {
	if err := g.check("Depthwise3x3S1", input, output, kernel, bias, 3, true); err != nil {
		return err
	}
	ph, pw := g.PaddedSize(3, 1)
	forEachChannel(pool, input, g, ph, pw, func(c int, padded []float32) {
		depthwise3x3S1Plane(output[c*g.OutH*g.OutW:(c+1)*g.OutH*g.OutW], padded, pw, g.OutH, g.OutW,
			kernel[c*9:(c+1)*9], biasOf(bias, c), fuseRelu)
	})
	return nil
}

// Depthwise3x3S2 convolves each channel with its own 3x3 kernel ([C][1][3][3]), stride 2.
func Depthwise3x3S2(pool *workerspool.Pool, input, output, kernel, bias []float32, g Geometry, fuseRelu bool) error {
	if err := g.check("Depthwise3x3S2", input, output, kernel, bias, 3, true); err != nil {
		return err
	}
	ph, pw := g.PaddedSize(3, 2)
	forEachChannel(pool, input, g, ph, pw, func(c int, padded []float32) {
		depthwiseS2Plane(output[c*g.OutH*g.OutW:(c+1)*g.OutH*g.OutW], padded, pw, g.OutH, g.OutW,
			kernel[c*9:(c+1)*9], 3, biasOf(bias, c), fuseRelu)
	})
	return nil
}

// Depthwise5x5S1 convolves each channel with its own 5x5 kernel ([C][1][5][5]), stride 1.
func Depthwise5x5S1(pool *workerspool.Pool, input, output, kernel, bias []float32, g Geometry, fuseRelu bool) error {
	if err := g.check("Depthwise5x5S1", input, output, kernel, bias, 5, true); err != nil {
		return err
	}
	ph, pw := g.PaddedSize(5, 1)
	forEachChannel(pool, input, g, ph, pw, func(c int, padded []float32) {
		depthwiseS1Plane(output[c*g.OutH*g.OutW:(c+1)*g.OutH*g.OutW], padded, pw, g.OutH, g.OutW,
			kernel[c*25:(c+1)*25], 5, biasOf(bias, c), fuseRelu)
	})
	return nil
}

// Depthwise5x5S2 convolves each channel with its own 5x5 kernel ([C][1][5][5]), stride 2.
func Depthwise5x5S2(pool *workerspool.Pool, input, output, kernel, bias []float32, g Geometry, fuseRelu bool) error {
	if err := g.check("Depthwise5x5S2", input, output, kernel, bias, 5, true); err != nil {
		return err
	}
	ph, pw := g.PaddedSize(5, 2)
	forEachChannel(pool, input, g, ph, pw, func(c int, padded []float32) {
		depthwiseS2Plane(output[c*g.OutH*g.OutW:(c+1)*g.OutH*g.OutW], padded, pw, g.OutH, g.OutW,
			kernel[c*25:(c+1)*25], 5, biasOf(bias, c), fuseRelu)
	})
	return nil
}

// depthwise3x3S1Plane keeps the 9 weights in locals and computes two output rows from four input rows.
func depthwise3x3S1Plane(out, padded []float32, pw, outH, outW int, w []float32, bias float32, fuseRelu bool) {
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
			s0 := bias + w0*r0[x] + w1*r0[x+1] + w2*r0[x+2] +
				w3*r1[x] + w4*r1[x+1] + w5*r1[x+2] +
				w6*r2[x] + w7*r2[x+1] + w8*r2[x+2]
			s1 := bias + w0*r1[x] + w1*r1[x+1] + w2*r1[x+2] +
				w3*r2[x] + w4*r2[x+1] + w5*r2[x+2] +
				w6*r3[x] + w7*r3[x+1] + w8*r3[x+2]
			out0[x] = relu(s0, fuseRelu)
			out1[x] = relu(s1, fuseRelu)
		}
	}
	if y < outH {
		r0 := padded[y*pw : y*pw+outW+2]
		r1 := padded[(y+1)*pw : (y+1)*pw+outW+2]
		r2 := padded[(y+2)*pw : (y+2)*pw+outW+2]
		out0 := out[y*outW : (y+1)*outW]
		for x := range outW {
			s0 := bias + w0*r0[x] + w1*r0[x+1] + w2*r0[x+2] +
				w3*r1[x] + w4*r1[x+1] + w5*r1[x+2] +
				w6*r2[x] + w7*r2[x+1] + w8*r2[x+2]
			out0[x] = relu(s0, fuseRelu)
		}
	}
}

// depthwiseS1Plane is the k x k, stride 1 plane kernel, two output rows at a time.
func depthwiseS1Plane(out, padded []float32, pw, outH, outW int, w []float32, k int, bias float32, fuseRelu bool) {
	y := 0
	for ; y+1 < outH; y += 2 {
		out0 := out[y*outW : (y+1)*outW]
		out1 := out[(y+1)*outW : (y+2)*outW]
		for x := range outW {
			s0, s1 := bias, bias
			for ky := range k {
				wr := w[ky*k : (ky+1)*k]
				rowA := padded[(y+ky)*pw+x : (y+ky)*pw+x+k]
				rowB := padded[(y+ky+1)*pw+x : (y+ky+1)*pw+x+k]
				for kx, wv := range wr {
					s0 += wv * rowA[kx]
					s1 += wv * rowB[kx]
				}
			}
			out0[x] = relu(s0, fuseRelu)
			out1[x] = relu(s1, fuseRelu)
		}
	}
	if y < outH {
		out0 := out[y*outW : (y+1)*outW]
		for x := range outW {
			s0 := bias
			for ky := range k {
				wr := w[ky*k : (ky+1)*k]
				row := padded[(y+ky)*pw+x : (y+ky)*pw+x+k]
				for kx, wv := range wr {
					s0 += wv * row[kx]
				}
			}
			out0[x] = relu(s0, fuseRelu)
		}
	}
}

// depthwiseS2Plane is the k x k, stride 2 plane kernel.
func depthwiseS2Plane(out, padded []float32, pw, outH, outW int, w []float32, k int, bias float32, fuseRelu bool) {
	for y := range outH {
		out0 := out[y*outW : (y+1)*outW]
		for x := range outW {
			s := bias
			for ky := range k {
				wr := w[ky*k : (ky+1)*k]
				row := padded[(2*y+ky)*pw+2*x : (2*y+ky)*pw+2*x+k]
				for kx, wv := range wr {
					s += wv * row[kx]
				}
			}
			out0[x] = relu(s, fuseRelu)
		}
	}
}
