// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package direct implements sliding-window convolutions over zero-padded NCHW planes: the depthwise 3x3 and 5x5
// kernels (stride 1 and 2), and a dense 3x3 stride 1 kernel.
//
// Stride 1 kernels compute two output rows per step, sharing the input rows they have in common.
// All kernels add a per-channel bias and optionally clamp negative outputs to 0.
package direct

import (
	"github.com/gomlx/shl/internal/workerspool"
	"github.com/pkg/errors"
)

// Geometry describes the planes of one image for a direct convolution.
//
// The input plane is placed at (PadTop, PadLeft) of a zero plane large enough for every output position, so the
// bottom and right paddings are implied by OutH and OutW.
type Geometry struct {
	InC, InH, InW    int
	OutC, OutH, OutW int
	PadTop, PadLeft  int
}

// PaddedSize returns the padded plane size needed for a kernel of size k and the given stride.
func (g Geometry) PaddedSize(k, stride int) (ph, pw int) {
	return (g.OutH-1)*stride + k, (g.OutW-1)*stride + k
}

func (g Geometry) check(name string, input, output, kernel, bias []float32, k int, depthwise bool) error {
	if g.InC <= 0 || g.OutC <= 0 || g.InH <= 0 || g.InW <= 0 || g.OutH <= 0 || g.OutW <= 0 {
		return errors.Errorf("direct.%s: invalid geometry %+v", name, g)
	}
	if depthwise && g.InC != g.OutC {
		return errors.Errorf("direct.%s: depthwise convolution needs as many output channels as input channels, got %d and %d",
			name, g.OutC, g.InC)
	}
	if len(input) != g.InC*g.InH*g.InW {
		return errors.Errorf("direct.%s: input has %d values, expected %d", name, len(input), g.InC*g.InH*g.InW)
	}
	if len(output) != g.OutC*g.OutH*g.OutW {
		return errors.Errorf("direct.%s: output has %d values, expected %d", name, len(output), g.OutC*g.OutH*g.OutW)
	}
	kernelSize := g.OutC * k * k
	if !depthwise {
		kernelSize *= g.InC
	}
	if len(kernel) != kernelSize {
		return errors.Errorf("direct.%s: kernel has %d values, expected %d", name, len(kernel), kernelSize)
	}
	if bias != nil && len(bias) != g.OutC {
		return errors.Errorf("direct.%s: bias has %d values, expected %d", name, len(bias), g.OutC)
	}
	return nil
}

// PadPlane copies the h x w plane src into a zeroed ph x pw plane at (padTop, padLeft).
// Rows and columns of src that fall outside the padded plane are dropped.
func PadPlane(src []float32, h, w, padTop, padLeft, ph, pw int) []float32 {
	dst := make([]float32, ph*pw)
	padPlaneInto(dst, src, h, w, padTop, padLeft, ph, pw)
	return dst
}

// padPlaneInto is PadPlane writing to dst, which is cleared first.
func padPlaneInto(dst, src []float32, h, w, padTop, padLeft, ph, pw int) {
	clear(dst[:ph*pw])
	y0, y1 := max(0, -padTop), min(h, ph-padTop)
	x0, x1 := max(0, -padLeft), min(w, pw-padLeft)
	if y0 >= y1 || x0 >= x1 {
		return
	}
	for y := y0; y < y1; y++ {
		copy(dst[(y+padTop)*pw+x0+padLeft:(y+padTop)*pw+x1+padLeft], src[y*w+x0:y*w+x1])
	}
}

func biasOf(bias []float32, c int) float32 {
	if bias == nil {
		return 0
	}
	return bias[c]
}

func relu(v float32, fuseRelu bool) float32 {
	if fuseRelu && v < 0 {
		return 0
	}
	return v
}

// forEachChannel pads each input channel in [0, g.InC) and calls fn with the padded plane, split across the pool.
func forEachChannel(pool *workerspool.Pool, input []float32, g Geometry, ph, pw int, fn func(c int, padded []float32)) {
	pool.ParallelFor(g.InC, 1, func(c0, c1 int) {
		padded := make([]float32, ph*pw)
		for c := c0; c < c1; c++ {
			padPlaneInto(padded, input[c*g.InH*g.InW:(c+1)*g.InH*g.InW], g.InH, g.InW, g.PadTop, g.PadLeft, ph, pw)
			fn(c, padded)
		}
	})
}
