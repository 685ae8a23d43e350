// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package conv

import (
	"github.com/gomlx/shl/internal/workerspool"
	"golang.org/x/exp/constraints"
)

// Reference is the straightforward convolution of one NCHW image, for any float type: it supports every
// stride, dilation, padding and group. kernel is [OutC][InC/group][KernelH][KernelW], and bias is nil or has
// OutC values.
//
// The output channels are split across the pool, which may be nil.
func Reference[T constraints.Float](pool *workerspool.Pool, input, output, kernel, bias []T, d Dims, p Params) {
	p = p.normalized()
	icPerGroup := d.InC / p.Group
	ocPerGroup := d.OutC / p.Group
	kernelSize := icPerGroup * d.KernelH * d.KernelW
	pool.ParallelFor(d.OutC, 1, func(oc0, oc1 int) {
		for oc := oc0; oc < oc1; oc++ {
			icStart := (oc / ocPerGroup) * icPerGroup
			w := kernel[oc*kernelSize : (oc+1)*kernelSize]
			out := output[oc*d.OutH*d.OutW : (oc+1)*d.OutH*d.OutW]
			for y := range d.OutH {
				for x := range d.OutW {
					var sum T
					if bias != nil {
						sum = bias[oc]
					}
					for ic := range icPerGroup {
						plane := input[(icStart+ic)*d.InH*d.InW : (icStart+ic+1)*d.InH*d.InW]
						for ky := range d.KernelH {
							iy := y*p.StrideH - p.PadTop + ky*p.DilationH
							if iy < 0 || iy >= d.InH {
								continue
							}
							for kx := range d.KernelW {
								ix := x*p.StrideW - p.PadLeft + kx*p.DilationW
								if ix < 0 || ix >= d.InW {
									continue
								}
								sum += w[(ic*d.KernelH+ky)*d.KernelW+kx] * plane[iy*d.InW+ix]
							}
						}
					}
					if p.FuseRelu && sum < 0 {
						sum = 0
					}
					out[y*d.OutW+x] = sum
				}
			}
		}
	})
}
