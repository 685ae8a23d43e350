// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package conv

import (
	"fmt"

	"github.com/pkg/errors"
)

// Params holds the convolution parameters that don't depend on the tensors.
//
// Zero strides, dilations and group are read as 1, so Params{PadTop: 1, ...} describes a plain convolution.
type Params struct {
	StrideH, StrideW     int
	DilationH, DilationW int
	PadTop, PadDown      int
	PadLeft, PadRight    int
	Group                int

	// FuseRelu clamps the output to max(x, 0).
	FuseRelu bool
}

// normalized returns a copy of p with the zero strides, dilations and group replaced by 1.
func (p Params) normalized() Params {
	one := func(v *int) {
		if *v == 0 {
			*v = 1
		}
	}
	one(&p.StrideH)
	one(&p.StrideW)
	one(&p.DilationH)
	one(&p.DilationW)
	one(&p.Group)
	return p
}

// Validate returns an error if any of the parameters is out of range.
func (p Params) Validate() error {
	p = p.normalized()
	if p.StrideH < 0 || p.StrideW < 0 {
		return errors.Errorf("invalid strides (%d, %d)", p.StrideH, p.StrideW)
	}
	if p.DilationH < 0 || p.DilationW < 0 {
		return errors.Errorf("invalid dilations (%d, %d)", p.DilationH, p.DilationW)
	}
	if p.PadTop < 0 || p.PadDown < 0 || p.PadLeft < 0 || p.PadRight < 0 {
		return errors.Errorf("invalid paddings (top=%d, down=%d, left=%d, right=%d)", p.PadTop, p.PadDown, p.PadLeft, p.PadRight)
	}
	if p.Group < 0 {
		return errors.Errorf("invalid group %d", p.Group)
	}
	return nil
}

// OutputSize returns the spatial output size for an inH x inW input and a kH x kW kernel.
// It may return non-positive values if the kernel doesn't fit the padded input.
func (p Params) OutputSize(inH, inW, kH, kW int) (outH, outW int) {
	p = p.normalized()
	effKH := p.DilationH*(kH-1) + 1
	effKW := p.DilationW*(kW-1) + 1
	outH = floorDiv(inH+p.PadTop+p.PadDown-effKH, p.StrideH) + 1
	outW = floorDiv(inW+p.PadLeft+p.PadRight-effKW, p.StrideW) + 1
	return
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && (a < 0) {
		q--
	}
	return q
}

// String implements fmt.Stringer.
func (p Params) String() string {
	p = p.normalized()
	return fmt.Sprintf("stride=(%d,%d) dilation=(%d,%d) pad=(top=%d,down=%d,left=%d,right=%d) group=%d relu=%v",
		p.StrideH, p.StrideW, p.DilationH, p.DilationW, p.PadTop, p.PadDown, p.PadLeft, p.PadRight, p.Group, p.FuseRelu)
}

// Dims holds the per-image sizes of a convolution.
type Dims struct {
	InC, InH, InW    int
	OutC, OutH, OutW int
	KernelH, KernelW int
}

// FLOPs returns the number of floating point operations (2 per multiply-add) of a direct convolution of one
// image with the given group.
func (d Dims) FLOPs(group int) int64 {
	group = max(group, 1)
	return 2 * int64(d.OutC) * int64(d.OutH) * int64(d.OutW) * int64(d.InC/group) * int64(d.KernelH) * int64(d.KernelW)
}
