// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package shapes

import "fmt"

// Layout describes the meaning of the axes of a tensor.
type Layout int

const (
	// LayoutUnknown is the zero value: the axes have no declared meaning.
	LayoutUnknown Layout = iota

	// LayoutNCHW is the activations layout: [batch, channels, height, width].
	LayoutNCHW

	// LayoutOIHW is the convolution weights layout: [out_channels, in_channels/group, kernel_h, kernel_w].
	LayoutOIHW

	// LayoutRowMajor is used by plain matrices (matmul operands), batch axes first.
	LayoutRowMajor
)

var layoutNames = []string{"Unknown", "NCHW", "OIHW", "RowMajor"}

// String implements fmt.Stringer.
func (l Layout) String() string {
	if l >= 0 && int(l) < len(layoutNames) {
		return layoutNames[l]
	}
	return fmt.Sprintf("Layout(%d)", int(l))
}
