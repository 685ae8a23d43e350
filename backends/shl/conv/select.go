// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package conv

import (
	"github.com/gomlx/shl/backends/shl/winograd"
	"github.com/gomlx/shl/internal/workerspool"
	"github.com/gomlx/shl/pkg/core/dtypes"
)

// Options configure how a convolution is selected and run.
type Options struct {
	// Pool runs the parallel loops of the kernels. Nil runs everything on the calling goroutine.
	Pool *workerspool.Pool

	// Winograd selects the Winograd variant for 3x3 stride 1 convolutions, or disables it.
	Winograd WinogradMode

	// ForceReference binds the reference kernel to every convolution.
	ForceReference bool
}

// PackWidth returns the channel pack width of the Winograd kernels for dtype: 4 for float32 and 8 for float16.
func PackWidth(dtype dtypes.DType) int {
	if dtype == dtypes.Float16 {
		return 8
	}
	return 4
}

// IsDepthwise returns whether the group makes every output channel depend only on its own input channel.
func IsDepthwise(p Params, inC, outC int) bool {
	p = p.normalized()
	return p.Group > 1 && p.Group == inC && inC == outC
}

// Select returns the strategy for a convolution of the given dtype, kernel size and channels.
// It is a pure function of its arguments.
//
// Dense convolutions:
//
//   - 1x1, stride 1, no dilation and no padding: GEMM on the input planes.
//   - 3x3, stride 1, no dilation, group 1 and both channel counts multiples of PackWidth(dtype): Winograd.
//     With Winograd disabled float32 uses the direct 3x3 kernel.
//   - Everything else: im2col + GEMM.
//
// Depthwise convolutions use the direct kernels for 3x3 and 5x5 with stride 1 or 2 (only 3x3 for float16),
// and the reference kernel otherwise.
func Select(dtype dtypes.DType, kH, kW int, p Params, inC, outC int, opts Options) Strategy {
	p = p.normalized()
	if opts.ForceReference || (dtype != dtypes.Float32 && dtype != dtypes.Float16) {
		return StrategyReference
	}
	unitDilation := p.DilationH == 1 && p.DilationW == 1
	unitStride := p.StrideH == 1 && p.StrideW == 1

	if IsDepthwise(p, inC, outC) {
		if !unitDilation || kH != kW || p.StrideH != p.StrideW {
			return StrategyReference
		}
		switch {
		case kH == 3 && p.StrideH == 1:
			return StrategyDepthwise3x3S1
		case kH == 3 && p.StrideH == 2:
			return StrategyDepthwise3x3S2
		case kH == 5 && p.StrideH == 1 && dtype == dtypes.Float32:
			return StrategyDepthwise5x5S1
		case kH == 5 && p.StrideH == 2 && dtype == dtypes.Float32:
			return StrategyDepthwise5x5S2
		}
		return StrategyReference
	}

	if kH == 1 && kW == 1 && unitStride && unitDilation {
		if p.PadTop == 0 && p.PadDown == 0 && p.PadLeft == 0 && p.PadRight == 0 {
			return StrategyGEMM1x1
		}
		return StrategyGEMMIm2col
	}
	if kH == 3 && kW == 3 && unitStride && unitDilation {
		if p.Group > 1 {
			return StrategyGEMMIm2col
		}
		pack := PackWidth(dtype)
		if opts.Winograd != WinogradOff && inC%pack == 0 && outC%pack == 0 {
			switch opts.Winograd.Tile() {
			case winograd.F23:
				return StrategyWinogradF23
			case winograd.F43:
				return StrategyWinogradF43
			}
			return StrategyWinogradF63
		}
		if opts.Winograd == WinogradOff && dtype == dtypes.Float32 {
			return StrategyDirect3x3S1
		}
	}
	return StrategyGEMMIm2col
}
