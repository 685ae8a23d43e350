// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package shl

import (
	"fmt"
	"maps"

	"github.com/gomlx/shl/pkg/core/dtypes"
	"github.com/gomlx/shl/pkg/core/shapes"
)

// OpType lists the operators served by the backend.
type OpType int

const (
	OpTypeInvalid OpType = iota
	OpTypeConv2D
	OpTypeDepthwiseConv2D
	OpTypeMatMul
)

var opTypeNames = map[OpType]string{
	OpTypeInvalid:         "Invalid",
	OpTypeConv2D:          "Conv2D",
	OpTypeDepthwiseConv2D: "DepthwiseConv2D",
	OpTypeMatMul:          "MatMul",
}

func (op OpType) String() string {
	if name, ok := opTypeNames[op]; ok {
		return name
	}
	return fmt.Sprintf("OpType(%d)", int(op))
}

// Level tells how well an operator configuration is served.
type Level int

const (
	// LevelUnsupported configurations return an error at Init.
	LevelUnsupported Level = iota

	// LevelReference configurations run, but on the reference (or untuned) kernels.
	LevelReference

	// LevelOptimized configurations run on the tuned kernels.
	LevelOptimized
)

func (l Level) String() string {
	switch l {
	case LevelUnsupported:
		return "unsupported"
	case LevelReference:
		return "reference"
	case LevelOptimized:
		return "optimized"
	}
	return fmt.Sprintf("Level(%d)", int(l))
}

// Capability reports the level of support for an operator with the given dtype, layout, kernel size and strides.
// Kernel sizes and strides are only considered for depthwise convolutions, and layout is ignored for MatMul.
func Capability(op OpType, dtype dtypes.DType, layout shapes.Layout, kH, kW, strideH, strideW int) Level {
	switch op {
	case OpTypeConv2D:
		if layout != shapes.LayoutNCHW || (dtype != dtypes.Float32 && dtype != dtypes.Float16) {
			return LevelUnsupported
		}
		return LevelOptimized

	case OpTypeDepthwiseConv2D:
		if layout != shapes.LayoutNCHW {
			return LevelUnsupported
		}
		is3x3 := kH == 3 && kW == 3
		is5x5 := kH == 5 && kW == 5
		s1 := strideH == 1 && strideW == 1
		s2 := strideH == 2 && strideW == 2
		switch dtype {
		case dtypes.Float16:
			if is3x3 && (s1 || s2) {
				return LevelOptimized
			}
			return LevelReference
		case dtypes.Float32:
			if (is3x3 || is5x5) && (s1 || s2) {
				return LevelOptimized
			}
			return LevelReference
		}
		return LevelUnsupported

	case OpTypeMatMul:
		switch dtype {
		case dtypes.Float16:
			return LevelOptimized
		case dtypes.Float32:
			return LevelReference
		}
		return LevelUnsupported
	}
	return LevelUnsupported
}

// Capabilities holds what operators and dtypes the backend accepts at all.
type Capabilities struct {
	// Operations supported. If not listed, it's assumed to be false, hence not supported.
	Operations map[OpType]bool

	// DTypes supported. If not listed, it's assumed to be false, hence not supported.
	DTypes map[dtypes.DType]bool
}

// Clone makes a deep copy of the Capabilities.
func (c Capabilities) Clone() Capabilities {
	var c2 Capabilities
	c2.Operations = make(map[OpType]bool, len(c.Operations))
	maps.Copy(c2.Operations, c.Operations)
	c2.DTypes = make(map[dtypes.DType]bool, len(c.DTypes))
	maps.Copy(c2.DTypes, c.DTypes)
	return c2
}

var capabilities = Capabilities{
	Operations: map[OpType]bool{
		OpTypeConv2D:          true,
		OpTypeDepthwiseConv2D: true,
		OpTypeMatMul:          true,
	},
	DTypes: map[dtypes.DType]bool{
		dtypes.Float32: true,
		dtypes.Float16: true,
	},
}

// Capabilities returns a copy of the operators and dtypes accepted by the backend.
func (b *Backend) Capabilities() Capabilities {
	return capabilities.Clone()
}
