// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package winograd implements the Winograd F(2,3), F(4,3) and F(6,3) convolution pipeline for 3x3, stride 1
// convolutions in NCHW layout.
//
// The pipeline has four stages, each one a pure layout/basis transform that preserves every value it is not
// meant to change:
//
//  1. TransformKernel (once, at init): U = G g G^T per (output channel, input channel), repacked to
//     [OC/P][D*D][IC][P].
//  2. PadPack + InputTransform: the zero-padded, channel-packed input [C/P][Hp][Wp][P] is transformed tile by tile,
//     V = B^T d B, into [C/P][D*D][tiles][P], and then ReorderTiles interleaves it into [D*D][tile blocks][C][block].
//  3. Dot: D*D independent channel-mixing GEMMs, producing [OC/P][D*D][tiles][P].
//  4. OutputTransform: Y = A^T M A + bias (optionally clamped at 0), then CropUnpack writes the final
//     [OC][outH][outW] plane-major output.
//
// P is the channel pack width, 4 for float32 and 8 for float16, and it is a runtime parameter of every stage.
// T is the output tile size and D = T+2 the transform-domain size.
package winograd

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// Tile selects one of the supported Winograd variants.
type Tile int

const (
	TileInvalid Tile = iota

	// F23 computes 2x2 output tiles from 4x4 input tiles.
	F23

	// F43 computes 4x4 output tiles from 6x6 input tiles.
	F43

	// F63 computes 6x6 output tiles from 8x8 input tiles.
	F63
)

// KernelSize is the only kernel size supported by the pipeline.
const KernelSize = 3

// OutputSize returns T, the side of the output tile.
func (t Tile) OutputSize() int {
	switch t {
	case F23:
		return 2
	case F43:
		return 4
	case F63:
		return 6
	}
	return 0
}

// DomainSize returns D = T + 2, the side of the input tile and of the transform domain.
func (t Tile) DomainSize() int {
	if t.OutputSize() == 0 {
		return 0
	}
	return t.OutputSize() + KernelSize - 1
}

// String implements fmt.Stringer.
func (t Tile) String() string {
	if t.OutputSize() == 0 {
		return fmt.Sprintf("Tile(%d)", int(t))
	}
	return fmt.Sprintf("F(%d,3)", t.OutputSize())
}

// Valid returns whether t is one of F23, F43 or F63.
func (t Tile) Valid() bool { return t.OutputSize() > 0 }

// ParseTile parses "f23", "f43", "f63" (case-insensitive, the "F(6,3)" format is also accepted).
func ParseTile(name string) (Tile, error) {
	key := strings.ToLower(strings.NewReplacer("(", "", ")", "", ",", "").Replace(name))
	switch key {
	case "f23":
		return F23, nil
	case "f43":
		return F43, nil
	case "f63":
		return F63, nil
	}
	return TileInvalid, errors.Errorf("unknown Winograd tile %q, valid values are f23, f43 and f63", name)
}

var (
	g23 = [][3]float32{
		{1, 0, 0},
		{0.5, 0.5, 0.5},
		{0.5, -0.5, 0.5},
		{0, 0, 1},
	}
	bt23 = [][]float32{
		{1, 0, -1, 0},
		{0, 1, 1, 0},
		{0, -1, 1, 0},
		{0, -1, 0, 1},
	}
	at23 = [][]float32{
		{1, 1, 1, 0},
		{0, 1, -1, 1},
	}

	g43 = [][3]float32{
		{1.0 / 4, 0, 0},
		{-1.0 / 6, -1.0 / 6, -1.0 / 6},
		{-1.0 / 6, 1.0 / 6, -1.0 / 6},
		{1.0 / 24, 1.0 / 12, 1.0 / 6},
		{1.0 / 24, -1.0 / 12, 1.0 / 6},
		{0, 0, 1},
	}
	bt43 = [][]float32{
		{4, 0, -5, 0, 1, 0},
		{0, -4, -4, 1, 1, 0},
		{0, 4, -4, -1, 1, 0},
		{0, -2, -1, 2, 1, 0},
		{0, 2, -1, -2, 1, 0},
		{0, 4, 0, -5, 0, 1},
	}
	at43 = [][]float32{
		{1, 1, 1, 1, 1, 0},
		{0, 1, -1, 2, -2, 0},
		{0, 1, 1, 4, 4, 0},
		{0, 1, -1, 8, -8, 1},
	}

	g63 = [][3]float32{
		{1, 0, 0},
		{-2.0 / 9, -2.0 / 9, -2.0 / 9},
		{-2.0 / 9, 2.0 / 9, -2.0 / 9},
		{1.0 / 90, 1.0 / 45, 2.0 / 45},
		{1.0 / 90, -1.0 / 45, 2.0 / 45},
		{32.0 / 45, 16.0 / 45, 8.0 / 45},
		{32.0 / 45, -16.0 / 45, 8.0 / 45},
		{0, 0, 1},
	}
	bt63 = [][]float32{
		{1, 0, -5.25, 0, 5.25, 0, -1, 0},
		{0, 1, 1, -4.25, -4.25, 1, 1, 0},
		{0, -1, 1, 4.25, -4.25, -1, 1, 0},
		{0, 0.5, 0.25, -2.5, -1.25, 2, 1, 0},
		{0, -0.5, 0.25, 2.5, -1.25, -2, 1, 0},
		{0, 2, 4, -2.5, -5, 0.5, 1, 0},
		{0, -2, 4, 2.5, -5, -0.5, 1, 0},
		{0, -1, 0, 5.25, 0, -5.25, 0, 1},
	}
	at63 = [][]float32{
		{1, 1, 1, 1, 1, 1, 1, 0},
		{0, 1, -1, 2, -2, 0.5, -0.5, 0},
		{0, 1, 1, 4, 4, 0.25, 0.25, 0},
		{0, 1, -1, 8, -8, 0.125, -0.125, 0},
		{0, 1, 1, 16, 16, 1.0 / 16, 1.0 / 16, 0},
		{0, 1, -1, 32, -32, 1.0 / 32, -1.0 / 32, 1},
	}
)

// G returns a copy of the D x 3 kernel transform matrix.
func (t Tile) G() [][3]float32 {
	g := t.g()
	if g == nil {
		return nil
	}
	return append([][3]float32(nil), g...)
}

// BT returns a copy of the D x D input transform matrix B^T.
func (t Tile) BT() [][]float32 { return cloneMatrix(t.bt()) }

// AT returns a copy of the T x D output transform matrix A^T.
func (t Tile) AT() [][]float32 { return cloneMatrix(t.at()) }

func (t Tile) bt() [][]float32 {
	switch t {
	case F23:
		return bt23
	case F43:
		return bt43
	case F63:
		return bt63
	}
	return nil
}

func (t Tile) at() [][]float32 {
	switch t {
	case F23:
		return at23
	case F43:
		return at43
	case F63:
		return at63
	}
	return nil
}

func (t Tile) g() [][3]float32 {
	switch t {
	case F23:
		return g23
	case F43:
		return g43
	case F63:
		return g63
	}
	return nil
}

func cloneMatrix(m [][]float32) [][]float32 {
	if m == nil {
		return nil
	}
	out := make([][]float32, len(m))
	for i, row := range m {
		out[i] = append([]float32(nil), row...)
	}
	return out
}

// NumTiles returns the tile grid (blockH, blockW) that covers an outH x outW output.
func (t Tile) NumTiles(outH, outW int) (blockH, blockW int) {
	size := t.OutputSize()
	return (outH + size - 1) / size, (outW + size - 1) / size
}

// PaddedSize returns the (height, width) of the padded input for a blockH x blockW tile grid.
func (t Tile) PaddedSize(blockH, blockW int) (ph, pw int) {
	size := t.OutputSize()
	return blockH*size + KernelSize - 1, blockW*size + KernelSize - 1
}
