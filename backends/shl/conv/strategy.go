// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package conv

import (
	"fmt"
	"strings"

	"github.com/gomlx/shl/backends/shl/winograd"
	"github.com/pkg/errors"
)

// Strategy is the kernel bound to a convolution at Init.
type Strategy int

const (
	StrategyUnset Strategy = iota
	StrategyGEMM1x1
	StrategyGEMMIm2col
	StrategyWinogradF23
	StrategyWinogradF43
	StrategyWinogradF63
	StrategyDirect3x3S1
	StrategyDepthwise3x3S1
	StrategyDepthwise3x3S2
	StrategyDepthwise5x5S1
	StrategyDepthwise5x5S2
	StrategyReference
)

var strategyNames = map[Strategy]string{
	StrategyUnset:          "Unset",
	StrategyGEMM1x1:        "GEMM1x1",
	StrategyGEMMIm2col:     "GEMMIm2col",
	StrategyWinogradF23:    "WinogradF23",
	StrategyWinogradF43:    "WinogradF43",
	StrategyWinogradF63:    "WinogradF63",
	StrategyDirect3x3S1:    "Direct3x3S1",
	StrategyDepthwise3x3S1: "Depthwise3x3S1",
	StrategyDepthwise3x3S2: "Depthwise3x3S2",
	StrategyDepthwise5x5S1: "Depthwise5x5S1",
	StrategyDepthwise5x5S2: "Depthwise5x5S2",
	StrategyReference:      "Reference",
}

// String implements fmt.Stringer.
func (s Strategy) String() string {
	if name, found := strategyNames[s]; found {
		return name
	}
	return fmt.Sprintf("Strategy(%d)", int(s))
}

// Mode groups the strategies by the kind of kernel they run.
type Mode int

const (
	ModeUnset Mode = iota
	ModeGEMM
	ModeWinograd
	ModeDirect
	ModeReference
)

func (m Mode) String() string {
	switch m {
	case ModeGEMM:
		return "GEMM"
	case ModeWinograd:
		return "WINOGRAD"
	case ModeDirect:
		return "DIRECT"
	case ModeReference:
		return "REFERENCE"
	}
	return "UNSET"
}

// Mode returns the kind of kernel of the strategy.
func (s Strategy) Mode() Mode {
	switch s {
	case StrategyGEMM1x1, StrategyGEMMIm2col:
		return ModeGEMM
	case StrategyWinogradF23, StrategyWinogradF43, StrategyWinogradF63:
		return ModeWinograd
	case StrategyDirect3x3S1, StrategyDepthwise3x3S1, StrategyDepthwise3x3S2, StrategyDepthwise5x5S1, StrategyDepthwise5x5S2:
		return ModeDirect
	case StrategyReference:
		return ModeReference
	}
	return ModeUnset
}

// Tile returns the Winograd tile of a Winograd strategy, or winograd.TileInvalid.
func (s Strategy) Tile() winograd.Tile {
	switch s {
	case StrategyWinogradF23:
		return winograd.F23
	case StrategyWinogradF43:
		return winograd.F43
	case StrategyWinogradF63:
		return winograd.F63
	}
	return winograd.TileInvalid
}

// WinogradMode configures which Winograd variant, if any, the selector may bind.
type WinogradMode int

const (
	// WinogradAuto uses F(6,3).
	WinogradAuto WinogradMode = iota
	WinogradOff
	WinogradF23
	WinogradF43
	WinogradF63
)

// Tile returns the Winograd tile to use, or winograd.TileInvalid if Winograd is disabled.
func (m WinogradMode) Tile() winograd.Tile {
	switch m {
	case WinogradAuto, WinogradF63:
		return winograd.F63
	case WinogradF23:
		return winograd.F23
	case WinogradF43:
		return winograd.F43
	}
	return winograd.TileInvalid
}

func (m WinogradMode) String() string {
	switch m {
	case WinogradAuto:
		return "auto"
	case WinogradOff:
		return "off"
	case WinogradF23:
		return "f23"
	case WinogradF43:
		return "f43"
	case WinogradF63:
		return "f63"
	}
	return fmt.Sprintf("WinogradMode(%d)", int(m))
}

// ParseWinogradMode parses "auto", "off", "f23", "f43" or "f63" (case-insensitive).
func ParseWinogradMode(s string) (WinogradMode, error) {
	switch strings.ToLower(s) {
	case "auto", "":
		return WinogradAuto, nil
	case "off", "false", "none":
		return WinogradOff, nil
	}
	tile, err := winograd.ParseTile(s)
	if err != nil {
		return WinogradAuto, errors.Errorf("invalid winograd mode %q, valid values are auto, off, f23, f43 and f63", s)
	}
	switch tile {
	case winograd.F23:
		return WinogradF23, nil
	case winograd.F43:
		return WinogradF43, nil
	}
	return WinogradF63, nil
}
