// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/gomlx/shl/backends/shl/conv"
	"github.com/pkg/errors"
)

// scenario is one convolution to benchmark.
type scenario struct {
	name                string
	batch               int
	inC, inH, inW, outC int
	kernel              int
	params              conv.Params
}

func (s scenario) dims() conv.Dims {
	outH, outW := s.params.OutputSize(s.inH, s.inW, s.kernel, s.kernel)
	return conv.Dims{
		InC: s.inC, InH: s.inH, InW: s.inW,
		OutC: s.outC, OutH: outH, OutW: outW,
		KernelH: s.kernel, KernelW: s.kernel,
	}
}

func (s scenario) shape() string {
	return fmt.Sprintf("%dx%dx%dx%d * %dx%dx%dx%d", s.batch, s.inC, s.inH, s.inW,
		s.outC, s.inC/max(s.params.Group, 1), s.kernel, s.kernel)
}

func padded(pad int) conv.Params {
	return conv.Params{PadTop: pad, PadDown: pad, PadLeft: pad, PadRight: pad}
}

func strided(p conv.Params, stride int) conv.Params {
	p.StrideH, p.StrideW = stride, stride
	return p
}

func grouped(p conv.Params, group int) conv.Params {
	p.Group = group
	return p
}

// scenarioGroups are the built-in scenarios, selectable with -scenarios.
var scenarioGroups = map[string][]scenario{
	"winograd": {
		{"winograd", 1, 16, 34, 34, 16, 3, padded(1)},
		{"winograd-wide", 1, 64, 28, 28, 64, 3, padded(1)},
	},
	"im2col": {
		{"im2col-ic15", 1, 15, 34, 34, 16, 3, padded(1)},
		{"im2col-3x3s2", 1, 32, 56, 56, 64, 3, strided(padded(1), 2)},
		{"im2col-5x5", 1, 16, 32, 32, 32, 5, padded(2)},
	},
	"1x1": {
		{"gemm-1x1", 1, 64, 28, 28, 128, 1, conv.Params{}},
		{"gemm-1x1-batch", 4, 32, 14, 14, 32, 1, conv.Params{}},
	},
	"depthwise": {
		{"depthwise-3x3s1", 1, 32, 56, 56, 32, 3, grouped(padded(1), 32)},
		{"depthwise-3x3s2", 1, 32, 56, 56, 32, 3, grouped(strided(padded(1), 2), 32)},
		{"depthwise-5x5s1", 1, 32, 28, 28, 32, 5, grouped(padded(2), 32)},
		{"depthwise-5x5s2", 1, 32, 28, 28, 32, 5, grouped(strided(padded(2), 2), 32)},
	},
}

var scenarioGroupsOrder = []string{"winograd", "im2col", "1x1", "depthwise"}

// selectScenarios parses the comma-separated list of scenario groups, "all" selects every group.
func selectScenarios(list string) ([]scenario, error) {
	var selected []scenario
	var groups []string
	for _, name := range strings.Split(list, ",") {
		name = strings.ToLower(strings.TrimSpace(name))
		switch {
		case name == "":
			continue
		case name == "all":
			groups = append(groups, scenarioGroupsOrder...)
		case scenarioGroups[name] != nil:
			groups = append(groups, name)
		default:
			return nil, errors.Errorf("unknown scenario group %q, valid values are all or %s",
				name, strings.Join(scenarioGroupsOrder, ", "))
		}
	}
	seen := make(map[string]bool)
	for _, group := range groups {
		if seen[group] {
			continue
		}
		seen[group] = true
		selected = append(selected, scenarioGroups[group]...)
	}
	return selected, nil
}

// parseShape parses a custom convolution given as "N,C,H,W,OC,K,S,P": batch, input channels, height, width,
// output channels, square kernel size, stride and (symmetric) padding. An optional ninth value sets the group.
func parseShape(value string) (scenario, error) {
	parts := strings.Split(value, ",")
	if len(parts) != 8 && len(parts) != 9 {
		return scenario{}, errors.Errorf("invalid -shape %q: want 8 or 9 comma-separated integers N,C,H,W,OC,K,S,P[,G]", value)
	}
	values := make([]int, len(parts))
	for ii, part := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return scenario{}, errors.Wrapf(err, "invalid -shape %q", value)
		}
		values[ii] = v
	}
	if slices.Min(values[:7]) <= 0 || values[7] < 0 {
		return scenario{}, errors.Errorf("invalid -shape %q: sizes and stride must be positive, padding non-negative", value)
	}
	s := scenario{
		name:   "custom",
		batch:  values[0],
		inC:    values[1],
		inH:    values[2],
		inW:    values[3],
		outC:   values[4],
		kernel: values[5],
		params: strided(padded(values[7]), values[6]),
	}
	if len(values) == 9 {
		s.params.Group = values[8]
	}
	if err := s.params.Validate(); err != nil {
		return scenario{}, errors.WithMessagef(err, "invalid -shape %q", value)
	}
	if g := max(s.params.Group, 1); s.inC%g != 0 || s.outC%g != 0 {
		return scenario{}, errors.Errorf("invalid -shape %q: channels must be divisible by the group %d", value, g)
	}
	if outH, outW := s.params.OutputSize(s.inH, s.inW, s.kernel, s.kernel); outH <= 0 || outW <= 0 {
		return scenario{}, errors.Errorf("invalid -shape %q: empty output (%dx%d)", value, outH, outW)
	}
	return s, nil
}
