// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package xslices provides missing functionality to the slices package.
// It was trimmed down to the helpers used by the kernels, the CLI and the tests.
package xslices

import (
	"cmp"
	"math"

	"github.com/pkg/errors"
	"golang.org/x/exp/constraints"
)

// SliceWithValue creates a slice of given size filled with given value.
func SliceWithValue[T any](size int, value T) []T {
	s := make([]T, size)
	for ii := range s {
		s[ii] = value
	}
	return s
}

// FillSlice fills a slice with the given value.
func FillSlice[T any](slice []T, value T) {
	for ii := range slice {
		slice[ii] = value
	}
}

// Iota returns a slice of incremental int values, starting with start and of length len.
// Eg: Iota(3.0, 2) -> []float64{3.0, 4.0}
func Iota[T interface {
	constraints.Integer | constraints.Float
}](start T, len int) (slice []T) {
	slice = make([]T, len)
	for ii := range slice {
		slice[ii] = start + T(ii)
	}
	return
}

// Map executes the given function sequentially for every element on in, and returns a mapped slice.
func Map[In, Out any](in []In, fn func(e In) Out) (out []Out) {
	out = make([]Out, len(in))
	for ii, e := range in {
		out[ii] = fn(e)
	}
	return
}

// Max scans the slice and returns the largest value, or the zero value for an empty slice.
func Max[T cmp.Ordered](slice []T) (max T) {
	if len(slice) == 0 {
		return
	}
	max = slice[0]
	for _, v := range slice[1:] {
		if v > max {
			max = v
		}
	}
	return
}

// MaxRelativeError returns the largest relative difference |got-want| / max(|want|, 1) between the two slices,
// and the index where it happened.
//
// The denominator is floored at 1, so values near zero are compared in absolute terms.
// It returns +Inf if the slices have different lengths.
func MaxRelativeError[T constraints.Float](got, want []T) (maxErr float64, index int) {
	if len(got) != len(want) {
		return math.Inf(1), -1
	}
	index = -1
	for ii := range got {
		g, w := float64(got[ii]), float64(want[ii])
		diff := math.Abs(g - w)
		if math.IsNaN(diff) {
			return math.NaN(), ii
		}
		relErr := diff / max(math.Abs(w), 1)
		if relErr > maxErr || index < 0 {
			maxErr, index = relErr, ii
		}
	}
	return
}

// SlicesInRelData returns an error describing the first largest mismatch if the relative error between got and
// want (see MaxRelativeError) is larger than tolerance.
func SlicesInRelData[T constraints.Float](got, want []T, tolerance float64) error {
	if len(got) != len(want) {
		return errors.Errorf("slices have different lengths: got %d, want %d", len(got), len(want))
	}
	maxErr, idx := MaxRelativeError(got, want)
	if math.IsNaN(maxErr) || maxErr > tolerance {
		return errors.Errorf("element #%d: got %g, want %g (relative error %g > tolerance %g)",
			idx, got[idx], want[idx], maxErr, tolerance)
	}
	return nil
}
