// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package dtypes includes the DType enum for the data types handled by the SHL kernels.
//
// It is a trimmed fork of github.com/gomlx/gomlx/pkg/core/dtypes: same numbering, same names,
// plus the float16 <-> float32 conversions the half-precision kernels need at their boundaries.
package dtypes

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/pkg/errors"
	"github.com/x448/float16"
)

// panicf panics with the formatted description.
//
// It is only used for "bugs in the code": arguments outside the documented domain.
func panicf(format string, args ...any) {
	panic(errors.Errorf(format, args...))
}

func init() {
	// Add a mapping to the lower-case version of dtypes.
	keys := slices.Collect(maps.Keys(MapOfNames))
	for _, key := range keys {
		lowerKey := strings.ToLower(key)
		if _, found := MapOfNames[lowerKey]; found {
			continue
		}
		MapOfNames[lowerKey] = MapOfNames[key]
	}
}

// Supported lists the Go types that can be used as tensor elements.
type Supported interface {
	bool | int8 | int16 | int32 | int64 | uint8 | float16.Float16 | float32 | float64
}

// String implements fmt.Stringer.
func (dtype DType) String() string {
	if name, found := dtypeNames[dtype]; found {
		return name
	}
	return fmt.Sprintf("DType(%d)", int32(dtype))
}

// FromName returns the DType for the given name, or an error if the name is unknown.
// Names are matched case-insensitively, and the C enum aliases (F32, F16) are accepted.
func FromName(name string) (DType, error) {
	if dtype, found := MapOfNames[name]; found {
		return dtype, nil
	}
	if dtype, found := MapOfNames[strings.ToLower(name)]; found {
		return dtype, nil
	}
	return InvalidDType, errors.Errorf("unknown dtype %q", name)
}

// FromGenericsType returns the DType enum for the given type that this package knows about.
func FromGenericsType[T Supported]() DType {
	var t T
	switch (any(t)).(type) {
	case float64:
		return Float64
	case float32:
		return Float32
	case float16.Float16:
		return Float16
	case int64:
		return Int64
	case int32:
		return Int32
	case int16:
		return Int16
	case int8:
		return Int8
	case uint8:
		return Uint8
	case bool:
		return Bool
	}
	return InvalidDType
}

// Size returns the number of bytes for the given DType.
// It panics for an invalid dtype.
func (dtype DType) Size() int {
	switch dtype {
	case Bool, Int8, Uint8:
		return 1
	case Int16, Float16:
		return 2
	case Int32, Float32:
		return 4
	case Int64, Float64:
		return 8
	}
	panicf("Size() not defined for dtype %s", dtype)
	return 0
}

// Bits returns the number of bits for the given DType.
func (dtype DType) Bits() int {
	return dtype.Size() * 8
}

// IsFloat returns whether dtype is a supported float -- float types not yet supported will return false.
func (dtype DType) IsFloat() bool {
	return dtype == Float32 || dtype == Float64 || dtype == Float16
}

// IsHalf returns whether dtype is the 16-bit float.
func (dtype DType) IsHalf() bool {
	return dtype == Float16
}

// ToFloat32 converts src into dst. It panics if dst is shorter than src.
func ToFloat32(dst []float32, src []float16.Float16) {
	if len(dst) < len(src) {
		panicf("ToFloat32: dst has %d elements, src has %d", len(dst), len(src))
	}
	for ii, v := range src {
		dst[ii] = v.Float32()
	}
}

// FromFloat32 converts src into dst rounding to the nearest even half-precision value.
// It panics if dst is shorter than src.
func FromFloat32(dst []float16.Float16, src []float32) {
	if len(dst) < len(src) {
		panicf("FromFloat32: dst has %d elements, src has %d", len(dst), len(src))
	}
	for ii, v := range src {
		dst[ii] = float16.Fromfloat32(v)
	}
}
