// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package dtypes

// DType is an enum that represents the data type of a tensor or a scalar.
//
// The numbering follows GoMLX (and hence the XLA/PJRT C enum), so dtypes can be exchanged with GoMLX
// tensors without translation. Only a subset is known to this package: the kernels are float only,
// the integer types exist so that unsupported inputs can be described and rejected.
type DType int32

const (
	// InvalidDType is the zero value, used to represent an unset or unknown dtype.
	InvalidDType DType = 0

	// Bool is a two-state boolean.
	Bool DType = 1

	// Int8 is a signed 8-bit integer. Used by quantized models, not supported by the float kernels.
	Int8 DType = 2

	// Int16 is a signed 16-bit integer.
	Int16 DType = 3

	// Int32 is a signed 32-bit integer.
	Int32 DType = 4

	// Int64 is a signed 64-bit integer.
	Int64 DType = 5

	// Uint8 is an unsigned 8-bit integer.
	Uint8 DType = 6

	// Float16 is the IEEE 754 half-precision float, stored as github.com/x448/float16.Float16.
	Float16 DType = 10

	// Float32 is the IEEE 754 single-precision float.
	Float32 DType = 11

	// Float64 is the IEEE 754 double-precision float.
	Float64 DType = 12
)

// Aliases using the C enum names.
const (
	// F16 is the C enum name for Float16.
	F16 = Float16

	// F32 is the C enum name for Float32.
	F32 = Float32

	// F64 is the C enum name for Float64.
	F64 = Float64
)

// MapOfNames maps names (and aliases) to the corresponding DType.
// A lower-case version of every key is added at initialization.
var MapOfNames = map[string]DType{
	"InvalidDType": InvalidDType,
	"INVALID":      InvalidDType,
	"Bool":         Bool,
	"PRED":         Bool,
	"Int8":         Int8,
	"S8":           Int8,
	"Int16":        Int16,
	"S16":          Int16,
	"Int32":        Int32,
	"S32":          Int32,
	"Int64":        Int64,
	"S64":          Int64,
	"Uint8":        Uint8,
	"U8":           Uint8,
	"Float16":      Float16,
	"F16":          Float16,
	"fp16":         Float16,
	"Float32":      Float32,
	"F32":          Float32,
	"fp32":         Float32,
	"Float64":      Float64,
	"F64":          Float64,
}

var dtypeNames = map[DType]string{
	InvalidDType: "InvalidDType",
	Bool:         "Bool",
	Int8:         "Int8",
	Int16:        "Int16",
	Int32:        "Int32",
	Int64:        "Int64",
	Uint8:        "Uint8",
	Float16:      "Float16",
	Float32:      "Float32",
	Float64:      "Float64",
}
