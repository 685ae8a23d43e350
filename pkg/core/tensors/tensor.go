// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package tensors implements the `Tensor` descriptor consumed by the SHL kernels.
//
// A Tensor is a shape (dtype and dimensions), a layout (NCHW for activations, OIHW for convolution
// weights) and a flat Go slice holding the values in row-major order. The slice may be owned by the
// tensor (FromShape) or borrowed from the caller (FromFlatDataAndDimensions): in the latter case the
// tensor is a view and writes go straight to the caller's memory.
//
// There are various ways to construct a Tensor:
//
//   - FromShape(layout, shape): creates a tensor with the given shape, and zero values.
//   - FromFlatDataAndDimensions[T](layout, data, dimensions...): wraps the given flat data.
//   - FromFloat32(dtype, layout, data, dimensions...): converts float32 values to the requested dtype.
//
// Kernels access the data of the two float dtypes they implement with Flat32 / FlatFloat16, or convert
// with AsFloat32 / SetFromFloat32.
package tensors

import (
	"fmt"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/shl/pkg/core/dtypes"
	"github.com/gomlx/shl/pkg/core/shapes"
	"github.com/pkg/errors"
	"github.com/x448/float16"
)

// Tensor is an N-dimensional array descriptor: shape, layout and flat data.
//
// It is not safe for concurrent mutation, but concurrent reads are fine, and kernels write to
// disjoint regions of the same output tensor from different goroutines.
type Tensor struct {
	shape  shapes.Shape
	layout shapes.Layout
	flat   any
}

// FromShape returns a zero-initialized tensor with the given layout and shape.
// The tensor owns its data.
func FromShape(layout shapes.Layout, shape shapes.Shape) *Tensor {
	t := &Tensor{shape: shape.Clone(), layout: layout}
	size := shape.Size()
	switch shape.DType {
	case dtypes.Float32:
		t.flat = make([]float32, size)
	case dtypes.Float16:
		t.flat = make([]float16.Float16, size)
	case dtypes.Float64:
		t.flat = make([]float64, size)
	case dtypes.Int8:
		t.flat = make([]int8, size)
	case dtypes.Int32:
		t.flat = make([]int32, size)
	default:
		exceptions.Panicf("tensors.FromShape(%s): dtype not supported", shape)
	}
	return t
}

// FromFlatDataAndDimensions creates a tensor that borrows data, which must hold exactly the product of
// the dimensions elements.
func FromFlatDataAndDimensions[T dtypes.Supported](layout shapes.Layout, data []T, dimensions ...int) (*Tensor, error) {
	dtype := dtypes.FromGenericsType[T]()
	if dtype == dtypes.InvalidDType {
		return nil, errors.Errorf("tensors.FromFlatDataAndDimensions: unsupported Go type %T", data)
	}
	for _, dim := range dimensions {
		if dim <= 0 {
			return nil, errors.Errorf("tensors.FromFlatDataAndDimensions: invalid dimensions %v", dimensions)
		}
	}
	shape := shapes.Make(dtype, dimensions...)
	if shape.Size() != len(data) {
		return nil, errors.Errorf("tensors.FromFlatDataAndDimensions: data has %d elements, but dimensions %v require %d",
			len(data), dimensions, shape.Size())
	}
	return &Tensor{shape: shape, layout: layout, flat: data}, nil
}

// FromFloat32 creates an owned tensor of the given float dtype holding values, converting if needed.
func FromFloat32(dtype dtypes.DType, layout shapes.Layout, values []float32, dimensions ...int) (*Tensor, error) {
	if dtype != dtypes.Float32 && dtype != dtypes.Float16 {
		return nil, errors.Errorf("tensors.FromFloat32: dtype %s not supported", dtype)
	}
	for _, dim := range dimensions {
		if dim <= 0 {
			return nil, errors.Errorf("tensors.FromFloat32: invalid dimensions %v", dimensions)
		}
	}
	t := FromShape(layout, shapes.Make(dtype, dimensions...))
	if err := t.SetFromFloat32(values); err != nil {
		return nil, err
	}
	return t, nil
}

// Shape of the tensor.
func (t *Tensor) Shape() shapes.Shape { return t.shape }

// DType of the tensor elements.
func (t *Tensor) DType() dtypes.DType { return t.shape.DType }

// Layout of the tensor.
func (t *Tensor) Layout() shapes.Layout { return t.layout }

// Dims returns the tensor dimensions. It should not be modified.
func (t *Tensor) Dims() []int { return t.shape.Dimensions }

// Size is the number of elements.
func (t *Tensor) Size() int { return t.shape.Size() }

// String implements fmt.Stringer. It doesn't print the values.
func (t *Tensor) String() string {
	return fmt.Sprintf("Tensor%s{%s}", t.layout, t.shape)
}

// Flat32 returns the underlying float32 data. It panics if the tensor is not Float32.
func (t *Tensor) Flat32() []float32 {
	flat, ok := t.flat.([]float32)
	if !ok {
		exceptions.Panicf("Tensor.Flat32(): tensor has dtype %s", t.shape.DType)
	}
	return flat
}

// FlatFloat16 returns the underlying float16 data. It panics if the tensor is not Float16.
func (t *Tensor) FlatFloat16() []float16.Float16 {
	flat, ok := t.flat.([]float16.Float16)
	if !ok {
		exceptions.Panicf("Tensor.FlatFloat16(): tensor has dtype %s", t.shape.DType)
	}
	return flat
}

// AsFloat32 returns a float32 copy of the values. Float32 and Float16 are supported.
func (t *Tensor) AsFloat32() ([]float32, error) {
	switch flat := t.flat.(type) {
	case []float32:
		return append([]float32(nil), flat...), nil
	case []float16.Float16:
		values := make([]float32, len(flat))
		dtypes.ToFloat32(values, flat)
		return values, nil
	}
	return nil, errors.Errorf("Tensor.AsFloat32(): dtype %s not supported", t.shape.DType)
}

// SetFromFloat32 overwrites the values of the tensor with values, converting to its dtype.
func (t *Tensor) SetFromFloat32(values []float32) error {
	if len(values) != t.Size() {
		return errors.Errorf("Tensor.SetFromFloat32(): got %d values for tensor %s", len(values), t)
	}
	switch flat := t.flat.(type) {
	case []float32:
		copy(flat, values)
	case []float16.Float16:
		dtypes.FromFloat32(flat, values)
	default:
		return errors.Errorf("Tensor.SetFromFloat32(): dtype %s not supported", t.shape.DType)
	}
	return nil
}

// Clone returns a deep copy of the tensor that owns its data.
func (t *Tensor) Clone() *Tensor {
	t2 := &Tensor{shape: t.shape.Clone(), layout: t.layout}
	switch flat := t.flat.(type) {
	case []float32:
		t2.flat = append([]float32(nil), flat...)
	case []float16.Float16:
		t2.flat = append([]float16.Float16(nil), flat...)
	case []float64:
		t2.flat = append([]float64(nil), flat...)
	case []int8:
		t2.flat = append([]int8(nil), flat...)
	case []int32:
		t2.flat = append([]int32(nil), flat...)
	default:
		exceptions.Panicf("Tensor.Clone(): dtype %s not supported", t.shape.DType)
	}
	return t2
}

// SameData returns whether t and t2 point to the same underlying buffer.
// It is used to recognize the same weights tensor across calls.
func (t *Tensor) SameData(t2 *Tensor) bool {
	if t == t2 {
		return true
	}
	if t == nil || t2 == nil || t.Size() != t2.Size() || t.Size() == 0 {
		return false
	}
	switch flat := t.flat.(type) {
	case []float32:
		flat2, ok := t2.flat.([]float32)
		return ok && &flat[0] == &flat2[0]
	case []float16.Float16:
		flat2, ok := t2.flat.([]float16.Float16)
		return ok && &flat[0] == &flat2[0]
	}
	return false
}
