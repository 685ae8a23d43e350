// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package matmul implements the batched matrix multiplication [..., M, K] x [..., K, N] -> [..., M, N] on top
// of the packed GEMM.
//
// Batches are either equal on both sides, or the right-hand side has a single batch that is broadcast.
// Transposed operands are materialized for float32 and rejected for float16.
package matmul

import (
	"slices"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/shl/backends/shl/packgemm"
	"github.com/gomlx/shl/internal/workerspool"
	"github.com/gomlx/shl/pkg/core/dtypes"
	"github.com/gomlx/shl/pkg/core/tensors"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

var (
	// ErrUnsupportedTranspose is returned when a transposed operand is requested for float16.
	ErrUnsupportedTranspose = errors.New("unsupported matrix transpose on C906")

	// ErrUnsupportedBroadcast is returned when the batch dimensions are neither equal nor broadcastable from a
	// single right-hand side batch.
	ErrUnsupportedBroadcast = errors.New("matmul unsupport this broadcast")

	// ErrShapeMismatch is returned when the operands or the output have incompatible shapes.
	ErrShapeMismatch = errors.New("matmul shapes don't match")

	// ErrNotInitialized is returned by Run before a successful Init.
	ErrNotInitialized = errors.New("matmul not initialized")
)

// Options configure a matmul operator.
type Options struct {
	// Pool runs the GEMM row blocks in parallel. Nil runs everything on the calling goroutine.
	Pool *workerspool.Pool
}

// Op is a compiled batched matrix multiplication.
type Op struct {
	id             uuid.UUID
	transA, transB bool
	opts           Options

	initialized    bool
	dtype          dtypes.DType
	m, k, n        int
	batchA, batchB int
	aDims, bDims   []int
	packedB        []float32 // Set if the right-hand side was declared constant at Init.
}

// New creates a matmul, optionally with transposed operands (the last two axes swapped).
func New(transA, transB bool, opts Options) *Op {
	return &Op{
		id:     uuid.New(),
		transA: transA,
		transB: transB,
		opts:   opts,
	}
}

// ID uniquely identifies the operator in logs.
func (o *Op) ID() uuid.UUID { return o.id }

// Dims returns M, K and N, as set by Init.
func (o *Op) Dims() (m, k, n int) { return o.m, o.k, o.n }

func batchSize(dims []int) int {
	size := 1
	for _, dim := range dims[:len(dims)-2] {
		size *= dim
	}
	return size
}

// Init validates the operands and output. If constantB is set, b is packed once here and later calls to Run
// ignore the contents of their b argument (it must still have the same shape).
func (o *Op) Init(a, b, output *tensors.Tensor, constantB bool) error {
	if o.initialized {
		return errors.Errorf("matmul %s: already initialized", o.id)
	}
	dtype := a.DType()
	if dtype != dtypes.Float32 && dtype != dtypes.Float16 {
		return errors.Errorf("matmul %s: dtype %s not supported", o.id, dtype)
	}
	if b.DType() != dtype || output.DType() != dtype {
		return errors.Wrapf(ErrShapeMismatch, "matmul %s: operands and output must have the same dtype, got %s, %s and %s",
			o.id, dtype, b.DType(), output.DType())
	}
	if dtype == dtypes.Float16 && (o.transA || o.transB) {
		klog.Errorf("matmul %s: unsupported matrix transpose on C906 (transA=%v, transB=%v)", o.id, o.transA, o.transB)
		return errors.Wrapf(ErrUnsupportedTranspose, "matmul %s", o.id)
	}
	aDims, bDims, outDims := a.Dims(), b.Dims(), output.Dims()
	if len(aDims) < 2 || len(bDims) < 2 {
		return errors.Wrapf(ErrShapeMismatch, "matmul %s: operands must have rank >= 2, got %s and %s", o.id, a.Shape(), b.Shape())
	}
	m, k := aDims[len(aDims)-2], aDims[len(aDims)-1]
	if o.transA {
		m, k = k, m
	}
	kB, n := bDims[len(bDims)-2], bDims[len(bDims)-1]
	if o.transB {
		kB, n = n, kB
	}
	if k != kB {
		return errors.Wrapf(ErrShapeMismatch, "matmul %s: contracting dimensions differ, %s x %s", o.id, a.Shape(), b.Shape())
	}
	batchA, batchB := batchSize(aDims), batchSize(bDims)
	if batchA != batchB && (batchA <= 1 || batchB != 1) {
		klog.Errorf("matmul %s: matmul unsupport this broadcast (%s x %s)", o.id, a.Shape(), b.Shape())
		return errors.Wrapf(ErrUnsupportedBroadcast, "matmul %s: %s x %s", o.id, a.Shape(), b.Shape())
	}
	wantOut := append(append([]int(nil), aDims[:len(aDims)-2]...), m, n)
	if len(outDims) != len(wantOut) {
		return errors.Wrapf(ErrShapeMismatch, "matmul %s: expected output dimensions %v, got %s", o.id, wantOut, output.Shape())
	}
	for ii, dim := range wantOut {
		if outDims[ii] != dim {
			return errors.Wrapf(ErrShapeMismatch, "matmul %s: expected output dimensions %v, got %s", o.id, wantOut, output.Shape())
		}
	}
	if dtype == dtypes.Float32 && (o.transA || o.transB) {
		klog.Warningf("matmul %s is not optimized to achieve under this condition (transA=%v, transB=%v), transposing operands in memory.",
			o.id, o.transA, o.transB)
	}

	o.dtype, o.m, o.k, o.n = dtype, m, k, n
	o.batchA, o.batchB = batchA, batchB
	o.aDims, o.bDims = append([]int(nil), aDims...), append([]int(nil), bDims...)
	if constantB {
		values, err := b.AsFloat32()
		if err != nil {
			return errors.WithMessagef(err, "matmul %s", o.id)
		}
		o.packedB = o.packB(values)
	}
	o.initialized = true
	if klog.V(1).Enabled() {
		klog.Infof("matmul %s: %s x %s -> %s, M=%d K=%d N=%d, batches %d x %d, constant rhs=%v",
			o.id, a.Shape(), b.Shape(), output.Shape(), m, k, n, batchA, batchB, constantB)
	}
	return nil
}

// packB packs every batch of the right-hand side, transposing it first if needed.
func (o *Op) packB(values []float32) []float32 {
	k, n := o.k, o.n
	packed := make([]float32, o.batchB*k*n)
	for batch := range o.batchB {
		src := values[batch*k*n : (batch+1)*k*n]
		if o.transB {
			src = transpose(src, n, k)
		}
		packgemm.ReorderB(src, n, packed[batch*k*n:(batch+1)*k*n], k, n)
	}
	return packed
}

// Run multiplies a and b into output. The shapes must match the ones given to Init.
func (o *Op) Run(a, b, output *tensors.Tensor) error {
	if !o.initialized {
		return errors.Wrapf(ErrNotInitialized, "matmul %s", o.id)
	}
	if !slices.Equal(a.Dims(), o.aDims) || !slices.Equal(b.Dims(), o.bDims) || a.DType() != o.dtype || b.DType() != o.dtype {
		return errors.Wrapf(ErrShapeMismatch, "matmul %s: initialized for %v x %v, got %s x %s", o.id, o.aDims, o.bDims, a.Shape(), b.Shape())
	}
	if output.Size() != o.batchA*o.m*o.n || output.DType() != o.dtype {
		return errors.Wrapf(ErrShapeMismatch, "matmul %s: output %s", o.id, output.Shape())
	}
	err := exceptions.TryCatch[error](func() { o.run(a, b, output) })
	if err != nil {
		return errors.WithMessagef(err, "matmul %s", o.id)
	}
	return nil
}

func (o *Op) run(a, b, output *tensors.Tensor) {
	m, k, n := o.m, o.k, o.n
	aValues := mustFloat32(a)
	packedB := o.packedB
	if packedB == nil {
		packedB = o.packB(mustFloat32(b))
	}
	var out []float32
	if o.dtype == dtypes.Float32 {
		out = output.Flat32()
	} else {
		out = make([]float32, output.Size())
	}

	sa := make([]float32, m*k)
	for batch := range o.batchA {
		src := aValues[batch*m*k : (batch+1)*m*k]
		if o.transA {
			src = transpose(src, k, m)
		}
		packgemm.ReorderA(src, k, sa, m, k)
		bBatch := 0
		if o.batchB > 1 {
			bBatch = batch
		}
		packgemm.SGEMMParallel(o.opts.Pool, out[batch*m*n:(batch+1)*m*n], n, sa, packedB[bBatch*k*n:(bBatch+1)*k*n],
			m, k, n, nil, false)
	}
	if o.dtype != dtypes.Float32 {
		if err := output.SetFromFloat32(out); err != nil {
			panic(err)
		}
	}
}

// mustFloat32 returns the float32 values of t: the tensor's own buffer for Float32, a converted copy otherwise.
func mustFloat32(t *tensors.Tensor) []float32 {
	if t.DType() == dtypes.Float32 {
		return t.Flat32()
	}
	values, err := t.AsFloat32()
	if err != nil {
		panic(err)
	}
	return values
}

// transpose returns the cols x rows transpose of the rows x cols row-major matrix src.
func transpose(src []float32, rows, cols int) []float32 {
	dst := make([]float32, len(src))
	for i := range rows {
		for j := range cols {
			dst[j*rows+i] = src[i*cols+j]
		}
	}
	return dst
}
