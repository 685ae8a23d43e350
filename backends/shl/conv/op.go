// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package conv implements the 2D convolution operator: a one-time Init that validates the shapes, selects a
// Strategy and compiles the weights for it, and a Run that executes the bound kernel once per image.
//
// Inputs and outputs are NCHW, weights are OIHW ([OutC][InC/group][KernelH][KernelW]). Both float32 and float16
// tensors are accepted; float16 values are converted to float32 at the operator boundary, and the result is
// rounded back to float16 once.
//
// Example:
//
//	op := conv.New(conv.Params{PadTop: 1, PadDown: 1, PadLeft: 1, PadRight: 1}, conv.Options{Pool: pool})
//	if err := op.Init(input, output, weight, bias); err != nil {
//		return err
//	}
//	// For each inference:
//	err := op.Run(input, output)
package conv

import (
	"github.com/gomlx/exceptions"
	"github.com/gomlx/shl/backends/shl/direct"
	"github.com/gomlx/shl/backends/shl/winograd"
	"github.com/gomlx/shl/pkg/core/dtypes"
	"github.com/gomlx/shl/pkg/core/shapes"
	"github.com/gomlx/shl/pkg/core/tensors"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Op is a compiled 2D convolution.
//
// Init must be called once before Run. After that Run can be called concurrently, as long as each call uses its
// own output tensor.
type Op struct {
	id     uuid.UUID
	params Params
	opts   Options

	strategy Strategy
	dtype    dtypes.DType
	dims     Dims
	weight   *tensors.Tensor

	// Compiled weights, owned by the Op: only the one matching strategy is set.
	packedA  []float32
	kernelTM *winograd.KernelTM
	kernel   []float32
	bias     []float32
}

// New creates a convolution with the given parameters. It must be initialized with Init before use.
func New(params Params, opts Options) *Op {
	return &Op{
		id:     uuid.New(),
		params: params.normalized(),
		opts:   opts,
	}
}

// ID uniquely identifies the operator in logs.
func (o *Op) ID() uuid.UUID { return o.id }

// Params returns the convolution parameters, with the defaults filled in.
func (o *Op) Params() Params { return o.params }

// Strategy returns the strategy selected by Init, or StrategyUnset.
func (o *Op) Strategy() Strategy { return o.strategy }

// Dims returns the per-image sizes set by Init.
func (o *Op) Dims() Dims { return o.dims }

// Init validates the tensors, selects the strategy and compiles the weights.
//
// The weight and bias tensors are not modified, and their values are not read after Init returns: the compiled
// weights are a separate buffer owned by the Op. bias may be nil.
//
// Calling Init again with the same weight tensor is a no-op. Calling it with a different one returns
// ErrAlreadyInitialized.
func (o *Op) Init(input, output, weight, bias *tensors.Tensor) error {
	if o.strategy != StrategyUnset {
		if weight != nil && weight.Shape().Equal(o.weight.Shape()) && weight.SameData(o.weight) {
			klog.V(1).Infof("conv2d %s: already initialized with %s, ignoring new Init", o.id, o.strategy)
			return nil
		}
		return errors.Wrapf(ErrAlreadyInitialized, "conv2d %s", o.id)
	}
	if input == nil || output == nil || weight == nil {
		return errors.Errorf("conv2d %s: input, output and weight tensors must be set", o.id)
	}
	if err := o.params.Validate(); err != nil {
		return errors.WithMessagef(err, "conv2d %s", o.id)
	}
	if input.Layout() != shapes.LayoutNCHW || output.Layout() != shapes.LayoutNCHW {
		return errors.Wrapf(ErrUnsupported, "conv2d %s: input and output must be NCHW, got %s and %s",
			o.id, input.Layout(), output.Layout())
	}
	if weight.Layout() != shapes.LayoutOIHW {
		return errors.Wrapf(ErrUnsupported, "conv2d %s: weight must be OIHW, got %s", o.id, weight.Layout())
	}
	dtype := input.DType()
	if dtype != dtypes.Float32 && dtype != dtypes.Float16 {
		return errors.Wrapf(ErrUnsupported, "conv2d %s: dtype %s", o.id, dtype)
	}
	if output.DType() != dtype || weight.DType() != dtype || (bias != nil && bias.DType() != dtype) {
		return errors.Wrapf(ErrUnsupported, "conv2d %s: all tensors must have the same dtype as the input (%s)", o.id, dtype)
	}
	if input.Shape().Rank() != 4 || output.Shape().Rank() != 4 || weight.Shape().Rank() != 4 {
		return errors.Wrapf(ErrUnsupported, "conv2d %s: input, output and weight must have rank 4, got %s, %s and %s",
			o.id, input.Shape(), output.Shape(), weight.Shape())
	}

	inDims, outDims, wDims := input.Dims(), output.Dims(), weight.Dims()
	d := Dims{
		InC: inDims[1], InH: inDims[2], InW: inDims[3],
		OutC: wDims[0], KernelH: wDims[2], KernelW: wDims[3],
	}
	group := o.params.Group
	if d.InC%group != 0 || d.OutC%group != 0 {
		return errors.Errorf("conv2d %s: channels (in=%d, out=%d) must be divisible by group %d", o.id, d.InC, d.OutC, group)
	}
	if wDims[1] != d.InC/group {
		return errors.Errorf("conv2d %s: weight %s doesn't match %d input channels with group %d",
			o.id, weight.Shape(), d.InC, group)
	}
	d.OutH, d.OutW = o.params.OutputSize(d.InH, d.InW, d.KernelH, d.KernelW)
	if d.OutH <= 0 || d.OutW <= 0 || outDims[0] != inDims[0] || outDims[1] != d.OutC || outDims[2] != d.OutH || outDims[3] != d.OutW {
		klog.Errorf("conv2d %s: output dim don't match: expected [%d %d %d %d], got %v",
			o.id, inDims[0], d.OutC, d.OutH, d.OutW, outDims)
		return errors.Wrapf(ErrOutputDimMismatch, "conv2d %s: expected output [%d %d %d %d], got %v",
			o.id, inDims[0], d.OutC, d.OutH, d.OutW, outDims)
	}
	var biasValues []float32
	if bias != nil {
		if bias.Size() != d.OutC {
			return errors.Errorf("conv2d %s: bias %s must have %d values", o.id, bias.Shape(), d.OutC)
		}
		var err error
		biasValues, err = bias.AsFloat32()
		if err != nil {
			return errors.WithMessagef(err, "conv2d %s: bias", o.id)
		}
	}

	strategy := Select(dtype, d.KernelH, d.KernelW, o.params, d.InC, d.OutC, o.opts)
	if err := o.compile(strategy, weight, d); err != nil {
		return err
	}
	o.strategy, o.dtype, o.dims, o.weight, o.bias = strategy, dtype, d, weight, biasValues
	if strategy == StrategyReference && !o.opts.ForceReference {
		klog.Warningf("conv2d %s is not optimized to achieve under this condition (%s, kernel %dx%d, %s), call reference func replaced.",
			o.id, dtype, d.KernelH, d.KernelW, o.params)
	}
	if klog.V(1).Enabled() {
		klog.Infof("conv2d %s: selected %s (mode %s) for input %s, weight %s, %s",
			o.id, strategy, strategy.Mode(), input.Shape(), weight.Shape(), o.params)
	}
	return nil
}

// compile builds the weights in the form the strategy consumes.
func (o *Op) compile(strategy Strategy, weight *tensors.Tensor, d Dims) error {
	// AsFloat32 returns a copy: the compiled weights never alias the caller's tensor.
	kernel, err := weight.AsFloat32()
	if err != nil {
		return errors.WithMessagef(err, "conv2d %s: weight", o.id)
	}
	switch strategy.Mode() {
	case ModeGEMM:
		o.packedA = packGEMMWeights(kernel, d, o.params.Group)
	case ModeWinograd:
		o.kernelTM, err = winograd.TransformKernel(strategy.Tile(), kernel, d.OutC, d.InC, PackWidth(weight.DType()))
		if err != nil {
			return errors.WithMessagef(err, "conv2d %s", o.id)
		}
	default:
		o.kernel = kernel
	}
	return nil
}

// Run executes the convolution on every image of the input batch. The input must have the channels and spatial
// sizes given to Init, and the output the matching shape.
//
// Any failure is reported before or instead of writing the output: either the whole batch is computed or an
// error is returned.
func (o *Op) Run(input, output *tensors.Tensor) error {
	if o.strategy == StrategyUnset {
		return errors.Wrapf(ErrNotInitialized, "conv2d %s", o.id)
	}
	if input.DType() != o.dtype || output.DType() != o.dtype {
		return errors.Errorf("conv2d %s: initialized for %s, got input %s and output %s", o.id, o.dtype, input.DType(), output.DType())
	}
	d := o.dims
	if input.Shape().Rank() != 4 || output.Shape().Rank() != 4 {
		return errors.Errorf("conv2d %s: input %s and output %s must have rank 4", o.id, input.Shape(), output.Shape())
	}
	in, out := input.Dims(), output.Dims()
	if in[1] != d.InC || in[2] != d.InH || in[3] != d.InW {
		return errors.Errorf("conv2d %s: input %s doesn't match the initialized [N %d %d %d]", o.id, input.Shape(), d.InC, d.InH, d.InW)
	}
	if out[0] != in[0] || out[1] != d.OutC || out[2] != d.OutH || out[3] != d.OutW {
		return errors.Wrapf(ErrOutputDimMismatch, "conv2d %s: expected output [%d %d %d %d], got %v",
			o.id, in[0], d.OutC, d.OutH, d.OutW, out)
	}
	err := exceptions.TryCatch[error](func() { o.runBatch(in[0], input, output) })
	if err != nil {
		return errors.WithMessagef(err, "conv2d %s (%s)", o.id, o.strategy)
	}
	return nil
}

func (o *Op) runBatch(batch int, input, output *tensors.Tensor) {
	var in, out []float32
	if o.dtype == dtypes.Float32 {
		in, out = input.Flat32(), output.Flat32()
	} else {
		var err error
		in, err = input.AsFloat32()
		if err != nil {
			panic(err)
		}
		out = make([]float32, output.Size())
	}
	d := o.dims
	inSize, outSize := d.InC*d.InH*d.InW, d.OutC*d.OutH*d.OutW
	for n := range batch {
		o.execute(in[n*inSize:(n+1)*inSize], out[n*outSize:(n+1)*outSize])
	}
	if o.dtype != dtypes.Float32 {
		if err := output.SetFromFloat32(out); err != nil {
			panic(err)
		}
	}
}

// execute runs the bound strategy on one image.
func (o *Op) execute(input, output []float32) {
	d, p, pool := o.dims, o.params, o.opts.Pool
	g := direct.Geometry{
		InC: d.InC, InH: d.InH, InW: d.InW,
		OutC: d.OutC, OutH: d.OutH, OutW: d.OutW,
		PadTop: p.PadTop, PadLeft: p.PadLeft,
	}
	var err error
	switch o.strategy {
	case StrategyGEMM1x1:
		gemm1x1(pool, input, output, o.packedA, o.bias, d, p)
	case StrategyGEMMIm2col:
		gemmIm2col(pool, input, output, o.packedA, o.bias, d, p)
	case StrategyWinogradF23, StrategyWinogradF43, StrategyWinogradF63:
		err = winograd.Conv(pool, input, output, o.kernelTM, o.bias, d.InH, d.InW, d.OutH, d.OutW,
			p.PadTop, p.PadLeft, p.FuseRelu)
	case StrategyDirect3x3S1:
		err = direct.Conv3x3S1(pool, input, output, o.kernel, o.bias, g, p.FuseRelu)
	case StrategyDepthwise3x3S1:
		err = direct.Depthwise3x3S1(pool, input, output, o.kernel, o.bias, g, p.FuseRelu)
	case StrategyDepthwise3x3S2:
		err = direct.Depthwise3x3S2(pool, input, output, o.kernel, o.bias, g, p.FuseRelu)
	case StrategyDepthwise5x5S1:
		err = direct.Depthwise5x5S1(pool, input, output, o.kernel, o.bias, g, p.FuseRelu)
	case StrategyDepthwise5x5S2:
		err = direct.Depthwise5x5S2(pool, input, output, o.kernel, o.bias, g, p.FuseRelu)
	case StrategyReference:
		Reference(pool, input, output, o.kernel, o.bias, d, p)
	default:
		exceptions.Panicf("conv2d %s: no kernel for strategy %s", o.id, o.strategy)
	}
	if err != nil {
		panic(err)
	}
}
