// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package conv_test

import (
	"fmt"
	"math/rand/v2"
	"slices"
	"testing"

	"github.com/gomlx/shl/backends/shl/conv"
	"github.com/gomlx/shl/internal/workerspool"
	"github.com/gomlx/shl/pkg/core/dtypes"
	"github.com/gomlx/shl/pkg/core/shapes"
	"github.com/gomlx/shl/pkg/core/tensors"
	"github.com/gomlx/shl/pkg/support/xslices"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randomValues(rng *rand.Rand, size int) []float32 {
	values := make([]float32, size)
	for ii := range values {
		values[ii] = rng.Float32()*2 - 1
	}
	return values
}

// convProblem holds the tensors of one convolution test.
type convProblem struct {
	params              conv.Params
	input, weight, bias *tensors.Tensor
	output              *tensors.Tensor
	batch               int
	dims                conv.Dims
}

func newProblem(t *testing.T, rng *rand.Rand, dtype dtypes.DType, batch, inC, inH, inW, outC, k int, params conv.Params) *convProblem {
	group := max(params.Group, 1)
	outH, outW := params.OutputSize(inH, inW, k, k)
	p := &convProblem{
		params: params,
		batch:  batch,
		dims: conv.Dims{
			InC: inC, InH: inH, InW: inW,
			OutC: outC, OutH: outH, OutW: outW,
			KernelH: k, KernelW: k,
		},
	}
	var err error
	p.input, err = tensors.FromFloat32(dtype, shapes.LayoutNCHW, randomValues(rng, batch*inC*inH*inW), batch, inC, inH, inW)
	require.NoError(t, err)
	p.weight, err = tensors.FromFloat32(dtype, shapes.LayoutOIHW, randomValues(rng, outC*(inC/group)*k*k), outC, inC/group, k, k)
	require.NoError(t, err)
	p.bias, err = tensors.FromFloat32(dtype, shapes.LayoutRowMajor, randomValues(rng, outC), outC)
	require.NoError(t, err)
	p.output = tensors.FromShape(shapes.LayoutNCHW, shapes.Make(dtype, batch, outC, outH, outW))
	return p
}

// want computes the expected output in float64 with the reference kernel, from the (possibly rounded) tensor
// values.
func (p *convProblem) want(t *testing.T, withBias bool) []float32 {
	toF64 := func(tensor *tensors.Tensor) []float64 {
		values, err := tensor.AsFloat32()
		require.NoError(t, err)
		return xslices.Map(values, func(v float32) float64 { return float64(v) })
	}
	input, kernel := toF64(p.input), toF64(p.weight)
	var bias []float64
	if withBias {
		bias = toF64(p.bias)
	}
	d := p.dims
	inSize, outSize := d.InC*d.InH*d.InW, d.OutC*d.OutH*d.OutW
	output := make([]float64, p.batch*outSize)
	for n := range p.batch {
		conv.Reference(nil, input[n*inSize:(n+1)*inSize], output[n*outSize:(n+1)*outSize], kernel, bias, d, p.params)
	}
	return xslices.Map(output, func(v float64) float32 { return float32(v) })
}

func (p *convProblem) got(t *testing.T) []float32 {
	values, err := p.output.AsFloat32()
	require.NoError(t, err)
	return values
}

func TestScenarioWinograd(t *testing.T) {
	// 1x16x34x34 input, 16x16x3x3 kernel, stride 1, pad 1: Winograd F(6,3).
	rng := rand.New(rand.NewPCG(100, 1))
	params := conv.Params{PadTop: 1, PadDown: 1, PadLeft: 1, PadRight: 1}
	p := newProblem(t, rng, dtypes.Float32, 1, 16, 34, 34, 16, 3, params)
	op := conv.New(params, conv.Options{Pool: workerspool.New()})
	require.NoError(t, op.Init(p.input, p.output, p.weight, p.bias))
	assert.Equal(t, conv.StrategyWinogradF63, op.Strategy())
	assert.Equal(t, conv.ModeWinograd, op.Strategy().Mode())
	require.NoError(t, op.Run(p.input, p.output))
	assert.Equal(t, []int{1, 16, 34, 34}, p.output.Dims())
	require.NoError(t, xslices.SlicesInRelData(p.got(t), p.want(t, true), 1e-3))
}

func TestScenarioIm2col(t *testing.T) {
	// Same shapes with 15 input channels: im2col + GEMM.
	rng := rand.New(rand.NewPCG(100, 2))
	params := conv.Params{PadTop: 1, PadDown: 1, PadLeft: 1, PadRight: 1}
	p := newProblem(t, rng, dtypes.Float32, 1, 15, 34, 34, 16, 3, params)
	op := conv.New(params, conv.Options{Pool: workerspool.New()})
	require.NoError(t, op.Init(p.input, p.output, p.weight, p.bias))
	assert.Equal(t, conv.StrategyGEMMIm2col, op.Strategy())
	require.NoError(t, op.Run(p.input, p.output))
	require.NoError(t, xslices.SlicesInRelData(p.got(t), p.want(t, true), 1e-5))
}

func TestStrategies(t *testing.T) {
	rng := rand.New(rand.NewPCG(100, 3))
	pad1 := conv.Params{PadTop: 1, PadDown: 1, PadLeft: 1, PadRight: 1}
	pad2 := conv.Params{PadTop: 2, PadDown: 2, PadLeft: 2, PadRight: 2}
	withGroup := func(p conv.Params, group int) conv.Params {
		p.Group = group
		return p
	}
	withStride := func(p conv.Params, stride int) conv.Params {
		p.StrideH, p.StrideW = stride, stride
		return p
	}
	testCases := []struct {
		name                          string
		batch, inC, inH, inW, outC, k int
		params                        conv.Params
		opts                          conv.Options
		strategy                      conv.Strategy
		tolerance                     float64
	}{
		{"1x1", 2, 6, 7, 9, 5, 1, conv.Params{}, conv.Options{}, conv.StrategyGEMM1x1, 1e-5},
		{"1x1-group", 1, 6, 5, 5, 4, 1, conv.Params{Group: 2}, conv.Options{}, conv.StrategyGEMM1x1, 1e-5},
		{"im2col-stride2", 2, 5, 11, 10, 7, 3, withStride(pad1, 2), conv.Options{}, conv.StrategyGEMMIm2col, 1e-5},
		{"im2col-dilation", 1, 3, 12, 12, 5, 3,
			conv.Params{DilationH: 2, DilationW: 3, PadTop: 1, PadDown: 2, PadLeft: 3}, conv.Options{},
			conv.StrategyGEMMIm2col, 1e-5},
		{"im2col-group", 1, 8, 9, 9, 6, 3, withGroup(pad1, 2), conv.Options{}, conv.StrategyGEMMIm2col, 1e-5},
		{"im2col-5x5", 1, 4, 10, 8, 4, 5, pad2, conv.Options{}, conv.StrategyGEMMIm2col, 1e-5},
		{"winograd-f23", 2, 8, 9, 11, 12, 3, pad1, conv.Options{Winograd: conv.WinogradF23}, conv.StrategyWinogradF23, 1e-3},
		{"winograd-f43", 1, 8, 13, 7, 4, 3, pad1, conv.Options{Winograd: conv.WinogradF43}, conv.StrategyWinogradF43, 1e-3},
		{"winograd-f63-nopad", 1, 4, 15, 15, 8, 3, conv.Params{}, conv.Options{}, conv.StrategyWinogradF63, 1e-3},
		{"direct-3x3", 2, 5, 8, 9, 3, 3, pad1, conv.Options{Winograd: conv.WinogradOff}, conv.StrategyDirect3x3S1, 1e-5},
		{"depthwise-3x3s1", 1, 6, 10, 9, 6, 3, withGroup(pad1, 6), conv.Options{}, conv.StrategyDepthwise3x3S1, 1e-5},
		{"depthwise-3x3s2", 1, 6, 10, 9, 6, 3, withGroup(withStride(pad1, 2), 6), conv.Options{}, conv.StrategyDepthwise3x3S2, 1e-5},
		{"depthwise-5x5s1", 2, 3, 9, 9, 3, 5, withGroup(pad2, 3), conv.Options{}, conv.StrategyDepthwise5x5S1, 1e-5},
		{"depthwise-5x5s2", 1, 3, 12, 7, 3, 5, withGroup(withStride(pad2, 2), 3), conv.Options{}, conv.StrategyDepthwise5x5S2, 1e-5},
		{"depthwise-7x7", 1, 3, 9, 9, 3, 7, withGroup(pad2, 3), conv.Options{}, conv.StrategyReference, 1e-5},
		{"reference", 1, 4, 6, 6, 4, 3, pad1, conv.Options{ForceReference: true}, conv.StrategyReference, 1e-5},
	}
	for _, tc := range testCases {
		for _, fuseRelu := range []bool{false, true} {
			t.Run(fmt.Sprintf("%s/relu=%v", tc.name, fuseRelu), func(t *testing.T) {
				params := tc.params
				params.FuseRelu = fuseRelu
				p := newProblem(t, rng, dtypes.Float32, tc.batch, tc.inC, tc.inH, tc.inW, tc.outC, tc.k, params)
				opts := tc.opts
				opts.Pool = workerspool.NewWithParallelism(3)
				op := conv.New(params, opts)
				require.NoError(t, op.Init(p.input, p.output, p.weight, p.bias))
				require.Equal(t, tc.strategy, op.Strategy())
				require.NoError(t, op.Run(p.input, p.output))
				require.NoError(t, xslices.SlicesInRelData(p.got(t), p.want(t, true), tc.tolerance))
			})
		}
	}
}

func TestNilBias(t *testing.T) {
	rng := rand.New(rand.NewPCG(100, 4))
	params := conv.Params{PadTop: 1, PadDown: 1, PadLeft: 1, PadRight: 1}
	for _, inC := range []int{8, 7} {
		p := newProblem(t, rng, dtypes.Float32, 1, inC, 8, 8, 8, 3, params)
		op := conv.New(params, conv.Options{})
		require.NoError(t, op.Init(p.input, p.output, p.weight, nil))
		require.NoError(t, op.Run(p.input, p.output))
		require.NoError(t, xslices.SlicesInRelData(p.got(t), p.want(t, false), 1e-3), "strategy %s", op.Strategy())
	}
}

func TestFloat16(t *testing.T) {
	rng := rand.New(rand.NewPCG(100, 5))
	pad1 := conv.Params{PadTop: 1, PadDown: 1, PadLeft: 1, PadRight: 1}
	for _, tc := range []struct {
		inC, outC int
		params    conv.Params
		strategy  conv.Strategy
	}{
		{16, 8, pad1, conv.StrategyWinogradF63},
		{12, 12, pad1, conv.StrategyGEMMIm2col},
		{8, 8, conv.Params{Group: 8, PadTop: 1, PadDown: 1, PadLeft: 1, PadRight: 1}, conv.StrategyDepthwise3x3S1},
	} {
		t.Run(tc.strategy.String(), func(t *testing.T) {
			p := newProblem(t, rng, dtypes.Float16, 1, tc.inC, 10, 10, tc.outC, 3, tc.params)
			op := conv.New(tc.params, conv.Options{})
			require.NoError(t, op.Init(p.input, p.output, p.weight, p.bias))
			require.Equal(t, tc.strategy, op.Strategy())
			require.NoError(t, op.Run(p.input, p.output))
			assert.Equal(t, dtypes.Float16, p.output.DType())
			require.NoError(t, xslices.SlicesInRelData(p.got(t), p.want(t, true), 3e-3))
		})
	}
}

func TestInitErrors(t *testing.T) {
	rng := rand.New(rand.NewPCG(100, 6))
	params := conv.Params{PadTop: 1, PadDown: 1, PadLeft: 1, PadRight: 1}
	p := newProblem(t, rng, dtypes.Float32, 1, 4, 8, 8, 4, 3, params)

	t.Run("output dim mismatch", func(t *testing.T) {
		wrongOutput := tensors.FromShape(shapes.LayoutNCHW, shapes.Make(dtypes.Float32, 1, 4, 7, 8))
		op := conv.New(params, conv.Options{})
		err := op.Init(p.input, wrongOutput, p.weight, p.bias)
		require.Error(t, err)
		assert.True(t, errors.Is(err, conv.ErrOutputDimMismatch))
		assert.Contains(t, err.Error(), "output dim don't match")
		assert.Equal(t, conv.StrategyUnset, op.Strategy())
		require.ErrorIs(t, op.Run(p.input, wrongOutput), conv.ErrNotInitialized)
	})

	t.Run("layout", func(t *testing.T) {
		weight, err := tensors.FromFlatDataAndDimensions(shapes.LayoutNCHW, p.weight.Flat32(), p.weight.Dims()...)
		require.NoError(t, err)
		require.ErrorIs(t, conv.New(params, conv.Options{}).Init(p.input, p.output, weight, p.bias), conv.ErrUnsupported)
	})

	t.Run("dtype", func(t *testing.T) {
		input := tensors.FromShape(shapes.LayoutNCHW, shapes.Make(dtypes.Float64, 1, 4, 8, 8))
		require.ErrorIs(t, conv.New(params, conv.Options{}).Init(input, p.output, p.weight, p.bias), conv.ErrUnsupported)
	})

	t.Run("weight channels", func(t *testing.T) {
		// Group 2 needs weights with 2 input channels.
		withGroup := params
		withGroup.Group = 2
		require.Error(t, conv.New(withGroup, conv.Options{}).Init(p.input, p.output, p.weight, p.bias))
	})

	t.Run("bias size", func(t *testing.T) {
		bias, err := tensors.FromFlatDataAndDimensions(shapes.LayoutRowMajor, []float32{1, 2, 3}, 3)
		require.NoError(t, err)
		require.Error(t, conv.New(params, conv.Options{}).Init(p.input, p.output, p.weight, bias))
	})

	t.Run("run shape", func(t *testing.T) {
		op := conv.New(params, conv.Options{})
		require.NoError(t, op.Init(p.input, p.output, p.weight, p.bias))
		otherInput := tensors.FromShape(shapes.LayoutNCHW, shapes.Make(dtypes.Float32, 1, 4, 9, 8))
		require.Error(t, op.Run(otherInput, p.output))
	})
}

func TestIdempotentInit(t *testing.T) {
	rng := rand.New(rand.NewPCG(100, 7))
	params := conv.Params{PadTop: 1, PadDown: 1, PadLeft: 1, PadRight: 1}
	for _, inC := range []int{8, 5} {
		p := newProblem(t, rng, dtypes.Float32, 1, inC, 9, 9, 8, 3, params)
		originalWeights := slices.Clone(p.weight.Flat32())
		op := conv.New(params, conv.Options{})
		require.NoError(t, op.Init(p.input, p.output, p.weight, p.bias))
		strategy := op.Strategy()

		// The weight tensor is left untouched.
		assert.Equal(t, originalWeights, p.weight.Flat32())

		// Second Init with the same weights: no-op, no double transform.
		require.NoError(t, op.Init(p.input, p.output, p.weight, p.bias))
		assert.Equal(t, strategy, op.Strategy())
		require.NoError(t, op.Run(p.input, p.output))
		require.NoError(t, xslices.SlicesInRelData(p.got(t), p.want(t, true), 1e-3), "strategy %s", strategy)

		// Different weights: error.
		err := op.Init(p.input, p.output, p.weight.Clone(), p.bias)
		require.ErrorIs(t, err, conv.ErrAlreadyInitialized)
	}
}

func TestOpIdentity(t *testing.T) {
	a := conv.New(conv.Params{}, conv.Options{})
	b := conv.New(conv.Params{}, conv.Options{})
	assert.NotEqual(t, a.ID(), b.ID())
	assert.Equal(t, 1, a.Params().StrideH)
	assert.Equal(t, 1, a.Params().Group)
}
