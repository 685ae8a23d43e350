// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"math/rand/v2"
	"os"
	"time"

	"github.com/gomlx/shl/backends/shl"
	"github.com/gomlx/shl/backends/shl/conv"
	"github.com/gomlx/shl/pkg/core/dtypes"
	"github.com/gomlx/shl/pkg/core/shapes"
	"github.com/gomlx/shl/pkg/core/tensors"
	"github.com/gomlx/shl/pkg/support/xslices"
	"github.com/janpfeifer/must"
	"github.com/pkg/errors"
	"github.com/schollz/progressbar/v3"
	"k8s.io/klog/v2"
)

// result of benchmarking one scenario.
type result struct {
	scenario scenario
	strategy conv.Strategy
	flops    int64
	mean     time.Duration
	maxError float64
}

// GFLOPS is the throughput of the mean run.
func (r result) GFLOPS() float64 {
	if r.mean <= 0 {
		return 0
	}
	return float64(r.flops) / r.mean.Seconds() / 1e9
}

func randomTensor(rng *rand.Rand, dtype dtypes.DType, layout shapes.Layout, dims ...int) *tensors.Tensor {
	size := 1
	for _, dim := range dims {
		size *= dim
	}
	values := make([]float32, size)
	for ii := range values {
		values[ii] = rng.Float32()*2 - 1
	}
	return must.M1(tensors.FromFloat32(dtype, layout, values, dims...))
}

func asFloat64(t *tensors.Tensor) []float64 {
	return xslices.Map(must.M1(t.AsFloat32()), func(v float32) float64 { return float64(v) })
}

// runScenario compiles the convolution of s on the backend, runs it repeat times and compares the last output
// against the float64 reference convolution.
func runScenario(backend *shl.Backend, s scenario, dtype dtypes.DType, repeat int, showProgress bool) (result, error) {
	rng := rand.New(rand.NewPCG(uint64(s.inC), uint64(s.outC)))
	d := s.dims()
	group := max(s.params.Group, 1)
	input := randomTensor(rng, dtype, shapes.LayoutNCHW, s.batch, s.inC, s.inH, s.inW)
	weight := randomTensor(rng, dtype, shapes.LayoutOIHW, s.outC, s.inC/group, s.kernel, s.kernel)
	bias := randomTensor(rng, dtype, shapes.LayoutRowMajor, s.outC)
	output := tensors.FromShape(shapes.LayoutNCHW, shapes.Make(dtype, s.batch, s.outC, d.OutH, d.OutW))

	op := backend.NewConv(s.params)
	if err := op.Init(input, output, weight, bias); err != nil {
		return result{}, errors.WithMessagef(err, "scenario %q", s.name)
	}
	r := result{
		scenario: s,
		strategy: op.Strategy(),
		flops:    int64(s.batch) * d.FLOPs(group),
	}

	bar := progressbar.NewOptions(repeat,
		progressbar.OptionSetDescription(fmt.Sprintf("%-18s", s.name)),
		progressbar.OptionSetTheme(progressbar.ThemeASCII),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetVisibility(showProgress),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("runs"),
		progressbar.OptionClearOnFinish())
	var total time.Duration
	for range repeat {
		start := time.Now()
		if err := op.Run(input, output); err != nil {
			return result{}, errors.WithMessagef(err, "scenario %q", s.name)
		}
		total += time.Since(start)
		_ = bar.Add(1)
	}
	_ = bar.Finish()
	r.mean = total / time.Duration(max(repeat, 1))

	inSize, outSize := d.InC*d.InH*d.InW, d.OutC*d.OutH*d.OutW
	in64, w64, b64 := asFloat64(input), asFloat64(weight), asFloat64(bias)
	want := make([]float64, s.batch*outSize)
	for n := range s.batch {
		conv.Reference(backend.Pool(), in64[n*inSize:(n+1)*inSize], want[n*outSize:(n+1)*outSize], w64, b64, d, op.Params())
	}
	r.maxError, _ = xslices.MaxRelativeError(asFloat64(output), want)
	klog.V(1).Infof("%s: %s, %s, mean %s, max relative error %.2g", s.name, s.shape(), r.strategy, r.mean, r.maxError)
	return r, nil
}
