// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package winograd

import (
	"github.com/gomlx/shl/internal/workerspool"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Conv runs the Winograd pipeline for one image: input is [inC][inH][inW], output is [outC][outH][outW], where
// outC, inC and the tile come from kernel. bias has one value per output channel, or is nil.
//
// The input transform is split across the pool by input-channel packs, and the dot product plus output
// transform by output-channel packs. pool may be nil, in which case everything runs on the caller.
func Conv(pool *workerspool.Pool, input, output []float32, kernel *KernelTM, bias []float32,
	inH, inW, outH, outW, padTop, padLeft int, fuseRelu bool) error {
	tile, pack := kernel.Tile, kernel.Pack
	inC, outC := kernel.InC, kernel.OutC
	if len(input) != inC*inH*inW {
		return errors.Errorf("winograd.Conv: input has %d values, [%d, %d, %d] needs %d", len(input), inC, inH, inW, inC*inH*inW)
	}
	if len(output) != outC*outH*outW {
		return errors.Errorf("winograd.Conv: output has %d values, [%d, %d, %d] needs %d", len(output), outC, outH, outW, outC*outH*outW)
	}
	if bias != nil && len(bias) != outC {
		return errors.Errorf("winograd.Conv: bias has %d values, expected %d", len(bias), outC)
	}

	d, size := tile.DomainSize(), tile.OutputSize()
	dd := d * d
	blockH, blockW := tile.NumTiles(outH, outW)
	ph, pw := tile.PaddedSize(blockH, blockW)
	tiles := blockH * blockW
	if klog.V(2).Enabled() {
		klog.Infof("winograd.Conv %s: in=[%d,%d,%d] out=[%d,%d,%d] tiles=%dx%d pack=%d",
			tile, inC, inH, inW, outC, outH, outW, blockH, blockW, pack)
	}

	// Stage 2: pad, pack and transform the input, per input-channel pack.
	padded := make([]float32, inC*ph*pw)
	tm1 := make([]float32, inC*dd*tiles)
	pool.ParallelFor(inC/pack, 1, func(p0, p1 int) {
		padPackRange(padded, input, inH, inW, padTop, padLeft, ph, pw, pack, p0, p1)
		inputTransformRange(tile, padded, tm1, ph, pw, blockH, blockW, pack, p0, p1, nil)
	})
	tm2 := make([]float32, len(tm1))
	pool.ParallelFor(dd, 1, func(q0, q1 int) {
		reorderTilesRange(tm1, tm2, inC, tiles, d, pack, q0, q1)
	})

	// Stages 3 and 4, per output-channel pack.
	dotOut := make([]float32, outC*dd*tiles)
	outTM := make([]float32, outC*blockH*size*blockW*size)
	pool.ParallelFor(outC/pack, 1, func(op0, op1 int) {
		dotRange(tm2, kernel, dotOut, tiles, op0, op1, nil)
		outputTransformRange(tile, dotOut, bias, outTM, blockH, blockW, pack, fuseRelu, op0, op1, nil)
		cropUnpackRange(outTM, output, outH, outW, blockH*size, blockW*size, pack, op0, op1)
	})
	return nil
}
