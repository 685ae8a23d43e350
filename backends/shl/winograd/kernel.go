// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package winograd

import (
	"github.com/pkg/errors"
)

// KernelTM holds 3x3 convolution weights transformed to the Winograd domain and packed for Dot.
//
// Data is laid out as [OutC/Pack][D*D][InC][Pack]: for each pack of output channels and each transform-domain
// coefficient, the InC x Pack block that a Dot step streams.
type KernelTM struct {
	Tile      Tile
	OutC, InC int
	Pack      int
	Data      []float32
}

// Size returns the number of float32 values in the transformed kernel, OutC * InC * D * D.
func (k *KernelTM) Size() int {
	d := k.Tile.DomainSize()
	return k.OutC * k.InC * d * d
}

// TransformKernel transforms kernel, laid out as [outC][inC][3][3], into the Winograd domain of tile and packs it
// by pack output channels.
//
// It returns an error if the channels are not multiples of pack, or if kernel has the wrong size.
// kernel itself is not modified.
func TransformKernel(tile Tile, kernel []float32, outC, inC, pack int) (*KernelTM, error) {
	if !tile.Valid() {
		return nil, errors.Errorf("winograd.TransformKernel: invalid tile %s", tile)
	}
	if pack <= 0 || outC%pack != 0 || inC%pack != 0 {
		return nil, errors.Errorf("winograd.TransformKernel: channels (out=%d, in=%d) must be multiples of the pack width %d",
			outC, inC, pack)
	}
	if len(kernel) != outC*inC*KernelSize*KernelSize {
		return nil, errors.Errorf("winograd.TransformKernel: kernel has %d values, [%d, %d, 3, 3] needs %d",
			len(kernel), outC, inC, outC*inC*KernelSize*KernelSize)
	}
	d := tile.DomainSize()
	g := tile.g()
	ktm := &KernelTM{
		Tile: tile,
		OutC: outC,
		InC:  inC,
		Pack: pack,
	}
	ktm.Data = make([]float32, ktm.Size())

	tmp := make([][3]float32, d)
	u := make([]float32, d*d)
	for oc := range outC {
		ocPack, lane := oc/pack, oc%pack
		for ic := range inC {
			w := kernel[(oc*inC+ic)*9 : (oc*inC+ic)*9+9]
			transformKernel3x3(g, w, tmp, u)
			// Scatter the D*D coefficients into [ocPack][q][ic][lane].
			base := ocPack * d * d * inC * pack
			for q, v := range u {
				ktm.Data[base+(q*inC+ic)*pack+lane] = v
			}
		}
	}
	return ktm, nil
}

// transformKernel3x3 computes u = G w G^T, with w a row-major 3x3 kernel and u a row-major D x D matrix.
func transformKernel3x3(g [][3]float32, w []float32, tmp [][3]float32, u []float32) {
	d := len(g)
	// tmp = G w: D x 3.
	for i, gi := range g {
		for j := range 3 {
			tmp[i][j] = gi[0]*w[j] + gi[1]*w[3+j] + gi[2]*w[6+j]
		}
	}
	// u = tmp G^T: D x D.
	for i := range d {
		row := u[i*d : (i+1)*d]
		for l, gl := range g {
			row[l] = tmp[i][0]*gl[0] + tmp[i][1]*gl[1] + tmp[i][2]*gl[2]
		}
	}
}
