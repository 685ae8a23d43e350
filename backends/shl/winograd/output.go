// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package winograd

// OutputTransform computes Y = A^T M A + bias for every tile of the Dot output ([outC/pack][D*D][tiles][pack]),
// clamping negative values to 0 if fuseRelu is set. bias holds one value per output channel, nil means zeros.
//
// The result is laid out as [outC/pack][blockH*T][blockW*T][pack], and still has to be cropped to the
// declared output size (see CropUnpack).
func OutputTransform(tile Tile, dotOut, bias []float32, outC, blockH, blockW, pack int, fuseRelu bool) []float32 {
	size := tile.OutputSize()
	dst := make([]float32, outC*blockH*size*blockW*size)
	outputTransformRange(tile, dotOut, bias, dst, blockH, blockW, pack, fuseRelu, 0, outC/pack, nil)
	return dst
}

// outputTransformRange transforms the output-channel packs [op0, op1).
func outputTransformRange(tile Tile, dotOut, bias, dst []float32, blockH, blockW, pack int, fuseRelu bool,
	op0, op1 int, scratch []float32) {
	d, size := tile.DomainSize(), tile.OutputSize()
	at := tile.at()
	dd, tiles := d*d, blockH*blockW
	rowLen := d * pack
	if len(scratch) < dd*pack+size*rowLen {
		scratch = make([]float32, dd*pack+size*rowLen)
	}
	m := scratch[:dd*pack]
	tmp := scratch[dd*pack : dd*pack+size*rowLen]
	outW := blockW * size
	planeSize := blockH * size * outW * pack
	laneBias := make([]float32, pack)

	for op := op0; op < op1; op++ {
		if bias != nil {
			copy(laneBias, bias[op*pack:(op+1)*pack])
		}
		src := dotOut[op*dd*tiles*pack : (op+1)*dd*tiles*pack]
		plane := dst[op*planeSize : (op+1)*planeSize]
		for t := range tiles {
			// Gather M: D x D x pack.
			for q := range dd {
				copy(m[q*pack:(q+1)*pack], src[(q*tiles+t)*pack:(q*tiles+t+1)*pack])
			}
			// tmp = A^T M: T x D x pack.
			clear(tmp)
			for i, ati := range at {
				tmpRow := tmp[i*rowLen : (i+1)*rowLen]
				for j, coef := range ati {
					if coef == 0 {
						continue
					}
					mRow := m[j*rowLen : (j+1)*rowLen]
					for e, v := range mRow {
						tmpRow[e] += coef * v
					}
				}
			}
			// Y = tmp A + bias, written to the (by, bx) tile of the output plane.
			by, bx := t/blockW, t%blockW
			for i := range size {
				tmpRow := tmp[i*rowLen : (i+1)*rowLen]
				outRow := plane[((by*size+i)*outW+bx*size)*pack:]
				for k, atk := range at {
					y := outRow[k*pack : (k+1)*pack]
					clear(y)
					for x, coef := range atk {
						if coef == 0 {
							continue
						}
						src := tmpRow[x*pack : (x+1)*pack]
						for lane, sv := range src {
							y[lane] += coef * sv
						}
					}
					for lane, v := range y {
						v += laneBias[lane]
						if fuseRelu && v < 0 {
							v = 0
						}
						y[lane] = v
					}
				}
			}
		}
	}
}
