// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package winograd

// Dot runs the D*D independent channel-mixing products of the Winograd domain:
// for every coefficient q, M_q[oc, t] = sum_ic U_q[oc, ic] * V_q[ic, t].
//
// tm2 is the output of ReorderTiles for kernel.InC channels and tiles tiles. The result is laid out as
// [OutC/Pack][D*D][tiles][Pack].
func Dot(tm2 []float32, kernel *KernelTM, tiles int) []float32 {
	d := kernel.Tile.DomainSize()
	dst := make([]float32, kernel.OutC*d*d*tiles)
	dotRange(tm2, kernel, dst, tiles, 0, kernel.OutC/kernel.Pack, nil)
	return dst
}

// dotRange computes the output-channel packs [op0, op1).
func dotRange(tm2 []float32, kernel *KernelTM, dst []float32, tiles, op0, op1 int, scratch []float32) {
	d, pack, inC := kernel.Tile.DomainSize(), kernel.Pack, kernel.InC
	dd := d * d
	accSize := TileBlockSizes[0] * pack
	if len(scratch) < accSize {
		scratch = make([]float32, accSize)
	}
	for op := op0; op < op1; op++ {
		for q := range dd {
			u := kernel.Data[(op*dd+q)*inC*pack : (op*dd+q+1)*inC*pack]
			out := dst[(op*dd+q)*tiles*pack : (op*dd+q+1)*tiles*pack]
			for t0 := 0; t0 < tiles; {
				bs := tileBlockSize(t0, tiles)
				v := tm2[(q*tiles+t0)*inC : (q*tiles+t0+bs)*inC]
				acc := scratch[:bs*pack]
				clear(acc)
				for ic := range inC {
					uRow := u[ic*pack : (ic+1)*pack]
					vRow := v[ic*bs : (ic+1)*bs]
					for b, vv := range vRow {
						accRow := acc[b*pack : (b+1)*pack]
						for lane, uv := range uRow {
							accRow[lane] += uv * vv
						}
					}
				}
				copy(out[t0*pack:(t0+bs)*pack], acc)
				t0 += bs
			}
		}
	}
}
