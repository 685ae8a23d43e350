// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package winograd

// InputTransform computes V = B^T d B for every D x D input tile d of the padded, channel-packed input
// ([c/pack][ph][pw][pack], see PadPack). Tiles overlap by 2 rows and columns: tile (by, bx) starts at
// (by*T, bx*T).
//
// The result is laid out as [c/pack][D*D][blockH*blockW][pack].
func InputTransform(tile Tile, padded []float32, c, ph, pw, blockH, blockW, pack int) []float32 {
	d := tile.DomainSize()
	dst := make([]float32, c*d*d*blockH*blockW)
	inputTransformRange(tile, padded, dst, ph, pw, blockH, blockW, pack, 0, c/pack, nil)
	return dst
}

// inputTransformRange transforms the channel packs [p0, p1). scratch is reused if it is large enough.
func inputTransformRange(tile Tile, padded, dst []float32, ph, pw, blockH, blockW, pack, p0, p1 int, scratch []float32) {
	d, size := tile.DomainSize(), tile.OutputSize()
	bt := tile.bt()
	tiles := blockH * blockW
	if len(scratch) < 2*d*d*pack {
		scratch = make([]float32, 2*d*d*pack)
	}
	block := scratch[:d*d*pack]
	tmp := scratch[d*d*pack : 2*d*d*pack]
	rowLen := d * pack

	planeSize := ph * pw * pack
	for p := p0; p < p1; p++ {
		plane := padded[p*planeSize : (p+1)*planeSize]
		out := dst[p*d*d*tiles*pack : (p+1)*d*d*tiles*pack]
		for by := range blockH {
			for bx := range blockW {
				// Gather the D x D x pack tile: rows of the padded plane are contiguous in (x, lane).
				for j := range d {
					start := ((by*size+j)*pw + bx*size) * pack
					copy(block[j*rowLen:(j+1)*rowLen], plane[start:start+rowLen])
				}
				// tmp = B^T block (rows).
				clear(tmp)
				for i, bti := range bt {
					tmpRow := tmp[i*rowLen : (i+1)*rowLen]
					for j, coef := range bti {
						if coef == 0 {
							continue
						}
						blockRow := block[j*rowLen : (j+1)*rowLen]
						for e, v := range blockRow {
							tmpRow[e] += coef * v
						}
					}
				}
				// V = tmp B (columns), scattered to [q][t][lane].
				t := by*blockW + bx
				for i := range d {
					tmpRow := tmp[i*rowLen : (i+1)*rowLen]
					for k, btk := range bt {
						q := i*d + k
						v := out[(q*tiles+t)*pack : (q*tiles+t+1)*pack]
						clear(v)
						for x, coef := range btk {
							if coef == 0 {
								continue
							}
							src := tmpRow[x*pack : (x+1)*pack]
							for lane, sv := range src {
								v[lane] += coef * sv
							}
						}
					}
				}
			}
		}
	}
}

// TileBlockSizes used by ReorderTiles and Dot to group tiles, from the largest to the smallest.
var TileBlockSizes = [4]int{8, 4, 2, 1}

// tileBlockSize returns the size of the tile block that starts at tile t0 out of tiles.
func tileBlockSize(t0, tiles int) int {
	remaining := tiles - t0
	for _, size := range TileBlockSizes {
		if remaining >= size {
			return size
		}
	}
	return 0
}

// ReorderTiles interleaves the output of InputTransform ([c/pack][D*D][tiles][pack]) for Dot: for each
// coefficient q, the tiles are grouped in blocks of 8, then 4, 2 and 1, and each block of B tiles starting at t0
// is stored as [c][B] at offset (q*tiles + t0)*c.
//
// The result is laid out as [D*D][tile blocks][c][block size].
func ReorderTiles(tm1 []float32, c, tiles int, tile Tile, pack int) []float32 {
	d := tile.DomainSize()
	dst := make([]float32, len(tm1))
	reorderTilesRange(tm1, dst, c, tiles, d, pack, 0, d*d)
	return dst
}

// reorderTilesRange reorders the coefficients [q0, q1).
func reorderTilesRange(tm1, dst []float32, c, tiles, d, pack, q0, q1 int) {
	numPacks := c / pack
	for q := q0; q < q1; q++ {
		for t0 := 0; t0 < tiles; {
			bs := tileBlockSize(t0, tiles)
			out := dst[(q*tiles+t0)*c : (q*tiles+t0+bs)*c]
			for p := range numPacks {
				src := tm1[((p*d*d+q)*tiles+t0)*pack:]
				for b := range bs {
					tileValues := src[b*pack : (b+1)*pack]
					for lane, v := range tileValues {
						out[(p*pack+lane)*bs+b] = v
					}
				}
			}
			t0 += bs
		}
	}
}
