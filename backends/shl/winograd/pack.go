// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package winograd

// PadPack zero-pads the [c][h][w] input into a ph x pw plane, with the input's top-left corner at
// (padTop, padLeft), and interleaves the channels by pack: the result is laid out as [c/pack][ph][pw][pack].
//
// c must be a multiple of pack. Input rows or columns that fall outside the padded plane are dropped.
func PadPack(input []float32, c, h, w, padTop, padLeft, ph, pw, pack int) []float32 {
	dst := make([]float32, c*ph*pw)
	padPackRange(dst, input, h, w, padTop, padLeft, ph, pw, pack, 0, c/pack)
	return dst
}

// padPackRange fills the channel packs [p0, p1) of dst. dst must be zeroed.
func padPackRange(dst, input []float32, h, w, padTop, padLeft, ph, pw, pack, p0, p1 int) {
	// Visible input window, in input coordinates.
	y0, y1 := max(0, -padTop), min(h, ph-padTop)
	x0, x1 := max(0, -padLeft), min(w, pw-padLeft)
	if y0 >= y1 || x0 >= x1 {
		return
	}
	planeSize := ph * pw * pack
	for p := p0; p < p1; p++ {
		plane := dst[p*planeSize : (p+1)*planeSize]
		for lane := range pack {
			src := input[(p*pack+lane)*h*w:]
			for y := y0; y < y1; y++ {
				row := src[y*w : (y+1)*w]
				out := plane[((y+padTop)*pw+padLeft)*pack:]
				for x := x0; x < x1; x++ {
					out[x*pack+lane] = row[x]
				}
			}
		}
	}
}

// CropUnpack de-interleaves src, laid out as [outC/pack][srcH][srcW][pack], into the plane-major dst
// [outC][outH][outW], dropping the rows and columns beyond outH x outW.
func CropUnpack(src, dst []float32, outC, outH, outW, srcH, srcW, pack int) {
	cropUnpackRange(src, dst, outH, outW, srcH, srcW, pack, 0, outC/pack)
}

func cropUnpackRange(src, dst []float32, outH, outW, srcH, srcW, pack, p0, p1 int) {
	planeSize := srcH * srcW * pack
	for p := p0; p < p1; p++ {
		plane := src[p*planeSize : (p+1)*planeSize]
		for lane := range pack {
			out := dst[(p*pack+lane)*outH*outW : (p*pack+lane+1)*outH*outW]
			for y := range outH {
				row := plane[y*srcW*pack:]
				for x := range outW {
					out[y*outW+x] = row[x*pack+lane]
				}
			}
		}
	}
}
