// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package packgemm

import "github.com/gomlx/exceptions"

// ReorderA packs the m x k row-major matrix a (row stride lda) into sa.
//
// Rows are grouped in panels of 4, then 2, then 1. A panel of P rows starting at row r0 is stored
// column by column: sa[r0*k + j*P + i] = a[(r0+i)*lda + j].
//
// sa must have at least PackedSize(m, k) elements and must not alias a.
func ReorderA(a []float32, lda int, sa []float32, m, k int) {
	if len(sa) < PackedSize(m, k) {
		exceptions.Panicf("packgemm.ReorderA: packed buffer has %d elements, %d x %d needs %d", len(sa), m, k, m*k)
	}
	for r0 := 0; r0 < m; {
		width := PanelWidth(r0, m)
		panel := sa[r0*k : (r0+width)*k]
		switch width {
		case 4:
			row0 := a[r0*lda : r0*lda+k]
			row1 := a[(r0+1)*lda : (r0+1)*lda+k]
			row2 := a[(r0+2)*lda : (r0+2)*lda+k]
			row3 := a[(r0+3)*lda : (r0+3)*lda+k]
			for j := range k {
				dst := (*[4]float32)(panel[j*4 : j*4+4])
				dst[0], dst[1], dst[2], dst[3] = row0[j], row1[j], row2[j], row3[j]
			}
		case 2:
			row0 := a[r0*lda : r0*lda+k]
			row1 := a[(r0+1)*lda : (r0+1)*lda+k]
			for j := range k {
				panel[j*2] = row0[j]
				panel[j*2+1] = row1[j]
			}
		default:
			copy(panel, a[r0*lda:r0*lda+k])
		}
		r0 += width
	}
}

// ReorderB packs the k x n row-major matrix b (row stride ldb) into sb.
//
// Columns are grouped in panels of 4, then 2, then 1. A panel of P columns starting at column c0 is
// stored row by row: sb[c0*k + j*P + c] = b[j*ldb + c0 + c].
//
// sb must have at least PackedSize(k, n) elements and must not alias b.
func ReorderB(b []float32, ldb int, sb []float32, k, n int) {
	if len(sb) < PackedSize(k, n) {
		exceptions.Panicf("packgemm.ReorderB: packed buffer has %d elements, %d x %d needs %d", len(sb), k, n, k*n)
	}
	for c0 := 0; c0 < n; {
		width := PanelWidth(c0, n)
		panel := sb[c0*k : (c0+width)*k]
		for j := range k {
			copy(panel[j*width:(j+1)*width], b[j*ldb+c0:j*ldb+c0+width])
		}
		c0 += width
	}
}

// UnpackA reverses ReorderA, writing the m x k matrix into a (row stride lda).
func UnpackA(sa []float32, a []float32, lda int, m, k int) {
	for r0 := 0; r0 < m; {
		width := PanelWidth(r0, m)
		panel := sa[r0*k : (r0+width)*k]
		for j := range k {
			for i := range width {
				a[(r0+i)*lda+j] = panel[j*width+i]
			}
		}
		r0 += width
	}
}

// UnpackB reverses ReorderB, writing the k x n matrix into b (row stride ldb).
func UnpackB(sb []float32, b []float32, ldb int, k, n int) {
	for c0 := 0; c0 < n; {
		width := PanelWidth(c0, n)
		panel := sb[c0*k : (c0+width)*k]
		for j := range k {
			copy(b[j*ldb+c0:j*ldb+c0+width], panel[j*width:(j+1)*width])
		}
		c0 += width
	}
}
