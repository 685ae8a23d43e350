// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

//go:build riscv64

package shl

import "golang.org/x/sys/cpu"

func riscvFeatures() []CPUFeature {
	return []CPUFeature{
		{"V", "RISC-V vector extension", cpu.RISCV64.HasV},
		{"C", "compressed instructions", cpu.RISCV64.HasC},
		{"Zba", "address generation", cpu.RISCV64.HasZba},
		{"Zbb", "basic bit manipulation", cpu.RISCV64.HasZbb},
		{"FastMisaligned", "fast misaligned accesses", cpu.RISCV64.HasFastMisaligned},
	}
}
