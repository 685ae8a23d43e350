// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package shl

import (
	"runtime"

	"golang.org/x/sys/cpu"
)

// CPUFeature is one CPU feature relevant to the kernels, and whether the running CPU has it.
type CPUFeature struct {
	Name        string
	Description string
	Present     bool
}

// CPUFeatures reports the vector features of the running CPU, as detected by golang.org/x/sys/cpu.
//
// The kernels are portable Go and run everywhere: this is informational, to make benchmark numbers comparable.
// The list is empty for architectures other than riscv64, arm64 and amd64.
func CPUFeatures() []CPUFeature {
	switch runtime.GOARCH {
	case "arm64":
		return []CPUFeature{
			{"ASIMD", "NEON baseline", cpu.ARM64.HasASIMD},
			{"FPHP", "FP16 scalar", cpu.ARM64.HasFPHP},
			{"ASIMDHP", "FP16 NEON", cpu.ARM64.HasASIMDHP},
			{"ASIMDFHM", "FP16 FMA", cpu.ARM64.HasASIMDFHM},
			{"SVE", "Scalable Vector Extension", cpu.ARM64.HasSVE},
		}
	case "amd64":
		return []CPUFeature{
			{"AVX", "", cpu.X86.HasAVX},
			{"AVX2", "", cpu.X86.HasAVX2},
			{"FMA", "fused multiply-add", cpu.X86.HasFMA},
			{"AVX512F", "", cpu.X86.HasAVX512F},
		}
	}
	return riscvFeatures()
}
