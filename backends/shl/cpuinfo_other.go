// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

//go:build !riscv64

package shl

func riscvFeatures() []CPUFeature { return nil }
