// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// shl_bench runs convolution scenarios on an SHL backend and reports, for each one, the strategy selected,
// the mean time and the largest relative error against the float64 reference convolution.
//
// Usage:
//
//	shl_bench -backend="c906:parallelism=4,winograd=f43" -scenarios=winograd,1x1 -repeat=20
//	shl_bench -shape=1,32,64,64,32,3,1,1
package main

import (
	"flag"
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/gomlx/shl/backends/shl"
	"github.com/gomlx/shl/pkg/core/dtypes"
	"github.com/muesli/termenv"
	"k8s.io/klog/v2"
)

var (
	flagBackend = flag.String("backend", "", fmt.Sprintf("Backend configuration, \"<name>:<options>\". "+
		"If empty, uses $%s, or the default backend.", shl.EnvBackend))
	flagScenarios = flag.String("scenarios", "all", "Comma-separated scenario groups to run: all, "+
		strings.Join(scenarioGroupsOrder, ", ")+". Set to empty to run only -shape.")
	flagShape = flag.String("shape", "", "Custom convolution to run, \"N,C,H,W,OC,K,S,P[,G]\": batch, input channels, "+
		"height, width, output channels, kernel size, stride, padding and optionally the group.")
	flagRepeat  = flag.Int("repeat", 10, "Number of runs per scenario.")
	flagFP16    = flag.Bool("fp16", false, "Run the scenarios in float16 instead of float32.")
	flagCPUInfo = flag.Bool("cpuinfo", false, "Print the CPU features detected.")
	flagPlain   = flag.Bool("plain", false, "Plain output: no colors and no progress bar.")
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()
	if flag.NArg() > 0 {
		klog.Errorf("Unexpected arguments %q. See 'shl_bench -help'.", flag.Args())
		os.Exit(1)
	}
	if *flagRepeat < 1 {
		klog.Errorf("-repeat must be >= 1, got %d", *flagRepeat)
		os.Exit(1)
	}
	scenarios, err := selectScenarios(*flagScenarios)
	if err != nil {
		klog.Errorf("%+v", err)
		os.Exit(1)
	}
	if *flagShape != "" {
		s, err := parseShape(*flagShape)
		if err != nil {
			klog.Errorf("%v", err)
			os.Exit(1)
		}
		scenarios = append(scenarios, s)
	}
	if len(scenarios) == 0 && !*flagCPUInfo {
		klog.Errorf("Nothing to run: set -scenarios, -shape or -cpuinfo. See 'shl_bench -help'.")
		os.Exit(1)
	}

	var backend *shl.Backend
	if *flagBackend == "" {
		backend, err = shl.New()
	} else {
		backend, err = shl.NewWithConfig(*flagBackend)
	}
	if err != nil {
		klog.Errorf("Failed to create backend: %+v", err)
		os.Exit(1)
	}

	output := termenv.NewOutput(os.Stdout)
	if *flagPlain {
		lipgloss.SetColorProfile(termenv.Ascii)
	} else {
		output.HideCursor()
		defer output.ShowCursor()
	}

	if *flagCPUInfo {
		reportCPU()
	}
	if len(scenarios) == 0 {
		return
	}
	dtype := dtypes.Float32
	if *flagFP16 {
		dtype = dtypes.Float16
	}
	results := make([]result, 0, len(scenarios))
	for _, s := range scenarios {
		r, err := runScenario(backend, s, dtype, *flagRepeat, !*flagPlain)
		if err != nil {
			output.ShowCursor()
			klog.Errorf("%+v", err)
			os.Exit(1)
		}
		results = append(results, r)
	}
	reportResults(backend, dtype, results)
}

func reportCPU() {
	fmt.Println(titleStyle.Render(fmt.Sprintf("CPU: %s/%s, %d cores", runtime.GOOS, runtime.GOARCH, runtime.NumCPU())))
	features := shl.CPUFeatures()
	if len(features) == 0 {
		fmt.Println("  no vector features reported for this architecture")
		return
	}
	table := newTable(lipgloss.Left, lipgloss.Center, lipgloss.Left)
	table.Table.Headers("Feature", "Present", "Description")
	for _, f := range features {
		table.Row(!f.Present, f.Name, fmt.Sprint(f.Present), f.Description)
	}
	fmt.Println(table.Render())
}

// tolerance of the relative error, above which a result is highlighted.
func tolerance(dtype dtypes.DType) float64 {
	if dtype == dtypes.Float16 {
		return 1e-2
	}
	return 1e-3
}

func reportResults(backend *shl.Backend, dtype dtypes.DType, results []result) {
	fmt.Println(titleStyle.Render(fmt.Sprintf("Backend %s, %s, %s runs", backend, dtype, humanize.Comma(int64(*flagRepeat)))))
	table := newTable(lipgloss.Left, lipgloss.Left, lipgloss.Left, lipgloss.Right)
	table.Table.Headers("Scenario", "Shape", "Strategy", "FLOPs", "Mean", "GFLOP/s", "Max Rel. Error")
	for _, r := range results {
		table.Row(r.maxError > tolerance(dtype),
			r.scenario.name,
			r.scenario.shape(),
			r.strategy.String(),
			humanize.SIWithDigits(float64(r.flops), 2, "FLOP"),
			r.mean.String(),
			fmt.Sprintf("%.2f", r.GFLOPS()),
			fmt.Sprintf("%.2g", r.maxError))
	}
	fmt.Println(table.Render())
}
