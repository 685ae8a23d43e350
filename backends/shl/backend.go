// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package shl is the entry point for the C906-style convolution and matmul kernels.
//
// A Backend holds the configuration shared by the operators it creates: the worker pool, the Winograd
// variant, the default fused ReLU and whether every convolution is forced to the reference kernel.
//
// Backends are created from a configuration string "<name>:<options>", either explicitly with
// NewWithConfig, or with New, which reads it from the SHL_BACKEND environment variable. E.g.:
//
//	SHL_BACKEND="c906:parallelism=4,winograd=f43"
//
// The options are comma separated:
//
//   - parallelism=N: size of the worker pool. 0 runs everything on the calling goroutine, -1 is unlimited.
//     Defaults to runtime.NumCPU().
//   - winograd=auto|off|f23|f43|f63: Winograd variant used for 3x3 stride-1 convolutions. Defaults to auto (F(6,3)).
//   - relu=true|false: default fused ReLU for convolutions created with Backend.NewConv.
//   - reference: always use the reference convolution.
package shl

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/gomlx/shl/backends/shl/conv"
	"github.com/gomlx/shl/backends/shl/matmul"
	"github.com/gomlx/shl/internal/workerspool"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

const (
	// BackendName is the name of the optimized backend, and the default one.
	BackendName = "c906"

	// ReferenceBackendName is the name of the backend that only uses the reference kernels.
	ReferenceBackendName = "ref"

	// EnvBackend is the environment variable read by New.
	EnvBackend = "SHL_BACKEND"
)

// Constructor creates a Backend from the options part of the configuration string.
type Constructor func(config string) (*Backend, error)

var (
	registeredConstructors = make(map[string]Constructor)
	firstRegistered        string
)

// Register a backend constructor under the given name. The first registered backend is the default.
func Register(name string, constructor Constructor) {
	if len(registeredConstructors) == 0 {
		firstRegistered = name
	}
	registeredConstructors[name] = constructor
}

func init() {
	Register(BackendName, func(config string) (*Backend, error) {
		return newBackend(BackendName, config)
	})
	Register(ReferenceBackendName, func(config string) (*Backend, error) {
		b, err := newBackend(ReferenceBackendName, config)
		if err != nil {
			return nil, err
		}
		b.forceReference = true
		return b, nil
	})
}

// DefaultConfig is used by New if SHL_BACKEND is not set.
var DefaultConfig string

// New returns a backend configured by the SHL_BACKEND environment variable, or DefaultConfig if it is not set.
func New() (*Backend, error) {
	if config, found := os.LookupEnv(EnvBackend); found {
		return NewWithConfig(config)
	}
	return NewWithConfig(DefaultConfig)
}

// NewWithConfig returns the backend for the configuration "<name>:<options>". The name can be omitted,
// in which case the default backend is used and the whole string is taken as options.
func NewWithConfig(config string) (*Backend, error) {
	backendName := firstRegistered
	backendConfig := config
	if idx := strings.Index(config, ":"); idx != -1 {
		backendName = config[:idx]
		backendConfig = config[idx+1:]
	} else if _, found := registeredConstructors[config]; found {
		backendName, backendConfig = config, ""
	}
	constructor, found := registeredConstructors[backendName]
	if !found {
		return nil, errors.Errorf("can't find backend %q for configuration %q given", backendName, config)
	}
	return constructor(backendConfig)
}

// Backend creates convolution and matmul operators that share a worker pool and configuration.
type Backend struct {
	name           string
	pool           *workerspool.Pool
	winograd       conv.WinogradMode
	relu           bool
	forceReference bool
}

func newBackend(name, config string) (*Backend, error) {
	b := &Backend{
		name:     name,
		pool:     workerspool.New(),
		winograd: conv.WinogradAuto,
	}
	for _, part := range strings.Split(config, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, value, hasValue := strings.Cut(part, "=")
		var err error
		switch key {
		case "parallelism":
			var n int
			n, err = strconv.Atoi(value)
			if err == nil && n < -1 {
				err = errors.Errorf("must be >= -1")
			}
			b.pool.SetMaxParallelism(n)
		case "winograd":
			b.winograd, err = conv.ParseWinogradMode(value)
		case "relu":
			b.relu, err = strconv.ParseBool(value)
		case "reference":
			if hasValue {
				b.forceReference, err = strconv.ParseBool(value)
			} else {
				b.forceReference = true
			}
		default:
			return nil, errors.Errorf("unknown configuration option %q for %s backend", part, name)
		}
		if err != nil {
			return nil, errors.Wrapf(err, "invalid configuration option %q for %s backend", part, name)
		}
	}
	klog.V(1).Infof("shl backend %s", b)
	return b, nil
}

// Name of the backend, as registered.
func (b *Backend) Name() string { return b.name }

// String returns the name and the options of the backend, in the configuration string format.
func (b *Backend) String() string {
	s := fmt.Sprintf("%s:parallelism=%d,winograd=%s,relu=%v", b.name, b.pool.MaxParallelism(), b.winograd, b.relu)
	if b.forceReference {
		s += ",reference"
	}
	return s
}

// Description is a longer description of the Backend that can be used to pretty-print.
func (b *Backend) Description() string {
	if b.forceReference {
		return "SHL reference kernels"
	}
	return "SHL packed GEMM, Winograd and direct convolution kernels"
}

// Pool returns the worker pool shared by the operators of this backend.
func (b *Backend) Pool() *workerspool.Pool { return b.pool }

// Winograd returns the configured Winograd variant.
func (b *Backend) Winograd() conv.WinogradMode { return b.winograd }

// ConvOptions returns the conv.Options used by NewConv.
func (b *Backend) ConvOptions() conv.Options {
	return conv.Options{
		Pool:           b.pool,
		Winograd:       b.winograd,
		ForceReference: b.forceReference,
	}
}

// NewConv creates a convolution bound to this backend. If the backend was configured with relu=true, the
// convolution fuses a ReLU regardless of params.FuseRelu.
func (b *Backend) NewConv(params conv.Params) *conv.Op {
	if b.relu {
		params.FuseRelu = true
	}
	return conv.New(params, b.ConvOptions())
}

// NewMatMul creates a batched matmul bound to this backend.
func (b *Backend) NewMatMul(transA, transB bool) *matmul.Op {
	return matmul.New(transA, transB, matmul.Options{Pool: b.pool})
}
