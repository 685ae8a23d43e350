// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package conv

import "github.com/pkg/errors"

var (
	// ErrOutputDimMismatch is returned by Init when the output tensor doesn't have the size the parameters
	// imply.
	ErrOutputDimMismatch = errors.New("output dim don't match")

	// ErrUnsupported is returned for layouts, dtypes or parameter combinations no kernel implements.
	ErrUnsupported = errors.New("unsupported convolution configuration")

	// ErrNotInitialized is returned by Run before a successful Init.
	ErrNotInitialized = errors.New("convolution not initialized")

	// ErrAlreadyInitialized is returned by Init when called again with a different weight tensor.
	ErrAlreadyInitialized = errors.New("convolution already initialized with different weights")
)
