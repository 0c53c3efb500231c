// Copyright 2025 Kron ML. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package cpu provides the public API for the CPU compute backend.
package cpu

import (
	"github.com/kron-ml/kron/internal/backend/cpu"
)

// CPUBackend implements tensor operations on the CPU.
type CPUBackend = cpu.CPUBackend

// New creates a new CPU backend.
//
// Example:
//
//	backend := cpu.New()
//	t := tensor.Zeros[float32](tensor.Shape{3, 4}, backend)
func New() *CPUBackend {
	return cpu.New()
}
