// Copyright 2025 Kron ML. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package nn provides neural network building blocks.
//
// # Overview
//
// This package contains:
//   - Module and Container interfaces
//   - Parameter: trainable parameters with gradient storage
//   - Linear, LayerNorm, ReLU, Sigmoid, Sequential
//   - MSELoss
//
// Model structure is exposed explicitly through Container; the optimizer
// discovers leaf layers with a single upfront traversal rather than
// reflection.
//
// # Basic Usage
//
//	import (
//	    "github.com/kron-ml/kron/backend/cpu"
//	    "github.com/kron-ml/kron/nn"
//	)
//
//	backend := cpu.New()
//	model := nn.NewSequential[*cpu.CPUBackend]()
//	model.Add("linear1", nn.NewLinear(5, 4, backend))
//	model.Add("relu1", nn.NewReLU[*cpu.CPUBackend]())
//	model.Add("linear2", nn.NewLinear(4, 3, backend))
//
//	output := model.Forward(input)
package nn
