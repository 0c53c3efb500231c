// Copyright 2025 Kron ML. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package optim

import (
	"github.com/kron-ml/kron/internal/nn"
	"github.com/kron-ml/kron/internal/optim"
	"github.com/kron-ml/kron/internal/tensor"
)

// Shampoo is the structured inverse-free, root-free Shampoo optimizer.
type Shampoo[B tensor.Backend] = optim.Shampoo[B]

// ShampooConfig holds the optimizer hyperparameters.
type ShampooConfig = optim.ShampooConfig

// GroupOptions selects a parameter subset with per-group overrides.
type GroupOptions[B tensor.Backend] = optim.GroupOptions[B]

// GroupSummary describes one joint preconditioning group.
type GroupSummary[B tensor.Backend] = optim.GroupSummary[B]

// StepInfo carries the per-step context of one optimization step.
type StepInfo = optim.StepInfo

// DefaultShampooConfig returns the default hyperparameters.
func DefaultShampooConfig() ShampooConfig {
	return optim.DefaultShampooConfig()
}

// Override is a convenience for populating GroupOptions pointer fields.
func Override[T any](v T) *T {
	return optim.Override(v)
}

// NewShampoo creates the optimizer for a model.
//
// Example:
//
//	cfg := optim.DefaultShampooConfig()
//	cfg.Beta1 = 0.1
//	opt, err := optim.NewShampoo[*cpu.CPUBackend](model, nil, cfg)
func NewShampoo[B tensor.Backend](model nn.Module[B], groups []GroupOptions[B], config ShampooConfig) (*Shampoo[B], error) {
	return optim.NewShampoo(model, groups, config)
}
