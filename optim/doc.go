// Copyright 2025 Kron ML. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package optim provides the structured inverse-free, root-free Shampoo
// optimizer.
//
// # Overview
//
// The optimizer partitions a model's parameters into joint preconditioning
// groups aligned with leaf layers, maintains a pair of small Kronecker
// factors per group, and preconditions gradients through them. The factors
// follow a Riemannian-momentum recurrence with a first-order exponential-map
// truncation, so no matrix inverse or matrix root is ever computed.
//
// # Basic Usage
//
//	import (
//	    "github.com/kron-ml/kron/backend/cpu"
//	    "github.com/kron-ml/kron/nn"
//	    "github.com/kron-ml/kron/optim"
//	)
//
//	backend := cpu.New()
//	model := buildModel(backend)
//
//	cfg := optim.DefaultShampooConfig()
//	cfg.Beta1 = 0.1
//	opt, err := optim.NewShampoo[*cpu.CPUBackend](model, nil, cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	for step := 0; step < numSteps; step++ {
//	    opt.ZeroGrad()
//	    computeGradients(model, batch)
//	    if err := opt.Step(optim.StepInfo{BatchSize: batchSize}); err != nil {
//	        log.Fatal(err)
//	    }
//	}
//
// # Per-group hyperparameters
//
// GroupOptions selects parameter subsets and overrides individual
// hyperparameters; every joint group derived from a user group inherits that
// group's resolved values:
//
//	groups := []optim.GroupOptions[*cpu.CPUBackend]{
//	    {Params: headParams, Lam: optim.Override(1e-4)},
//	    {Params: bodyParams},
//	}
//	opt, err := optim.NewShampoo(model, groups, cfg)
package optim
