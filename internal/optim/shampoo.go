// Package optim implements structured inverse-free, root-free Shampoo.
//
// The optimizer maintains, per joint preconditioning group, a pair of small
// Kronecker-factor matrices approximating curvature and uses them to
// precondition gradients. Factors evolve by a Riemannian-momentum recurrence
// with a first-order exponential-map truncation, so no matrix inverse or
// matrix root is ever computed.
//
// Example usage:
//
//	model := buildModel(backend)
//	cfg := optim.DefaultShampooConfig()
//	cfg.Beta1 = 0.1
//	opt, err := optim.NewShampoo[B](model, nil, cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	for step := range numSteps {
//	    opt.ZeroGrad()
//	    computeGradients(model, batch)
//	    if err := opt.Step(optim.StepInfo{BatchSize: batch.Size()}); err != nil {
//	        log.Fatal(err)
//	    }
//	}
package optim

import (
	"fmt"
	"strings"

	"github.com/kron-ml/kron/internal/nn"
	"github.com/kron-ml/kron/internal/parallel"
	"github.com/kron-ml/kron/internal/tensor"
	"gonum.org/v1/gonum/mat"
)

// Shampoo is the structured inverse-free, root-free Shampoo optimizer.
//
// At construction the model's leaf layers are discovered once, the active
// parameters are partitioned into joint preconditioning groups, the resolved
// hyperparameters are validated, and identity/zero preconditioner state is
// allocated. Afterwards every Step advances each group independently:
// preconditioner update (on its cadence), gradient preconditioning,
// parameter update.
type Shampoo[B tensor.Backend] struct {
	groups     []*jointGroup[B]
	defaults   ShampooConfig
	globalStep int
	par        parallel.Config
}

// StepInfo carries the per-step context of one optimization step. The batch
// size of the most recent forward/backward pass is passed explicitly rather
// than captured by a forward hook, which makes the ordering requirement a
// plain parameter-passing contract.
type StepInfo struct {
	// BatchSize of the gradient being consumed. May be 0 when the
	// optimizer was configured with a fixed BatchSize.
	BatchSize int
}

// NewShampoo creates the optimizer for a model.
//
// groups selects parameter subsets with per-group hyperparameter overrides;
// nil or empty means all model parameters with the given defaults. Invalid
// hyperparameters, duplicated parameters, or parameters that do not belong
// to the model are construction errors.
func NewShampoo[B tensor.Backend](model nn.Module[B], groups []GroupOptions[B], config ShampooConfig) (*Shampoo[B], error) {
	layers := discoverLayers(model)

	sources, err := resolveSources(layers, groups, config)
	if err != nil {
		return nil, err
	}

	joint, err := buildGroups(layers, sources)
	if err != nil {
		return nil, err
	}

	// Validate every group's resolved hyperparameters before any state is
	// allocated.
	for _, g := range joint {
		if err := g.cfg.validate(); err != nil {
			return nil, fmt.Errorf("group %q: %w", g.layer, err)
		}
	}
	if config.BatchSize < 0 {
		return nil, fmt.Errorf("batch size = %d: must be a positive integer", config.BatchSize)
	}

	// Allocate identity factors, zero factor momenta, and zero heavy-ball
	// buffers. Dimensions derive once from the grouped-matrix shape and
	// stay fixed for the lifetime of the group.
	for _, g := range joint {
		dC, dK, err := groupedDims(g.params)
		if err != nil {
			return nil, fmt.Errorf("group %q: %w", g.layer, err)
		}
		g.state = newKronState(dC, dK)
		g.mom = make([][]float32, len(g.params))
		for i, p := range g.params {
			g.mom[i] = make([]float32, p.Shape().NumElements())
		}
	}

	return &Shampoo[B]{
		groups:   joint,
		defaults: config,
		par:      parallel.DefaultConfig(),
	}, nil
}

// Step performs a single optimization step over all groups.
//
// For every group, in order: preconditioner update (skipped off-cadence),
// gradient preconditioning, parameter update. Groups have no data
// dependencies on one another; with Parallel enabled they are processed
// concurrently. The global step counter advances once, after all groups.
//
// A fatal mid-step error aborts the call and may leave state partially
// updated.
func (s *Shampoo[B]) Step(info StepInfo) error {
	batch := info.BatchSize
	if batch == 0 {
		batch = s.defaults.BatchSize
	}
	if batch <= 0 {
		return fmt.Errorf("batch size = %d: must be a positive integer", batch)
	}

	if s.defaults.Parallel && len(s.groups) > 1 {
		errs := make([]error, len(s.groups))
		parallel.For(len(s.groups), func(i int) {
			errs[i] = s.groups[i].step(s.globalStep, batch)
		}, s.par)
		for _, err := range errs {
			if err != nil {
				return err
			}
		}
	} else {
		for _, g := range s.groups {
			if err := g.step(s.globalStep, batch); err != nil {
				return err
			}
		}
	}

	s.globalStep++
	return nil
}

// step runs one group's update sequence: cadenced preconditioner update,
// gradient preconditioning, parameter update.
func (g *jointGroup[B]) step(globalStep, batchSize int) error {
	grad, err := groupGradient(g.params)
	if err != nil {
		return fmt.Errorf("group %q: %w", g.layer, err)
	}

	if g.cfg.shouldUpdate(globalStep) {
		if err := g.state.update(grad, batchSize, g.cfg.Alpha2, g.cfg.Beta2, g.cfg.Lam); err != nil {
			return fmt.Errorf("group %q: %w", g.layer, err)
		}
	}

	u, err := g.state.precondition(grad)
	if err != nil {
		return fmt.Errorf("group %q: %w", g.layer, err)
	}

	updates, err := ungroupUpdate(u, g.params)
	if err != nil {
		return fmt.Errorf("group %q: %w", g.layer, err)
	}

	g.apply(updates)
	return nil
}

// apply performs the per-parameter update: weight decay before heavy-ball
// momentum, then the learning-rate scaled step. The decay term deliberately
// passes through the momentum accumulation.
func (g *jointGroup[B]) apply(updates [][]float32) {
	beta1 := float32(g.cfg.Beta1)
	alpha1 := float32(g.cfg.Alpha1)
	kappa := float32(g.cfg.Kappa)

	for i, p := range g.params {
		u := updates[i]
		data := p.Tensor().Data()
		buf := g.mom[i]
		for j := range data {
			uj := u[j]
			if kappa != 0 {
				uj += kappa * data[j]
			}
			if alpha1 != 0 {
				buf[j] = alpha1*buf[j] + uj
				uj = buf[j]
			}
			data[j] -= beta1 * uj
		}
	}
}

// ZeroGrad clears gradients for all parameters.
func (s *Shampoo[B]) ZeroGrad() {
	for _, g := range s.groups {
		for _, p := range g.params {
			p.ZeroGrad()
		}
	}
}

// GetLR returns the default parameter-update learning rate (beta1).
func (s *Shampoo[B]) GetLR() float64 {
	return s.defaults.Beta1
}

// SetLR updates beta1 for every group.
// Useful for learning rate scheduling during training.
func (s *Shampoo[B]) SetLR(lr float64) {
	s.defaults.Beta1 = lr
	for _, g := range s.groups {
		g.cfg.Beta1 = lr
	}
}

// GlobalStep returns the number of completed optimization steps.
func (s *Shampoo[B]) GlobalStep() int {
	return s.globalStep
}

// NumGroups returns the number of joint preconditioning groups.
func (s *Shampoo[B]) NumGroups() int {
	return len(s.groups)
}

// GroupSummary describes one joint preconditioning group.
type GroupSummary[B tensor.Backend] struct {
	Layer  string
	Params []*nn.Parameter[B]
	Config ShampooConfig
	DC, DK int
}

// Groups returns a summary of every joint preconditioning group in order.
func (s *Shampoo[B]) Groups() []GroupSummary[B] {
	out := make([]GroupSummary[B], len(s.groups))
	for i, g := range s.groups {
		out[i] = GroupSummary[B]{
			Layer:  g.layer,
			Params: append([]*nn.Parameter[B]{}, g.params...),
			Config: g.cfg,
			DC:     g.state.dC,
			DK:     g.state.dK,
		}
	}
	return out
}

// GroupInfo renders a human-readable description of the resolved grouping.
func (s *Shampoo[B]) GroupInfo() string {
	var b strings.Builder
	for i, g := range s.groups {
		fmt.Fprintf(&b, "group %d: layer %q, factors (%d, %d)\n", i, g.layer, g.state.dC, g.state.dK)
		for _, p := range g.params {
			fmt.Fprintf(&b, "  %s %v\n", p.Name(), p.Shape())
		}
		fmt.Fprintf(&b, "  beta1=%g beta2=%g alpha1=%g alpha2=%g lam=%g kappa=%g T=%d\n",
			g.cfg.Beta1, g.cfg.Beta2, g.cfg.Alpha1, g.cfg.Alpha2, g.cfg.Lam, g.cfg.Kappa, g.cfg.T)
	}
	return b.String()
}

// StateDict returns the optimizer state for checkpointing: the global step,
// every group's factor and momentum matrices, and the per-parameter
// heavy-ball buffers.
//
// Keys: "step", "group.{i}.C", "group.{i}.K", "group.{i}.mC", "group.{i}.mK",
// "group.{i}.momentum.{j}".
func (s *Shampoo[B]) StateDict() map[string]*tensor.RawTensor {
	stateDict := make(map[string]*tensor.RawTensor)

	step := mustRaw(tensor.Shape{1}, tensor.Float64)
	step.AsFloat64()[0] = float64(s.globalStep)
	stateDict["step"] = step

	for i, g := range s.groups {
		stateDict[fmt.Sprintf("group.%d.C", i)] = denseToRaw(g.state.factors[0])
		stateDict[fmt.Sprintf("group.%d.K", i)] = denseToRaw(g.state.factors[1])
		stateDict[fmt.Sprintf("group.%d.mC", i)] = denseToRaw(g.state.momenta[0])
		stateDict[fmt.Sprintf("group.%d.mK", i)] = denseToRaw(g.state.momenta[1])

		for j, p := range g.params {
			raw := mustRaw(p.Shape(), tensor.Float32)
			copy(raw.AsFloat32(), g.mom[j])
			stateDict[fmt.Sprintf("group.%d.momentum.%d", i, j)] = raw
		}
	}

	return stateDict
}

// LoadStateDict restores optimizer state from a checkpoint produced by
// StateDict. Factor and momentum matrices are required per group; missing
// heavy-ball buffers are left at zero.
func (s *Shampoo[B]) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	if raw, ok := stateDict["step"]; ok {
		if raw.DType() != tensor.Float64 || raw.NumElements() != 1 {
			return fmt.Errorf("step entry has dtype %s and %d elements, expected one float64", raw.DType(), raw.NumElements())
		}
		s.globalStep = int(raw.AsFloat64()[0])
	}

	for i, g := range s.groups {
		mats := []struct {
			suffix string
			dst    *mat.Dense
			dim    int
		}{
			{"C", g.state.factors[0], g.state.dC},
			{"K", g.state.factors[1], g.state.dK},
			{"mC", g.state.momenta[0], g.state.dC},
			{"mK", g.state.momenta[1], g.state.dK},
		}
		for _, m := range mats {
			key := fmt.Sprintf("group.%d.%s", i, m.suffix)
			raw, ok := stateDict[key]
			if !ok {
				return fmt.Errorf("missing %s in state dict", key)
			}
			if err := rawToDense(raw, m.dst, m.dim); err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
		}

		for j, p := range g.params {
			key := fmt.Sprintf("group.%d.momentum.%d", i, j)
			raw, ok := stateDict[key]
			if !ok {
				continue
			}
			if !raw.Shape().Equal(p.Shape()) {
				return fmt.Errorf("%s shape mismatch: expected %v, got %v", key, p.Shape(), raw.Shape())
			}
			if raw.DType() != tensor.Float32 {
				return fmt.Errorf("%s dtype mismatch: expected float32, got %s", key, raw.DType())
			}
			copy(g.mom[j], raw.AsFloat32())
		}
	}

	return nil
}

func mustRaw(shape tensor.Shape, dtype tensor.DataType) *tensor.RawTensor {
	raw, err := tensor.NewRaw(shape, dtype, tensor.CPU)
	if err != nil {
		panic(err) // shapes come from existing tensors
	}
	return raw
}

// denseToRaw copies a gonum matrix into a Float64 RawTensor.
func denseToRaw(d *mat.Dense) *tensor.RawTensor {
	rows, cols := d.Dims()
	raw := mustRaw(tensor.Shape{rows, cols}, tensor.Float64)
	data := raw.AsFloat64()
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			data[r*cols+c] = d.At(r, c)
		}
	}
	return raw
}

// rawToDense copies a Float64 RawTensor of shape {n, n} into dst.
func rawToDense(raw *tensor.RawTensor, dst *mat.Dense, n int) error {
	if raw.DType() != tensor.Float64 {
		return fmt.Errorf("dtype mismatch: expected float64, got %s", raw.DType())
	}
	if !raw.Shape().Equal(tensor.Shape{n, n}) {
		return fmt.Errorf("shape mismatch: expected %v, got %v", tensor.Shape{n, n}, raw.Shape())
	}
	data := raw.AsFloat64()
	for r := 0; r < n; r++ {
		for c := 0; c < n; c++ {
			dst.Set(r, c, data[r*n+c])
		}
	}
	return nil
}
