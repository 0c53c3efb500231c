package optim

import "fmt"

// ShampooConfig holds the hyperparameters of the Shampoo optimizer.
//
// One config acts as the defaults for every joint preconditioning group;
// per-group deviations are expressed with GroupOptions. Configs are resolved
// once at construction and never mutated afterwards.
type ShampooConfig struct {
	Beta1  float64 // parameter-update learning rate (> 0)
	Beta2  float64 // preconditioner learning rate (>= 0)
	Alpha1 float64 // parameter momentum decay ([0, 1))
	Alpha2 float64 // preconditioner (Riemannian) momentum decay ([0, 1))
	Lam    float64 // preconditioner damping (>= 0)
	Kappa  float64 // weight decay coefficient (>= 0)

	// T is the preconditioner update interval: the preconditioner is
	// advanced at global steps 0, T, 2T, ... Must be a positive integer
	// unless TPredicate is set.
	T int

	// TPredicate, when non-nil, replaces the interval test: the
	// preconditioner is advanced exactly when the predicate returns true
	// for the current global step.
	TPredicate func(step int) bool

	// BatchSize fixes the batch size used by the preconditioner update.
	// When 0, the batch size must be supplied per step via StepInfo.
	BatchSize int

	// Parallel fans independent per-group work out over goroutines.
	// Groups partition the parameter set disjointly, so no two groups
	// ever write the same storage.
	Parallel bool
}

// DefaultShampooConfig returns the default hyperparameters.
func DefaultShampooConfig() ShampooConfig {
	return ShampooConfig{
		Beta1:  0.001,
		Beta2:  0.01,
		Alpha1: 0.9,
		Alpha2: 0.5,
		Lam:    0.001,
		Kappa:  0.0,
		T:      1,
	}
}

// validate checks the hyperparameter ranges. Any violation is a fatal
// construction error naming the offending value.
func (c *ShampooConfig) validate() error {
	if c.Beta1 <= 0 {
		return fmt.Errorf("beta1 = %v: must be > 0", c.Beta1)
	}
	if c.Beta2 < 0 {
		return fmt.Errorf("beta2 = %v: must be >= 0", c.Beta2)
	}
	if c.Alpha1 < 0 || c.Alpha1 >= 1 {
		return fmt.Errorf("alpha1 = %v: must be in [0, 1)", c.Alpha1)
	}
	if c.Alpha2 < 0 || c.Alpha2 >= 1 {
		return fmt.Errorf("alpha2 = %v: must be in [0, 1)", c.Alpha2)
	}
	if c.Lam < 0 {
		return fmt.Errorf("lam = %v: must be >= 0", c.Lam)
	}
	if c.Kappa < 0 {
		return fmt.Errorf("kappa = %v: must be >= 0", c.Kappa)
	}
	if c.TPredicate == nil && c.T < 1 {
		return fmt.Errorf("T = %d: must be a positive integer or a predicate", c.T)
	}
	return nil
}

// shouldUpdate reports whether the preconditioner is advanced at the given
// global step.
func (c *ShampooConfig) shouldUpdate(step int) bool {
	if c.TPredicate != nil {
		return c.TPredicate(step)
	}
	return step%c.T == 0
}
