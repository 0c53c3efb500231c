package optim

import (
	"fmt"

	"github.com/kron-ml/kron/internal/nn"
	"github.com/kron-ml/kron/internal/tensor"
)

// GroupOptions selects a subset of parameters and optionally overrides the
// optimizer defaults for them. Nil fields inherit the default value.
//
// Example:
//
//	groups := []optim.GroupOptions[B]{
//	    {Params: headParams, Lam: optim.Override(1e-4)},
//	    {Params: bodyParams},
//	}
type GroupOptions[B tensor.Backend] struct {
	Params []*nn.Parameter[B]

	Beta1      *float64
	Beta2      *float64
	Alpha1     *float64
	Alpha2     *float64
	Lam        *float64
	Kappa      *float64
	T          *int
	TPredicate func(step int) bool
}

// Override is a convenience for populating GroupOptions pointer fields.
func Override[T any](v T) *T {
	return &v
}

// resolve merges the options over the defaults into a concrete config.
func (o *GroupOptions[B]) resolve(defaults ShampooConfig) ShampooConfig {
	cfg := defaults
	if o.Beta1 != nil {
		cfg.Beta1 = *o.Beta1
	}
	if o.Beta2 != nil {
		cfg.Beta2 = *o.Beta2
	}
	if o.Alpha1 != nil {
		cfg.Alpha1 = *o.Alpha1
	}
	if o.Alpha2 != nil {
		cfg.Alpha2 = *o.Alpha2
	}
	if o.Lam != nil {
		cfg.Lam = *o.Lam
	}
	if o.Kappa != nil {
		cfg.Kappa = *o.Kappa
	}
	if o.T != nil {
		cfg.T = *o.T
	}
	if o.TPredicate != nil {
		cfg.TPredicate = o.TPredicate
	}
	return cfg
}

// source is one user-supplied (or implicit) hyperparameter group: the
// parameters it owns and its resolved config. Joint groups inherit the
// config of the single source their members came from.
type source[B tensor.Backend] struct {
	params []*nn.Parameter[B]
	cfg    ShampooConfig
}

// resolveSources turns the user-facing group options into concrete sources.
// With no options, a single source covering every model parameter (in
// declaration order) is created from the defaults.
func resolveSources[B tensor.Backend](layers []layerDesc[B], opts []GroupOptions[B], defaults ShampooConfig) ([]source[B], error) {
	if len(opts) == 0 {
		var all []*nn.Parameter[B]
		for _, l := range layers {
			all = append(all, l.params...)
		}
		return []source[B]{{params: all, cfg: defaults}}, nil
	}

	sources := make([]source[B], 0, len(opts))
	for i, o := range opts {
		if len(o.Params) == 0 {
			return nil, fmt.Errorf("parameter group %d is empty", i)
		}
		sources = append(sources, source[B]{params: o.Params, cfg: o.resolve(defaults)})
	}
	return sources, nil
}
