package optim

import (
	"fmt"

	"github.com/kron-ml/kron/internal/nn"
	"github.com/kron-ml/kron/internal/tensor"
)

// jointGroup is the atomic unit of preconditioning: one or more parameters
// of a single layer sharing one pair of Kronecker factors, the resolved
// hyperparameters they inherit from their source group, and the per-parameter
// heavy-ball buffers. Groups are built once at construction and are
// independent of one another afterwards.
type jointGroup[B tensor.Backend] struct {
	layer  string
	params []*nn.Parameter[B]
	cfg    ShampooConfig
	state  *kronState
	mom    [][]float32 // heavy-ball buffers, one per parameter, indexed by position
}

// buildGroups partitions the active parameter set into joint preconditioning
// groups aligned with the model's leaf layers.
//
// Per layer, in registry order:
//   - parameters of identical shape from a single source group merge
//   - a (weight, bias) pair from a single source group merges
//   - anything else, including a layer whose parameters are split across
//     several source groups, falls back to per-parameter singleton groups
//
// The fallback for split layers is deliberate and silent: singleton groups
// are always well-defined, and each inherits its own source's
// hyperparameters, so a split can never create an ambiguity.
//
// Postcondition: the produced groups cover the active parameter set exactly,
// with no parameter lost or duplicated; a violation is a construction error.
func buildGroups[B tensor.Backend](layers []layerDesc[B], sources []source[B]) ([]*jointGroup[B], error) {
	// Parameter identity is pointer identity.
	paramSource := make(map[*nn.Parameter[B]]int)
	active := 0
	for i, src := range sources {
		for _, p := range src.params {
			if prev, ok := paramSource[p]; ok {
				return nil, fmt.Errorf("parameter %q appears in groups %d and %d", p.Name(), prev, i)
			}
			paramSource[p] = i
			active++
		}
	}

	var groups []*jointGroup[B]
	covered := 0
	for _, layer := range layers {
		var params []*nn.Parameter[B]
		srcSet := make(map[int]struct{})
		for _, p := range layer.params {
			if src, ok := paramSource[p]; ok {
				params = append(params, p)
				srcSet[src] = struct{}{}
			}
		}
		if len(params) == 0 {
			continue // layer not part of the active set
		}
		covered += len(params)

		if len(srcSet) == 1 && mergeable(params) {
			var srcIdx int
			for i := range srcSet {
				srcIdx = i
			}
			groups = append(groups, &jointGroup[B]{
				layer:  layer.name,
				params: params,
				cfg:    sources[srcIdx].cfg,
			})
			continue
		}

		// Singleton fallback: one group per parameter.
		for _, p := range params {
			groups = append(groups, &jointGroup[B]{
				layer:  layer.name,
				params: []*nn.Parameter[B]{p},
				cfg:    sources[paramSource[p]].cfg,
			})
		}
	}

	if covered != active {
		return nil, fmt.Errorf("grouping covered %d of %d parameters: every parameter must belong to a layer of the model", covered, active)
	}

	return groups, nil
}

// mergeable reports whether a layer's parameters can share one pair of
// Kronecker factors: either all of identical shape (e.g. a normalization
// layer's scale and shift) or a weight plus matching bias.
func mergeable[B tensor.Backend](params []*nn.Parameter[B]) bool {
	if len(params) == 1 {
		return true
	}

	equal := true
	for _, p := range params[1:] {
		if !p.Shape().Equal(params[0].Shape()) {
			equal = false
			break
		}
	}
	if equal {
		return true
	}

	return len(params) == 2 && isWeightBiasPair(params[0].Shape(), params[1].Shape())
}
