package optim

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kron-ml/kron/internal/backend/cpu"
	"github.com/kron-ml/kron/internal/nn"
	"github.com/kron-ml/kron/internal/tensor"
)

// buildNestedModel builds the reference model used by the grouping tests:
//
//	linear1: Linear(5, 4)      weight [4,5], bias [4]
//	relu
//	inner.linear: Linear(4, 4) weight [4,4], no bias
//	inner.sigmoid
//	linear2: Linear(4, 3)      weight [3,4], bias [3]
func buildNestedModel(backend *cpu.CPUBackend) *nn.Sequential[cpuB] {
	inner := nn.NewSequential[cpuB]()
	inner.Add("linear", nn.NewLinearNoBias(4, 4, backend))
	inner.Add("sigmoid", nn.NewSigmoid[cpuB]())

	model := nn.NewSequential[cpuB]()
	model.Add("linear1", nn.NewLinear(5, 4, backend))
	model.Add("relu", nn.NewReLU[cpuB]())
	model.Add("inner", inner)
	model.Add("linear2", nn.NewLinear(4, 3, backend))
	return model
}

func linearOf(model *nn.Sequential[cpuB], names ...string) *nn.Linear[cpuB] {
	m := nn.Module[cpuB](model)
	for _, name := range names {
		m = m.(*nn.Sequential[cpuB]).Get(name)
	}
	return m.(*nn.Linear[cpuB])
}

func TestDiscoverLayers(t *testing.T) {
	backend := cpu.New()
	model := buildNestedModel(backend)

	layers := discoverLayers[cpuB](model)
	require.Len(t, layers, 3, "parameter-free layers must not appear")
	require.Equal(t, "linear1", layers[0].name)
	require.Equal(t, "inner.linear", layers[1].name)
	require.Equal(t, "linear2", layers[2].name)
	require.Len(t, layers[0].params, 2)
	require.Len(t, layers[1].params, 1)
	require.Len(t, layers[2].params, 2)
}

func TestGroupingDefault(t *testing.T) {
	backend := cpu.New()
	model := buildNestedModel(backend)

	opt, err := NewShampoo[cpuB](model, nil, DefaultShampooConfig())
	require.NoError(t, err)

	groups := opt.Groups()
	require.Len(t, groups, 3)

	// linear1: weight [4,5] and bias [4] merge with the bias as an extra
	// column of the grouped matrix.
	require.Equal(t, "linear1", groups[0].Layer)
	require.Len(t, groups[0].Params, 2)
	require.Equal(t, 4, groups[0].DC)
	require.Equal(t, 6, groups[0].DK)

	// inner.linear: a lone weight [4,4].
	require.Equal(t, "inner.linear", groups[1].Layer)
	require.Len(t, groups[1].Params, 1)
	require.Equal(t, 4, groups[1].DC)
	require.Equal(t, 4, groups[1].DK)

	// linear2: weight [3,4] and bias [3].
	require.Equal(t, "linear2", groups[2].Layer)
	require.Len(t, groups[2].Params, 2)
	require.Equal(t, 3, groups[2].DC)
	require.Equal(t, 5, groups[2].DK)
}

func TestGroupingOverrideInheritance(t *testing.T) {
	backend := cpu.New()
	model := buildNestedModel(backend)

	linear1 := linearOf(model, "linear1")
	rest := []*nn.Parameter[cpuB]{
		linearOf(model, "inner", "linear").Weight(),
		linearOf(model, "linear2").Weight(),
		linearOf(model, "linear2").Bias(),
	}

	groupOpts := []GroupOptions[cpuB]{
		{
			Params: []*nn.Parameter[cpuB]{linear1.Weight(), linear1.Bias()},
			Lam:    Override(0.25),
		},
		{Params: rest},
	}

	defaults := DefaultShampooConfig()
	opt, err := NewShampoo[cpuB](model, groupOpts, defaults)
	require.NoError(t, err)

	groups := opt.Groups()
	require.Len(t, groups, 3)
	require.Equal(t, 0.25, groups[0].Config.Lam, "linear1 inherits the override")
	require.Equal(t, defaults.Lam, groups[1].Config.Lam)
	require.Equal(t, defaults.Lam, groups[2].Config.Lam)
	for _, g := range groups {
		require.Equal(t, defaults.Beta2, g.Config.Beta2, "unset fields inherit defaults")
	}
}

// A layer whose parameters land in different hyperparameter groups cannot
// share one factor pair and falls back to per-parameter singletons.
func TestGroupingSplitLayerFallsBackToSingletons(t *testing.T) {
	backend := cpu.New()

	model := nn.NewSequential[cpuB]()
	model.Add("fc1", nn.NewLinear(4, 4, backend))
	model.Add("fc2", nn.NewLinear(4, 2, backend))

	fc1 := linearOf(model, "fc1")
	fc2 := linearOf(model, "fc2")

	groupOpts := []GroupOptions[cpuB]{
		{Params: []*nn.Parameter[cpuB]{fc1.Weight(), fc2.Weight()}, Kappa: Override(0.01)},
		{Params: []*nn.Parameter[cpuB]{fc1.Bias(), fc2.Bias()}},
	}

	opt, err := NewShampoo[cpuB](model, groupOpts, DefaultShampooConfig())
	require.NoError(t, err)

	groups := opt.Groups()
	require.Len(t, groups, 4)
	for _, g := range groups {
		require.Len(t, g.Params, 1)
	}

	// Each singleton keeps its own source's hyperparameters.
	require.Equal(t, "fc1", groups[0].Layer)
	require.Equal(t, 0.01, groups[0].Config.Kappa) // fc1 weight
	require.Equal(t, 0.0, groups[1].Config.Kappa)  // fc1 bias
	require.Equal(t, "fc2", groups[2].Layer)
	require.Equal(t, 0.01, groups[2].Config.Kappa) // fc2 weight
	require.Equal(t, 0.0, groups[3].Config.Kappa)  // fc2 bias

	// Bias singletons fold to column vectors.
	require.Equal(t, 4, groups[1].DC)
	require.Equal(t, 1, groups[1].DK)
}

func TestGroupingEqualShapesMerge(t *testing.T) {
	backend := cpu.New()

	model := nn.NewSequential[cpuB]()
	model.Add("norm", nn.NewLayerNorm(8, 1e-5, backend))

	opt, err := NewShampoo[cpuB](model, nil, DefaultShampooConfig())
	require.NoError(t, err)

	groups := opt.Groups()
	require.Len(t, groups, 1)
	require.Len(t, groups[0].Params, 2)
	require.Equal(t, 2, groups[0].DC, "one row per stacked tensor")
	require.Equal(t, 8, groups[0].DK)
}

// Building the optimizer twice over the same model and groups must produce
// identical grouping, in content and in order.
func TestGroupingDeterminism(t *testing.T) {
	backend := cpu.New()
	model := buildNestedModel(backend)

	build := func() []GroupSummary[cpuB] {
		opt, err := NewShampoo[cpuB](model, nil, DefaultShampooConfig())
		require.NoError(t, err)
		return opt.Groups()
	}

	first := build()
	second := build()
	require.Len(t, second, len(first))
	for i := range first {
		require.Equal(t, first[i].Layer, second[i].Layer)
		require.Equal(t, first[i].DC, second[i].DC)
		require.Equal(t, first[i].DK, second[i].DK)
		require.Len(t, second[i].Params, len(first[i].Params))
		for j := range first[i].Params {
			require.Same(t, first[i].Params[j], second[i].Params[j])
		}
	}
}

func TestGroupingErrors(t *testing.T) {
	backend := cpu.New()
	model := buildNestedModel(backend)
	fc := linearOf(model, "linear1")

	// Duplicated parameter across groups.
	_, err := NewShampoo[cpuB](model, []GroupOptions[cpuB]{
		{Params: []*nn.Parameter[cpuB]{fc.Weight()}},
		{Params: []*nn.Parameter[cpuB]{fc.Weight()}},
	}, DefaultShampooConfig())
	require.ErrorContains(t, err, "appears in groups")

	// Empty group.
	_, err = NewShampoo[cpuB](model, []GroupOptions[cpuB]{
		{Params: []*nn.Parameter[cpuB]{fc.Weight()}},
		{},
	}, DefaultShampooConfig())
	require.ErrorContains(t, err, "empty")

	// Parameter that does not belong to the model.
	stray := newTestParam(t, "stray", tensor.Shape{2, 2}, rangeData(4))
	_, err = NewShampoo[cpuB](model, []GroupOptions[cpuB]{
		{Params: []*nn.Parameter[cpuB]{stray}},
	}, DefaultShampooConfig())
	require.ErrorContains(t, err, "must belong to a layer")
}
