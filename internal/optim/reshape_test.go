package optim

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kron-ml/kron/internal/backend/cpu"
	"github.com/kron-ml/kron/internal/nn"
	"github.com/kron-ml/kron/internal/tensor"
)

type cpuB = *cpu.CPUBackend

// newTestParam builds a parameter with the given flat data, and a gradient
// holding the same values so grouping tests can exercise groupGradient.
func newTestParam(t *testing.T, name string, shape tensor.Shape, data []float32) *nn.Parameter[cpuB] {
	t.Helper()
	backend := cpu.New()
	tens, err := tensor.FromSlice(data, shape, backend)
	require.NoError(t, err)
	p := nn.NewParameter(name, tens)
	grad, err := tensor.FromSlice(data, shape, backend)
	require.NoError(t, err)
	p.SetGrad(grad)
	return p
}

func rangeData(n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(i) - float32(n)/3
	}
	return out
}

func TestClassifyLayout(t *testing.T) {
	matrix := newTestParam(t, "weight", tensor.Shape{4, 3}, rangeData(12))
	vector := newTestParam(t, "bias", tensor.Shape{4}, rangeData(4))
	scale := newTestParam(t, "weight", tensor.Shape{4}, rangeData(4))

	layout, err := classifyLayout([]*nn.Parameter[cpuB]{matrix})
	require.NoError(t, err)
	require.Equal(t, layoutSingle, layout)

	layout, err = classifyLayout([]*nn.Parameter[cpuB]{vector})
	require.NoError(t, err)
	require.Equal(t, layoutSingle, layout)

	layout, err = classifyLayout([]*nn.Parameter[cpuB]{scale, vector})
	require.NoError(t, err)
	require.Equal(t, layoutStacked, layout)

	layout, err = classifyLayout([]*nn.Parameter[cpuB]{matrix, vector})
	require.NoError(t, err)
	require.Equal(t, layoutWeightBias, layout)

	// Mismatched bias length is not a weight/bias pair.
	short := newTestParam(t, "bias", tensor.Shape{3}, rangeData(3))
	_, err = classifyLayout([]*nn.Parameter[cpuB]{matrix, short})
	require.Error(t, err)
}

func TestGroupedDims(t *testing.T) {
	cases := []struct {
		name   string
		params []*nn.Parameter[cpuB]
		dC, dK int
	}{
		{
			name:   "matrix",
			params: []*nn.Parameter[cpuB]{newTestParam(t, "weight", tensor.Shape{4, 3}, rangeData(12))},
			dC:     4, dK: 3,
		},
		{
			name:   "vector becomes column",
			params: []*nn.Parameter[cpuB]{newTestParam(t, "bias", tensor.Shape{5}, rangeData(5))},
			dC:     5, dK: 1,
		},
		{
			name:   "rank-3 folds trailing dims",
			params: []*nn.Parameter[cpuB]{newTestParam(t, "kernel", tensor.Shape{2, 3, 4}, rangeData(24))},
			dC:     2, dK: 12,
		},
		{
			name: "equal shapes stack",
			params: []*nn.Parameter[cpuB]{
				newTestParam(t, "weight", tensor.Shape{4}, rangeData(4)),
				newTestParam(t, "bias", tensor.Shape{4}, rangeData(4)),
			},
			dC: 2, dK: 4,
		},
		{
			name: "weight plus bias appends a column",
			params: []*nn.Parameter[cpuB]{
				newTestParam(t, "weight", tensor.Shape{3, 4}, rangeData(12)),
				newTestParam(t, "bias", tensor.Shape{3}, rangeData(3)),
			},
			dC: 3, dK: 5,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			dC, dK, err := groupedDims(tc.params)
			require.NoError(t, err)
			require.Equal(t, tc.dC, dC)
			require.Equal(t, tc.dK, dK)
		})
	}
}

// Ungrouping the grouped form must reproduce every input bit for bit.
func TestGroupUngroupRoundtrip(t *testing.T) {
	cases := []struct {
		name   string
		params []*nn.Parameter[cpuB]
	}{
		{
			name:   "single matrix",
			params: []*nn.Parameter[cpuB]{newTestParam(t, "weight", tensor.Shape{4, 3}, rangeData(12))},
		},
		{
			name:   "single vector",
			params: []*nn.Parameter[cpuB]{newTestParam(t, "bias", tensor.Shape{5}, rangeData(5))},
		},
		{
			name: "stacked",
			params: []*nn.Parameter[cpuB]{
				newTestParam(t, "weight", tensor.Shape{6}, rangeData(6)),
				newTestParam(t, "bias", tensor.Shape{6}, []float32{9, -8, 7, -6, 5, -4}),
			},
		},
		{
			name: "weight and bias",
			params: []*nn.Parameter[cpuB]{
				newTestParam(t, "weight", tensor.Shape{3, 4}, rangeData(12)),
				newTestParam(t, "bias", tensor.Shape{3}, rangeData(3)),
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			grouped, err := groupGradient(tc.params)
			require.NoError(t, err)

			back, err := ungroupUpdate(grouped, tc.params)
			require.NoError(t, err)

			require.Len(t, back, len(tc.params))
			for i, p := range tc.params {
				require.Equal(t, p.Grad().Data(), back[i], "parameter %d", i)
			}
		})
	}
}

func TestGroupGradientErrors(t *testing.T) {
	backend := cpu.New()

	tens, err := tensor.FromSlice(rangeData(6), tensor.Shape{2, 3}, backend)
	require.NoError(t, err)
	p := nn.NewParameter("weight", tens)

	_, err = groupGradient([]*nn.Parameter[cpuB]{p})
	require.ErrorContains(t, err, "no gradient")

	wrong, err := tensor.FromSlice(rangeData(6), tensor.Shape{3, 2}, backend)
	require.NoError(t, err)
	p.SetGrad(wrong)
	_, err = groupGradient([]*nn.Parameter[cpuB]{p})
	require.ErrorContains(t, err, "shape")
}
