package optim

import (
	"fmt"

	"github.com/kron-ml/kron/internal/nn"
	"github.com/kron-ml/kron/internal/tensor"
	"gonum.org/v1/gonum/mat"
)

// The reshaper maps between the parameters of one joint group and a single
// grouped matrix whose two axes are the Kronecker-factor dimensions. The
// mapping is exactly invertible: ungrouping the grouped form of a set of
// tensors reproduces them bit for bit.
//
// Layouts:
//   - one tensor: leading dimension x product of the remaining dimensions
//     (a rank-1 vector becomes an n x 1 column)
//   - k equal-shape tensors: one flattened row per tensor (k x numel)
//   - weight + bias: the flattened weight with the bias appended as a final
//     column (leading x rest+1)
type groupLayout int

const (
	layoutSingle groupLayout = iota
	layoutStacked
	layoutWeightBias
)

// classifyLayout determines the grouped-matrix layout for a parameter set.
// The precedence mirrors the grouping rules: equal shapes stack, then the
// weight+bias form, and a lone tensor folds on its leading dimension.
func classifyLayout[B tensor.Backend](params []*nn.Parameter[B]) (groupLayout, error) {
	if len(params) == 0 {
		return 0, fmt.Errorf("empty parameter set")
	}
	if len(params) == 1 {
		return layoutSingle, nil
	}

	equal := true
	for _, p := range params[1:] {
		if !p.Shape().Equal(params[0].Shape()) {
			equal = false
			break
		}
	}
	if equal {
		return layoutStacked, nil
	}

	if len(params) == 2 && isWeightBiasPair(params[0].Shape(), params[1].Shape()) {
		return layoutWeightBias, nil
	}

	return 0, fmt.Errorf("parameters with shapes %v cannot be grouped", shapesOf(params))
}

// isWeightBiasPair reports whether w and b form a weight matrix/kernel plus
// matching bias: w has rank 2 to 5, b has rank 1, and b's length equals w's
// leading dimension.
func isWeightBiasPair(w, b tensor.Shape) bool {
	return w.Rank() >= 2 && w.Rank() <= 5 && b.Rank() == 1 && b[0] == w[0]
}

// groupedDims returns the two Kronecker-factor dimensions (d_C, d_K) for a
// parameter set.
func groupedDims[B tensor.Backend](params []*nn.Parameter[B]) (int, int, error) {
	layout, err := classifyLayout(params)
	if err != nil {
		return 0, 0, err
	}

	switch layout {
	case layoutSingle:
		s := params[0].Shape()
		dC := s[0]
		dK := 1
		for _, d := range s[1:] {
			dK *= d
		}
		return dC, dK, nil
	case layoutStacked:
		return len(params), params[0].Shape().NumElements(), nil
	case layoutWeightBias:
		w := params[0].Shape()
		rest := 1
		for _, d := range w[1:] {
			rest *= d
		}
		return w[0], rest + 1, nil
	default:
		return 0, 0, fmt.Errorf("unknown layout %d", layout)
	}
}

// groupGradient assembles the grouped gradient matrix of a parameter set.
// Every parameter must have a populated gradient.
func groupGradient[B tensor.Backend](params []*nn.Parameter[B]) (*mat.Dense, error) {
	grads := make([][]float32, len(params))
	for i, p := range params {
		g := p.Grad()
		if g == nil {
			return nil, fmt.Errorf("parameter %q has no gradient", p.Name())
		}
		if !g.Shape().Equal(p.Shape()) {
			return nil, fmt.Errorf("parameter %q gradient shape %v does not match parameter shape %v",
				p.Name(), g.Shape(), p.Shape())
		}
		grads[i] = g.Data()
	}
	return groupTensors(params, grads)
}

// groupTensors maps per-parameter flat data to the grouped matrix.
func groupTensors[B tensor.Backend](params []*nn.Parameter[B], data [][]float32) (*mat.Dense, error) {
	layout, err := classifyLayout(params)
	if err != nil {
		return nil, err
	}
	dC, dK, err := groupedDims(params)
	if err != nil {
		return nil, err
	}

	out := mat.NewDense(dC, dK, nil)
	switch layout {
	case layoutSingle:
		src := data[0]
		for r := 0; r < dC; r++ {
			for c := 0; c < dK; c++ {
				out.Set(r, c, float64(src[r*dK+c]))
			}
		}
	case layoutStacked:
		for r, src := range data {
			for c := 0; c < dK; c++ {
				out.Set(r, c, float64(src[c]))
			}
		}
	case layoutWeightBias:
		w, b := data[0], data[1]
		cols := dK - 1
		for r := 0; r < dC; r++ {
			for c := 0; c < cols; c++ {
				out.Set(r, c, float64(w[r*cols+c]))
			}
			out.Set(r, cols, float64(b[r]))
		}
	}
	return out, nil
}

// ungroupUpdate inverts the grouped mapping: it splits a grouped matrix back
// into per-parameter flat slices with the parameters' own element counts.
func ungroupUpdate[B tensor.Backend](u *mat.Dense, params []*nn.Parameter[B]) ([][]float32, error) {
	layout, err := classifyLayout(params)
	if err != nil {
		return nil, err
	}
	dC, dK, err := groupedDims(params)
	if err != nil {
		return nil, err
	}
	if r, c := u.Dims(); r != dC || c != dK {
		return nil, fmt.Errorf("grouped matrix is %dx%d, expected %dx%d", r, c, dC, dK)
	}

	out := make([][]float32, len(params))
	for i, p := range params {
		out[i] = make([]float32, p.Shape().NumElements())
	}

	switch layout {
	case layoutSingle:
		dst := out[0]
		for r := 0; r < dC; r++ {
			for c := 0; c < dK; c++ {
				dst[r*dK+c] = float32(u.At(r, c))
			}
		}
	case layoutStacked:
		for r, dst := range out {
			for c := 0; c < dK; c++ {
				dst[c] = float32(u.At(r, c))
			}
		}
	case layoutWeightBias:
		w, b := out[0], out[1]
		cols := dK - 1
		for r := 0; r < dC; r++ {
			for c := 0; c < cols; c++ {
				w[r*cols+c] = float32(u.At(r, c))
			}
			b[r] = float32(u.At(r, cols))
		}
	}
	return out, nil
}

func shapesOf[B tensor.Backend](params []*nn.Parameter[B]) []tensor.Shape {
	shapes := make([]tensor.Shape, len(params))
	for i, p := range params {
		shapes[i] = p.Shape()
	}
	return shapes
}
