package nn

import (
	"fmt"
	"math"

	"github.com/kron-ml/kron/internal/tensor"
)

// LayerNorm applies Layer Normalization over the last dimension.
//
// Formula: y = weight * (x - mean(x)) / sqrt(var(x) + eps) + bias
//
// The scale and shift parameters both have shape [features]; since they are
// equal-length vectors of one layer they are preconditioned jointly by the
// optimizer.
type LayerNorm[B tensor.Backend] struct {
	features int
	epsilon  float32
	weight   *Parameter[B] // learnable scale [features], initialized to ones
	bias     *Parameter[B] // learnable shift [features], initialized to zeros
	backend  B
}

// NewLayerNorm creates a new LayerNorm layer over the given feature size.
// epsilon is the numerical stability constant (typically 1e-5).
func NewLayerNorm[B tensor.Backend](features int, epsilon float32, backend B) *LayerNorm[B] {
	return &LayerNorm[B]{
		features: features,
		epsilon:  epsilon,
		weight:   NewParameter("weight", tensor.Ones[float32](tensor.Shape{features}, backend)),
		bias:     NewParameter("bias", tensor.Zeros[float32](tensor.Shape{features}, backend)),
		backend:  backend,
	}
}

// Forward normalizes each row of a [batch, features] input and applies the
// learned scale and shift.
func (l *LayerNorm[B]) Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	shape := input.Shape()
	if len(shape) != 2 || shape[1] != l.features {
		panic(fmt.Sprintf("LayerNorm.Forward: expected [batch, %d] input, got %v", l.features, shape))
	}

	batch := shape[0]
	output := input.Clone()
	data := output.Data()
	w := l.weight.Tensor().Data()
	b := l.bias.Tensor().Data()

	for i := 0; i < batch; i++ {
		row := data[i*l.features : (i+1)*l.features]

		var mean float64
		for _, v := range row {
			mean += float64(v)
		}
		mean /= float64(l.features)

		var variance float64
		for _, v := range row {
			d := float64(v) - mean
			variance += d * d
		}
		variance /= float64(l.features)

		inv := 1.0 / math.Sqrt(variance+float64(l.epsilon))
		for j, v := range row {
			row[j] = w[j]*float32((float64(v)-mean)*inv) + b[j]
		}
	}

	return output
}

// Parameters returns [weight, bias].
func (l *LayerNorm[B]) Parameters() []*Parameter[B] {
	return []*Parameter[B]{l.weight, l.bias}
}

// Weight returns the scale parameter.
func (l *LayerNorm[B]) Weight() *Parameter[B] {
	return l.weight
}

// Bias returns the shift parameter.
func (l *LayerNorm[B]) Bias() *Parameter[B] {
	return l.bias
}

// StateDict returns a map of parameter names to raw tensors.
func (l *LayerNorm[B]) StateDict() map[string]*tensor.RawTensor {
	return map[string]*tensor.RawTensor{
		"weight": l.weight.Tensor().Raw(),
		"bias":   l.bias.Tensor().Raw(),
	}
}

// LoadStateDict loads parameters from a state dictionary.
func (l *LayerNorm[B]) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	if err := loadParam(stateDict, "weight", l.weight); err != nil {
		return err
	}
	return loadParam(stateDict, "bias", l.bias)
}
