// Package nn implements the neural network building blocks the optimizer
// trains against.
//
// This package provides:
//   - Module interface: base interface for all NN components
//   - Container interface: explicit structure exposure for leaf-layer discovery
//   - Parameter: trainable parameters with gradient storage
//   - Linear, LayerNorm, ReLU, Sigmoid, Sequential
//   - MSELoss
//
// Design inspired by PyTorch's nn.Module but adapted for Go generics. Model
// structure is exposed explicitly through Container rather than discovered by
// reflection: a single upfront traversal produces a static registry of leaf
// layers and their parameters.
package nn

import (
	"github.com/kron-ml/kron/internal/tensor"
)

// Module is the base interface for all neural network components.
//
// Modules can be composed to build architectures:
//
//	model := nn.NewSequential[B]()
//	model.Add("linear1", nn.NewLinear(784, 128, backend))
//	model.Add("relu", nn.NewReLU[B]())
//	model.Add("linear2", nn.NewLinear(128, 10, backend))
type Module[B tensor.Backend] interface {
	// Forward computes the output of the module given an input tensor.
	Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B]

	// Parameters returns all trainable parameters of this module in
	// declaration order, including nested module parameters. Modules
	// without trainable parameters return an empty slice.
	Parameters() []*Parameter[B]
}

// NamedChild is one named sub-module of a Container.
type NamedChild[B tensor.Backend] struct {
	Name   string
	Module Module[B]
}

// Container is implemented by modules that hold named sub-modules.
//
// Containers are transparent for layer discovery: a module that does NOT
// implement Container is a leaf layer, and its parameters are preconditioned
// jointly. Traversal joins names with dots ("inner.linear").
type Container[B tensor.Backend] interface {
	Module[B]

	// NamedChildren returns the direct sub-modules in declaration order.
	NamedChildren() []NamedChild[B]
}
