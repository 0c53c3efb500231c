package nn

import (
	"fmt"

	"github.com/kron-ml/kron/internal/tensor"
)

// Sequential is a container module that chains named sub-modules together.
//
// Each module's output becomes the next module's input. Names identify
// sub-modules during layer discovery and in state dictionaries.
//
// Example:
//
//	model := nn.NewSequential[B]()
//	model.Add("linear1", nn.NewLinear(5, 4, backend))
//	model.Add("relu1", nn.NewReLU[B]())
//	model.Add("linear2", nn.NewLinear(4, 3, backend))
//
//	output := model.Forward(input)
type Sequential[B tensor.Backend] struct {
	children []NamedChild[B]
}

// NewSequential creates an empty Sequential container.
func NewSequential[B tensor.Backend]() *Sequential[B] {
	return &Sequential[B]{}
}

// Add appends a named module to the sequence.
// Panics if the name is already taken.
func (s *Sequential[B]) Add(name string, module Module[B]) {
	for _, c := range s.children {
		if c.Name == name {
			panic(fmt.Sprintf("Sequential.Add: duplicate module name %q", name))
		}
	}
	s.children = append(s.children, NamedChild[B]{Name: name, Module: module})
}

// Forward applies all modules in sequence.
func (s *Sequential[B]) Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	output := input
	for _, c := range s.children {
		output = c.Module.Forward(output)
	}
	return output
}

// Parameters returns all trainable parameters from all modules in order.
func (s *Sequential[B]) Parameters() []*Parameter[B] {
	var params []*Parameter[B]
	for _, c := range s.children {
		params = append(params, c.Module.Parameters()...)
	}
	return params
}

// NamedChildren returns the direct sub-modules in declaration order.
func (s *Sequential[B]) NamedChildren() []NamedChild[B] {
	return s.children
}

// Len returns the number of modules in the sequence.
func (s *Sequential[B]) Len() int {
	return len(s.children)
}

// Get returns the module registered under name, or nil.
func (s *Sequential[B]) Get(name string) Module[B] {
	for _, c := range s.children {
		if c.Name == name {
			return c.Module
		}
	}
	return nil
}

// StateDict returns a map of parameter names to raw tensors, with entries
// prefixed by the sub-module name (e.g. "linear1.weight").
func (s *Sequential[B]) StateDict() map[string]*tensor.RawTensor {
	stateDict := make(map[string]*tensor.RawTensor)
	for _, c := range s.children {
		sd, ok := c.Module.(interface {
			StateDict() map[string]*tensor.RawTensor
		})
		if !ok {
			continue
		}
		for name, raw := range sd.StateDict() {
			stateDict[c.Name+"."+name] = raw
		}
	}
	return stateDict
}

// LoadStateDict loads parameters from a state dictionary with
// sub-module-name prefixes.
func (s *Sequential[B]) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	for _, c := range s.children {
		loader, ok := c.Module.(interface {
			LoadStateDict(map[string]*tensor.RawTensor) error
		})
		if !ok {
			continue
		}

		prefix := c.Name + "."
		childDict := make(map[string]*tensor.RawTensor)
		for key, raw := range stateDict {
			if len(key) > len(prefix) && key[:len(prefix)] == prefix {
				childDict[key[len(prefix):]] = raw
			}
		}
		if len(childDict) == 0 {
			continue
		}
		if err := loader.LoadStateDict(childDict); err != nil {
			return fmt.Errorf("failed to load module %q: %w", c.Name, err)
		}
	}
	return nil
}
