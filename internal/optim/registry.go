package optim

import (
	"github.com/kron-ml/kron/internal/nn"
	"github.com/kron-ml/kron/internal/tensor"
)

// layerDesc describes one leaf layer of the model: its dotted name and its
// parameters in declaration order. The registry is built once at
// construction by a single traversal; parameter identity is the *Parameter
// pointer, never a name.
type layerDesc[B tensor.Backend] struct {
	name   string
	params []*nn.Parameter[B]
}

// discoverLayers walks the model structure and returns every leaf layer that
// owns at least one parameter. Containers are transparent; their children
// are visited in declaration order with dot-joined names.
func discoverLayers[B tensor.Backend](root nn.Module[B]) []layerDesc[B] {
	var layers []layerDesc[B]
	walkModule("", root, &layers)
	return layers
}

func walkModule[B tensor.Backend](name string, m nn.Module[B], layers *[]layerDesc[B]) {
	if c, ok := m.(nn.Container[B]); ok {
		for _, child := range c.NamedChildren() {
			childName := child.Name
			if name != "" {
				childName = name + "." + child.Name
			}
			walkModule(childName, child.Module, layers)
		}
		return
	}

	params := m.Parameters()
	if len(params) == 0 {
		return
	}
	if name == "" {
		name = "model"
	}
	*layers = append(*layers, layerDesc[B]{name: name, params: params})
}
