package nn

import (
	"math"
	"math/rand"

	"github.com/kron-ml/kron/internal/tensor"
)

// Xavier creates a tensor initialized with Xavier/Glorot uniform values:
// uniform in [-limit, limit] with limit = sqrt(6 / (fanIn + fanOut)).
func Xavier[B tensor.Backend](fanIn, fanOut int, shape tensor.Shape, backend B) *tensor.Tensor[float32, B] {
	t := tensor.Zeros[float32](shape, backend)
	limit := math.Sqrt(6.0 / float64(fanIn+fanOut))
	data := t.Data()
	for i := range data {
		data[i] = float32((rand.Float64()*2 - 1) * limit) //nolint:gosec // G404: math/rand is intentional for ML
	}
	return t
}
