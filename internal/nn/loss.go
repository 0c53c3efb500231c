package nn

import (
	"github.com/kron-ml/kron/internal/tensor"
)

// MSELoss computes Mean Squared Error loss: mean((predictions - targets)²).
//
// Example:
//
//	mse := nn.NewMSELoss(backend)
//	loss := mse.Forward(model.Forward(x), y)
type MSELoss[B tensor.Backend] struct {
	backend B
}

// NewMSELoss creates a new MSE loss function.
func NewMSELoss[B tensor.Backend](backend B) *MSELoss[B] {
	return &MSELoss[B]{backend: backend}
}

// Forward computes the MSE loss as a scalar tensor of shape [1].
// Predictions and targets must have identical shapes.
func (m *MSELoss[B]) Forward(predictions, targets *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	if !predictions.Shape().Equal(targets.Shape()) {
		panic("MSELoss: predictions and targets must have the same shape")
	}

	diff := predictions.Sub(targets)
	squared := diff.Mul(diff)

	data := squared.Data()
	var sum float64
	for _, v := range data {
		sum += float64(v)
	}

	loss := tensor.Zeros[float32](tensor.Shape{1}, m.backend)
	loss.Data()[0] = float32(sum / float64(len(data)))
	return loss
}

// Backward computes the gradient of the loss with respect to predictions:
// 2 * (predictions - targets) / n.
func (m *MSELoss[B]) Backward(predictions, targets *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	if !predictions.Shape().Equal(targets.Shape()) {
		panic("MSELoss: predictions and targets must have the same shape")
	}
	n := predictions.NumElements()
	return predictions.Sub(targets).MulScalar(2.0 / float64(n))
}

// Parameters returns an empty slice (loss functions have no trainable parameters).
func (m *MSELoss[B]) Parameters() []*Parameter[B] {
	return nil
}
