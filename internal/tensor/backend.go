package tensor

// Backend defines the interface that compute backends must implement.
// Backends perform the actual computation for tensor operations; the
// operation set is the subset needed by the nn stack and the optimizer.
//
// Implementations:
//   - CPU: pure Go (internal/backend/cpu)
type Backend interface {
	// Element-wise binary operations (NumPy-style broadcasting).
	Add(a, b *RawTensor) *RawTensor
	Sub(a, b *RawTensor) *RawTensor
	Mul(a, b *RawTensor) *RawTensor
	Div(a, b *RawTensor) *RawTensor

	// MatMul performs 2-D matrix multiplication: (M, K) @ (K, N) -> (M, N).
	MatMul(a, b *RawTensor) *RawTensor

	// Transpose swaps the two axes of a 2-D tensor.
	Transpose(t *RawTensor) *RawTensor

	// Reshape returns a view with a new shape (same element count).
	Reshape(t *RawTensor, shape Shape) *RawTensor

	// Scalar operations (element-wise with a scalar).
	MulScalar(x *RawTensor, scalar float64) *RawTensor
	AddScalar(x *RawTensor, scalar float64) *RawTensor

	// Metadata.
	Name() string
	Device() Device
}
