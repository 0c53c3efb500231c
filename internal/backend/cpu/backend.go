// Package cpu implements the pure-Go CPU backend for tensor operations.
package cpu

import (
	"fmt"

	"github.com/kron-ml/kron/internal/tensor"
)

// CPUBackend implements tensor operations on the CPU.
type CPUBackend struct {
	device tensor.Device
}

// New creates a new CPU backend.
func New() *CPUBackend {
	return &CPUBackend{device: tensor.CPU}
}

// Name returns the backend name.
func (cpu *CPUBackend) Name() string {
	return "CPU"
}

// Device returns the compute device.
func (cpu *CPUBackend) Device() tensor.Device {
	return cpu.device
}

// Add performs element-wise addition with NumPy-style broadcasting.
func (cpu *CPUBackend) Add(a, b *tensor.RawTensor) *tensor.RawTensor {
	return cpu.binaryOp("add", a, b,
		func(x, y float32) float32 { return x + y },
		func(x, y float64) float64 { return x + y })
}

// Sub performs element-wise subtraction with NumPy-style broadcasting.
func (cpu *CPUBackend) Sub(a, b *tensor.RawTensor) *tensor.RawTensor {
	return cpu.binaryOp("sub", a, b,
		func(x, y float32) float32 { return x - y },
		func(x, y float64) float64 { return x - y })
}

// Mul performs element-wise multiplication with NumPy-style broadcasting.
func (cpu *CPUBackend) Mul(a, b *tensor.RawTensor) *tensor.RawTensor {
	return cpu.binaryOp("mul", a, b,
		func(x, y float32) float32 { return x * y },
		func(x, y float64) float64 { return x * y })
}

// Div performs element-wise division with NumPy-style broadcasting.
func (cpu *CPUBackend) Div(a, b *tensor.RawTensor) *tensor.RawTensor {
	return cpu.binaryOp("div", a, b,
		func(x, y float32) float32 { return x / y },
		func(x, y float64) float64 { return x / y })
}

// MulScalar multiplies every element by a scalar.
func (cpu *CPUBackend) MulScalar(x *tensor.RawTensor, scalar float64) *tensor.RawTensor {
	return cpu.unaryOp(x,
		func(v float32) float32 { return v * float32(scalar) },
		func(v float64) float64 { return v * scalar })
}

// AddScalar adds a scalar to every element.
func (cpu *CPUBackend) AddScalar(x *tensor.RawTensor, scalar float64) *tensor.RawTensor {
	return cpu.unaryOp(x,
		func(v float32) float32 { return v + float32(scalar) },
		func(v float64) float64 { return v + scalar })
}

// Reshape returns a view of the tensor with a new shape.
func (cpu *CPUBackend) Reshape(t *tensor.RawTensor, shape tensor.Shape) *tensor.RawTensor {
	view, err := t.WithShape(shape)
	if err != nil {
		panic(fmt.Sprintf("reshape: %v", err))
	}
	return view
}

func (cpu *CPUBackend) unaryOp(x *tensor.RawTensor, f32 func(float32) float32, f64 func(float64) float64) *tensor.RawTensor {
	result := x.Clone()
	switch x.DType() {
	case tensor.Float32:
		data := result.AsFloat32()
		for i, v := range data {
			data[i] = f32(v)
		}
	case tensor.Float64:
		data := result.AsFloat64()
		for i, v := range data {
			data[i] = f64(v)
		}
	default:
		panic(fmt.Sprintf("unsupported dtype %s", x.DType()))
	}
	return result
}

func (cpu *CPUBackend) binaryOp(
	name string,
	a, b *tensor.RawTensor,
	f32 func(x, y float32) float32,
	f64 func(x, y float64) float64,
) *tensor.RawTensor {
	if a.DType() != b.DType() {
		panic(fmt.Sprintf("%s: dtype mismatch %s vs %s", name, a.DType(), b.DType()))
	}

	outShape, needsBroadcast, err := tensor.BroadcastShapes(a.Shape(), b.Shape())
	if err != nil {
		panic(fmt.Sprintf("%s: %v", name, err))
	}

	result, err := tensor.NewRaw(outShape, a.DType(), cpu.device)
	if err != nil {
		panic(fmt.Sprintf("%s: %v", name, err))
	}

	switch a.DType() {
	case tensor.Float32:
		if !needsBroadcast {
			ra, rb, rc := a.AsFloat32(), b.AsFloat32(), result.AsFloat32()
			for i := range rc {
				rc[i] = f32(ra[i], rb[i])
			}
		} else {
			broadcastLoop(a.AsFloat32(), b.AsFloat32(), result.AsFloat32(), a.Shape(), b.Shape(), outShape, f32)
		}
	case tensor.Float64:
		if !needsBroadcast {
			ra, rb, rc := a.AsFloat64(), b.AsFloat64(), result.AsFloat64()
			for i := range rc {
				rc[i] = f64(ra[i], rb[i])
			}
		} else {
			broadcastLoop(a.AsFloat64(), b.AsFloat64(), result.AsFloat64(), a.Shape(), b.Shape(), outShape, f64)
		}
	default:
		panic(fmt.Sprintf("%s: unsupported dtype %s", name, a.DType()))
	}

	return result
}

// broadcastLoop applies f element-wise, mapping every output coordinate back
// to the (possibly size-1) source dimensions of a and b.
func broadcastLoop[T float32 | float64](a, b, out []T, aShape, bShape, outShape tensor.Shape, f func(x, y T) T) {
	rank := len(outShape)
	aStrides := broadcastStrides(aShape, outShape)
	bStrides := broadcastStrides(bShape, outShape)
	outStrides := outShape.ComputeStrides()

	coords := make([]int, rank)
	for i := range out {
		rem := i
		aIdx, bIdx := 0, 0
		for d := 0; d < rank; d++ {
			coords[d] = rem / outStrides[d]
			rem %= outStrides[d]
			aIdx += coords[d] * aStrides[d]
			bIdx += coords[d] * bStrides[d]
		}
		out[i] = f(a[aIdx], b[bIdx])
	}
}

// broadcastStrides returns per-output-dimension strides into a tensor of
// shape s, with stride 0 for broadcast (size-1 or missing) dimensions.
func broadcastStrides(s, outShape tensor.Shape) []int {
	strides := make([]int, len(outShape))
	sStrides := s.ComputeStrides()
	offset := len(outShape) - len(s)
	for d := range outShape {
		sd := d - offset
		if sd < 0 || s[sd] == 1 {
			strides[d] = 0
		} else {
			strides[d] = sStrides[sd]
		}
	}
	return strides
}
