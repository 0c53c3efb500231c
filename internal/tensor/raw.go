package tensor

import (
	"fmt"
	"unsafe"
)

// Device represents the compute device for tensor operations.
type Device int

// Supported compute devices. Only CPU is implemented; the constant exists so
// backends carry an explicit device tag.
const (
	CPU Device = iota
)

// String returns a human-readable device name.
func (d Device) String() string {
	switch d {
	case CPU:
		return "CPU"
	default:
		return "Unknown"
	}
}

// RawTensor is the low-level, untyped tensor representation: a flat byte
// buffer plus shape, strides and runtime type information. Typed access goes
// through AsFloat32/AsFloat64; high-level code uses Tensor instead.
type RawTensor struct {
	data   []byte
	shape  Shape
	stride []int
	dtype  DataType
	device Device
}

// NewRaw creates a new RawTensor with the given shape and type.
// Memory is allocated and zero-initialized.
func NewRaw(shape Shape, dtype DataType, device Device) (*RawTensor, error) {
	if err := shape.Validate(); err != nil {
		return nil, fmt.Errorf("invalid shape: %w", err)
	}

	byteSize := shape.NumElements() * dtype.Size()

	return &RawTensor{
		data:   make([]byte, byteSize),
		shape:  shape.Clone(),
		stride: shape.ComputeStrides(),
		dtype:  dtype,
		device: device,
	}, nil
}

// Shape returns the tensor's shape.
func (t *RawTensor) Shape() Shape {
	return t.shape
}

// DType returns the tensor's data type.
func (t *RawTensor) DType() DataType {
	return t.dtype
}

// Device returns the tensor's compute device.
func (t *RawTensor) Device() Device {
	return t.device
}

// NumElements returns the total number of elements.
func (t *RawTensor) NumElements() int {
	return t.shape.NumElements()
}

// Bytes returns the underlying byte buffer.
func (t *RawTensor) Bytes() []byte {
	return t.data
}

// AsFloat32 returns the data viewed as a float32 slice.
// Panics if the tensor's dtype is not Float32.
func (t *RawTensor) AsFloat32() []float32 {
	if t.dtype != Float32 {
		panic(fmt.Sprintf("AsFloat32 called on %s tensor", t.dtype))
	}
	if len(t.data) == 0 {
		return nil
	}
	return unsafe.Slice((*float32)(unsafe.Pointer(&t.data[0])), t.NumElements())
}

// AsFloat64 returns the data viewed as a float64 slice.
// Panics if the tensor's dtype is not Float64.
func (t *RawTensor) AsFloat64() []float64 {
	if t.dtype != Float64 {
		panic(fmt.Sprintf("AsFloat64 called on %s tensor", t.dtype))
	}
	if len(t.data) == 0 {
		return nil
	}
	return unsafe.Slice((*float64)(unsafe.Pointer(&t.data[0])), t.NumElements())
}

// Clone returns a deep copy of the tensor.
func (t *RawTensor) Clone() *RawTensor {
	clone, err := NewRaw(t.shape, t.dtype, t.device)
	if err != nil {
		panic(err) // shape already validated
	}
	copy(clone.data, t.data)
	return clone
}

// WithShape returns a view of the tensor with a different shape sharing the
// same storage. The new shape must describe the same number of elements.
func (t *RawTensor) WithShape(shape Shape) (*RawTensor, error) {
	if err := shape.Validate(); err != nil {
		return nil, fmt.Errorf("invalid shape: %w", err)
	}
	if shape.NumElements() != t.NumElements() {
		return nil, fmt.Errorf("cannot view %v tensor as %v: element count mismatch", t.shape, shape)
	}
	return &RawTensor{
		data:   t.data,
		shape:  shape.Clone(),
		stride: shape.ComputeStrides(),
		dtype:  t.dtype,
		device: t.device,
	}, nil
}
