// Package togomlx converts the raw variable encoding of checkpoints (dtype name, dimensions, bytes) to
// GoMLX shapes and tensors, and back.
package togomlx

import (
	"github.com/gomlx/go-xla/pkg/types/dtypes"
	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/pkg/errors"
)

// supportedDTypes lists the dtypes that can be stored in a checkpoint.
var supportedDTypes = []dtypes.DType{
	dtypes.Bool,
	dtypes.Int8, dtypes.Int16, dtypes.Int32, dtypes.Int64,
	dtypes.Uint8, dtypes.Uint16, dtypes.Uint32, dtypes.Uint64,
	dtypes.Float16, dtypes.BFloat16, dtypes.Float32, dtypes.Float64,
	dtypes.Complex64, dtypes.Complex128,
}

// DType converts a dtype name, as written by DType.String(), to the GoMLX dtype.
func DType(name string) (dtypes.DType, error) {
	for _, dtype := range supportedDTypes {
		if dtype.String() == name {
			return dtype, nil
		}
	}
	return dtypes.InvalidDType, errors.Errorf("unsupported/unknown dtype %q", name)
}

// Shape converts a dtype name and dimensions to a GoMLX shapes.Shape.
func Shape(dtypeName string, dims []int64) (shape shapes.Shape, err error) {
	shape.DType, err = DType(dtypeName)
	if err != nil {
		return
	}
	shape.Dimensions = make([]int, len(dims))
	for axis, dim := range dims {
		if dim < 0 {
			err = errors.Errorf("invalid negative dimension %d for axis %d", dim, axis)
			return
		}
		shape.Dimensions[axis] = int(dim)
	}
	return
}

// Dims converts the dimensions of a shape to the checkpoint encoding.
func Dims(shape shapes.Shape) []int64 {
	dims := make([]int64, len(shape.Dimensions))
	for axis, dim := range shape.Dimensions {
		dims[axis] = int64(dim)
	}
	return dims
}

// TensorFromBytes creates a tensor with the given shape and copies raw into it.
// The size of raw must match exactly the memory size of the shape.
func TensorFromBytes(shape shapes.Shape, raw []byte) (*tensors.Tensor, error) {
	return TensorFromFill(shape, func(data []byte) error {
		if len(data) != len(raw) {
			return errors.Errorf("tensor shaped %s uses %d bytes, but %d bytes of raw data were given", shape, len(data), len(raw))
		}
		copy(data, raw)
		return nil
	})
}

// TensorFromFill creates a tensor with the given shape and lets fill write its bytes.
// If fill fails, the tensor is finalized and the error returned.
func TensorFromFill(shape shapes.Shape, fill func(data []byte) error) (t *tensors.Tensor, err error) {
	t = tensors.FromShape(shape)
	t.MutableBytes(func(data []byte) {
		err = fill(data)
	})
	if err != nil {
		t.FinalizeAll()
		return nil, err
	}
	return t, nil
}

// Bytes returns a copy of the raw bytes of the tensor.
func Bytes(t *tensors.Tensor) []byte {
	var raw []byte
	t.ConstBytes(func(data []byte) {
		raw = make([]byte, len(data))
		copy(raw, data)
	})
	return raw
}
