package togomlx

import (
	"testing"

	"github.com/gomlx/go-xla/pkg/types/dtypes"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/stretchr/testify/require"
)

func TestShape(t *testing.T) {
	t.Run("Float32Scalar", func(t *testing.T) {
		shape, err := Shape(dtypes.Float32.String(), nil)
		require.NoError(t, err)
		require.Equal(t, dtypes.Float32, shape.DType)
		require.Equal(t, 0, shape.Rank())
	})

	t.Run("Int64_2D", func(t *testing.T) {
		shape, err := Shape(dtypes.Int64.String(), []int64{3, 4})
		require.NoError(t, err)
		require.Equal(t, dtypes.Int64, shape.DType)
		require.Equal(t, []int{3, 4}, shape.Dimensions)
		require.Equal(t, []int64{3, 4}, Dims(shape))
	})

	t.Run("UnknownDType", func(t *testing.T) {
		_, err := Shape("Float128", []int64{1})
		require.Error(t, err)
		require.Contains(t, err.Error(), "Float128")
	})

	t.Run("NegativeDimension", func(t *testing.T) {
		_, err := Shape(dtypes.Int32.String(), []int64{2, -1})
		require.Error(t, err)
		require.Contains(t, err.Error(), "negative")
	})
}

func TestTensorBytes(t *testing.T) {
	original := tensors.FromValue([][]float32{{1, 2}, {3, 4}})
	raw := Bytes(original)
	require.Len(t, raw, 16)

	restored, err := TensorFromBytes(original.Shape(), raw)
	require.NoError(t, err)
	require.True(t, original.Shape().Equal(restored.Shape()))
	require.Equal(t, [][]float32{{1, 2}, {3, 4}}, restored.Value())

	_, err = TensorFromBytes(original.Shape(), raw[:8])
	require.Error(t, err)
	require.Contains(t, err.Error(), "8 bytes")
}
