package session

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/gomlx/go-xla/pkg/types/dtypes"
	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/savedmodel-gomlx/internal/togomlx"
	"github.com/janpfeifer/must"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestFake(t *testing.T) {
	f := NewFake().
		Set("counter", int32(42)).
		SetUninitialized("pending", shapes.Make(dtypes.Float32, 2))

	value, err := f.ValueOf("counter")
	require.NoError(t, err)
	require.Equal(t, int32(42), value.Value())
	require.True(t, must.M1(f.IsInitialized("counter")))
	require.False(t, must.M1(f.IsInitialized("pending")))
	require.True(t, shapes.Make(dtypes.Float32, 2).Equal(must.M1(f.ShapeOf("pending"))))
	require.Equal(t, []string{"counter", "pending"}, must.M1(f.Variables()))

	_, err = f.ValueOf("pending")
	require.True(t, errors.Is(err, ErrUninitialized))
	_, err = f.ValueOf("missing")
	require.True(t, IsUnknownVariable(err))
	_, err = f.IsInitialized("missing")
	require.True(t, IsUnknownVariable(err))

	f.SetUnavailable(true)
	_, err = f.IsInitialized("counter")
	require.True(t, errors.Is(err, ErrUnavailable))
	_, err = f.Variables()
	require.True(t, errors.Is(err, ErrUnavailable))
	f.SetUnavailable(false)
	require.Equal(t, 10, f.Calls())
}

func TestCannedFake(t *testing.T) {
	f := CannedFake()
	require.Equal(t, []string{"uninitialized_var", "var1", "var2", "var3"}, must.M1(f.Variables()))
	require.Equal(t, [][]float32{{1, 2}, {3, 4}}, must.M1(f.ValueOf("var2")).Value())
	require.False(t, must.M1(f.IsInitialized("uninitialized_var")))
}

func TestCheckpoint(t *testing.T) {
	dir := t.TempDir()

	// Large variable stored in an external file, after some unrelated bytes.
	embeddings := tensors.FromValue([][]float32{{1, 2, 3}, {4, 5, 6}})
	embeddingsRaw := togomlx.Bytes(embeddings)
	external := append([]byte("header"), embeddingsRaw...)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "embeddings.bin"), external, 0o644))

	path := filepath.Join(dir, "checkpoint.parquet")
	require.NoError(t, WriteCheckpoint(path, []VariableRecord{
		RecordFromTensor("counter", tensors.FromValue(int64(42))),
		{
			Name:        "embeddings",
			DType:       dtypes.Float32.String(),
			Dims:        []int64{2, 3},
			Initialized: true,
			Location:    "embeddings.bin",
			Offset:      int64(len("header")),
			Length:      int64(len(embeddingsRaw)),
		},
		{Name: "pending", DType: dtypes.Int32.String(), Dims: []int64{4}},
		{Name: "escaping", DType: dtypes.Int32.String(), Initialized: true, Location: "../outside.bin"},
	}))

	c, err := ReadCheckpoint(path)
	require.NoError(t, err)
	defer func() { require.NoError(t, c.Close()) }()

	require.Equal(t, []string{"counter", "embeddings", "escaping", "pending"}, must.M1(c.Variables()))

	counter, err := c.ValueOf("counter")
	require.NoError(t, err)
	require.Equal(t, int64(42), counter.Value())

	value, err := c.ValueOf("embeddings")
	require.NoError(t, err)
	require.Equal(t, [][]float32{{1, 2, 3}, {4, 5, 6}}, value.Value())

	require.False(t, must.M1(c.IsInitialized("pending")))
	require.True(t, shapes.Make(dtypes.Int32, 4).Equal(must.M1(c.ShapeOf("pending"))))
	_, err = c.ValueOf("pending")
	require.True(t, errors.Is(err, ErrUninitialized))

	_, err = c.ValueOf("escaping")
	require.Error(t, err)
	require.Contains(t, err.Error(), "relative path")

	_, err = c.ShapeOf("missing")
	require.True(t, IsUnknownVariable(err))
}

func TestReadCheckpointMissingFile(t *testing.T) {
	_, err := ReadCheckpoint(filepath.Join(t.TempDir(), "nope.parquet"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "nope.parquet")
}
