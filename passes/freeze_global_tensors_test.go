package passes

import (
	"testing"

	"github.com/gomlx/go-xla/pkg/types/dtypes"
	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/savedmodel-gomlx/ir"
	"github.com/gomlx/savedmodel-gomlx/session"
	"github.com/stretchr/testify/require"
)

// constValue returns the value of the constant op.
func constValue(t *testing.T, op *ir.Operation) any {
	t.Helper()
	require.Equal(t, ir.OpConst, op.Kind, "expected a constant, got %s", op)
	value := op.Attrs[ir.AttrValue]
	if tensor, ok := value.(*tensors.Tensor); ok {
		return tensor.Value()
	}
	return value
}

func TestFreezeGlobalTensors(t *testing.T) {
	scalar := shapes.Make(dtypes.Int32)

	t.Run("Counter", func(t *testing.T) {
		m := newModule(t).
			globalTensor("counter", false, scalar).
			function("f", params(bound("arg0", "counter")),
				read("x", "arg0"),
				ret("x"),
			).build()
		sess := session.NewFake().Set("counter", int32(42))
		p := NewFreezeGlobalTensorsPass(sess, false)
		require.Equal(t, FreezeGlobalTensorsName, p.Name())
		require.NoError(t, runPass(t, p, m))

		require.Zero(t, m.Symbols().Len())
		f := m.Function("f")
		require.Empty(t, f.Params)
		require.Len(t, f.Body, 2)
		require.Equal(t, []string{"x"}, f.Body[0].Results)
		require.Equal(t, int32(42), constValue(t, f.Body[0]))
		require.Equal(t, []string{"x"}, f.Body[1].Operands)
		requireIdempotent(t, p, m)
	})

	t.Run("SkipMutable", func(t *testing.T) {
		m := newModule(t).
			globalTensor("step", true, scalar).
			function("f", params(bound("p", "step")),
				read("x", "p"),
				ret("x"),
			).build()
		sess := session.NewFake().Set("step", int32(7))
		before := m.String()
		require.NoError(t, runPass(t, NewFreezeGlobalTensorsPass(sess, false), m))
		requireUnchanged(t, before, m)
		require.Zero(t, sess.Calls())
	})

	t.Run("AllowMutable", func(t *testing.T) {
		m := newModule(t).
			globalTensor("step", true, scalar).
			function("f", params(bound("p", "step"), param("delta")),
				read("x", "p"),
				op("add", results("y"), "x", "delta"),
				assign("p", "y"),
				read("z", "p"),
				ret("z"),
			).build()
		sess := session.NewFake().Set("step", int32(7))
		require.NoError(t, runPass(t, NewFreezeGlobalTensorsPass(sess, true), m))

		require.Zero(t, m.Symbols().Len())
		f := m.Function("f")
		require.Len(t, f.Params, 1)
		require.Equal(t, "delta", f.Params[0].Name)
		require.Len(t, f.Body, 4)
		require.Equal(t, int32(7), constValue(t, f.Body[0]))
		require.Equal(t, "add", f.Body[1].Kind)
		require.Equal(t, int32(7), constValue(t, f.Body[2]))
		require.Equal(t, []string{"z"}, f.Body[2].Results)
		require.Equal(t, ir.OpReturn, f.Body[3].Kind)
	})

	t.Run("UnexpectedMutation", func(t *testing.T) {
		m := newModule(t).
			globalTensor("counter", false, scalar).
			function("f", params(bound("p", "counter")),
				cst("c", int32(1)),
				assign("p", "c"),
				ret(),
			).build()
		sess := session.NewFake().Set("counter", int32(42))
		before := m.String()
		err := runPass(t, NewFreezeGlobalTensorsPass(sess, false), m)
		require.True(t, ir.IsKind(err, ir.UnexpectedMutation), "got %v", err)
		requireUnchanged(t, before, m)
	})

	t.Run("OpaqueUse", func(t *testing.T) {
		m := newModule(t).
			globalTensor("counter", false, scalar).
			function("f", params(bound("p", "counter")),
				op("resource_gather", results("x"), "p"),
				ret("x"),
			).build()
		sess := session.NewFake().Set("counter", int32(42))
		before := m.String()
		err := runPass(t, NewFreezeGlobalTensorsPass(sess, true), m)
		require.True(t, ir.IsKind(err, ir.UnexpectedMutation), "got %v", err)
		requireUnchanged(t, before, m)
	})

	t.Run("SessionLookupFailure", func(t *testing.T) {
		m := newModule(t).
			globalTensor("a", false, scalar).
			globalTensor("b", false, scalar).
			function("f", params(bound("pa", "a"), bound("pb", "b")),
				read("x", "pa"),
				read("y", "pb"),
				ret("x", "y"),
			).build()
		// "a" is frozen before the lookup of "b" fails: the whole pass must be rolled back.
		sess := session.NewFake().Set("a", int32(1))
		before := m.String()
		err := runPass(t, NewFreezeGlobalTensorsPass(sess, false), m)
		require.True(t, ir.IsKind(err, ir.SessionLookupFailure), "got %v", err)
		require.ErrorContains(t, err, "freeze-global-tensors")
		requireUnchanged(t, before, m)
	})

	t.Run("ShapeMismatch", func(t *testing.T) {
		m := newModule(t).
			globalTensor("counter", false, scalar).
			function("f", params(bound("p", "counter")), read("x", "p"), ret("x")).
			build()
		sess := session.NewFake().Set("counter", []int32{1, 2})
		err := runPass(t, NewFreezeGlobalTensorsPass(sess, false), m)
		require.True(t, ir.IsKind(err, ir.SessionLookupFailure), "got %v", err)
	})

	t.Run("Deterministic", func(t *testing.T) {
		build := func() *ir.Module {
			return newModule(t).
				globalTensor("z", false, scalar).
				globalTensor("a", false, scalar).
				globalTensor("m", false, scalar).
				function("f", params(bound("pz", "z"), bound("pa", "a"), bound("pm", "m")),
					read("x", "pz"),
					read("y", "pa"),
					read("w", "pm"),
					ret("x", "y", "w"),
				).build()
		}
		sess := session.NewFake().Set("z", int32(3)).Set("a", int32(1)).Set("m", int32(2))
		m1, m2 := build(), build()
		require.NoError(t, runPass(t, NewFreezeGlobalTensorsPass(sess, false), m1))
		require.NoError(t, runPass(t, NewFreezeGlobalTensorsPass(sess, false), m2))
		requireUnchanged(t, m1.String(), m2)
	})
}
