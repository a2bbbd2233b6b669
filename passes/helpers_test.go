package passes

import (
	"context"
	"testing"

	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/gomlx/savedmodel-gomlx/ir"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

// moduleBuilder builds test modules.
type moduleBuilder struct {
	t *testing.T
	m *ir.Module
}

func newModule(t *testing.T) *moduleBuilder {
	return &moduleBuilder{t: t, m: ir.NewModule()}
}

func (b *moduleBuilder) globalTensor(name string, mutable bool, shape shapes.Shape) *moduleBuilder {
	require.NoError(b.t, b.m.Symbols().Register(&ir.GlobalTensor{Name: name, Shape: shape, Mutable: mutable}))
	return b
}

func (b *moduleBuilder) asset(name, filename string) *moduleBuilder {
	require.NoError(b.t, b.m.Symbols().Register(&ir.Asset{Name: name, Filename: filename}))
	return b
}

func (b *moduleBuilder) function(name string, params []*ir.Param, body ...*ir.Operation) *moduleBuilder {
	require.NoError(b.t, b.m.AddFunction(&ir.Function{Name: name, Params: params, Body: body}))
	return b
}

func (b *moduleBuilder) initializer(name string, params []*ir.Param, body ...*ir.Operation) *moduleBuilder {
	b.function(name, params, body...)
	require.NoError(b.t, b.m.SetInitializer(name))
	return b
}

func (b *moduleBuilder) build() *ir.Module {
	require.NoError(b.t, b.m.Verify())
	return b.m
}

// bound creates a parameter bound to a symbol.
func bound(name, symbol string) *ir.Param {
	return &ir.Param{Name: name, BoundInput: symbol}
}

// param creates an unbound parameter.
func param(name string) *ir.Param {
	return &ir.Param{Name: name}
}

func params(ps ...*ir.Param) []*ir.Param {
	return ps
}

func read(result, resource string) *ir.Operation {
	return &ir.Operation{Kind: ir.OpReadVariable, Operands: []string{resource}, Results: []string{result}}
}

func assign(resource, value string) *ir.Operation {
	return &ir.Operation{Kind: ir.OpAssignVariable, Operands: []string{resource, value}}
}

func cst(result string, value any) *ir.Operation {
	return ir.NewConst(result, value)
}

func op(kind string, results []string, operands ...string) *ir.Operation {
	return &ir.Operation{Kind: kind, Results: results, Operands: operands}
}

func call(callee string, results []string, operands ...string) *ir.Operation {
	return &ir.Operation{Kind: ir.OpCall, Results: results, Operands: operands, Attrs: map[string]any{ir.AttrCallee: callee}}
}

func ret(operands ...string) *ir.Operation {
	return &ir.Operation{Kind: ir.OpReturn, Operands: operands}
}

func results(names ...string) []string {
	return names
}

// runPass runs p on m with RunPass.
func runPass(t *testing.T, p Pass, m *ir.Module) error {
	t.Helper()
	return RunPass(context.Background(), p, m)
}

// requireUnchanged checks that the module printout is still the same as before.
func requireUnchanged(t *testing.T, before string, m *ir.Module) {
	t.Helper()
	if diff := cmp.Diff(before, m.String()); diff != "" {
		t.Fatalf("module changed (-before +after):\n%s", diff)
	}
}

// requireIdempotent runs p a second time and checks the module doesn't change.
func requireIdempotent(t *testing.T, p Pass, m *ir.Module) {
	t.Helper()
	once := m.String()
	require.NoError(t, runPass(t, p, m))
	requireUnchanged(t, once, m)
}
