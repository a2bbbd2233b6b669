// Package ir holds the intermediate representation of a saved model that the passes rewrite.
//
//   - Module: ordered functions, the optional session initializer and the SymbolTable.
//   - Function: named parameters and a body of operations, values are referred to by name.
//   - SymbolTable: GlobalTensor and Asset definitions, the only way parameters reach module state
//     is through a BoundInput binding to one of its symbols.
//
// Passes never mutate a Module directly: they work on a staged copy (see Module.Apply) that is
// committed only if the whole rewrite succeeds.
package ir

import (
	"github.com/gomlx/exceptions"
)

// Operation kinds the passes understand. Any other kind is treated opaquely.
const (
	// OpConst produces a constant, stored in the AttrValue attribute: either a *tensors.Tensor or a string.
	OpConst = "const"

	// OpReadVariable reads the variable whose resource is operand 0.
	OpReadVariable = "read_variable"

	// OpAssignVariable writes operand 1 into the variable whose resource is operand 0.
	OpAssignVariable = "assign_variable"

	// OpCall calls the function named by the AttrCallee attribute with its operands.
	OpCall = "call"

	// OpReturn terminates a function.
	OpReturn = "return"
)

// Attribute names with a meaning for the passes.
const (
	AttrValue         = "value"
	AttrCallee        = "callee"
	AttrIsInitialized = "is_initialized"
)

// Module is the top-level container of a saved model.
type Module struct {
	// Functions in declaration order. Names are unique module-wide.
	Functions []*Function

	// Initializer is the name of the function run once by the host before any other, or "".
	Initializer string

	symbols *SymbolTable
}

// Function is a named unit of operations.
type Function struct {
	Name   string
	Params []*Param
	Body   []*Operation
}

// Param is a function parameter.
type Param struct {
	// Name of the value the parameter defines inside the function body.
	Name string

	// BoundInput is the name of the GlobalTensor or Asset bound to this parameter, or "" if unbound.
	BoundInput string

	// Variable is the name of the live session variable the host feeds into this parameter, or "".
	// Parameters carrying a Variable but no BoundInput are the ones lifted by the lift-variables pass.
	Variable string
}

// Operation is a typed node of a function body.
type Operation struct {
	Kind     string
	Operands []string
	Results  []string
	Attrs    map[string]any

	// Loc is a free-form source location used in diagnostics.
	Loc string
}

// NewModule creates an empty module.
func NewModule() *Module {
	m := &Module{}
	m.symbols = newSymbolTable(m)
	return m
}

// Symbols returns the module symbol table.
func (m *Module) Symbols() *SymbolTable {
	return m.symbols
}

// Function returns the function with the given name, or nil.
func (m *Module) Function(name string) *Function {
	for _, fn := range m.Functions {
		if fn.Name == name {
			return fn
		}
	}
	return nil
}

// AddFunction appends fn to the module.
// It fails with DuplicateSymbol if the name is already taken by a function or a symbol.
func (m *Module) AddFunction(fn *Function) error {
	if m.nameTaken(fn.Name) {
		return Errorf(DuplicateSymbol, SymbolLoc(fn.Name), "function name %q already in use", fn.Name)
	}
	m.Functions = append(m.Functions, fn)
	return nil
}

// InitializerFunction returns the session initializer function, or nil if the module has none.
func (m *Module) InitializerFunction() *Function {
	if m.Initializer == "" {
		return nil
	}
	fn := m.Function(m.Initializer)
	if fn == nil {
		exceptions.Panicf("module initializer %q is not a function of the module", m.Initializer)
	}
	return fn
}

// SetInitializer designates the named function as the session initializer.
func (m *Module) SetInitializer(name string) error {
	if m.Function(name) == nil {
		return Errorf(UnknownSymbol, SymbolLoc(name), "no function %q to use as initializer", name)
	}
	m.Initializer = name
	return nil
}

// UniqueName returns base if it is not taken by a function or symbol, otherwise base_N for the smallest free N.
func (m *Module) UniqueName(base string) string {
	return uniqueName(base, m.nameTaken)
}

// Callers returns the call operations, across all functions, that call the named function.
func (m *Module) Callers(name string) []*Operation {
	var calls []*Operation
	for _, fn := range m.Functions {
		for _, op := range fn.Body {
			if op.Kind == OpCall && op.Callee() == name {
				calls = append(calls, op)
			}
		}
	}
	return calls
}

func (m *Module) nameTaken(name string) bool {
	if m.Function(name) != nil {
		return true
	}
	return m.symbols.has(name)
}

// Callee returns the name of the function called by an OpCall operation, or "".
func (op *Operation) Callee() string {
	callee, _ := op.Attrs[AttrCallee].(string)
	return callee
}

// SetAttr sets an attribute, allocating the map if needed.
func (op *Operation) SetAttr(key string, value any) {
	if op.Attrs == nil {
		op.Attrs = make(map[string]any)
	}
	op.Attrs[key] = value
}

// NewConst creates an OpConst operation defining result with the given value.
func NewConst(result string, value any) *Operation {
	return &Operation{
		Kind:    OpConst,
		Results: []string{result},
		Attrs:   map[string]any{AttrValue: value},
	}
}

// ParamIndex returns the index of the parameter with the given name, or -1.
func (fn *Function) ParamIndex(name string) int {
	for ii, p := range fn.Params {
		if p.Name == name {
			return ii
		}
	}
	return -1
}

// Param returns the parameter with the given name, or nil.
func (fn *Function) Param(name string) *Param {
	if idx := fn.ParamIndex(name); idx >= 0 {
		return fn.Params[idx]
	}
	return nil
}
