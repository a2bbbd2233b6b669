package ir

import (
	"github.com/gomlx/gomlx/pkg/support/sets"
	"github.com/pkg/errors"
)

// Verify checks the module invariants every pass must preserve:
//
//   - function names are unique and distinct from symbol names;
//   - the initializer, if set, names a function of the module;
//   - every BoundInput resolves to a symbol of the symbol table;
//   - values are defined once per function and every operand refers to a defined value;
//   - every call refers to an existing function and passes one operand per parameter.
func (m *Module) Verify() error {
	fnNames := sets.Make[string]()
	for _, fn := range m.Functions {
		if fnNames.Has(fn.Name) {
			return Errorf(DuplicateSymbol, SymbolLoc(fn.Name), "function %q defined more than once", fn.Name)
		}
		if m.symbols.has(fn.Name) {
			return Errorf(DuplicateSymbol, SymbolLoc(fn.Name), "function %q has the same name as a symbol", fn.Name)
		}
		fnNames.Insert(fn.Name)
	}
	if m.Initializer != "" && !fnNames.Has(m.Initializer) {
		return Errorf(UnknownSymbol, SymbolLoc(m.Initializer), "initializer %q is not a function of the module", m.Initializer)
	}
	for _, fn := range m.Functions {
		if err := m.verifyFunction(fn); err != nil {
			return errors.WithMessagef(err, "in function %q", fn.Name)
		}
	}
	return nil
}

func (m *Module) verifyFunction(fn *Function) error {
	defined := sets.Make[string]()
	define := func(name, loc string) error {
		if name == "" {
			return Errorf(UnknownSymbol, loc, "empty value name")
		}
		if defined.Has(name) {
			return Errorf(DuplicateSymbol, loc, "value %q defined more than once", name)
		}
		defined.Insert(name)
		return nil
	}
	for _, p := range fn.Params {
		if err := define(p.Name, fn.Name); err != nil {
			return err
		}
		if p.BoundInput != "" {
			if _, err := m.symbols.Lookup(p.BoundInput); err != nil {
				return errors.WithMessagef(err, "parameter %q", p.Name)
			}
		}
	}
	for _, op := range fn.Body {
		for _, result := range op.Results {
			if err := define(result, op.Loc); err != nil {
				return err
			}
		}
	}
	for _, op := range fn.Body {
		for _, operand := range op.Operands {
			if !defined.Has(operand) {
				return Errorf(UnknownSymbol, op.Loc, "%s uses undefined value %q", op.Kind, operand)
			}
		}
		if op.Kind == OpCall {
			callee := m.Function(op.Callee())
			if callee == nil {
				return Errorf(UnknownSymbol, op.Loc, "call to unknown function %q", op.Callee())
			}
			if len(callee.Params) != len(op.Operands) {
				return Errorf(SignatureMismatch, op.Loc, "call to %q passes %d operands, but it takes %d parameters",
					callee.Name, len(op.Operands), len(callee.Params))
			}
		}
	}
	return nil
}
