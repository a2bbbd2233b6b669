package ir

import (
	"fmt"
	"slices"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/pkg/support/sets"
)

// Use is an operand slot of an operation that refers to a value.
type Use struct {
	Op      *Operation
	Operand int
}

// Uses returns every operand slot in the body of fn that refers to the named value, in body order.
func (fn *Function) Uses(value string) []Use {
	var uses []Use
	for _, op := range fn.Body {
		for ii, operand := range op.Operands {
			if operand == value {
				uses = append(uses, Use{Op: op, Operand: ii})
			}
		}
	}
	return uses
}

// HasUses reports whether the named value is used by any operation of fn.
func (fn *Function) HasUses(value string) bool {
	for _, op := range fn.Body {
		if slices.Contains(op.Operands, value) {
			return true
		}
	}
	return false
}

// ReplaceAllUses rewrites every operand referring to from so that it refers to to.
// It returns the number of operands rewritten.
func (fn *Function) ReplaceAllUses(from, to string) int {
	count := 0
	for _, op := range fn.Body {
		for ii, operand := range op.Operands {
			if operand == from {
				op.Operands[ii] = to
				count++
			}
		}
	}
	return count
}

// EraseOps removes the given operations from the body, keeping the order of the others.
func (fn *Function) EraseOps(ops ...*Operation) {
	if len(ops) == 0 {
		return
	}
	toErase := sets.Make[*Operation]()
	for _, op := range ops {
		toErase.Insert(op)
	}
	fn.Body = slices.DeleteFunc(fn.Body, func(op *Operation) bool { return toErase.Has(op) })
}

// InsertOps inserts ops at position idx of the body.
func (fn *Function) InsertOps(idx int, ops ...*Operation) {
	fn.Body = slices.Insert(fn.Body, idx, ops...)
}

// AppendOps appends ops to the body, before the trailing OpReturn if there is one.
func (fn *Function) AppendOps(ops ...*Operation) {
	idx := len(fn.Body)
	if idx > 0 && fn.Body[idx-1].Kind == OpReturn {
		idx--
	}
	fn.InsertOps(idx, ops...)
}

// ValueNames returns the set of values defined in fn: parameters and operation results.
func (fn *Function) ValueNames() sets.Set[string] {
	names := sets.Make[string]()
	for _, p := range fn.Params {
		names.Insert(p.Name)
	}
	for _, op := range fn.Body {
		for _, result := range op.Results {
			names.Insert(result)
		}
	}
	return names
}

// FreshValueName returns a value name based on base that is not yet defined in fn.
func (fn *Function) FreshValueName(base string) string {
	defined := fn.ValueNames()
	return uniqueName(base, defined.Has)
}

// EraseParams removes the parameters at the given indices from fn.
//
// It fails with SignatureMismatch if fn is called from within the module, since those calls
// would no longer match its signature.
// The removed parameters must no longer have any use in the body.
func (m *Module) EraseParams(fn *Function, indices ...int) error {
	if len(indices) == 0 {
		return nil
	}
	if calls := m.Callers(fn.Name); len(calls) > 0 {
		return Errorf(SignatureMismatch, calls[0].Loc,
			"cannot remove %d parameter(s) of function %q: it is called %d time(s) within the module",
			len(indices), fn.Name, len(calls))
	}
	toErase := sets.Make[int]()
	for _, idx := range indices {
		if idx < 0 || idx >= len(fn.Params) {
			exceptions.Panicf("EraseParams(%q): parameter index %d out of range (%d parameters)", fn.Name, idx, len(fn.Params))
		}
		if p := fn.Params[idx]; fn.HasUses(p.Name) {
			exceptions.Panicf("EraseParams(%q): parameter %q still has uses", fn.Name, p.Name)
		}
		toErase.Insert(idx)
	}
	params := make([]*Param, 0, len(fn.Params)-len(toErase))
	for ii, p := range fn.Params {
		if !toErase.Has(ii) {
			params = append(params, p)
		}
	}
	fn.Params = params
	return nil
}

// uniqueName returns base if not taken, or else base_N for the smallest N >= 1 that is free.
func uniqueName(base string, taken func(string) bool) string {
	if !taken(base) {
		return base
	}
	for ii := 1; ; ii++ {
		name := fmt.Sprintf("%s_%d", base, ii)
		if !taken(name) {
			return name
		}
	}
}
