package passes

import (
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/savedmodel-gomlx/ir"
	"github.com/gomlx/savedmodel-gomlx/session"
)

// opInFunction is an operation and the function holding it.
type opInFunction struct {
	fn *ir.Function
	op *ir.Operation
}

// symbolUses collects the operations that touch a symbol through the parameters bound to it.
type symbolUses struct {
	bindings []ir.Binding

	// reads are read_variable ops, writes are assign_variable ops, using the bound parameter as resource.
	reads, writes []opInFunction

	// others are the remaining uses of the bound parameters, e.g. opaque ops or calls.
	others []opInFunction
}

// analyzeUses returns the uses of the symbol name across all functions of the module.
func analyzeUses(m *ir.Module, name string) *symbolUses {
	uses := &symbolUses{bindings: m.Symbols().Bindings(name)}
	for _, b := range uses.bindings {
		for _, use := range b.Function.Uses(b.Param().Name) {
			entry := opInFunction{fn: b.Function, op: use.Op}
			switch {
			case use.Op.Kind == ir.OpReadVariable && use.Operand == 0:
				uses.reads = append(uses.reads, entry)
			case use.Op.Kind == ir.OpAssignVariable && use.Operand == 0:
				uses.writes = append(uses.writes, entry)
			default:
				uses.others = append(uses.others, entry)
			}
		}
	}
	return uses
}

// isDead reports whether no operation uses the symbol.
func (u *symbolUses) isDead() bool {
	return len(u.reads) == 0 && len(u.writes) == 0 && len(u.others) == 0
}

// eraseBindings removes the bound parameters from their functions, one function at a time in module order.
func eraseBindings(m *ir.Module, bindings []ir.Binding) error {
	indices := make(map[*ir.Function][]int)
	for _, b := range bindings {
		indices[b.Function] = append(indices[b.Function], b.Index)
	}
	for _, fn := range m.Functions {
		if err := m.EraseParams(fn, indices[fn]...); err != nil {
			return err
		}
	}
	return nil
}

// boundResource returns the symbol bound to the resource operand (operand 0) of op in fn, or "".
func boundResource(fn *ir.Function, op *ir.Operation) string {
	if len(op.Operands) == 0 {
		return ""
	}
	p := fn.Param(op.Operands[0])
	if p == nil {
		return ""
	}
	return p.BoundInput
}

// fetchValue reads the current value of a global tensor from the session, reporting SessionLookupFailure.
func fetchValue(sess session.Session, gt *ir.GlobalTensor) (*tensors.Tensor, error) {
	value, err := sess.ValueOf(gt.Name)
	if err != nil {
		return nil, ir.WrapErrorf(err, ir.SessionLookupFailure, ir.SymbolLoc(gt.Name), "cannot read value of global tensor %q", gt.Name)
	}
	if gt.Shape.Ok() && !gt.Shape.Equal(value.Shape()) {
		return nil, ir.Errorf(ir.SessionLookupFailure, ir.SymbolLoc(gt.Name),
			"session value of %q is shaped %s, but the global tensor is declared as %s", gt.Name, value.Shape(), gt.Shape)
	}
	return value, nil
}
