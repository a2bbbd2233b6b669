package passes

import (
	"github.com/gomlx/savedmodel-gomlx/ir"
	"k8s.io/klog/v2"
)

// RemoveVariablesInSessionInitializerName is the registry name of the pass returned by
// NewRemoveVariablesInSessionInitializerPass.
const RemoveVariablesInSessionInitializerName = "remove-variables-in-session-initializer"

type removeVariablesInSessionInitializer struct{}

// NewRemoveVariablesInSessionInitializerPass creates a pass that removes, from the session initializer,
// the assignments to immutable global tensors: once frozen, their reads are replaced by constants and the
// assignments become redundant. Constants and reads left unused by the removal are removed as well.
//
// Each removed assignment is logged as an ir.MutationOfImmutable warning, the pass itself never fails.
// It must run before the lift-variables pass.
func NewRemoveVariablesInSessionInitializerPass() Pass {
	return removeVariablesInSessionInitializer{}
}

// Name implements Pass.
func (removeVariablesInSessionInitializer) Name() string { return RemoveVariablesInSessionInitializerName }

// Rewrite implements Pass.
func (removeVariablesInSessionInitializer) Rewrite(m *ir.Module) error {
	initFn := m.InitializerFunction()
	if initFn == nil {
		return nil
	}
	var redundant []*ir.Operation
	for _, op := range initFn.Body {
		if op.Kind != ir.OpAssignVariable {
			continue
		}
		target := boundResource(initFn, op)
		if target == "" {
			continue
		}
		gt, err := m.Symbols().GlobalTensor(target)
		if err != nil || gt.Mutable {
			continue
		}
		klog.Warningf("%v", ir.Errorf(ir.MutationOfImmutable, op.Loc,
			"session initializer %q assigns immutable global tensor %q, assignment removed", initFn.Name, target))
		redundant = append(redundant, op)
	}
	if len(redundant) == 0 {
		return nil
	}
	var orphans []string
	for _, op := range redundant {
		orphans = append(orphans, op.Operands[1:]...)
	}
	initFn.EraseOps(redundant...)
	removeOrphanedPureOps(initFn, orphans)
	return nil
}

// removeOrphanedPureOps removes the constants and variable reads defining the given values, if they are
// left without uses, and then recursively the pure ops defining their operands.
// Ops that were already unused are left alone.
func removeOrphanedPureOps(fn *ir.Function, values []string) {
	for len(values) > 0 {
		value := values[len(values)-1]
		values = values[:len(values)-1]
		def := definingOp(fn, value)
		if def == nil || (def.Kind != ir.OpConst && def.Kind != ir.OpReadVariable) {
			continue
		}
		used := false
		for _, result := range def.Results {
			if fn.HasUses(result) {
				used = true
				break
			}
		}
		if used {
			continue
		}
		fn.EraseOps(def)
		values = append(values, def.Operands...)
	}
}

// definingOp returns the operation of fn with value as a result, or nil if value is not defined by an op.
func definingOp(fn *ir.Function, value string) *ir.Operation {
	for _, op := range fn.Body {
		for _, result := range op.Results {
			if result == value {
				return op
			}
		}
	}
	return nil
}
