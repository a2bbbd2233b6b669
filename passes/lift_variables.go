package passes

import (
	"github.com/gomlx/gomlx/pkg/support/sets"
	"github.com/gomlx/savedmodel-gomlx/ir"
	"github.com/gomlx/savedmodel-gomlx/session"
	"k8s.io/klog/v2"
)

// LiftVariablesName is the registry name of the pass returned by NewLiftVariablesPass.
const LiftVariablesName = "lift-variables"

type liftVariables struct {
	session session.Session
}

// NewLiftVariablesPass creates a pass that promotes parameters fed by the host from a session variable
// (ir.Param.Variable) to bindings of a global tensor of the same name. A function never ends up with two
// parameters bound to the same tensor: a parameter fed from a variable already bound in the function is
// merged into the bound one.
//
// The global tensor is created if needed: mutable, with the shape and current value of the variable in
// the session. The pass fails with ir.SessionLookupFailure if the session doesn't list the variable or
// can't provide its shape or value.
//
// It must run after the remove-variables-in-session-initializer pass.
func NewLiftVariablesPass(sess session.Session) Pass {
	return &liftVariables{session: sess}
}

// Name implements Pass.
func (p *liftVariables) Name() string { return LiftVariablesName }

// Rewrite implements Pass.
func (p *liftVariables) Rewrite(m *ir.Module) error {
	var listed sets.Set[string]
	for _, fn := range m.Functions {
		var redundant []int
		for ii, param := range fn.Params {
			if param.Variable == "" || param.BoundInput != "" {
				continue
			}
			if listed == nil {
				names, err := p.session.Variables()
				if err != nil {
					return ir.WrapErrorf(err, ir.SessionLookupFailure, "", "cannot list session variables")
				}
				listed = sets.Make[string](len(names))
				for _, name := range names {
					listed.Insert(name)
				}
			}
			if !listed.Has(param.Variable) {
				return ir.Errorf(ir.SessionLookupFailure, ir.SymbolLoc(fn.Name),
					"parameter %q of function %q is fed from variable %q, which the session doesn't have",
					param.Name, fn.Name, param.Variable)
			}
			if err := p.lift(m, param.Variable); err != nil {
				return err
			}
			// Another parameter of fn is already bound to the variable: merge into it.
			if canonical := boundParam(fn, param.Variable); canonical != nil {
				fn.ReplaceAllUses(param.Name, canonical.Name)
				redundant = append(redundant, ii)
				continue
			}
			param.BoundInput = param.Variable
			param.Variable = ""
		}
		if len(redundant) > 0 {
			klog.V(2).Infof("function %q: merging %d parameters fed from already bound variables", fn.Name, len(redundant))
			if err := m.EraseParams(fn, redundant...); err != nil {
				return err
			}
		}
	}
	return nil
}

// boundParam returns the parameter of fn bound to the symbol name, or nil.
func boundParam(fn *ir.Function, name string) *ir.Param {
	for _, param := range fn.Params {
		if param.BoundInput == name {
			return param
		}
	}
	return nil
}

// lift makes sure a global tensor named after the variable exists.
func (p *liftVariables) lift(m *ir.Module, variable string) error {
	if sym, err := m.Symbols().Lookup(variable); err == nil {
		if _, ok := sym.(*ir.GlobalTensor); !ok {
			return ir.Errorf(ir.DuplicateSymbol, ir.SymbolLoc(variable),
				"cannot lift variable %q: the name is used by a %T", variable, sym)
		}
		return nil
	}
	shape, err := p.session.ShapeOf(variable)
	if err != nil {
		return ir.WrapErrorf(err, ir.SessionLookupFailure, ir.SymbolLoc(variable), "cannot get shape of variable %q", variable)
	}
	gt := &ir.GlobalTensor{Name: variable, Shape: shape, Mutable: true}
	gt.Value, err = fetchValue(p.session, gt)
	if err != nil {
		return err
	}
	if err := m.Symbols().Register(gt); err != nil {
		return err
	}
	klog.V(2).Infof("lifted variable %q shaped %s to a global tensor", variable, shape)
	return nil
}
