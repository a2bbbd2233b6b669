package passes

import (
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/support/sets"
	"github.com/gomlx/savedmodel-gomlx/ir"
	"github.com/gomlx/savedmodel-gomlx/session"
	"k8s.io/klog/v2"
)

const (
	// InitializeVariablesName is the registry name of the pass returned by
	// NewInitializeVariablesInSessionInitializerPass.
	InitializeVariablesName = "initialize-variables-in-session-initializer"

	// InitializeVariablesTestName is the registry name of the pass returned by
	// NewInitializeVariablesInSessionInitializerTestPass.
	InitializeVariablesTestName = "initialize-variables-in-session-initializer-test"

	// SessionInitializerName is the name given to the session initializer when the pass has to create one.
	SessionInitializerName = "session_initializer"
)

type initializeVariables struct {
	name    string
	session session.Session
}

// NewInitializeVariablesInSessionInitializerPass creates a pass that, for every global tensor not yet
// assigned in the session initializer, appends to the initializer a constant with the session value of
// the variable and its assignment. Global tensors are processed in name order, and the initializer is
// created if the module has none.
//
// It fails with ir.SessionLookupFailure if the session can't provide a value.
func NewInitializeVariablesInSessionInitializerPass(sess session.Session) Pass {
	return &initializeVariables{name: InitializeVariablesName, session: sess}
}

// NewInitializeVariablesInSessionInitializerTestPass is NewInitializeVariablesInSessionInitializerPass
// using the deterministic session.CannedFake.
func NewInitializeVariablesInSessionInitializerTestPass() Pass {
	return &initializeVariables{name: InitializeVariablesTestName, session: session.CannedFake()}
}

// Name implements Pass.
func (p *initializeVariables) Name() string { return p.name }

// Rewrite implements Pass.
func (p *initializeVariables) Rewrite(m *ir.Module) error {
	initFn := m.InitializerFunction()
	assigned := sets.Make[string]()
	if initFn != nil {
		for _, op := range initFn.Body {
			if op.Kind == ir.OpAssignVariable {
				if target := boundResource(initFn, op); target != "" {
					assigned.Insert(target)
				}
			}
		}
	}

	var pending []*ir.GlobalTensor
	var values []*tensors.Tensor
	for _, gt := range m.Symbols().GlobalTensors() {
		if assigned.Has(gt.Name) {
			continue
		}
		value, err := fetchValue(p.session, gt)
		if err != nil {
			return err
		}
		pending = append(pending, gt)
		values = append(values, value)
	}
	if len(pending) == 0 {
		return nil
	}

	if initFn == nil {
		initFn = &ir.Function{
			Name: m.UniqueName(SessionInitializerName),
			Body: []*ir.Operation{{Kind: ir.OpReturn}},
		}
		if err := m.AddFunction(initFn); err != nil {
			return err
		}
		if err := m.SetInitializer(initFn.Name); err != nil {
			return err
		}
	} else if calls := m.Callers(initFn.Name); len(calls) > 0 {
		return ir.Errorf(ir.SignatureMismatch, calls[0].Loc,
			"cannot add parameters to session initializer %q: it is called within the module", initFn.Name)
	}

	for ii, gt := range pending {
		resource := ""
		for _, b := range m.Symbols().Bindings(gt.Name) {
			if b.Function == initFn {
				resource = b.Param().Name
				break
			}
		}
		if resource == "" {
			resource = initFn.FreshValueName(gt.Name)
			initFn.Params = append(initFn.Params, &ir.Param{Name: resource, BoundInput: gt.Name})
		}
		cst := ir.NewConst(initFn.FreshValueName(gt.Name+"_init"), values[ii])
		initFn.AppendOps(cst, &ir.Operation{
			Kind:     ir.OpAssignVariable,
			Operands: []string{resource, cst.Results[0]},
		})
	}
	klog.V(2).Infof("session initializer %q: initializing %d variables", initFn.Name, len(pending))
	return nil
}
