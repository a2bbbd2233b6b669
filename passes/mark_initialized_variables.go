package passes

import (
	"github.com/gomlx/savedmodel-gomlx/ir"
	"github.com/gomlx/savedmodel-gomlx/session"
)

// MarkInitializedVariablesName is the registry name of the pass returned by NewMarkInitializedVariablesPass.
const MarkInitializedVariablesName = "mark-initialized-variables"

type markInitializedVariables struct {
	session session.Session
}

// NewMarkInitializedVariablesPass creates a pass that records on every global tensor, as the
// ir.AttrIsInitialized attribute, whether the session reports its variable as initialized.
// Variables unknown to the session are marked as not initialized.
//
// If the session fails for any other reason the pass fails with ir.SessionUnavailable and no attribute is written.
func NewMarkInitializedVariablesPass(sess session.Session) Pass {
	return &markInitializedVariables{session: sess}
}

// Name implements Pass.
func (p *markInitializedVariables) Name() string { return MarkInitializedVariablesName }

// Rewrite implements Pass.
func (p *markInitializedVariables) Rewrite(m *ir.Module) error {
	globalTensors := m.Symbols().GlobalTensors()
	status := make([]bool, len(globalTensors))
	for ii, gt := range globalTensors {
		initialized, err := p.session.IsInitialized(gt.Name)
		if err != nil && !session.IsUnknownVariable(err) {
			return ir.WrapErrorf(err, ir.SessionUnavailable, ir.SymbolLoc(gt.Name),
				"cannot query initialization status of %q", gt.Name)
		}
		status[ii] = initialized && err == nil
	}
	for ii, gt := range globalTensors {
		gt.SetAttr(ir.AttrIsInitialized, status[ii])
	}
	return nil
}
