package passes

import (
	"github.com/gomlx/exceptions"
	"github.com/gomlx/savedmodel-gomlx/ir"
	"github.com/gomlx/savedmodel-gomlx/session"
	"k8s.io/klog/v2"
)

// FreezeGlobalTensorsName is the registry name of the pass returned by NewFreezeGlobalTensorsPass.
const FreezeGlobalTensorsName = "freeze-global-tensors"

type freezeGlobalTensors struct {
	session             session.Session
	allowMutableTensors bool
}

// NewFreezeGlobalTensorsPass creates a pass that embeds the session value of the immutable global tensors
// (all global tensors if allowMutableTensors is set) as constants:
// every read becomes a constant, every assignment is removed, and the global tensor is deleted along with
// the parameters bound to it. Global tensors are processed in name order.
//
// It fails with ir.UnexpectedMutation if a tensor to freeze is assigned and allowMutableTensors is false,
// or if it is used by anything other than reads and assignments; and with ir.SessionLookupFailure if the
// session can't provide its value.
func NewFreezeGlobalTensorsPass(sess session.Session, allowMutableTensors bool) Pass {
	return &freezeGlobalTensors{session: sess, allowMutableTensors: allowMutableTensors}
}

// Name implements Pass.
func (p *freezeGlobalTensors) Name() string { return FreezeGlobalTensorsName }

// Rewrite implements Pass.
func (p *freezeGlobalTensors) Rewrite(m *ir.Module) error {
	for _, gt := range m.Symbols().GlobalTensors() {
		if gt.Mutable && !p.allowMutableTensors {
			continue
		}
		if err := p.freeze(m, gt); err != nil {
			return err
		}
	}
	return nil
}

func (p *freezeGlobalTensors) freeze(m *ir.Module, gt *ir.GlobalTensor) error {
	uses := analyzeUses(m, gt.Name)
	if len(uses.others) > 0 {
		use := uses.others[0]
		return ir.Errorf(ir.UnexpectedMutation, use.op.Loc,
			"cannot freeze global tensor %q: function %q passes it to %q, which is neither a read nor an assignment",
			gt.Name, use.fn.Name, use.op.Kind)
	}
	if len(uses.writes) > 0 && !p.allowMutableTensors {
		use := uses.writes[0]
		return ir.Errorf(ir.UnexpectedMutation, use.op.Loc,
			"cannot freeze global tensor %q: it is assigned in function %q (%d assignments)",
			gt.Name, use.fn.Name, len(uses.writes))
	}
	value, err := fetchValue(p.session, gt)
	if err != nil {
		return err
	}
	gt.Value = value

	for _, read := range uses.reads {
		if len(read.op.Results) != 1 {
			exceptions.Panicf("%s in function %q defines %d results, expected 1", read.op.Kind, read.fn.Name, len(read.op.Results))
		}
		// Replaced in place: the read keeps its result name and location, so its users need no rewrite.
		read.op.Kind = ir.OpConst
		read.op.Operands = nil
		read.op.Attrs = map[string]any{ir.AttrValue: value}
	}
	for _, write := range uses.writes {
		write.fn.EraseOps(write.op)
	}
	if err := eraseBindings(m, uses.bindings); err != nil {
		return err
	}
	if err := m.Symbols().Remove(gt.Name); err != nil {
		return err
	}
	klog.V(2).Infof("froze global tensor %q: %d reads, %d assignments removed", gt.Name, len(uses.reads), len(uses.writes))
	return nil
}
