package passes

import (
	"github.com/gomlx/savedmodel-gomlx/ir"
	"k8s.io/klog/v2"
)

// OptimizeGlobalTensorsName is the registry name of the pass returned by NewOptimizeGlobalTensorsPass.
const OptimizeGlobalTensorsName = "optimize-global-tensors"

type optimizeGlobalTensors struct{}

// NewOptimizeGlobalTensorsPass creates a pass that removes global tensors no operation reads nor writes,
// along with the parameters bound to them. Global tensors with any use are left untouched, and so are
// unused ones bound in a function called within the module, since its signature can't change.
func NewOptimizeGlobalTensorsPass() Pass {
	return optimizeGlobalTensors{}
}

// Name implements Pass.
func (optimizeGlobalTensors) Name() string { return OptimizeGlobalTensorsName }

// Rewrite implements Pass.
func (optimizeGlobalTensors) Rewrite(m *ir.Module) error {
	// Analyze all tensors before removing any, so the result doesn't depend on the removal order.
	var dead []*symbolUses
	var deadNames []string
	for _, gt := range m.Symbols().GlobalTensors() {
		uses := analyzeUses(m, gt.Name)
		if !uses.isDead() {
			continue
		}
		if fn := calledBinding(m, uses.bindings); fn != nil {
			klog.V(2).Infof("keeping unused global tensor %q: it is bound in %q, which is called within the module", gt.Name, fn.Name)
			continue
		}
		dead = append(dead, uses)
		deadNames = append(deadNames, gt.Name)
	}
	for ii, uses := range dead {
		if err := eraseBindings(m, m.Symbols().Bindings(deadNames[ii])); err != nil {
			return err
		}
		if err := m.Symbols().Remove(deadNames[ii]); err != nil {
			return err
		}
		klog.V(2).Infof("removed unused global tensor %q (%d bindings)", deadNames[ii], len(uses.bindings))
	}
	return nil
}

// calledBinding returns the first function holding one of the bindings that is called within the module, or nil.
func calledBinding(m *ir.Module, bindings []ir.Binding) *ir.Function {
	for _, b := range bindings {
		if len(m.Callers(b.Function.Name)) > 0 {
			return b.Function
		}
	}
	return nil
}
