package passes

import (
	"github.com/gomlx/savedmodel-gomlx/ir"
	"k8s.io/klog/v2"
)

// DedupBoundInputBindingName is the registry name of the pass returned by NewDedupBoundInputBindingPass.
const DedupBoundInputBindingName = "dedup-bound-input-binding"

type dedupBoundInputBinding struct{}

// NewDedupBoundInputBindingPass creates a pass that, for each function, keeps only the first parameter
// bound to each symbol: uses of the other parameters bound to the same symbol are redirected to it, and
// the redundant parameters are removed.
//
// It fails with ir.SignatureMismatch if a function that needs deduplication is called within the module.
func NewDedupBoundInputBindingPass() Pass {
	return dedupBoundInputBinding{}
}

// Name implements Pass.
func (dedupBoundInputBinding) Name() string { return DedupBoundInputBindingName }

// Rewrite implements Pass.
func (dedupBoundInputBinding) Rewrite(m *ir.Module) error {
	for _, fn := range m.Functions {
		if err := dedupFunctionBindings(m, fn); err != nil {
			return err
		}
	}
	return nil
}

func dedupFunctionBindings(m *ir.Module, fn *ir.Function) error {
	canonical := make(map[string]*ir.Param)
	var redundant []int
	for ii, p := range fn.Params {
		if p.BoundInput == "" {
			continue
		}
		first, found := canonical[p.BoundInput]
		if !found {
			canonical[p.BoundInput] = p
			continue
		}
		fn.ReplaceAllUses(p.Name, first.Name)
		redundant = append(redundant, ii)
	}
	if len(redundant) == 0 {
		return nil
	}
	klog.V(2).Infof("function %q: removing %d duplicate bound inputs", fn.Name, len(redundant))
	return m.EraseParams(fn, redundant...)
}
