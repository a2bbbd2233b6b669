package passes

import (
	"fmt"
	"testing"

	"github.com/gomlx/go-xla/pkg/types/dtypes"
	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/gomlx/savedmodel-gomlx/ir"
	"github.com/gomlx/savedmodel-gomlx/session"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

const numRandomTensors = 4

// randomModule builds a module with numRandomTensors global tensors (the even ones mutable) and one
// function whose parameters are bound according to targets: target k < numRandomTensors binds the
// parameter to tensor "g<k>", anything else leaves it unbound. Parameters whose target is even are read.
func randomModule(t *testing.T, targets []int) *ir.Module {
	b := newModule(t)
	for k := range numRandomTensors {
		b.globalTensor(fmt.Sprintf("g%d", k), k%2 == 0, shapes.Make(dtypes.Int32))
	}
	var ps []*ir.Param
	var body []*ir.Operation
	var outputs []string
	for ii, target := range targets {
		name := fmt.Sprintf("p%d", ii)
		if target < numRandomTensors {
			ps = append(ps, bound(name, fmt.Sprintf("g%d", target)))
		} else {
			ps = append(ps, param(name))
		}
		if target%2 == 0 {
			if target < numRandomTensors {
				body = append(body, read(fmt.Sprintf("x%d", ii), name))
			} else {
				body = append(body, op("identity", results(fmt.Sprintf("x%d", ii)), name))
			}
			outputs = append(outputs, fmt.Sprintf("x%d", ii))
		}
	}
	body = append(body, ret(outputs...))
	return b.function("f", ps, body...).build()
}

func randomSession() *session.Fake {
	sess := session.NewFake()
	for k := range numRandomTensors {
		sess.Set(fmt.Sprintf("g%d", k), int32(k))
	}
	return sess
}

func TestPassProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)
	targetsGen := gen.SliceOf(gen.IntRange(0, numRandomTensors+1))

	properties.Property("dedup leaves at most one binding per symbol", prop.ForAll(
		func(targets []int) bool {
			m := randomModule(t, targets)
			numOps := len(m.Function("f").Body)
			if err := runPass(t, NewDedupBoundInputBindingPass(), m); err != nil {
				return false
			}
			f := m.Function("f")
			seen := make(map[string]bool)
			for _, p := range f.Params {
				if p.BoundInput == "" {
					continue
				}
				if seen[p.BoundInput] {
					return false
				}
				seen[p.BoundInput] = true
			}
			return len(f.Body) == numOps && m.Verify() == nil
		},
		targetsGen,
	))

	idempotent := func(newPass func() Pass) func(targets []int) bool {
		return func(targets []int) bool {
			m := randomModule(t, targets)
			if err := runPass(t, newPass(), m); err != nil {
				return false
			}
			once := m.String()
			if err := runPass(t, newPass(), m); err != nil {
				return false
			}
			return once == m.String()
		}
	}
	properties.Property("dedup is idempotent", prop.ForAll(
		idempotent(NewDedupBoundInputBindingPass), targetsGen))
	properties.Property("optimize-global-tensors is idempotent", prop.ForAll(
		idempotent(NewOptimizeGlobalTensorsPass), targetsGen))
	properties.Property("freeze-global-tensors is idempotent", prop.ForAll(
		idempotent(func() Pass { return NewFreezeGlobalTensorsPass(randomSession(), false) }), targetsGen))
	properties.Property("mark-initialized-variables is idempotent", prop.ForAll(
		idempotent(func() Pass { return NewMarkInitializedVariablesPass(randomSession()) }), targetsGen))
	properties.Property("initialize-variables is idempotent", prop.ForAll(
		idempotent(func() Pass { return NewInitializeVariablesInSessionInitializerPass(randomSession()) }), targetsGen))

	properties.Property("optimize-global-tensors keeps exactly the used tensors", prop.ForAll(
		func(targets []int) bool {
			m := randomModule(t, targets)
			used := make(map[string]bool)
			for _, target := range targets {
				if target < numRandomTensors && target%2 == 0 {
					used[fmt.Sprintf("g%d", target)] = true
				}
			}
			if err := runPass(t, NewOptimizeGlobalTensorsPass(), m); err != nil {
				return false
			}
			names := m.Symbols().Names()
			if len(names) != len(used) {
				return false
			}
			for _, name := range names {
				if !used[name] {
					return false
				}
			}
			return true
		},
		targetsGen,
	))

	properties.TestingRun(t)
}
