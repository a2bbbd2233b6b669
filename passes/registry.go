package passes

import (
	"maps"
	"slices"

	"github.com/gomlx/savedmodel-gomlx/session"
	"github.com/pkg/errors"
)

// Options configures the passes created by name (see New).
type Options struct {
	// Session holding the live variables. Required by lift-variables, freeze-global-tensors,
	// mark-initialized-variables and initialize-variables-in-session-initializer.
	Session session.Session

	// AllowMutableTensors makes freeze-global-tensors freeze mutable tensors too.
	AllowMutableTensors bool

	// BaseDirectory is the directory freeze-assets resolves asset paths against.
	BaseDirectory string
}

// Factory creates a configured pass.
type Factory func(opts Options) (Pass, error)

// registry maps pass names to their factories.
var registry = map[string]Factory{
	DedupBoundInputBindingName: func(Options) (Pass, error) {
		return NewDedupBoundInputBindingPass(), nil
	},
	OptimizeGlobalTensorsName: func(Options) (Pass, error) {
		return NewOptimizeGlobalTensorsPass(), nil
	},
	RemoveVariablesInSessionInitializerName: func(Options) (Pass, error) {
		return NewRemoveVariablesInSessionInitializerPass(), nil
	},
	LiftVariablesName: func(opts Options) (Pass, error) {
		if opts.Session == nil {
			return nil, errRequiresSession(LiftVariablesName)
		}
		return NewLiftVariablesPass(opts.Session), nil
	},
	FreezeGlobalTensorsName: func(opts Options) (Pass, error) {
		if opts.Session == nil {
			return nil, errRequiresSession(FreezeGlobalTensorsName)
		}
		return NewFreezeGlobalTensorsPass(opts.Session, opts.AllowMutableTensors), nil
	},
	FreezeAssetsName: func(opts Options) (Pass, error) {
		return NewFreezeAssetsPass(opts.BaseDirectory), nil
	},
	MarkInitializedVariablesName: func(opts Options) (Pass, error) {
		if opts.Session == nil {
			return nil, errRequiresSession(MarkInitializedVariablesName)
		}
		return NewMarkInitializedVariablesPass(opts.Session), nil
	},
	InitializeVariablesName: func(opts Options) (Pass, error) {
		if opts.Session == nil {
			return nil, errRequiresSession(InitializeVariablesName)
		}
		return NewInitializeVariablesInSessionInitializerPass(opts.Session), nil
	},
	InitializeVariablesTestName: func(Options) (Pass, error) {
		return NewInitializeVariablesInSessionInitializerTestPass(), nil
	},
}

func errRequiresSession(name string) error {
	return errors.Errorf("pass %q requires a session, but Options.Session is nil", name)
}

// Register adds a pass factory to the registry, making it available to New and to pipeline descriptions.
// It panics if the name is already registered.
func Register(name string, factory Factory) {
	if _, found := registry[name]; found {
		panic(errors.Errorf("pass %q registered twice", name))
	}
	registry[name] = factory
}

// Registered returns the names of all registered passes, sorted.
func Registered() []string {
	return slices.Sorted(maps.Keys(registry))
}

// New creates the named pass configured with opts.
func New(name string, opts Options) (Pass, error) {
	factory, found := registry[name]
	if !found {
		return nil, errors.Errorf("unknown pass %q, registered passes are %q", name, Registered())
	}
	p, err := factory(opts)
	if err != nil {
		return nil, err
	}
	return p, nil
}
