package passes

import (
	"bytes"
	"context"
	"os"

	"github.com/gomlx/savedmodel-gomlx/ir"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
	"k8s.io/klog/v2"
)

// stages orders the passes whose relative position is fixed: a pass can't come after a pass of a later
// stage. Passes not listed (optimize-global-tensors, mark-initialized-variables and the
// initialize-variables passes) can go anywhere.
var stages = map[string]int{
	DedupBoundInputBindingName:              1,
	RemoveVariablesInSessionInitializerName: 2,
	LiftVariablesName:                       3,
	FreezeGlobalTensorsName:                 4,
	FreezeAssetsName:                        4,
}

// Pipeline runs an ordered list of passes.
type Pipeline struct {
	passes []Pass
}

// NewPipeline creates a pipeline running the given passes in order.
//
// It fails if the order breaks the pipeline contract:
// dedup-bound-input-binding, remove-variables-in-session-initializer, lift-variables and then the
// freeze passes. Lifting before removing the redundant initializer assignments would bring them back.
func NewPipeline(passes ...Pass) (*Pipeline, error) {
	latest := ""
	for _, p := range passes {
		stage, fixed := stages[p.Name()]
		if !fixed {
			continue
		}
		if latest != "" && stage < stages[latest] {
			return nil, errors.Errorf("pipeline runs %q after %q, but it must run before it", p.Name(), latest)
		}
		if latest == "" || stage > stages[latest] {
			latest = p.Name()
		}
	}
	return &Pipeline{passes: passes}, nil
}

// DefaultPipeline creates the pipeline with all passes in the contract order:
// dedup-bound-input-binding, optimize-global-tensors, remove-variables-in-session-initializer,
// lift-variables, freeze-global-tensors, freeze-assets, mark-initialized-variables and
// initialize-variables-in-session-initializer.
func DefaultPipeline(opts Options) (*Pipeline, error) {
	return NewPipelineFromNames(opts,
		DedupBoundInputBindingName,
		OptimizeGlobalTensorsName,
		RemoveVariablesInSessionInitializerName,
		LiftVariablesName,
		FreezeGlobalTensorsName,
		FreezeAssetsName,
		MarkInitializedVariablesName,
		InitializeVariablesName,
	)
}

// NewPipelineFromNames creates a pipeline with the named passes, all configured with opts.
func NewPipelineFromNames(opts Options, names ...string) (*Pipeline, error) {
	passes := make([]Pass, 0, len(names))
	for _, name := range names {
		p, err := New(name, opts)
		if err != nil {
			return nil, err
		}
		passes = append(passes, p)
	}
	return NewPipeline(passes...)
}

// Passes returns the passes of the pipeline, in order.
func (pl *Pipeline) Passes() []Pass {
	return pl.passes
}

// Names returns the names of the passes of the pipeline, in order.
func (pl *Pipeline) Names() []string {
	names := make([]string, len(pl.passes))
	for ii, p := range pl.passes {
		names[ii] = p.Name()
	}
	return names
}

// Run runs the passes in order with RunPass, stopping at the first failure.
//
// Each pass is atomic: on failure m holds the result of the passes that succeeded before it.
func (pl *Pipeline) Run(ctx context.Context, m *ir.Module) error {
	for ii, p := range pl.passes {
		if err := RunPass(ctx, p, m); err != nil {
			return errors.WithMessagef(err, "pipeline aborted at pass %d of %d", ii+1, len(pl.passes))
		}
	}
	klog.V(1).Infof("pipeline of %d passes done", len(pl.passes))
	return nil
}

// pipelineDescription is the YAML description of a pipeline.
type pipelineDescription struct {
	Passes []passDescription `yaml:"passes"`
}

// passDescription names a pass and optionally overrides its options.
type passDescription struct {
	Name                string  `yaml:"name"`
	AllowMutableTensors *bool   `yaml:"allow_mutable_tensors"`
	BaseDirectory       *string `yaml:"base_directory"`
}

// ParsePipeline creates a pipeline from a YAML description, like:
//
//	passes:
//	  - name: dedup-bound-input-binding
//	  - name: freeze-global-tensors
//	    allow_mutable_tensors: true
//	  - name: freeze-assets
//	    base_directory: /models/m1
//
// Passes are configured with opts, overridden by the options given in the description.
// Unknown fields are rejected.
func ParsePipeline(contents []byte, opts Options) (*Pipeline, error) {
	var desc pipelineDescription
	decoder := yaml.NewDecoder(bytes.NewReader(contents))
	decoder.KnownFields(true)
	if err := decoder.Decode(&desc); err != nil {
		return nil, errors.Wrap(err, "failed to parse pipeline description")
	}
	passes := make([]Pass, 0, len(desc.Passes))
	for ii, pd := range desc.Passes {
		if pd.Name == "" {
			return nil, errors.Errorf("pipeline description: pass #%d has no name", ii)
		}
		passOpts := opts
		if pd.AllowMutableTensors != nil {
			passOpts.AllowMutableTensors = *pd.AllowMutableTensors
		}
		if pd.BaseDirectory != nil {
			passOpts.BaseDirectory = *pd.BaseDirectory
		}
		p, err := New(pd.Name, passOpts)
		if err != nil {
			return nil, errors.WithMessagef(err, "pipeline description: pass #%d", ii)
		}
		passes = append(passes, p)
	}
	return NewPipeline(passes...)
}

// ReadPipelineFile reads a YAML pipeline description file, see ParsePipeline.
func ReadPipelineFile(filePath string, opts Options) (*Pipeline, error) {
	contents, err := os.ReadFile(filePath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read pipeline description in %s", filePath)
	}
	return ParsePipeline(contents, opts)
}
