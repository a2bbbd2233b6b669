// Package passes implements the rewrites that prepare a saved model module for deployment, and the
// driver that runs them in order.
//
// Passes:
//
//   - dedup-bound-input-binding: merges parameters of a function bound to the same symbol.
//   - optimize-global-tensors: removes global tensors that nothing reads nor writes.
//   - remove-variables-in-session-initializer: removes initializer assignments to immutable tensors.
//   - lift-variables: promotes parameters fed from session variables to global tensors.
//   - freeze-global-tensors: replaces reads of immutable global tensors by constants.
//   - freeze-assets: replaces asset parameters by constant paths.
//   - mark-initialized-variables: records the initialization status of every global tensor.
//   - initialize-variables-in-session-initializer: assigns every global tensor in the initializer.
//
// Passes are created by their constructors or by name (see New), and are executed with RunPass or a
// Pipeline, which guarantee a pass is applied completely or not at all.
package passes

import (
	"context"
	"time"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/savedmodel-gomlx/ir"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"k8s.io/klog/v2"
)

// Pass is a rewrite of a module.
type Pass interface {
	// Name returns the identifier of the pass, as used in the registry.
	Name() string

	// Rewrite transforms m in place.
	//
	// If it fails, m may be left partially rewritten: call it through RunPass or a Pipeline, which
	// run it on a staged copy of the module.
	Rewrite(m *ir.Module) error
}

var tracer = otel.Tracer("github.com/gomlx/savedmodel-gomlx/passes")

// RunPass runs p on a staged copy of m and commits the result only if the pass succeeds and the
// rewritten module still verifies (see ir.Module.Verify). On failure m is unchanged.
//
// The context is only used for tracing: passes are not cancellable.
func RunPass(ctx context.Context, p Pass, m *ir.Module) error {
	_, span := tracer.Start(ctx, "savedmodel.pass",
		trace.WithAttributes(attribute.String("savedmodel.pass.name", p.Name())))
	defer span.End()

	start := time.Now()
	err := m.Apply(func(staged *ir.Module) error {
		var err error
		if exception := exceptions.TryCatch[error](func() { err = p.Rewrite(staged) }); exception != nil {
			return errors.WithMessage(exception, "internal error")
		}
		if err != nil {
			return err
		}
		if err := staged.Verify(); err != nil {
			return errors.WithMessage(err, "rewritten module is invalid")
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "pass failed")
		klog.V(1).Infof("pass %q failed after %s: %v", p.Name(), time.Since(start), err)
		return errors.WithMessagef(err, "pass %q", p.Name())
	}
	klog.V(1).Infof("pass %q done in %s", p.Name(), time.Since(start))
	return nil
}
