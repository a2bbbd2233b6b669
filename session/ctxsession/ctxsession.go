// Package ctxsession implements a session.Session over the variables of a GoMLX context.
//
// This is the natural session when the model variables live in a GoMLX training or inference
// context: LoadGlobalTensors uploads the global tensors of a module into the context, and New exposes
// the context variables (within a scope) back to the passes.
package ctxsession

import (
	"slices"
	"strings"

	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/savedmodel-gomlx/ir"
	"github.com/gomlx/savedmodel-gomlx/session"
	"github.com/pkg/errors"
)

// ModelScope is the default scope for the saved model variables in the GoMLX context.
var ModelScope = "SavedModel"

// Session exposes the variables of one scope of a GoMLX context.
type Session struct {
	ctx *context.Context
}

var _ session.Session = (*Session)(nil)

// New creates a Session over the variables of ctx in the given scope (ModelScope if empty).
func New(ctx *context.Context, scope string) *Session {
	if scope == "" {
		scope = ModelScope
	}
	return &Session{ctx: ctx.In(scope).Checked(false)}
}

// SafeVarName converts a symbol name to a GoMLX safe variable name by replacing the scope separator with a "|".
func SafeVarName(name string) (gomlxName string) {
	return strings.ReplaceAll(name, context.ScopeSeparator, "|")
}

// LoadGlobalTensors creates variables in the context (within scope ModelScope) from all global tensors of
// the module that hold a value.
func LoadGlobalTensors(ctx *context.Context, m *ir.Module) {
	ctx = ctx.In(ModelScope).Checked(false)
	for _, gt := range m.Symbols().GlobalTensors() {
		if gt.Value == nil {
			continue
		}
		ctx.VariableWithValue(SafeVarName(gt.Name), gt.Value)
	}
}

func (s *Session) variable(name string) (*context.Variable, error) {
	v := s.ctx.GetVariable(SafeVarName(name))
	if v == nil {
		return nil, errors.Wrapf(session.ErrUnknownVariable, "no variable %q in context scope %q", name, s.ctx.Scope())
	}
	return v, nil
}

// ValueOf implements session.Session.
func (s *Session) ValueOf(name string) (*tensors.Tensor, error) {
	v, err := s.variable(name)
	if err != nil {
		return nil, err
	}
	value, err := v.Value()
	return checkValue(v.ScopeAndName(), value, err)
}

// checkValue reports a variable without value as session.ErrUninitialized, and wraps any other failure.
func checkValue(scopeAndName string, value *tensors.Tensor, err error) (*tensors.Tensor, error) {
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read value of context variable %q", scopeAndName)
	}
	if value == nil {
		return nil, errors.Wrapf(session.ErrUninitialized, "context variable %q", scopeAndName)
	}
	return value, nil
}

// IsInitialized implements session.Session.
func (s *Session) IsInitialized(name string) (bool, error) {
	v, err := s.variable(name)
	if err != nil {
		return false, err
	}
	value, err := v.Value()
	if _, err = checkValue(v.ScopeAndName(), value, err); err != nil {
		if errors.Is(err, session.ErrUninitialized) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// ShapeOf implements session.Session.
func (s *Session) ShapeOf(name string) (shapes.Shape, error) {
	v, err := s.variable(name)
	if err != nil {
		return shapes.Shape{}, err
	}
	return v.Shape(), nil
}

// Variables implements session.Session.
func (s *Session) Variables() ([]string, error) {
	scope := s.ctx.Scope()
	var names []string
	for v := range s.ctx.IterVariables() {
		if v.Scope() == scope {
			names = append(names, strings.ReplaceAll(v.Name(), "|", context.ScopeSeparator))
		}
	}
	slices.Sort(names)
	return names, nil
}
