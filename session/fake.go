package session

import (
	"maps"
	"slices"
	"sync"

	"github.com/gomlx/go-xla/pkg/types/dtypes"
	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/pkg/errors"
)

// Fake is an in-memory Session holding caller-supplied canned values.
type Fake struct {
	mu          sync.Mutex
	values      map[string]*tensors.Tensor
	shapes      map[string]shapes.Shape
	unavailable bool
	calls       int
}

var _ Session = (*Fake)(nil)

// NewFake creates an empty Fake session.
func NewFake() *Fake {
	return &Fake{
		values: make(map[string]*tensors.Tensor),
		shapes: make(map[string]shapes.Shape),
	}
}

// CannedFake returns the Fake session with the fixed set of variables used by the test variant of the
// initialize-variables pass:
//
//   - "var1": float32 [1] = {1}
//   - "var2": float32 [2, 2] = {{1, 2}, {3, 4}}
//   - "var3": int32 scalar = 42
//   - "uninitialized_var": float32 [3], with no value.
func CannedFake() *Fake {
	return NewFake().
		Set("var1", []float32{1}).
		Set("var2", [][]float32{{1, 2}, {3, 4}}).
		Set("var3", int32(42)).
		SetUninitialized("uninitialized_var", shapes.Make(dtypes.Float32, 3))
}

// Set the value of a variable: value can be a *tensors.Tensor or anything accepted by tensors.FromAnyValue.
// It returns the Fake itself, so calls can be chained.
func (f *Fake) Set(name string, value any) *Fake {
	t, ok := value.(*tensors.Tensor)
	if !ok {
		t = tensors.FromAnyValue(value)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[name] = t
	f.shapes[name] = t.Shape()
	return f
}

// SetUninitialized declares a variable with the given shape but no value.
func (f *Fake) SetUninitialized(name string, shape shapes.Shape) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.values, name)
	f.shapes[name] = shape
	return f
}

// SetUnavailable makes every following call fail with ErrUnavailable (or succeed again if false).
func (f *Fake) SetUnavailable(unavailable bool) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unavailable = unavailable
	return f
}

// Calls returns the number of calls made to the Session methods so far.
func (f *Fake) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// call registers a call and checks the variable exists, with f.mu held.
func (f *Fake) call(name string) error {
	f.calls++
	if f.unavailable {
		return errors.Wrapf(ErrUnavailable, "fake session, looking up %q", name)
	}
	if _, found := f.shapes[name]; !found {
		return errors.Wrapf(ErrUnknownVariable, "fake session has no variable %q", name)
	}
	return nil
}

// ValueOf implements Session.
func (f *Fake) ValueOf(name string) (*tensors.Tensor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call(name); err != nil {
		return nil, err
	}
	t, found := f.values[name]
	if !found {
		return nil, errors.Wrapf(ErrUninitialized, "fake session variable %q", name)
	}
	return t, nil
}

// IsInitialized implements Session.
func (f *Fake) IsInitialized(name string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call(name); err != nil {
		return false, err
	}
	_, found := f.values[name]
	return found, nil
}

// ShapeOf implements Session.
func (f *Fake) ShapeOf(name string) (shapes.Shape, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call(name); err != nil {
		return shapes.Shape{}, err
	}
	return f.shapes[name], nil
}

// Variables implements Session.
func (f *Fake) Variables() ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.unavailable {
		return nil, errors.Wrap(ErrUnavailable, "fake session, listing variables")
	}
	return slices.Sorted(maps.Keys(f.shapes)), nil
}
