package ir

import (
	"maps"
	"slices"

	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/gomlx/gomlx/pkg/core/tensors"
)

// Symbol is a module-level definition: *GlobalTensor or *Asset.
type Symbol interface {
	SymbolName() string
	setSymbolName(name string)
}

// GlobalTensor is a named, typed variable-like state entity.
type GlobalTensor struct {
	Name    string
	Shape   shapes.Shape
	Mutable bool

	// Value is the embedded constant value, nil if absent.
	Value *tensors.Tensor

	// Attrs are extra annotations, e.g. AttrIsInitialized.
	Attrs map[string]any
}

// SymbolName implements Symbol.
func (gt *GlobalTensor) SymbolName() string { return gt.Name }

func (gt *GlobalTensor) setSymbolName(name string) { gt.Name = name }

// SetAttr sets an annotation on the global tensor definition.
func (gt *GlobalTensor) SetAttr(key string, value any) {
	if gt.Attrs == nil {
		gt.Attrs = make(map[string]any)
	}
	gt.Attrs[key] = value
}

// Asset is a named reference to an external file, relative to the saved model directory.
type Asset struct {
	Name     string
	Filename string
}

// SymbolName implements Symbol.
func (a *Asset) SymbolName() string { return a.Name }

func (a *Asset) setSymbolName(name string) { a.Name = name }

// Binding identifies a parameter bound to a symbol.
type Binding struct {
	Function *Function
	Index    int
}

// Param returns the bound parameter.
func (b Binding) Param() *Param {
	return b.Function.Params[b.Index]
}

// SymbolTable maps unique names to GlobalTensor and Asset definitions.
//
// It is the single entry point to add, remove or rename symbols, so that no binding is ever
// left pointing to a missing definition.
type SymbolTable struct {
	module  *Module
	symbols map[string]Symbol
}

func newSymbolTable(m *Module) *SymbolTable {
	return &SymbolTable{module: m, symbols: make(map[string]Symbol)}
}

func (st *SymbolTable) has(name string) bool {
	_, found := st.symbols[name]
	return found
}

// Len returns the number of symbols.
func (st *SymbolTable) Len() int {
	return len(st.symbols)
}

// Register adds a new symbol. It fails with DuplicateSymbol if the name is already used by a symbol or function.
func (st *SymbolTable) Register(sym Symbol) error {
	name := sym.SymbolName()
	if name == "" {
		return Errorf(UnknownSymbol, "", "cannot register a symbol with an empty name")
	}
	if st.module.nameTaken(name) {
		return Errorf(DuplicateSymbol, SymbolLoc(name), "symbol %q already defined", name)
	}
	st.symbols[name] = sym
	return nil
}

// Lookup returns the symbol with the given name, or an UnknownSymbol error.
func (st *SymbolTable) Lookup(name string) (Symbol, error) {
	sym, found := st.symbols[name]
	if !found {
		return nil, Errorf(UnknownSymbol, SymbolLoc(name), "symbol %q not defined", name)
	}
	return sym, nil
}

// GlobalTensor returns the named global tensor, or an UnknownSymbol error if there is no global tensor with that name.
func (st *SymbolTable) GlobalTensor(name string) (*GlobalTensor, error) {
	sym, err := st.Lookup(name)
	if err != nil {
		return nil, err
	}
	gt, ok := sym.(*GlobalTensor)
	if !ok {
		return nil, Errorf(UnknownSymbol, SymbolLoc(name), "symbol %q is a %T, not a global tensor", name, sym)
	}
	return gt, nil
}

// Asset returns the named asset, or an UnknownSymbol error if there is no asset with that name.
func (st *SymbolTable) Asset(name string) (*Asset, error) {
	sym, err := st.Lookup(name)
	if err != nil {
		return nil, err
	}
	asset, ok := sym.(*Asset)
	if !ok {
		return nil, Errorf(UnknownSymbol, SymbolLoc(name), "symbol %q is a %T, not an asset", name, sym)
	}
	return asset, nil
}

// Names returns all symbol names in lexicographic order.
func (st *SymbolTable) Names() []string {
	return slices.Sorted(maps.Keys(st.symbols))
}

// GlobalTensors returns all global tensors sorted by name.
func (st *SymbolTable) GlobalTensors() []*GlobalTensor {
	var list []*GlobalTensor
	for _, name := range st.Names() {
		if gt, ok := st.symbols[name].(*GlobalTensor); ok {
			list = append(list, gt)
		}
	}
	return list
}

// Assets returns all assets sorted by name.
func (st *SymbolTable) Assets() []*Asset {
	var list []*Asset
	for _, name := range st.Names() {
		if asset, ok := st.symbols[name].(*Asset); ok {
			list = append(list, asset)
		}
	}
	return list
}

// Bindings returns the parameters bound to the named symbol, in function and parameter order.
func (st *SymbolTable) Bindings(name string) []Binding {
	var bindings []Binding
	for _, fn := range st.module.Functions {
		for ii, p := range fn.Params {
			if p.BoundInput == name {
				bindings = append(bindings, Binding{Function: fn, Index: ii})
			}
		}
	}
	return bindings
}

// Remove deletes the named symbol.
// It fails with SymbolInUse while any parameter is still bound to it: callers must rewrite those first.
func (st *SymbolTable) Remove(name string) error {
	if _, err := st.Lookup(name); err != nil {
		return err
	}
	if bindings := st.Bindings(name); len(bindings) > 0 {
		b := bindings[0]
		return Errorf(SymbolInUse, SymbolLoc(name), "symbol %q still bound to parameter %q of function %q (%d bindings)",
			name, b.Param().Name, b.Function.Name, len(bindings))
	}
	delete(st.symbols, name)
	return nil
}

// Rename changes the name of a symbol and of every binding referencing it.
func (st *SymbolTable) Rename(oldName, newName string) error {
	sym, err := st.Lookup(oldName)
	if err != nil {
		return err
	}
	if oldName == newName {
		return nil
	}
	if st.module.nameTaken(newName) {
		return Errorf(DuplicateSymbol, SymbolLoc(newName), "cannot rename %q to %q: name already in use", oldName, newName)
	}
	for _, b := range st.Bindings(oldName) {
		b.Param().BoundInput = newName
	}
	delete(st.symbols, oldName)
	sym.setSymbolName(newName)
	st.symbols[newName] = sym
	return nil
}
