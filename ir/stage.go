package ir

import (
	"maps"
	"slices"
)

// Clone returns a deep copy of the module.
//
// Tensor values (GlobalTensor.Value and tensor constants) are shared, they are never mutated in place.
func (m *Module) Clone() *Module {
	c := &Module{
		Functions:   make([]*Function, 0, len(m.Functions)),
		Initializer: m.Initializer,
	}
	for _, fn := range m.Functions {
		c.Functions = append(c.Functions, fn.Clone())
	}
	c.symbols = newSymbolTable(c)
	for name, sym := range m.symbols.symbols {
		switch s := sym.(type) {
		case *GlobalTensor:
			gt := *s
			gt.Shape = s.Shape.Clone()
			gt.Attrs = maps.Clone(s.Attrs)
			c.symbols.symbols[name] = &gt
		case *Asset:
			asset := *s
			c.symbols.symbols[name] = &asset
		}
	}
	return c
}

// Clone returns a deep copy of the function.
func (fn *Function) Clone() *Function {
	c := &Function{
		Name:   fn.Name,
		Params: make([]*Param, 0, len(fn.Params)),
		Body:   make([]*Operation, 0, len(fn.Body)),
	}
	for _, p := range fn.Params {
		pCopy := *p
		c.Params = append(c.Params, &pCopy)
	}
	for _, op := range fn.Body {
		c.Body = append(c.Body, op.Clone())
	}
	return c
}

// Clone returns a copy of the operation with its own operands, results and attributes.
func (op *Operation) Clone() *Operation {
	return &Operation{
		Kind:     op.Kind,
		Operands: slices.Clone(op.Operands),
		Results:  slices.Clone(op.Results),
		Attrs:    maps.Clone(op.Attrs),
		Loc:      op.Loc,
	}
}

// Apply runs update on a staged copy of the module and commits it only if update returns no error.
//
// On error the module is left exactly as it was. On success any *Function, *Param, *Operation or
// Symbol obtained from m before the call refers to the previous version and should not be reused.
func (m *Module) Apply(update func(staged *Module) error) error {
	staged := m.Clone()
	if err := update(staged); err != nil {
		return err
	}
	m.commit(staged)
	return nil
}

func (m *Module) commit(staged *Module) {
	m.Functions = staged.Functions
	m.Initializer = staged.Initializer
	m.symbols = staged.symbols
	m.symbols.module = m
}
