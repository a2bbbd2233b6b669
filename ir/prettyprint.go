package ir

import (
	"bytes"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/gomlx/gomlx/pkg/core/tensors"
)

// String implements fmt.Stringer, and pretty prints the whole module.
//
// The output is deterministic: symbols are listed in name order and attributes in key order,
// so it can be used to compare modules.
func (m *Module) String() string {
	var buf bytes.Buffer
	// w writes to the buffer.
	w := func(format string, args ...any) {
		if len(args) == 0 {
			buf.WriteString(format)
		} else {
			buf.WriteString(fmt.Sprintf(format, args...))
		}
	}
	w("module {\n")
	for _, name := range m.symbols.Names() {
		switch sym := m.symbols.symbols[name].(type) {
		case *GlobalTensor:
			w("  global_tensor @%s : %s mutable=%t", sym.Name, sym.Shape, sym.Mutable)
			if sym.Value != nil {
				w(" value=%s", FormatValue(sym.Value))
			}
			w("%s\n", formatAttrs(sym.Attrs))
		case *Asset:
			w("  asset @%s %q\n", sym.Name, sym.Filename)
		}
	}
	for _, fn := range m.Functions {
		w("  func @%s(", fn.Name)
		for ii, p := range fn.Params {
			if ii > 0 {
				w(", ")
			}
			w("%%%s", p.Name)
			if p.BoundInput != "" {
				w(" {bound_input=@%s}", p.BoundInput)
			}
			if p.Variable != "" {
				w(" {variable=%q}", p.Variable)
			}
		}
		w(")")
		if fn.Name == m.Initializer {
			w(" initializer")
		}
		w(" {\n")
		for _, op := range fn.Body {
			w("    %s\n", op)
		}
		w("  }\n")
	}
	w("}\n")
	return buf.String()
}

// String implements fmt.Stringer.
func (op *Operation) String() string {
	var parts []string
	if len(op.Results) > 0 {
		parts = append(parts, prefixed(op.Results)+" =")
	}
	parts = append(parts, fmt.Sprintf("%s(%s)%s", op.Kind, prefixed(op.Operands), formatAttrs(op.Attrs)))
	if op.Loc != "" {
		parts = append(parts, fmt.Sprintf("loc(%q)", op.Loc))
	}
	return strings.Join(parts, " ")
}

// FormatValue formats a constant or attribute value.
func FormatValue(value any) string {
	switch v := value.(type) {
	case *tensors.Tensor:
		return fmt.Sprintf("%s:%v", v.Shape(), v.Value())
	case string:
		return fmt.Sprintf("%q", v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func prefixed(names []string) string {
	withPrefix := make([]string, len(names))
	for ii, name := range names {
		withPrefix[ii] = "%" + name
	}
	return strings.Join(withPrefix, ", ")
}

func formatAttrs(attrs map[string]any) string {
	if len(attrs) == 0 {
		return ""
	}
	parts := make([]string, 0, len(attrs))
	for _, key := range slices.Sorted(maps.Keys(attrs)) {
		parts = append(parts, fmt.Sprintf("%s=%s", key, FormatValue(attrs[key])))
	}
	return " {" + strings.Join(parts, ", ") + "}"
}
