package script

import (
	"fmt"
	"math"
	"strings"

	"github.com/dop251/goja"
)

// exportCell converts a JS value into a dataset cell.
func exportCell(v goja.Value) any {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil
	}
	switch value := v.Export().(type) {
	case int64, float64, string, bool:
		return value
	case int:
		return int64(value)
	default:
		return v.String()
	}
}

func (s *session) cellValue(cell any) goja.Value {
	if cell == nil {
		return goja.Null()
	}
	return s.vm.ToValue(cell)
}

func toFloat(v any) (float64, bool) {
	switch value := v.(type) {
	case int64:
		return float64(value), true
	case int:
		return float64(value), true
	case float64:
		return value, !math.IsNaN(value)
	default:
		return 0, false
	}
}

func isIntegral(v any) bool {
	switch v.(type) {
	case int64, int:
		return true
	default:
		return false
	}
}

// numberValue renders an aggregate as int64 when every input was an integer
// and the value is whole.
func numberValue(f float64, integral bool) any {
	if integral && f == math.Trunc(f) && math.Abs(f) < 1<<53 {
		return int64(f)
	}
	return f
}

// compareCells orders two cells. Numbers compare numerically, strings
// lexically and bools false before true. Mixed or null operands are unordered.
func compareCells(a, b any) (int, bool) {
	if fa, ok := toFloat(a); ok {
		fb, ok := toFloat(b)
		if !ok {
			return 0, false
		}
		switch {
		case fa < fb:
			return -1, true
		case fa > fb:
			return 1, true
		default:
			return 0, true
		}
	}
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		if !ok {
			return 0, false
		}
		return strings.Compare(av, bv), true
	case bool:
		bv, ok := b.(bool)
		if !ok {
			return 0, false
		}
		switch {
		case av == bv:
			return 0, true
		case !av:
			return -1, true
		default:
			return 1, true
		}
	}
	return 0, false
}

func equalCells(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if cmp, ok := compareCells(a, b); ok {
		return cmp == 0
	}
	return false
}

func matchCell(cell any, op string, target any) (bool, error) {
	switch op {
	case "==", "===":
		return equalCells(cell, target), nil
	case "!=", "!==":
		return !equalCells(cell, target), nil
	}
	cmp, ok := compareCells(cell, target)
	switch op {
	case "<":
		return ok && cmp < 0, nil
	case "<=":
		return ok && cmp <= 0, nil
	case ">":
		return ok && cmp > 0, nil
	case ">=":
		return ok && cmp >= 0, nil
	default:
		return false, fmt.Errorf("unsupported comparison %q", op)
	}
}

// floats collects the numeric elements of an array value, skipping nulls.
func (s *session) floats(v goja.Value, fn string) ([]float64, bool) {
	items := s.elements(v, fn)
	out := make([]float64, 0, len(items))
	integral := true
	for _, item := range items {
		cell := exportCell(item)
		if cell == nil {
			continue
		}
		f, ok := toFloat(cell)
		if !ok {
			panic(s.vm.NewTypeError("%s: non-numeric value %s", fn, item.String()))
		}
		if !isIntegral(cell) {
			integral = false
		}
		out = append(out, f)
	}
	return out, integral
}

// elements returns the items of an array-like value.
func (s *session) elements(v goja.Value, fn string) []goja.Value {
	obj, ok := v.(*goja.Object)
	if !ok || goja.IsUndefined(v) || goja.IsNull(v) {
		panic(s.vm.NewTypeError("%s: expected an array", fn))
	}
	if f, ok := s.frameOf(obj); ok && len(f.Columns) == 1 {
		values, _ := f.Column(f.Columns[0])
		out := make([]goja.Value, len(values))
		for i, cell := range values {
			out[i] = s.cellValue(cell)
		}
		return out
	}
	length := obj.Get("length")
	if length == nil || goja.IsUndefined(length) {
		panic(s.vm.NewTypeError("%s: expected an array", fn))
	}
	n := int(length.ToInteger())
	if n < 0 {
		n = 0
	}
	if n > s.cfg.MaxElements {
		panic(s.vm.NewTypeError("%s: array has %d elements, limit is %d", fn, n, s.cfg.MaxElements))
	}
	out := make([]goja.Value, n)
	for i := 0; i < n; i++ {
		out[i] = obj.Get(fmt.Sprint(i))
	}
	return out
}

func (s *session) checkSize(fn string, n int) {
	if n > s.cfg.MaxElements {
		panic(s.vm.NewGoError(fmt.Errorf("%s: %d elements exceeds the limit of %d", fn, n, s.cfg.MaxElements)))
	}
}

func (s *session) array(values []any) goja.Value {
	items := make([]any, len(values))
	for i, v := range values {
		items[i] = s.cellValue(v)
	}
	return s.vm.NewArray(items...)
}
