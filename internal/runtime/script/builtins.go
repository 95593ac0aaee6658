package script

import (
	"encoding/json"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/dop251/goja"
)

func (s *session) bindBuiltins() {
	vm := s.vm
	_ = vm.Set("len", func(call goja.FunctionCall) goja.Value {
		arg := call.Argument(0)
		if obj, ok := arg.(*goja.Object); ok {
			if ds, ok := s.frameOf(obj); ok {
				return vm.ToValue(ds.Len())
			}
			if length := obj.Get("length"); length != nil && !goja.IsUndefined(length) {
				return vm.ToValue(length.ToInteger())
			}
			return vm.ToValue(len(obj.Keys()))
		}
		if goja.IsUndefined(arg) || goja.IsNull(arg) {
			panic(vm.NewTypeError("len: object of type %s has no length", arg.String()))
		}
		if text, ok := arg.Export().(string); ok {
			return vm.ToValue(utf8.RuneCountInString(text))
		}
		panic(vm.NewTypeError("len: object of type %s has no length", arg.ExportType()))
	})
	_ = vm.Set("min", func(call goja.FunctionCall) goja.Value { return s.extreme(call, "min", -1) })
	_ = vm.Set("max", func(call goja.FunctionCall) goja.Value { return s.extreme(call, "max", 1) })
	_ = vm.Set("sum", func(call goja.FunctionCall) goja.Value {
		nums, integral := s.floats(call.Argument(0), "sum")
		total := sum(nums)
		if start := call.Argument(1); !goja.IsUndefined(start) {
			total += start.ToFloat()
			if _, ok := start.Export().(int64); !ok {
				integral = false
			}
		}
		return vm.ToValue(numberValue(total, integral))
	})
	_ = vm.Set("abs", func(call goja.FunctionCall) goja.Value {
		arg := call.Argument(0)
		if n, ok := arg.Export().(int64); ok {
			if n < 0 {
				n = -n
			}
			return vm.ToValue(n)
		}
		return vm.ToValue(math.Abs(arg.ToFloat()))
	})
	_ = vm.Set("range", func(call goja.FunctionCall) goja.Value {
		return s.sequence(call, "range")
	})
	_ = vm.Set("print", func(call goja.FunctionCall) goja.Value {
		parts := make([]string, len(call.Arguments))
		for i, arg := range call.Arguments {
			parts[i] = arg.String()
		}
		s.log(strings.Join(parts, " "))
		return goja.Undefined()
	})
}

// extreme implements min and max over either a single array or the arguments.
func (s *session) extreme(call goja.FunctionCall, fn string, want int) goja.Value {
	items := call.Arguments
	if len(items) == 1 {
		if obj, ok := items[0].(*goja.Object); ok {
			items = s.elements(obj, fn)
		}
	}
	var best goja.Value
	var bestCell any
	for _, item := range items {
		cell := exportCell(item)
		if cell == nil {
			continue
		}
		if best == nil {
			best, bestCell = item, cell
			continue
		}
		cmp, ok := compareCells(cell, bestCell)
		if !ok {
			panic(s.vm.NewTypeError("%s: values are not comparable", fn))
		}
		if cmp == want {
			best, bestCell = item, cell
		}
	}
	if best == nil {
		panic(s.vm.NewTypeError("%s: arg is an empty sequence", fn))
	}
	return best
}

// sequence implements range(stop) and range(start, stop[, step]).
func (s *session) sequence(call goja.FunctionCall, fn string) goja.Value {
	var start, stop, step int64 = 0, 0, 1
	switch len(call.Arguments) {
	case 0:
		panic(s.vm.NewTypeError("%s: expected at least 1 argument", fn))
	case 1:
		stop = call.Argument(0).ToInteger()
	default:
		start = call.Argument(0).ToInteger()
		stop = call.Argument(1).ToInteger()
		if arg := call.Argument(2); !goja.IsUndefined(arg) {
			step = arg.ToInteger()
		}
	}
	if step == 0 {
		panic(s.vm.NewTypeError("%s: step must not be zero", fn))
	}

	n := sequenceLen(start, stop, step)
	if n > uint64(s.cfg.MaxElements) {
		s.checkSize(fn, s.cfg.MaxElements+1)
	}

	items := make([]any, 0, int(n))
	for i := int64(0); i < int64(n); i++ {
		items = append(items, start+i*step)
	}
	return s.vm.NewArray(items...)
}

// sequenceLen counts the values of range(start, stop, step) in unsigned
// arithmetic so spans wider than int64 do not wrap.
func sequenceLen(start, stop, step int64) uint64 {
	var span, stride uint64
	switch {
	case step > 0 && stop > start:
		span, stride = uint64(stop)-uint64(start), uint64(step)
	case step < 0 && stop < start:
		span, stride = uint64(start)-uint64(stop), -uint64(step)
	default:
		return 0
	}
	n := span / stride
	if span%stride != 0 {
		n++
	}
	return n
}

func (s *session) jsonLibrary() *goja.Object {
	vm := s.vm
	lib := vm.NewObject()
	_ = lib.Set("dumps", func(call goja.FunctionCall) goja.Value {
		data, err := s.marshal(call.Argument(0))
		if err != nil {
			panic(vm.NewTypeError("json.dumps: %v", err))
		}
		if indent := call.Argument(1); !goja.IsUndefined(indent) && indent.ToInteger() > 0 {
			var pretty strings.Builder
			var decoded any
			if err := json.Unmarshal(data, &decoded); err == nil {
				enc := json.NewEncoder(&pretty)
				enc.SetIndent("", strings.Repeat(" ", int(indent.ToInteger())))
				if enc.Encode(decoded) == nil {
					return vm.ToValue(strings.TrimRight(pretty.String(), "\n"))
				}
			}
		}
		return vm.ToValue(string(data))
	})
	_ = lib.Set("loads", func(call goja.FunctionCall) goja.Value {
		var decoded any
		if err := json.Unmarshal([]byte(call.Argument(0).String()), &decoded); err != nil {
			panic(vm.NewTypeError("json.loads: %v", err))
		}
		return s.fromJSON(decoded)
	})
	return lib
}

// marshal encodes a JS value the way JSON.stringify would.
func (s *session) marshal(v goja.Value) ([]byte, error) {
	if obj, ok := v.(*goja.Object); ok {
		return obj.MarshalJSON()
	}
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return []byte("null"), nil
	}
	if f, ok := v.Export().(float64); ok && (math.IsNaN(f) || math.IsInf(f, 0)) {
		return []byte("null"), nil
	}
	return json.Marshal(v.Export())
}

// fromJSON builds native JS values from decoded JSON so programs can mutate them.
func (s *session) fromJSON(v any) goja.Value {
	switch value := v.(type) {
	case map[string]any:
		obj := s.vm.NewObject()
		for key, item := range value {
			_ = obj.Set(key, s.fromJSON(item))
		}
		return obj
	case []any:
		s.checkSize("json.loads", len(value))
		items := make([]any, len(value))
		for i, item := range value {
			items[i] = s.fromJSON(item)
		}
		return s.vm.NewArray(items...)
	case nil:
		return goja.Null()
	default:
		return s.vm.ToValue(value)
	}
}

func (s *session) plotLibrary() *goja.Object {
	vm := s.vm
	lib := vm.NewObject()
	describeChart := func(kind string) func(goja.FunctionCall) goja.Value {
		return func(call goja.FunctionCall) goja.Value {
			chart := vm.NewObject()
			title := call.Argument(0)
			if goja.IsUndefined(title) || goja.IsNull(title) {
				_ = chart.Set("title", "Chart")
			} else {
				_ = chart.Set("title", title.String())
			}
			if desc := call.Argument(1); !goja.IsUndefined(desc) && !goja.IsNull(desc) {
				_ = chart.Set("description", desc.String())
			}
			_ = chart.Set("kind", kind)
			return chart
		}
	}
	for _, kind := range []string{"chart", "bar", "line", "scatter", "hist", "pie"} {
		_ = lib.Set(kind, describeChart(kind))
	}
	return lib
}
