package script

import (
	"fmt"
	"sort"

	"github.com/dop251/goja"

	"github.com/thomassthus-stack/Tommytiger/internal/domain/analysis"
)

func (s *session) frameOf(obj *goja.Object) (analysis.Dataset, bool) {
	ds, ok := s.frames[obj]
	return ds, ok
}

// frameObject exposes ds to the program as a read-only frame. The frame owns ds;
// callers must not retain it.
func (s *session) frameObject(ds analysis.Dataset) *goja.Object {
	vm := s.vm
	obj := vm.NewObject()
	s.frames[obj] = ds

	columns := make([]any, len(ds.Columns))
	for i, name := range ds.Columns {
		columns[i] = name
	}
	_ = obj.Set("columns", vm.NewArray(columns...))
	_ = obj.Set("length", ds.Len())
	_ = obj.Set("shape", vm.NewArray(ds.Len(), len(ds.Columns)))

	_ = obj.Set("col", func(call goja.FunctionCall) goja.Value {
		values := s.column(ds, call.Argument(0).String(), "col")
		return s.array(values)
	})
	_ = obj.Set("head", func(call goja.FunctionCall) goja.Value {
		n := 5
		if arg := call.Argument(0); !goja.IsUndefined(arg) {
			n = int(arg.ToInteger())
		}
		return s.frameObject(ds.Head(n))
	})
	_ = obj.Set("select", func(call goja.FunctionCall) goja.Value {
		names := make([]string, 0, len(call.Arguments))
		for _, arg := range call.Arguments {
			if arr, ok := arg.(*goja.Object); ok && arr.ClassName() == "Array" {
				for _, item := range s.elements(arr, "select") {
					names = append(names, item.String())
				}
				continue
			}
			names = append(names, arg.String())
		}
		return s.frameObject(s.project(ds, names))
	})
	_ = obj.Set("where", func(call goja.FunctionCall) goja.Value {
		name := call.Argument(0).String()
		op := call.Argument(1).String()
		target := exportCell(call.Argument(2))
		idx := s.columnIndex(ds, name, "where")
		out := analysis.Dataset{Columns: append([]string(nil), ds.Columns...)}
		for _, row := range ds.Rows {
			ok, err := matchCell(row[idx], op, target)
			if err != nil {
				panic(vm.NewTypeError("where: %v", err))
			}
			if ok {
				out.Rows = append(out.Rows, append([]any(nil), row...))
			}
		}
		return s.frameObject(out)
	})
	_ = obj.Set("sortBy", func(call goja.FunctionCall) goja.Value {
		idx := s.columnIndex(ds, call.Argument(0).String(), "sortBy")
		ascending := true
		if arg := call.Argument(1); !goja.IsUndefined(arg) {
			ascending = arg.ToBoolean()
		}
		out := ds.Clone()
		sort.SliceStable(out.Rows, func(i, j int) bool {
			return cellLess(out.Rows[i][idx], out.Rows[j][idx], ascending)
		})
		return s.frameObject(out)
	})
	_ = obj.Set("groupBy", func(call goja.FunctionCall) goja.Value {
		by := call.Argument(0).String()
		column := call.Argument(1).String()
		agg := "sum"
		if arg := call.Argument(2); !goja.IsUndefined(arg) {
			agg = arg.String()
		}
		return s.frameObject(s.groupBy(ds, by, column, agg))
	})
	_ = obj.Set("valueCounts", func(call goja.FunctionCall) goja.Value {
		return s.frameObject(s.valueCounts(ds, call.Argument(0).String()))
	})
	_ = obj.Set("describe", func(call goja.FunctionCall) goja.Value {
		values := s.column(ds, call.Argument(0).String(), "describe")
		return vm.ToValue(describe(values))
	})
	for _, agg := range []string{"sum", "mean", "min", "max", "median", "count"} {
		agg := agg
		_ = obj.Set(agg, func(call goja.FunctionCall) goja.Value {
			values := s.column(ds, call.Argument(0).String(), agg)
			result, err := aggregate(values, agg)
			if err != nil {
				panic(vm.NewTypeError("%s: %v", agg, err))
			}
			return s.cellValue(result)
		})
	}
	records := func(goja.FunctionCall) goja.Value {
		s.checkSize("toRecords", ds.Len())
		out := make([]any, 0, ds.Len())
		for _, row := range ds.Rows {
			out = append(out, s.record(ds.Columns, row))
		}
		return vm.NewArray(out...)
	}
	_ = obj.Set("toRecords", records)
	_ = obj.Set("toJSON", records)
	_ = obj.Set("toString", func(goja.FunctionCall) goja.Value {
		return vm.ToValue(ds.Preview(ds.Len()))
	})

	return obj
}

func (s *session) record(columns []string, row []any) *goja.Object {
	rec := s.vm.NewObject()
	for i, name := range columns {
		_ = rec.Set(name, s.cellValue(row[i]))
	}
	return rec
}

func (s *session) columnIndex(ds analysis.Dataset, name, fn string) int {
	for idx, col := range ds.Columns {
		if col == name {
			return idx
		}
	}
	panic(s.vm.NewTypeError("%s: unknown column %q", fn, name))
}

func (s *session) column(ds analysis.Dataset, name, fn string) []any {
	values, ok := ds.Column(name)
	if !ok {
		panic(s.vm.NewTypeError("%s: unknown column %q", fn, name))
	}
	return values
}

func (s *session) project(ds analysis.Dataset, names []string) analysis.Dataset {
	indexes := make([]int, len(names))
	for i, name := range names {
		indexes[i] = s.columnIndex(ds, name, "select")
	}
	out := analysis.Dataset{Columns: append([]string(nil), names...), Rows: make([][]any, len(ds.Rows))}
	for r, row := range ds.Rows {
		projected := make([]any, len(indexes))
		for i, idx := range indexes {
			projected[i] = row[idx]
		}
		out.Rows[r] = projected
	}
	return out
}

func (s *session) groupBy(ds analysis.Dataset, by, column, agg string) analysis.Dataset {
	keyIdx := s.columnIndex(ds, by, "groupBy")
	valIdx := s.columnIndex(ds, column, "groupBy")

	var keys []any
	groups := make(map[string][]any)
	for _, row := range ds.Rows {
		key := row[keyIdx]
		if key == nil {
			continue
		}
		id := fmt.Sprintf("%T:%v", key, key)
		if _, seen := groups[id]; !seen {
			keys = append(keys, key)
		}
		groups[id] = append(groups[id], row[valIdx])
	}
	sort.SliceStable(keys, func(i, j int) bool { return cellLess(keys[i], keys[j], true) })

	out := analysis.Dataset{Columns: []string{by, column}}
	for _, key := range keys {
		value, err := aggregate(groups[fmt.Sprintf("%T:%v", key, key)], agg)
		if err != nil {
			panic(s.vm.NewTypeError("groupBy: %v", err))
		}
		out.Rows = append(out.Rows, []any{key, value})
	}
	return out
}

func (s *session) valueCounts(ds analysis.Dataset, column string) analysis.Dataset {
	values := s.column(ds, column, "valueCounts")
	var order []any
	counts := make(map[string]int64)
	for _, v := range values {
		if v == nil {
			continue
		}
		id := fmt.Sprintf("%T:%v", v, v)
		if _, seen := counts[id]; !seen {
			order = append(order, v)
		}
		counts[id]++
	}
	sort.SliceStable(order, func(i, j int) bool {
		return counts[fmt.Sprintf("%T:%v", order[i], order[i])] > counts[fmt.Sprintf("%T:%v", order[j], order[j])]
	})

	out := analysis.Dataset{Columns: []string{column, "count"}}
	for _, v := range order {
		out.Rows = append(out.Rows, []any{v, counts[fmt.Sprintf("%T:%v", v, v)]})
	}
	return out
}

// cellLess orders cells with nulls last regardless of direction.
func cellLess(a, b any, ascending bool) bool {
	if a == nil || b == nil {
		return a != nil && b == nil
	}
	cmp, ok := compareCells(a, b)
	if !ok {
		return false
	}
	if ascending {
		return cmp < 0
	}
	return cmp > 0
}

// newFrame builds a frame from an array of record objects.
func (s *session) newFrame(call goja.FunctionCall) goja.Value {
	rows := s.elements(call.Argument(0), "DataFrame")
	var columns []string
	index := make(map[string]int)
	records := make([]*goja.Object, 0, len(rows))
	for i, item := range rows {
		rec, ok := item.(*goja.Object)
		if !ok {
			panic(s.vm.NewTypeError("DataFrame: row %d is not an object", i))
		}
		for _, key := range rec.Keys() {
			if _, seen := index[key]; !seen {
				index[key] = len(columns)
				columns = append(columns, key)
			}
		}
		records = append(records, rec)
	}

	ds := analysis.Dataset{Columns: columns, Rows: make([][]any, len(records))}
	for r, rec := range records {
		row := make([]any, len(columns))
		for c, name := range columns {
			row[c] = exportCell(rec.Get(name))
		}
		ds.Rows[r] = row
	}
	return s.frameObject(ds)
}
