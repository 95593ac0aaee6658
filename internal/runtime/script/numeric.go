package script

import (
	"fmt"
	"math"
	"sort"

	"github.com/dop251/goja"
)

func numbers(values []any) ([]float64, bool, error) {
	out := make([]float64, 0, len(values))
	integral := true
	for _, v := range values {
		if v == nil {
			continue
		}
		f, ok := toFloat(v)
		if !ok {
			return nil, false, fmt.Errorf("non-numeric value %v", v)
		}
		if !isIntegral(v) {
			integral = false
		}
		out = append(out, f)
	}
	return out, integral, nil
}

func aggregate(values []any, agg string) (any, error) {
	if agg == "count" {
		var n int64
		for _, v := range values {
			if v != nil {
				n++
			}
		}
		return n, nil
	}

	nums, integral, err := numbers(values)
	if err != nil {
		return nil, err
	}
	switch agg {
	case "sum":
		return numberValue(sum(nums), integral), nil
	case "mean":
		if len(nums) == 0 {
			return nil, nil
		}
		return mean(nums), nil
	case "median":
		if len(nums) == 0 {
			return nil, nil
		}
		return percentile(nums, 50), nil
	case "min", "max":
		if len(nums) == 0 {
			return nil, nil
		}
		best := nums[0]
		for _, f := range nums[1:] {
			if (agg == "min" && f < best) || (agg == "max" && f > best) {
				best = f
			}
		}
		return numberValue(best, integral), nil
	default:
		return nil, fmt.Errorf("unsupported aggregation %q", agg)
	}
}

func describe(values []any) map[string]any {
	nums, _, err := numbers(values)
	summary := map[string]any{"count": int64(len(nums))}
	if err != nil || len(nums) == 0 {
		return summary
	}
	sorted := append([]float64(nil), nums...)
	sort.Float64s(sorted)
	summary["mean"] = mean(nums)
	summary["std"] = stddev(nums, 1)
	summary["min"] = sorted[0]
	summary["25%"] = percentile(nums, 25)
	summary["50%"] = percentile(nums, 50)
	summary["75%"] = percentile(nums, 75)
	summary["max"] = sorted[len(sorted)-1]
	return summary
}

func sum(nums []float64) float64 {
	var total float64
	for _, f := range nums {
		total += f
	}
	return total
}

func mean(nums []float64) float64 {
	if len(nums) == 0 {
		return math.NaN()
	}
	return sum(nums) / float64(len(nums))
}

func variance(nums []float64, ddof int) float64 {
	if len(nums)-ddof <= 0 {
		return math.NaN()
	}
	m := mean(nums)
	var acc float64
	for _, f := range nums {
		acc += (f - m) * (f - m)
	}
	return acc / float64(len(nums)-ddof)
}

func stddev(nums []float64, ddof int) float64 {
	return math.Sqrt(variance(nums, ddof))
}

// percentile uses linear interpolation between closest ranks.
func percentile(nums []float64, q float64) float64 {
	if len(nums) == 0 {
		return math.NaN()
	}
	sorted := append([]float64(nil), nums...)
	sort.Float64s(sorted)
	pos := q / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo < 0 {
		lo = 0
	}
	if hi >= len(sorted) {
		hi = len(sorted) - 1
	}
	frac := pos - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}

func correlation(a, b []float64) float64 {
	if len(a) != len(b) || len(a) < 2 {
		return math.NaN()
	}
	ma, mb := mean(a), mean(b)
	var cov, va, vb float64
	for i := range a {
		cov += (a[i] - ma) * (b[i] - mb)
		va += (a[i] - ma) * (a[i] - ma)
		vb += (b[i] - mb) * (b[i] - mb)
	}
	if va == 0 || vb == 0 {
		return math.NaN()
	}
	return cov / math.Sqrt(va*vb)
}

// numpy builds the np library object.
func (s *session) numpy() *goja.Object {
	vm := s.vm
	np := vm.NewObject()

	reducer := func(name string, fn func([]float64) float64) {
		_ = np.Set(name, func(call goja.FunctionCall) goja.Value {
			nums, _ := s.floats(call.Argument(0), "np."+name)
			return vm.ToValue(fn(nums))
		})
	}
	reducer("mean", mean)
	reducer("median", func(nums []float64) float64 { return percentile(nums, 50) })
	reducer("std", func(nums []float64) float64 { return stddev(nums, 0) })
	reducer("var", func(nums []float64) float64 { return variance(nums, 0) })

	_ = np.Set("sum", func(call goja.FunctionCall) goja.Value {
		nums, integral := s.floats(call.Argument(0), "np.sum")
		return vm.ToValue(numberValue(sum(nums), integral))
	})
	for _, name := range []string{"min", "max"} {
		name := name
		_ = np.Set(name, func(call goja.FunctionCall) goja.Value {
			nums, integral := s.floats(call.Argument(0), "np."+name)
			values := make([]any, len(nums))
			for i, f := range nums {
				values[i] = f
			}
			result, _ := aggregate(values, name)
			if result == nil {
				panic(vm.NewTypeError("np.%s: empty array", name))
			}
			return vm.ToValue(numberValue(result.(float64), integral))
		})
	}
	_ = np.Set("cumsum", func(call goja.FunctionCall) goja.Value {
		nums, integral := s.floats(call.Argument(0), "np.cumsum")
		out := make([]any, len(nums))
		var total float64
		for i, f := range nums {
			total += f
			out[i] = numberValue(total, integral)
		}
		return s.array(out)
	})
	_ = np.Set("percentile", func(call goja.FunctionCall) goja.Value {
		nums, _ := s.floats(call.Argument(0), "np.percentile")
		q := call.Argument(1).ToFloat()
		if q < 0 || q > 100 {
			panic(vm.NewTypeError("np.percentile: q must be between 0 and 100"))
		}
		return vm.ToValue(percentile(nums, q))
	})
	_ = np.Set("corr", func(call goja.FunctionCall) goja.Value {
		a, _ := s.floats(call.Argument(0), "np.corr")
		b, _ := s.floats(call.Argument(1), "np.corr")
		return vm.ToValue(correlation(a, b))
	})
	_ = np.Set("round", func(call goja.FunctionCall) goja.Value {
		digits := 0
		if arg := call.Argument(1); !goja.IsUndefined(arg) {
			digits = int(arg.ToInteger())
		}
		scale := math.Pow(10, float64(digits))
		round := func(f float64) float64 { return math.RoundToEven(f*scale) / scale }
		if obj, ok := call.Argument(0).(*goja.Object); ok && obj.ClassName() == "Array" {
			nums, _ := s.floats(obj, "np.round")
			out := make([]any, len(nums))
			for i, f := range nums {
				out[i] = round(f)
			}
			return s.array(out)
		}
		return vm.ToValue(round(call.Argument(0).ToFloat()))
	})
	_ = np.Set("arange", func(call goja.FunctionCall) goja.Value {
		return s.sequence(call, "np.arange")
	})
	_ = np.Set("unique", func(call goja.FunctionCall) goja.Value {
		items := s.elements(call.Argument(0), "np.unique")
		seen := make(map[string]struct{}, len(items))
		var out []any
		for _, item := range items {
			cell := exportCell(item)
			id := fmt.Sprintf("%T:%v", cell, cell)
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, cell)
		}
		sort.SliceStable(out, func(i, j int) bool { return cellLess(out[i], out[j], true) })
		return s.array(out)
	})
	_ = np.Set("nan", math.NaN())
	return np
}
