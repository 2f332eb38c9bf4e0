package netcdf

import (
	"fmt"
	"reflect"
)

// flatten converts a scalar or an arbitrarily nested slice of numbers into a
// row-major []float64.
func flatten(v any) ([]float64, error) {
	rv := reflect.ValueOf(v)
	out := make([]float64, 0, countValues(rv))
	if err := appendValues(&out, rv); err != nil {
		return nil, err
	}
	return out, nil
}

// countValues returns the number of leaf elements so flatten allocates once.
func countValues(rv reflect.Value) int {
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		if rv.Len() == 0 {
			return 0
		}
		k := rv.Type().Elem().Kind()
		if k != reflect.Slice && k != reflect.Array && k != reflect.Interface && k != reflect.Pointer {
			return rv.Len()
		}
		n := 0
		for i := 0; i < rv.Len(); i++ {
			n += countValues(rv.Index(i))
		}
		return n
	case reflect.Interface, reflect.Pointer:
		if rv.IsNil() {
			return 0
		}
		return countValues(rv.Elem())
	case reflect.Invalid:
		return 0
	}
	return 1
}

func appendValues(out *[]float64, rv reflect.Value) error {
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		for i := 0; i < rv.Len(); i++ {
			if err := appendValues(out, rv.Index(i)); err != nil {
				return err
			}
		}
		return nil
	case reflect.Interface, reflect.Pointer:
		if rv.IsNil() {
			return fmt.Errorf("nil value")
		}
		return appendValues(out, rv.Elem())
	case reflect.Float32, reflect.Float64:
		*out = append(*out, rv.Float())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		*out = append(*out, float64(rv.Int()))
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		*out = append(*out, float64(rv.Uint()))
	default:
		return fmt.Errorf("unsupported value type %s", rv.Type())
	}
	return nil
}

// attrValue normalizes an attribute: text stays a string, numbers (scalar or
// the first element of a vector) become float64.
func attrValue(v any) (any, bool) {
	switch x := v.(type) {
	case string:
		return x, true
	case []byte:
		return string(x), true
	}
	nums, err := flatten(v)
	if err != nil || len(nums) == 0 {
		return nil, false
	}
	return nums[0], true
}
