//go:build netcdfc

package netcdf

import (
	"fmt"

	"github.com/fhs/go-netcdf/netcdf"
)

// readVariables reads the data variable and the coordinate variables of its
// dimensions through libnetcdf.
func readVariables(path, variable string) (rawVar, map[string]rawVar, error) {
	nc, err := netcdf.OpenFile(path, netcdf.NOWRITE)
	if err != nil {
		return rawVar{}, nil, fmt.Errorf("open netcdf: %w", err)
	}
	defer func() { _ = nc.Close() }()

	data, err := readVar(nc, variable)
	if err != nil {
		return rawVar{}, nil, err
	}

	coords := make(map[string]rawVar, len(data.dims))
	for _, dim := range data.dims {
		c, err := readVar(nc, dim)
		if err != nil {
			continue
		}
		coords[dim] = c
	}
	return data, coords, nil
}

func readVar(nc netcdf.Dataset, name string) (rawVar, error) {
	v, err := nc.Var(name)
	if err != nil {
		return rawVar{}, fmt.Errorf("%s: %w: %v", name, ErrVariableNotFound, err)
	}

	dims, err := v.Dims()
	if err != nil {
		return rawVar{}, fmt.Errorf("dims of %s: %w", name, err)
	}
	names := make([]string, len(dims))
	total := uint64(1)
	for i, d := range dims {
		if names[i], err = d.Name(); err != nil {
			return rawVar{}, fmt.Errorf("dim name of %s: %w", name, err)
		}
		n, err := d.Len()
		if err != nil {
			return rawVar{}, fmt.Errorf("dim len of %s: %w", name, err)
		}
		total *= n
	}

	values, err := readFloat64s(v, total)
	if err != nil {
		return rawVar{}, fmt.Errorf("read %s: %w", name, err)
	}

	attrs := map[string]any{}
	for _, key := range []string{"_FillValue", "missing_value", "scale_factor", "add_offset"} {
		if f, ok := numericAttr(v, key); ok {
			attrs[key] = f
		}
	}
	for _, key := range []string{"units", "calendar"} {
		if s, ok := textAttr(v, key); ok {
			attrs[key] = s
		}
	}
	return rawVar{dims: names, values: values, attrs: attrs}, nil
}

func readFloat64s(v netcdf.Var, n uint64) ([]float64, error) {
	t, err := v.Type()
	if err != nil {
		return nil, err
	}
	switch t {
	case netcdf.DOUBLE:
		out := make([]float64, n)
		return out, v.ReadFloat64s(out)
	case netcdf.FLOAT:
		tmp := make([]float32, n)
		if err := v.ReadFloat32s(tmp); err != nil {
			return nil, err
		}
		return flatten(tmp)
	case netcdf.INT:
		tmp := make([]int32, n)
		if err := v.ReadInt32s(tmp); err != nil {
			return nil, err
		}
		return flatten(tmp)
	case netcdf.SHORT:
		tmp := make([]int16, n)
		if err := v.ReadInt16s(tmp); err != nil {
			return nil, err
		}
		return flatten(tmp)
	case netcdf.INT64:
		tmp := make([]int64, n)
		if err := v.ReadInt64s(tmp); err != nil {
			return nil, err
		}
		return flatten(tmp)
	default:
		return nil, fmt.Errorf("unsupported var type: %v", t)
	}
}

func numericAttr(v netcdf.Var, name string) (float64, bool) {
	a := v.Attr(name)
	if n, err := a.Len(); err != nil || n == 0 {
		return 0, false
	}
	buf64 := make([]float64, 1)
	if err := a.ReadFloat64s(buf64); err == nil {
		return buf64[0], true
	}
	buf32 := make([]float32, 1)
	if err := a.ReadFloat32s(buf32); err == nil {
		return float64(buf32[0]), true
	}
	bufi := make([]int32, 1)
	if err := a.ReadInt32s(bufi); err == nil {
		return float64(bufi[0]), true
	}
	bufs := make([]int16, 1)
	if err := a.ReadInt16s(bufs); err == nil {
		return float64(bufs[0]), true
	}
	return 0, false
}

func textAttr(v netcdf.Var, name string) (string, bool) {
	a := v.Attr(name)
	n, err := a.Len()
	if err != nil || n == 0 {
		return "", false
	}
	buf := make([]byte, n)
	if err := a.ReadBytes(buf); err != nil {
		return "", false
	}
	return string(buf), true
}
