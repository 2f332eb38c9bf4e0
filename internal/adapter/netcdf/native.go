//go:build !netcdfc

package netcdf

import (
	"fmt"

	"github.com/batchatco/go-native-netcdf/netcdf"
	"github.com/batchatco/go-native-netcdf/netcdf/api"
)

// readVariables reads the data variable and the coordinate variables of its
// dimensions using the pure-Go reader.
func readVariables(path, variable string) (rawVar, map[string]rawVar, error) {
	nc, err := netcdf.Open(path)
	if err != nil {
		return rawVar{}, nil, fmt.Errorf("open netcdf: %w", err)
	}
	defer nc.Close()

	data, err := readVar(nc, variable)
	if err != nil {
		return rawVar{}, nil, err
	}

	coords := make(map[string]rawVar, len(data.dims))
	for _, dim := range data.dims {
		c, err := readVar(nc, dim)
		if err != nil {
			continue // buildGrid reports the missing axis
		}
		coords[dim] = c
	}
	return data, coords, nil
}

func readVar(nc api.Group, name string) (rawVar, error) {
	vg, err := nc.GetVarGetter(name)
	if err != nil {
		return rawVar{}, fmt.Errorf("%s: %w: %v", name, ErrVariableNotFound, err)
	}
	raw, err := vg.Values()
	if err != nil {
		return rawVar{}, fmt.Errorf("read %s: %w", name, err)
	}
	values, err := flatten(raw)
	if err != nil {
		return rawVar{}, fmt.Errorf("read %s: %w", name, err)
	}

	attrs := map[string]any{}
	if am := vg.Attributes(); am != nil {
		for _, key := range am.Keys() {
			v, ok := am.Get(key)
			if !ok {
				continue
			}
			if norm, ok := attrValue(v); ok {
				attrs[key] = norm
			}
		}
	}
	return rawVar{dims: vg.Dimensions(), values: values, attrs: attrs}, nil
}
