package netcdf

import (
	"fmt"
	"math"
	"time"

	"github.com/batchatco/go-native-netcdf/netcdf/api"
	"github.com/batchatco/go-native-netcdf/netcdf/cdf"
	"github.com/batchatco/go-native-netcdf/netcdf/util"

	"github.com/couchcryptid/climate-indicator-service/internal/domain"
)

// FillValue marks missing cells in files written by WriteGrid.
const FillValue = float32(1e20)

const timeUnits = "days since 1950-01-01 00:00:00"

var timeBase = time.Date(1950, time.January, 1, 0, 0, 0, 0, time.UTC)

// WriteGrid writes g as a CCKP-shaped classic NetCDF file: the data variable
// on (time, lat, lon) with one mid-year time step per entry of g.Years.
// NaN cells are stored as FillValue.
func WriteGrid(path, variable string, g domain.Grid) error {
	if err := g.Validate(); err != nil {
		return fmt.Errorf("%s: %w", variable, err)
	}
	if len(g.Years) != g.Steps() {
		return fmt.Errorf("%s: need one year per time step, got %d for %d", variable, len(g.Years), g.Steps())
	}

	cw, err := cdf.OpenWriter(path)
	if err != nil {
		return fmt.Errorf("create netcdf: %w", err)
	}

	times := make([]float64, len(g.Years))
	for i, y := range g.Years {
		mid := time.Date(y, time.July, 1, 0, 0, 0, 0, time.UTC)
		times[i] = mid.Sub(timeBase).Hours() / 24
	}

	nlat, nlon := len(g.Lat), len(g.Lon)
	values := make([][][]float32, g.Steps())
	for t := range values {
		values[t] = make([][]float32, nlat)
		for i := range values[t] {
			row := make([]float32, nlon)
			for j := range row {
				v := g.Values[(t*nlat+i)*nlon+j]
				if math.IsNaN(v) {
					row[j] = FillValue
					continue
				}
				row[j] = float32(v)
			}
			values[t][i] = row
		}
	}

	vars := []struct {
		name string
		v    api.Variable
		kv   map[string]any
	}{
		{"time", api.Variable{Values: times, Dimensions: []string{"time"}},
			map[string]any{"units": timeUnits, "calendar": "standard"}},
		{"lat", api.Variable{Values: g.Lat, Dimensions: []string{"lat"}},
			map[string]any{"units": "degrees_north"}},
		{"lon", api.Variable{Values: g.Lon, Dimensions: []string{"lon"}},
			map[string]any{"units": "degrees_east"}},
		{variable, api.Variable{Values: values, Dimensions: []string{"time", "lat", "lon"}},
			map[string]any{"_FillValue": FillValue}},
	}
	for _, nv := range vars {
		attrs, err := orderedAttrs(nv.kv)
		if err != nil {
			_ = cw.Close()
			return err
		}
		nv.v.Attributes = attrs
		if err := cw.AddVar(nv.name, nv.v); err != nil {
			_ = cw.Close()
			return fmt.Errorf("write %s: %w", nv.name, err)
		}
	}
	if err := cw.Close(); err != nil {
		return fmt.Errorf("close netcdf: %w", err)
	}
	return nil
}

func orderedAttrs(kv map[string]any) (*util.OrderedMap, error) {
	keys := make([]string, 0, len(kv))
	for k := range kv {
		keys = append(keys, k)
	}
	m, err := util.NewOrderedMap(keys, kv)
	if err != nil {
		return nil, fmt.Errorf("netcdf attributes: %w", err)
	}
	return m, nil
}
