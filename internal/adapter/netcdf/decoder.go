// Package netcdf decodes CCKP NetCDF artifacts into domain grids.
//
// Two readers are available. The default is pure Go. Building with
// -tags netcdfc switches to the C library (libnetcdf), which also reads
// NetCDF-4 files written with compression filters the pure-Go reader lacks.
package netcdf

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/couchcryptid/climate-indicator-service/internal/domain"
)

var (
	latNames  = []string{"lat", "latitude", "y"}
	lonNames  = []string{"lon", "longitude", "x"}
	timeNames = []string{"time", "t"}
)

// ErrVariableNotFound is returned when the requested data variable is absent.
var ErrVariableNotFound = errors.New("variable not found")

// rawVar is a variable read by a backend, before CF decoding.
type rawVar struct {
	dims   []string
	values []float64
	attrs  map[string]any // strings stay strings, numbers become float64
}

// Decoder turns NetCDF bytes into a domain.Grid.
type Decoder struct {
	tempDir string
}

// NewDecoder creates a Decoder that stages downloads in tempDir. An empty
// tempDir uses the OS default.
func NewDecoder(tempDir string) *Decoder {
	return &Decoder{tempDir: tempDir}
}

// Decode reads one data variable from an in-memory NetCDF file. Coordinate
// bounds and any other variables are ignored.
func (d *Decoder) Decode(ctx context.Context, data []byte, variable string) (domain.Grid, error) {
	if err := ctx.Err(); err != nil {
		return domain.Grid{}, err
	}
	f, err := os.CreateTemp(d.tempDir, "cckp-*.nc")
	if err != nil {
		return domain.Grid{}, fmt.Errorf("stage netcdf: %w", err)
	}
	path := f.Name()
	defer os.Remove(path)

	if _, err := f.Write(data); err != nil {
		f.Close()
		return domain.Grid{}, fmt.Errorf("stage netcdf: %w", err)
	}
	if err := f.Close(); err != nil {
		return domain.Grid{}, fmt.Errorf("stage netcdf: %w", err)
	}
	return d.DecodeFile(path, variable)
}

// DecodeFile reads one data variable from a NetCDF file on disk.
func (d *Decoder) DecodeFile(path, variable string) (domain.Grid, error) {
	data, coords, err := readVariables(path, variable)
	if err != nil {
		return domain.Grid{}, err
	}
	return buildGrid(variable, data, coords)
}

// buildGrid applies CF conventions and checks the (time, lat, lon) layout.
func buildGrid(name string, data rawVar, coords map[string]rawVar) (domain.Grid, error) {
	var latDim, lonDim, timeDim string
	switch len(data.dims) {
	case 2:
		latDim, lonDim = data.dims[0], data.dims[1]
	case 3:
		timeDim, latDim, lonDim = data.dims[0], data.dims[1], data.dims[2]
	default:
		return domain.Grid{}, fmt.Errorf("%s: expected (time, lat, lon) dimensions, got %v", name, data.dims)
	}
	if !oneOf(latDim, latNames) || !oneOf(lonDim, lonNames) {
		return domain.Grid{}, fmt.Errorf("%s: unsupported dimension order %v", name, data.dims)
	}

	lat, ok := coords[latDim]
	if !ok {
		return domain.Grid{}, fmt.Errorf("%s: missing coordinate %s", name, latDim)
	}
	lon, ok := coords[lonDim]
	if !ok {
		return domain.Grid{}, fmt.Errorf("%s: missing coordinate %s", name, lonDim)
	}

	g := domain.Grid{
		Lat:    lat.values,
		Lon:    lon.values,
		Values: unpack(data.values, data.attrs),
	}

	if timeDim != "" {
		tv, ok := coords[timeDim]
		if !ok {
			return domain.Grid{}, fmt.Errorf("%s: missing coordinate %s", name, timeDim)
		}
		if !oneOf(timeDim, timeNames) {
			return domain.Grid{}, fmt.Errorf("%s: unsupported leading dimension %s", name, timeDim)
		}
		units, _ := tv.attrs["units"].(string)
		calendar, _ := tv.attrs["calendar"].(string)
		years, err := DecodeYears(tv.values, units, calendar)
		if err != nil {
			return domain.Grid{}, fmt.Errorf("%s: time axis: %w", name, err)
		}
		g.Years = years
	}

	if err := g.Validate(); err != nil {
		return domain.Grid{}, fmt.Errorf("%s: %w", name, err)
	}
	return g, nil
}

// unpack masks fill values and applies scale_factor/add_offset in place.
func unpack(values []float64, attrs map[string]any) []float64 {
	var fills []float64
	for _, key := range []string{"_FillValue", "missing_value"} {
		if v, ok := attrs[key].(float64); ok {
			fills = append(fills, v)
		}
	}
	scale, hasScale := attrs["scale_factor"].(float64)
	offset, hasOffset := attrs["add_offset"].(float64)

	for i, v := range values {
		if isFill(v, fills) {
			values[i] = math.NaN()
			continue
		}
		if hasScale {
			v *= scale
		}
		if hasOffset {
			v += offset
		}
		values[i] = v
	}
	return values
}

func isFill(v float64, fills []float64) bool {
	for _, f := range fills {
		if v == f || (math.Abs(f) > 1e30 && math.Abs(v-f) <= math.Abs(f)*1e-6) {
			return true
		}
	}
	return false
}

func oneOf(name string, candidates []string) bool {
	for _, c := range candidates {
		if strings.EqualFold(name, c) {
			return true
		}
	}
	return false
}
