package domain

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"sort"
	"strconv"
	"strings"
)

// Point is a WGS-84 query location.
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// ErrInvalidPoint is returned for coordinates that are not finite numbers.
var ErrInvalidPoint = errors.New("invalid point")

// Validate rejects NaN and infinite coordinates. Ranges are not checked:
// nearest-cell selection clamps latitudes to the grid edge, and longitudes
// are wrapped into the grid's convention at extraction.
func (p Point) Validate() error {
	if math.IsNaN(p.Lat) || math.IsInf(p.Lat, 0) {
		return fmt.Errorf("%w: latitude %v is not a finite number", ErrInvalidPoint, p.Lat)
	}
	if math.IsNaN(p.Lon) || math.IsInf(p.Lon, 0) {
		return fmt.Errorf("%w: longitude %v is not a finite number", ErrInvalidPoint, p.Lon)
	}
	return nil
}

// Table is a point series keyed by row label, then column name. Values are
// rounded to two decimals and rendered as text.
type Table map[string]map[string]string

// Index returns the row labels in ascending order.
func (t Table) Index() []string {
	keys := make([]string, 0, len(t))
	for k := range t {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Columns returns every column name used by any row, sorted.
func (t Table) Columns() []string {
	seen := map[string]bool{}
	var cols []string
	for _, row := range t {
		for c := range row {
			if !seen[c] {
				seen[c] = true
				cols = append(cols, c)
			}
		}
	}
	sort.Strings(cols)
	return cols
}

// NearestIndex returns the index of the axis value closest to v. Ties resolve
// to the lower index. The axis may be ascending or descending.
func NearestIndex(axis []float64, v float64) (int, error) {
	if len(axis) == 0 {
		return 0, errors.New("empty axis")
	}
	if math.IsNaN(v) {
		return 0, errors.New("query coordinate is NaN")
	}
	best := 0
	bestDist := math.Abs(axis[0] - v)
	for i := 1; i < len(axis); i++ {
		d := math.Abs(axis[i] - v)
		if d < bestDist {
			best, bestDist = i, d
		}
	}
	return best, nil
}

// ExtractTable reduces a group dataset to the grid cell nearest pt. Every value
// is divided by divisor; pass 1 for groups that must not be normalized.
func ExtractTable(g Group, ds Dataset, pt Point, divisor float64) (Table, error) {
	if ds.Empty() {
		return nil, &ExtractionError{Group: g, Err: errors.New("dataset has no fields")}
	}
	if divisor == 0 || math.IsNaN(divisor) || math.IsInf(divisor, 0) {
		return nil, &ExtractionError{Group: g, Err: fmt.Errorf("invalid normalization factor %v", divisor)}
	}

	latIdx, err := NearestIndex(ds.Lat, pt.Lat)
	if err != nil {
		return nil, &ExtractionError{Group: g, Err: fmt.Errorf("lat: %w", err)}
	}
	lonIdx, err := NearestIndex(ds.Lon, WrapLongitude(pt.Lon, ds.Lon))
	if err != nil {
		return nil, &ExtractionError{Group: g, Err: fmt.Errorf("lon: %w", err)}
	}

	cells := len(ds.Lat) * len(ds.Lon)
	offset := latIdx*len(ds.Lon) + lonIdx

	t := Table{}
	for _, f := range ds.Fields {
		steps := len(f.Values) / cells
		if steps == 0 || len(f.Values)%cells != 0 {
			return nil, &ExtractionError{Group: g, Err: fmt.Errorf("column %s: %d values on %d cells", f.Column, len(f.Values), cells)}
		}
		for s := 0; s < steps; s++ {
			label, err := rowLabel(f, s)
			if err != nil {
				return nil, &ExtractionError{Group: g, Err: err}
			}
			row, ok := t[label]
			if !ok {
				row = map[string]string{}
				t[label] = row
			}
			row[f.Column] = FormatValue(f.Values[s*cells+offset] / divisor)
		}
	}
	return t, nil
}

// WrapLongitude maps v into the longitude convention of axis: [0, 360) when
// the axis runs past 180, otherwise [-180, 180]. Values already inside the
// convention are returned unchanged.
func WrapLongitude(v float64, axis []float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || len(axis) == 0 {
		return v
	}
	if slices.Max(axis) > 180 {
		if v >= 0 && v < 360 {
			return v
		}
		v = math.Mod(v, 360)
		if v < 0 {
			v += 360
		}
		return v
	}
	if v >= -180 && v <= 180 {
		return v
	}
	v = math.Mod(v+180, 360)
	if v < 0 {
		v += 360
	}
	return v - 180
}

func rowLabel(f Field, step int) (string, error) {
	if f.Window != "" {
		if step > 0 {
			return "", fmt.Errorf("column %s: window %s has more than one step", f.Column, f.Window)
		}
		return f.Window, nil
	}
	if step >= len(f.Years) {
		return "", fmt.Errorf("column %s: no year for step %d", f.Column, step)
	}
	return strconv.Itoa(f.Years[step]), nil
}

// RoundValue rounds to two decimals, ties to even.
func RoundValue(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	r := math.RoundToEven(v*100) / 100
	if r == 0 {
		return 0 // drop negative zero
	}
	return r
}

// FormatValue rounds v and renders it the way the dashboard prints floats:
// shortest representation with at least one decimal ("12.3", "4.0", "nan").
func FormatValue(v float64) string {
	switch {
	case math.IsNaN(v):
		return "nan"
	case math.IsInf(v, 1):
		return "inf"
	case math.IsInf(v, -1):
		return "-inf"
	}
	s := strconv.FormatFloat(RoundValue(v), 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}
