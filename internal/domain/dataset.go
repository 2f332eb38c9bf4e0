package domain

import (
	"fmt"
	"math"
)

// Grid is one decoded data variable on a rectilinear lat/lon grid.
// Values are stored row-major as [time][lat][lon].
type Grid struct {
	Lat    []float64
	Lon    []float64
	Years  []int
	Values []float64
}

// Steps returns the number of time steps held by the grid.
func (g Grid) Steps() int {
	cells := len(g.Lat) * len(g.Lon)
	if cells == 0 {
		return 0
	}
	return len(g.Values) / cells
}

// Validate checks that the value array matches the axes.
func (g Grid) Validate() error {
	cells := len(g.Lat) * len(g.Lon)
	if cells == 0 {
		return fmt.Errorf("empty grid: %d lat x %d lon", len(g.Lat), len(g.Lon))
	}
	if len(g.Values) == 0 || len(g.Values)%cells != 0 {
		return fmt.Errorf("value count %d is not a multiple of grid size %d", len(g.Values), cells)
	}
	if len(g.Years) > 0 && len(g.Years) != g.Steps() {
		return fmt.Errorf("time axis has %d steps, values have %d", len(g.Years), g.Steps())
	}
	return nil
}

// Field is one named column of a dataset.
type Field struct {
	Column string
	// Window labels the single row of a window artifact. Empty for series.
	Window string
	// Years labels each row of a series. Nil for window artifacts.
	Years  []int
	Values []float64
}

// Dataset is the merged content of one artifact group. All fields share the
// same grid.
type Dataset struct {
	Lat    []float64
	Lon    []float64
	Fields []Field
}

// Empty reports whether no field has been merged.
func (d Dataset) Empty() bool { return len(d.Fields) == 0 }

// Merge adds the grid of one artifact to the dataset. Window artifacts must
// hold exactly one time step, which is relabelled with the window. The
// dataset takes ownership of the grid's slices; callers must not modify them
// afterwards.
func (d *Dataset) Merge(a Artifact, g Grid) error {
	if err := g.Validate(); err != nil {
		return fmt.Errorf("%s: %w", a.DataVar, err)
	}

	if d.Empty() {
		d.Lat = g.Lat
		d.Lon = g.Lon
	} else if !axisEqual(d.Lat, g.Lat) || !axisEqual(d.Lon, g.Lon) {
		return fmt.Errorf("merge %s into %s: %w", a.Column, a.Group, ErrGridMismatch)
	}

	f := Field{Column: a.Column, Values: g.Values}
	if a.Window != "" {
		if g.Steps() != 1 {
			return fmt.Errorf("window %s of %s has %d time steps, want 1", a.Window, a.DataVar, g.Steps())
		}
		f.Window = a.Window
	} else {
		if len(g.Years) != g.Steps() {
			return fmt.Errorf("%s has no time axis", a.DataVar)
		}
		f.Years = g.Years
	}

	for _, existing := range d.Fields {
		if existing.Column != f.Column {
			continue
		}
		if existing.Window == "" || f.Window == "" || existing.Window == f.Window {
			return fmt.Errorf("merge %s: duplicate column %s: %w", a.Group, f.Column, ErrMergeConflict)
		}
	}
	d.Fields = append(d.Fields, f)
	return nil
}

func axisEqual(a, b []float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if math.Abs(a[i]-b[i]) > 1e-9 {
			return false
		}
	}
	return true
}
