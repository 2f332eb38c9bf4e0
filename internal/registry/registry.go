// Package registry loads the variable registry: display metadata, category,
// and normalization factor for every indicator code.
package registry

import (
	"bytes"
	_ "embed"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/couchcryptid/climate-indicator-service/internal/domain"
)

//go:embed variables.csv
var defaultTable []byte

// ErrUnknownVariable is returned by Lookup for codes missing from the registry.
var ErrUnknownVariable = errors.New("unknown variable")

const (
	colCode        = "Code"
	colVariable    = "Variable"
	colUnit        = "Unit"
	colDescription = "Description"
	colCategory    = "Category"
	colFactor      = "Normalization factor"
)

var requiredColumns = []string{colCode, colVariable, colUnit, colDescription, colCategory, colFactor}

// Registry is an immutable, read-only variable table.
type Registry struct {
	vars  map[domain.VariableCode]domain.Variable
	order []domain.VariableCode
}

var (
	defaultOnce sync.Once
	defaultReg  *Registry
	defaultErr  error
)

// Default returns the embedded registry, parsed once per process.
func Default() (*Registry, error) {
	defaultOnce.Do(func() {
		defaultReg, defaultErr = Parse(bytes.NewReader(defaultTable))
	})
	return defaultReg, defaultErr
}

// Load reads a registry file. An empty path returns the embedded registry.
func Load(path string) (*Registry, error) {
	if path == "" {
		return Default()
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open registry: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse reads a registry in CSV form. Columns are matched by header name and
// may appear in any order; extra columns are ignored.
func Parse(r io.Reader) (*Registry, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	all, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read registry: %w", err)
	}
	if len(all) == 0 {
		return nil, errors.New("registry is empty")
	}

	index := make(map[string]int, len(all[0]))
	for i, h := range all[0] {
		index[strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))] = i
	}
	for _, c := range requiredColumns {
		if _, ok := index[c]; !ok {
			return nil, fmt.Errorf("registry missing column %q", c)
		}
	}

	reg := &Registry{vars: make(map[domain.VariableCode]domain.Variable, len(all)-1)}
	for n, rec := range all[1:] {
		line := n + 2
		field := func(col string) string { return strings.TrimSpace(rec[index[col]]) }

		code := domain.VariableCode(field(colCode))
		if code == "" {
			return nil, fmt.Errorf("registry line %d: empty code", line)
		}
		if _, dup := reg.vars[code]; dup {
			return nil, fmt.Errorf("registry line %d: duplicate code %q", line, code)
		}
		factor, err := strconv.ParseFloat(field(colFactor), 64)
		if err != nil || factor == 0 {
			return nil, fmt.Errorf("registry line %d: invalid normalization factor %q", line, field(colFactor))
		}

		reg.vars[code] = domain.Variable{
			Code:                code,
			Name:                field(colVariable),
			Unit:                field(colUnit),
			Description:         field(colDescription),
			Category:            field(colCategory),
			NormalizationFactor: factor,
		}
		reg.order = append(reg.order, code)
	}
	return reg, nil
}

// Lookup returns the metadata of one variable.
func (r *Registry) Lookup(code domain.VariableCode) (domain.Variable, error) {
	v, ok := r.vars[code]
	if !ok {
		return domain.Variable{}, fmt.Errorf("%w: %q", ErrUnknownVariable, code)
	}
	return v, nil
}

// ByName finds a variable by its display name.
func (r *Registry) ByName(name string) (domain.Variable, bool) {
	for _, code := range r.order {
		if v := r.vars[code]; v.Name == name {
			return v, true
		}
	}
	return domain.Variable{}, false
}

// All returns every variable in file order.
func (r *Registry) All() []domain.Variable {
	out := make([]domain.Variable, 0, len(r.order))
	for _, code := range r.order {
		out = append(out, r.vars[code])
	}
	return out
}

// ByCategory returns the variables of one category in file order.
func (r *Registry) ByCategory(category string) []domain.Variable {
	var out []domain.Variable
	for _, code := range r.order {
		if v := r.vars[code]; strings.EqualFold(v.Category, category) {
			out = append(out, v)
		}
	}
	return out
}

// Categories returns the distinct categories present, known ones first in
// display order, then any others alphabetically.
func (r *Registry) Categories() []string {
	present := map[string]bool{}
	for _, v := range r.vars {
		present[v.Category] = true
	}
	var out []string
	for _, c := range domain.Categories {
		if present[c] {
			out = append(out, c)
			delete(present, c)
		}
	}
	var rest []string
	for c := range present {
		rest = append(rest, c)
	}
	sort.Strings(rest)
	return append(out, rest...)
}

// Len returns the number of variables.
func (r *Registry) Len() int { return len(r.order) }
