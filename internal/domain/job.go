package domain

import (
	"fmt"
	"slices"
	"strings"
)

// VariableCode is the short registry key of a climate indicator, e.g. "tas".
type VariableCode string

// SourceKind identifies the dataset family a job reads from.
type SourceKind string

const (
	SourceERA5  SourceKind = "ERA5"
	SourceCMIP6 SourceKind = "CMIP6"
)

// Scenario is a CMIP6 experiment tag.
type Scenario string

const (
	ScenarioHistorical Scenario = "historical"
	ScenarioSSP119     Scenario = "ssp119"
	ScenarioSSP126     Scenario = "ssp126"
	ScenarioSSP245     Scenario = "ssp245"
	ScenarioSSP370     Scenario = "ssp370"
	ScenarioSSP585     Scenario = "ssp585"
)

// Scenarios lists every supported CMIP6 scenario.
var Scenarios = []Scenario{
	ScenarioHistorical, ScenarioSSP119, ScenarioSSP126,
	ScenarioSSP245, ScenarioSSP370, ScenarioSSP585,
}

// Band is a percentile cut across the CMIP6 ensemble.
type Band string

const (
	BandMedian Band = "median"
	BandP10    Band = "p10"
	BandP90    Band = "p90"
)

// Bands lists every supported ensemble band.
var Bands = []Band{BandP10, BandMedian, BandP90}

// ParseScenario validates a scenario tag.
func ParseScenario(s string) (Scenario, error) {
	sc := Scenario(strings.ToLower(strings.TrimSpace(s)))
	if !slices.Contains(Scenarios, sc) {
		return "", &LocatorError{Param: "scenario", Value: s}
	}
	return sc, nil
}

// ParseBand validates an ensemble band.
func ParseBand(s string) (Band, error) {
	b := Band(strings.ToLower(strings.TrimSpace(s)))
	if !slices.Contains(Bands, b) {
		return "", &LocatorError{Param: "band", Value: s}
	}
	return b, nil
}

// ParseSource validates a source name. Matching is case-insensitive.
func ParseSource(s string) (SourceKind, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case string(SourceERA5):
		return SourceERA5, nil
	case string(SourceCMIP6):
		return SourceCMIP6, nil
	}
	return "", &LocatorError{Param: "source", Value: s}
}

// JobParams are the immutable inputs of one retrieval job.
type JobParams struct {
	Variable    VariableCode `json:"variable"`
	Source      SourceKind   `json:"source"`
	Scenario    Scenario     `json:"scenario,omitempty"`
	Bands       []Band       `json:"bands,omitempty"`
	Climatology bool         `json:"climatology"`
}

// JobKey identifies a job in a caller-owned store.
type JobKey struct {
	Variable VariableCode `json:"variable"`
	Source   SourceKind   `json:"source"`
	Scenario Scenario     `json:"scenario,omitempty"`
}

func (k JobKey) String() string {
	if k.Scenario == "" {
		return fmt.Sprintf("%s/%s", k.Variable, k.Source)
	}
	return fmt.Sprintf("%s/%s/%s", k.Variable, k.Source, k.Scenario)
}

// Key returns the composite store key. ERA5 jobs never carry a scenario.
func (p JobParams) Key() JobKey {
	k := JobKey{Variable: p.Variable, Source: p.Source}
	if p.Source == SourceCMIP6 {
		k.Scenario = p.Scenario
	}
	return k
}

// Equal reports whether two parameter sets would locate the same artifacts.
// Band order is irrelevant.
func (p JobParams) Equal(o JobParams) bool {
	if p.Key() != o.Key() || p.Climatology != o.Climatology {
		return false
	}
	if p.Source != SourceCMIP6 {
		return true
	}
	a, b := sortedBands(p.Bands), sortedBands(o.Bands)
	return slices.Equal(a, b)
}

// Validate checks the parameter combination without touching the network.
func (p JobParams) Validate() error {
	if strings.TrimSpace(string(p.Variable)) == "" {
		return &LocatorError{Param: "variable", Value: string(p.Variable)}
	}
	switch p.Source {
	case SourceERA5:
		return nil
	case SourceCMIP6:
		if !slices.Contains(Scenarios, p.Scenario) {
			return &LocatorError{Param: "scenario", Value: string(p.Scenario)}
		}
		if len(p.Bands) == 0 {
			return &LocatorError{Param: "bands", Value: "", Reason: "at least one band is required"}
		}
		for _, b := range p.Bands {
			if !slices.Contains(Bands, b) {
				return &LocatorError{Param: "band", Value: string(b)}
			}
		}
		return nil
	default:
		return &LocatorError{Param: "source", Value: string(p.Source)}
	}
}

// sortedBands returns a deduplicated copy in canonical order.
func sortedBands(in []Band) []Band {
	out := make([]Band, 0, len(in))
	for _, b := range Bands {
		if slices.Contains(in, b) {
			out = append(out, b)
		}
	}
	return out
}
