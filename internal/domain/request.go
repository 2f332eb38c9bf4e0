package domain

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// RetrievalRequest selects variables, sources, and scenarios for one location.
// It is the body of the HTTP retrieval endpoint and of request topic messages.
type RetrievalRequest struct {
	RequestID   string         `json:"request_id,omitempty"`
	Variables   []VariableCode `json:"variables" validate:"required,min=1,dive,required"`
	Sources     []SourceKind   `json:"sources" validate:"required,min=1,dive,oneof=ERA5 CMIP6"`
	Scenarios   []Scenario     `json:"scenarios,omitempty" validate:"dive,oneof=historical ssp119 ssp126 ssp245 ssp370 ssp585"`
	Bands       []Band         `json:"bands,omitempty" validate:"dive,oneof=median p10 p90"`
	Climatology bool           `json:"climatology"`
	Lat         *float64       `json:"lat,omitempty"`
	Lon         *float64       `json:"lon,omitempty"`
	Place       string         `json:"place,omitempty" validate:"max=200"`
}

// ParseRetrievalRequest decodes a request message body.
func ParseRetrievalRequest(data []byte) (RetrievalRequest, error) {
	var req RetrievalRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return RetrievalRequest{}, fmt.Errorf("parse retrieval request: %w", err)
	}
	return req, nil
}

// Validate checks field shapes: known sources, scenarios and bands, and
// coordinate ranges. Location presence and source/scenario combinations are
// checked by ResolveLocation and Jobs.
func (r RetrievalRequest) Validate() error {
	if err := validate.Struct(r); err != nil {
		return fmt.Errorf("invalid retrieval request: %w", err)
	}
	return nil
}

// Point returns the request coordinates, or nil when either is missing.
func (r RetrievalRequest) Point() *Point {
	if r.Lat == nil || r.Lon == nil {
		return nil
	}
	return &Point{Lat: *r.Lat, Lon: *r.Lon}
}

// Jobs expands the request into one job per variable and source, and one per
// scenario for CMIP6. ERA5 jobs are listed first.
func (r RetrievalRequest) Jobs() ([]JobParams, error) {
	var era5, cmip6 bool
	for _, s := range r.Sources {
		switch s {
		case SourceERA5:
			era5 = true
		case SourceCMIP6:
			cmip6 = true
		default:
			return nil, &LocatorError{Param: "source", Value: string(s)}
		}
	}
	if !era5 && !cmip6 {
		return nil, &LocatorError{Param: "sources", Reason: "at least one source is required"}
	}
	if cmip6 && len(r.Scenarios) == 0 {
		return nil, &LocatorError{Param: "scenarios", Reason: "at least one scenario is required with CMIP6"}
	}
	if cmip6 && len(r.Bands) == 0 {
		return nil, &LocatorError{Param: "bands", Reason: "at least one band is required with CMIP6"}
	}

	var jobs []JobParams
	if era5 {
		for _, v := range r.Variables {
			jobs = append(jobs, JobParams{Variable: v, Source: SourceERA5, Climatology: r.Climatology})
		}
	}
	if cmip6 {
		for _, v := range r.Variables {
			for _, sc := range r.Scenarios {
				jobs = append(jobs, JobParams{
					Variable:    v,
					Source:      SourceCMIP6,
					Scenario:    sc,
					Bands:       sortedBands(r.Bands),
					Climatology: r.Climatology,
				})
			}
		}
	}
	for _, j := range jobs {
		if err := j.Validate(); err != nil {
			return nil, err
		}
	}
	return jobs, nil
}
