package domain

import (
	"encoding/json"
	"time"
)

// Keys of the payload "values" mapping.
const (
	ValuesTimeseries = "timeseries in unit"
	ValuesTrend      = "trends in units/decades"
	ValuesConfidence = "confidence in percentage"
)

var valuesKey = map[Group]string{
	GroupTimeseries: ValuesTimeseries,
	GroupTrend:      ValuesTrend,
	GroupConfidence: ValuesConfidence,
}

// Payload is the structured record handed to the language model for one job.
type Payload struct {
	VarCode     VariableCode     `json:"var_code"`
	VarName     string           `json:"var_name"`
	Unit        string           `json:"unit"`
	Description string           `json:"description"`
	Status      StatusMap        `json:"status"`
	Values      map[string]Table `json:"values"`
}

// AssemblePayload combines registry metadata, group statuses, and point tables.
// Tables of groups without data are omitted. Inputs are copied.
func AssemblePayload(v Variable, status StatusMap, tables map[Group]Table) Payload {
	values := make(map[string]Table, len(tables))
	for _, g := range Groups {
		t, ok := tables[g]
		if !ok || t == nil || !status[g].HasData() {
			continue
		}
		values[valuesKey[g]] = cloneTable(t)
	}
	return Payload{
		VarCode:     v.Code,
		VarName:     v.Name,
		Unit:        v.Unit,
		Description: v.Description,
		Status:      status.Clone(),
		Values:      values,
	}
}

// JSON encodes the payload. Map keys are sorted, so equal payloads always
// produce identical bytes.
func (p Payload) JSON() ([]byte, error) {
	return json.Marshal(p)
}

// Clone returns a copy that shares no maps with p.
func (p Payload) Clone() Payload {
	out := p
	if p.Status != nil {
		out.Status = p.Status.Clone()
	}
	if p.Values != nil {
		out.Values = make(map[string]Table, len(p.Values))
		for k, t := range p.Values {
			out.Values[k] = cloneTable(t)
		}
	}
	return out
}

func cloneTable(t Table) Table {
	out := make(Table, len(t))
	for idx, row := range t {
		r := make(map[string]string, len(row))
		for c, v := range row {
			r[c] = v
		}
		out[idx] = r
	}
	return out
}

// Result is the outcome of one retrieval job. Build it once and do not mutate it.
type Result struct {
	Params      JobParams        `json:"params"`
	Point       Point            `json:"point"`
	Status      StatusMap        `json:"status"`
	Tables      map[Group]Table  `json:"-"`
	Failures    map[Group]string `json:"failures,omitempty"`
	Payload     Payload          `json:"payload"`
	RetrievedAt time.Time        `json:"retrieved_at"`
}

// NewResult stamps a result with the current time.
func NewResult(params JobParams, pt Point, status StatusMap, tables map[Group]Table, failures map[Group]string, payload Payload) Result {
	return Result{
		Params:      params,
		Point:       pt,
		Status:      status.Clone(),
		Tables:      tables,
		Failures:    failures,
		Payload:     payload,
		RetrievedAt: clock.Now().UTC(),
	}
}

// Clone returns a copy that shares no maps with r.
func (r Result) Clone() Result {
	out := r
	if r.Status != nil {
		out.Status = r.Status.Clone()
	}
	out.Payload = r.Payload.Clone()
	if r.Tables != nil {
		out.Tables = make(map[Group]Table, len(r.Tables))
		for g, t := range r.Tables {
			out.Tables[g] = cloneTable(t)
		}
	}
	if r.Failures != nil {
		out.Failures = make(map[Group]string, len(r.Failures))
		for g, msg := range r.Failures {
			out.Failures[g] = msg
		}
	}
	return out
}

// Key returns the store key of the job that produced the result.
func (r Result) Key() JobKey { return r.Params.Key() }
