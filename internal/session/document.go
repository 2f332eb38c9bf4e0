package session

import (
	"encoding/json"

	"github.com/couchcryptid/climate-indicator-service/internal/domain"
)

// VariableDocument is everything loaded for one variable, as handed to the
// narration step: the ERA5 payload fields at the top level and one CMIP6
// payload per scenario keyed by scenario name.
type VariableDocument struct {
	ERA5  *domain.Payload
	CMIP6 map[domain.Scenario]domain.Payload
}

// MarshalJSON flattens the document. Keys are sorted, so the output is stable.
func (d VariableDocument) MarshalJSON() ([]byte, error) {
	out := map[string]any{}
	if d.ERA5 != nil {
		out["var_code"] = d.ERA5.VarCode
		out["var_name"] = d.ERA5.VarName
		out["unit"] = d.ERA5.Unit
		out["description"] = d.ERA5.Description
		out["status"] = d.ERA5.Status
		out["values"] = d.ERA5.Values
	}
	for sc, p := range d.CMIP6 {
		out[string(sc)] = p
	}
	return json.Marshal(out)
}

// Documents groups results by variable. Results of other locations or
// scenarios are the caller's concern; every result given is included.
func Documents(results []domain.Result) map[domain.VariableCode]VariableDocument {
	docs := map[domain.VariableCode]VariableDocument{}
	for _, r := range results {
		doc := docs[r.Params.Variable]
		switch r.Params.Source {
		case domain.SourceERA5:
			p := r.Payload
			doc.ERA5 = &p
		case domain.SourceCMIP6:
			if doc.CMIP6 == nil {
				doc.CMIP6 = map[domain.Scenario]domain.Payload{}
			}
			doc.CMIP6[r.Params.Scenario] = r.Payload
		}
		docs[r.Params.Variable] = doc
	}
	return docs
}
