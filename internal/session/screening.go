package session

import (
	"context"
	"fmt"

	"github.com/couchcryptid/climate-indicator-service/internal/domain"
)

// Screening is the ERA5 climatology of the screening indicators at one location.
type Screening struct {
	Location domain.Location  `json:"location"`
	Payloads []domain.Payload `json:"payloads"`
}

// Screen retrieves the ERA5 1991-2020 climatology of every indicator in
// domain.ScreeningSet. Screening results bypass the store, so a screening
// never disturbs the session's loaded jobs.
func (s *Session) Screen(ctx context.Context, pt *domain.Point, place string, progress ProgressFunc) (Screening, error) {
	loc, err := domain.ResolveLocation(ctx, pt, place, s.geocoder, s.logger)
	if err != nil {
		return Screening{}, err
	}

	out := Screening{Location: loc, Payloads: make([]domain.Payload, 0, len(domain.ScreeningSet))}
	for i, code := range domain.ScreeningSet {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		job := domain.JobParams{Variable: code, Source: domain.SourceERA5, Climatology: true}
		res, err := s.retriever.Retrieve(ctx, job, loc.Point)
		if err != nil {
			return out, fmt.Errorf("screening %s: %w", code, err)
		}
		out.Payloads = append(out.Payloads, res.Payload)
		report(progress, Progress{Done: i + 1, Total: len(domain.ScreeningSet), Job: job.Key(), Status: res.Status})
	}
	return out, nil
}
