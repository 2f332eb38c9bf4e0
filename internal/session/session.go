// Package session drives retrieval jobs for one query location. It owns the
// job store: results are reused while the location and parameters stay the
// same, and discarded when the location changes or a variable is deselected.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/couchcryptid/climate-indicator-service/internal/domain"
	"github.com/couchcryptid/climate-indicator-service/internal/store"
)

// Retriever runs one retrieval job.
type Retriever interface {
	Retrieve(ctx context.Context, params domain.JobParams, pt domain.Point) (domain.Result, error)
}

// Progress is reported once per job, after it finished or was skipped.
type Progress struct {
	Done    int
	Total   int
	Job     domain.JobKey
	Status  domain.StatusMap
	Skipped bool
}

// ProgressFunc receives progress updates. It may be nil.
type ProgressFunc func(Progress)

// Outcome is the result of one Run.
type Outcome struct {
	Location domain.Location `json:"location"`
	Results  []domain.Result `json:"results"`
	Skipped  []string        `json:"skipped,omitempty"`
}

// Session runs requests against a caller-owned store. Runs are serialized.
type Session struct {
	mu        sync.Mutex
	retriever Retriever
	store     store.Store
	geocoder  domain.Geocoder
	logger    *slog.Logger
}

// New creates a Session. Pass a nil geocoder to require coordinates.
func New(retriever Retriever, st store.Store, geocoder domain.Geocoder, logger *slog.Logger) *Session {
	return &Session{
		retriever: retriever,
		store:     st,
		geocoder:  geocoder,
		logger:    logger,
	}
}

// Run resolves the request location, expands the request into jobs, and runs
// every job that is not already stored with the same parameters and without
// an Error group.
func (s *Session) Run(ctx context.Context, req domain.RetrievalRequest, progress ProgressFunc) (Outcome, error) {
	loc, err := domain.ResolveLocation(ctx, req.Point(), req.Place, s.geocoder, s.logger)
	if err != nil {
		return Outcome{}, err
	}
	jobs, err := req.Jobs()
	if err != nil {
		return Outcome{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.sync(ctx, loc.Point, req.Variables); err != nil {
		return Outcome{}, err
	}

	out := Outcome{Location: loc, Results: make([]domain.Result, 0, len(jobs))}
	for i, job := range jobs {
		if err := ctx.Err(); err != nil {
			return out, err
		}

		if existing, ok := s.reusable(ctx, job); ok {
			s.logger.Debug("job already loaded", "job", job.Key().String())
			out.Results = append(out.Results, existing)
			out.Skipped = append(out.Skipped, job.Key().String())
			report(progress, Progress{Done: i + 1, Total: len(jobs), Job: job.Key(), Status: existing.Status, Skipped: true})
			continue
		}

		res, err := s.retriever.Retrieve(ctx, job, loc.Point)
		if err != nil {
			return out, fmt.Errorf("job %s: %w", job.Key(), err)
		}
		if err := s.store.Put(ctx, res); err != nil {
			return out, fmt.Errorf("store job %s: %w", job.Key(), err)
		}
		out.Results = append(out.Results, res)
		report(progress, Progress{Done: i + 1, Total: len(jobs), Job: job.Key(), Status: res.Status})
	}

	s.logger.Info("session run finished",
		"lat", loc.Lat,
		"lon", loc.Lon,
		"jobs", len(jobs),
		"skipped", len(out.Skipped),
	)
	return out, nil
}

// Results returns every stored result ordered by job key.
func (s *Session) Results(ctx context.Context) ([]domain.Result, error) {
	return s.store.List(ctx)
}

// sync discards every stored result when pt differs from the stored point,
// and otherwise drops results of variables that are no longer selected.
func (s *Session) sync(ctx context.Context, pt domain.Point, selected []domain.VariableCode) error {
	stored, err := s.store.List(ctx)
	if err != nil {
		return fmt.Errorf("list stored results: %w", err)
	}
	for _, r := range stored {
		if r.Point != pt {
			s.logger.Info("query location changed, resetting stored results",
				"previous_lat", r.Point.Lat,
				"previous_lon", r.Point.Lon,
				"lat", pt.Lat,
				"lon", pt.Lon,
			)
			return s.store.Reset(ctx)
		}
	}
	for _, r := range stored {
		if slices.Contains(selected, r.Params.Variable) {
			continue
		}
		if err := s.store.Delete(ctx, r.Key()); err != nil {
			return fmt.Errorf("drop deselected %s: %w", r.Key(), err)
		}
	}
	return nil
}

func (s *Session) reusable(ctx context.Context, job domain.JobParams) (domain.Result, bool) {
	existing, err := s.store.Get(ctx, job.Key())
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			s.logger.Warn("job store lookup failed", "job", job.Key().String(), "error", err)
		}
		return domain.Result{}, false
	}
	if existing.Status.AnyError() || !existing.Params.Equal(job) {
		return domain.Result{}, false
	}
	return existing, true
}

func report(fn ProgressFunc, p Progress) {
	if fn != nil {
		fn(p)
	}
}
