// Package retrieval runs retrieval jobs: it fetches the artifacts a job's
// plan names, reduces them to the query point, and assembles the payload.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/climate-indicator-service/internal/domain"
	"github.com/couchcryptid/climate-indicator-service/internal/observability"
)

// ObjectStore downloads one remote object by URL.
type ObjectStore interface {
	Get(ctx context.Context, url string) ([]byte, error)
}

// Decoder reads one named data variable from NetCDF bytes.
type Decoder interface {
	Decode(ctx context.Context, data []byte, variable string) (domain.Grid, error)
}

// FetchError records why one artifact of a group could not be used.
type FetchError struct {
	Group domain.Group
	URL   string
	Err   error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s %s: %v", e.Group, e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// GroupResult is the outcome of fetching one artifact group. Dataset is set
// when Status is Retrieved or Partial; Err is set when Status is Partial or
// Error and joins one *FetchError per failed artifact.
type GroupResult struct {
	Group   domain.Group
	Status  domain.Status
	Dataset domain.Dataset
	Err     error
}

// Fetcher downloads, decodes, and merges the artifacts of a group. Groups are
// independent: a failure in one never changes the result of another.
type Fetcher struct {
	store   ObjectStore
	decoder Decoder
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewFetcher creates a Fetcher.
func NewFetcher(store ObjectStore, decoder Decoder, metrics *observability.Metrics, logger *slog.Logger) *Fetcher {
	return &Fetcher{store: store, decoder: decoder, metrics: metrics, logger: logger}
}

// FetchGroup attempts every artifact of the group.
func (f *Fetcher) FetchGroup(ctx context.Context, gp domain.GroupPlan) GroupResult {
	res := GroupResult{Group: gp.Group, Status: domain.StatusNotRetrieved}
	if len(gp.Artifacts) == 0 {
		return res
	}

	var errs []error
	for _, a := range gp.Artifacts {
		if err := f.fetchArtifact(ctx, &res.Dataset, a); err != nil {
			errs = append(errs, &FetchError{Group: gp.Group, URL: a.URL, Err: err})
			f.metrics.ArtifactFetches.WithLabelValues(string(gp.Group), "error").Inc()
			continue
		}
		f.metrics.ArtifactFetches.WithLabelValues(string(gp.Group), "success").Inc()
	}

	switch {
	case len(errs) == 0:
		res.Status = domain.StatusRetrieved
	case len(errs) == len(gp.Artifacts):
		res.Status = domain.StatusError
		res.Dataset = domain.Dataset{}
	default:
		res.Status = domain.StatusPartial
	}
	res.Err = errors.Join(errs...)
	return res
}

func (f *Fetcher) fetchArtifact(ctx context.Context, ds *domain.Dataset, a domain.Artifact) error {
	start := time.Now()
	defer func() {
		f.metrics.ArtifactFetchDuration.WithLabelValues(string(a.Group)).Observe(time.Since(start).Seconds())
	}()

	data, err := f.store.Get(ctx, a.URL)
	if err != nil {
		return err
	}
	grid, err := f.decoder.Decode(ctx, data, a.DataVar)
	if err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	return ds.Merge(a, grid)
}
