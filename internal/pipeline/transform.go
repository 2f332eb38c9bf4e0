package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/couchcryptid/climate-indicator-service/internal/domain"
	"github.com/couchcryptid/climate-indicator-service/internal/retrieval"
)

// ErrNotSingleJob is returned for request messages that expand to zero or
// several jobs. The worker publishes exactly one payload per message.
var ErrNotSingleJob = errors.New("request must select exactly one job")

// JobRetriever runs one retrieval job.
type JobRetriever interface {
	Retrieve(ctx context.Context, params domain.JobParams, pt domain.Point) (domain.Result, error)
}

// RequestTransformer implements Transformer: it parses a retrieval request,
// resolves its location, and runs the single job it selects.
type RequestTransformer struct {
	retriever JobRetriever
	geocoder  domain.Geocoder
	logger    *slog.Logger
}

// NewTransformer creates a RequestTransformer. Pass a nil geocoder to require
// coordinates on every request.
func NewTransformer(retriever JobRetriever, geocoder domain.Geocoder, logger *slog.Logger) *RequestTransformer {
	return &RequestTransformer{
		retriever: retriever,
		geocoder:  geocoder,
		logger:    logger,
	}
}

func (t *RequestTransformer) Transform(ctx context.Context, raw domain.RawEvent) (domain.OutputEvent, error) {
	req, err := domain.ParseRetrievalRequest(raw.Value)
	if err != nil {
		return domain.OutputEvent{}, err
	}
	if err := req.Validate(); err != nil {
		return domain.OutputEvent{}, err
	}
	jobs, err := req.Jobs()
	if err != nil {
		return domain.OutputEvent{}, err
	}
	if len(jobs) != 1 {
		return domain.OutputEvent{}, fmt.Errorf("%w: got %d", ErrNotSingleJob, len(jobs))
	}
	job := jobs[0]

	loc, err := domain.ResolveLocation(ctx, req.Point(), req.Place, t.geocoder, t.logger)
	if err != nil {
		return domain.OutputEvent{}, err
	}

	res, err := t.retriever.Retrieve(ctx, job, loc.Point)
	if err != nil {
		return domain.OutputEvent{}, fmt.Errorf("job %s: %w", job.Key(), err)
	}
	value, err := res.Payload.JSON()
	if err != nil {
		return domain.OutputEvent{}, fmt.Errorf("serialize payload: %w", err)
	}

	requestID := req.RequestID
	if requestID == "" {
		requestID = raw.Headers["request_id"]
	}
	if requestID == "" {
		requestID = uuid.NewString()
	}

	return domain.OutputEvent{
		Key:   []byte(job.Key().String()),
		Value: value,
		Headers: map[string]string{
			"request_id":   requestID,
			"status":       retrieval.Outcome(res.Status),
			"retrieved_at": res.RetrievedAt.Format(time.RFC3339),
		},
	}, nil
}
