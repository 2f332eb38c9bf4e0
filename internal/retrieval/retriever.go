package retrieval

import (
	"context"
	"log/slog"
	"strings"

	"github.com/couchcryptid/climate-indicator-service/internal/domain"
	"github.com/couchcryptid/climate-indicator-service/internal/observability"
)

// VariableLookup resolves registry metadata for a variable code.
type VariableLookup interface {
	Lookup(code domain.VariableCode) (domain.Variable, error)
}

// Retriever runs one job end to end: locate, fetch, extract, assemble.
type Retriever struct {
	locator  domain.Locator
	fetcher  *Fetcher
	registry VariableLookup
	metrics  *observability.Metrics
	logger   *slog.Logger
}

// NewRetriever creates a Retriever.
func NewRetriever(locator domain.Locator, fetcher *Fetcher, registry VariableLookup, metrics *observability.Metrics, logger *slog.Logger) *Retriever {
	return &Retriever{
		locator:  locator,
		fetcher:  fetcher,
		registry: registry,
		metrics:  metrics,
		logger:   logger,
	}
}

// Retrieve runs the job at pt. Invalid parameters, unknown variables, and
// invalid points are returned as errors before any I/O. Fetch and extraction
// failures never are: they are recorded per group in the result.
func (r *Retriever) Retrieve(ctx context.Context, params domain.JobParams, pt domain.Point) (domain.Result, error) {
	if err := pt.Validate(); err != nil {
		return domain.Result{}, err
	}
	plan, err := r.locator.Locate(params)
	if err != nil {
		return domain.Result{}, err
	}
	variable, err := r.registry.Lookup(params.Variable)
	if err != nil {
		return domain.Result{}, err
	}

	status := domain.NewStatusMap()
	tables := map[domain.Group]domain.Table{}
	failures := map[domain.Group]string{}

	for _, gp := range plan.Groups {
		res := r.fetcher.FetchGroup(ctx, gp)
		status[gp.Group] = res.Status
		if res.Err != nil {
			failures[gp.Group] = res.Err.Error()
			r.logGroupFailure(params, gp, res)
		}
		if !res.Status.HasData() {
			continue
		}

		divisor := 1.0
		if gp.Group == domain.GroupTimeseries {
			divisor = variable.NormalizationFactor
		}
		table, err := domain.ExtractTable(gp.Group, res.Dataset, pt, divisor)
		if err != nil {
			status[gp.Group] = domain.StatusError
			failures[gp.Group] = err.Error()
			r.logger.Warn("point extraction failed",
				"variable", params.Variable,
				"source", params.Source,
				"scenario", params.Scenario,
				"group", gp.Group,
				"error", err,
			)
			continue
		}
		tables[gp.Group] = table
	}

	if len(failures) == 0 {
		failures = nil
	}
	payload := domain.AssemblePayload(variable, status, tables)
	r.metrics.Jobs.WithLabelValues(string(params.Source), Outcome(status)).Inc()

	r.logger.Debug("retrieval job finished",
		"job", params.Key().String(),
		"timeseries", status[domain.GroupTimeseries],
		"trend", status[domain.GroupTrend],
		"confidence", status[domain.GroupConfidence],
	)
	return domain.NewResult(params, pt, status, tables, failures, payload), nil
}

// Locate returns the plan of a job without fetching anything.
func (r *Retriever) Locate(params domain.JobParams) (domain.Plan, error) {
	return r.locator.Locate(params)
}

func (r *Retriever) logGroupFailure(params domain.JobParams, gp domain.GroupPlan, res GroupResult) {
	var urls []string
	for _, a := range gp.Artifacts {
		urls = append(urls, a.URL)
	}
	r.logger.Warn("artifact group fetch failed",
		"variable", params.Variable,
		"source", params.Source,
		"scenario", params.Scenario,
		"group", gp.Group,
		"status", res.Status,
		"url", strings.Join(urls, ","),
		"error", res.Err,
	)
}

// Outcome summarizes a status map as "retrieved", "partial", or "error".
func Outcome(status domain.StatusMap) string {
	var attempted, failed, partial int
	for _, s := range status {
		switch s {
		case domain.StatusNotRetrieved:
			continue
		case domain.StatusError:
			failed++
		case domain.StatusPartial:
			partial++
		}
		attempted++
	}
	switch {
	case attempted > 0 && failed == attempted:
		return "error"
	case failed > 0 || partial > 0:
		return "partial"
	default:
		return "retrieved"
	}
}
