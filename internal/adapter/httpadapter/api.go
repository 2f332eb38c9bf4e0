package httpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/go-playground/validator/v10"

	"github.com/couchcryptid/climate-indicator-service/internal/domain"
	"github.com/couchcryptid/climate-indicator-service/internal/registry"
	"github.com/couchcryptid/climate-indicator-service/internal/session"
)

const (
	retrievalTimeout = 5 * time.Minute
	maxBodyBytes     = 1 << 20
)

var validate = validator.New()

// Catalog lists the variable registry.
type Catalog interface {
	All() []domain.Variable
	ByCategory(category string) []domain.Variable
	Categories() []string
}

// Sessions runs retrievals and screenings against the job store.
type Sessions interface {
	Run(ctx context.Context, req domain.RetrievalRequest, progress session.ProgressFunc) (session.Outcome, error)
	Screen(ctx context.Context, pt *domain.Point, place string, progress session.ProgressFunc) (session.Screening, error)
	Results(ctx context.Context) ([]domain.Result, error)
}

// API serves the /api/v1 routes.
type API struct {
	catalog  Catalog
	sessions Sessions
	logger   *slog.Logger
}

// NewAPI creates the retrieval API handlers.
func NewAPI(catalog Catalog, sessions Sessions, logger *slog.Logger) *API {
	return &API{catalog: catalog, sessions: sessions, logger: logger}
}

func (a *API) register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/variables", a.handleVariables)
	mux.HandleFunc("POST /api/v1/retrievals", a.handleRetrieval)
	mux.HandleFunc("POST /api/v1/screening", a.handleScreening)
	mux.HandleFunc("GET /api/v1/jobs", a.handleJobs)
}

type variablesResponse struct {
	Categories []string          `json:"categories"`
	Variables  []domain.Variable `json:"variables"`
}

func (a *API) handleVariables(w http.ResponseWriter, r *http.Request) {
	category := strings.TrimSpace(r.URL.Query().Get("category"))
	if category == "" {
		sharedobs.WriteJSON(w, http.StatusOK, variablesResponse{
			Categories: a.catalog.Categories(),
			Variables:  a.catalog.All(),
		})
		return
	}

	if !slices.ContainsFunc(a.catalog.Categories(), func(c string) bool { return strings.EqualFold(c, category) }) {
		writeError(w, http.StatusNotFound, fmt.Sprintf("unknown category %q", category))
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, variablesResponse{
		Categories: []string{category},
		Variables:  a.catalog.ByCategory(category),
	})
}

type retrievalResponse struct {
	session.Outcome
	Documents map[domain.VariableCode]session.VariableDocument `json:"documents"`
}

func (a *API) handleRetrieval(w http.ResponseWriter, r *http.Request) {
	var req domain.RetrievalRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), retrievalTimeout)
	defer cancel()

	out, err := a.sessions.Run(ctx, req, func(p session.Progress) {
		a.logger.Debug("retrieval progress",
			"request_id", req.RequestID,
			"job", p.Job.String(),
			"done", p.Done,
			"total", p.Total,
			"skipped", p.Skipped,
		)
	})
	if err != nil {
		a.writeDomainError(w, err)
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, retrievalResponse{
		Outcome:   out,
		Documents: session.Documents(out.Results),
	})
}

type screeningRequest struct {
	Lat   *float64 `json:"lat,omitempty"`
	Lon   *float64 `json:"lon,omitempty"`
	Place string   `json:"place,omitempty" validate:"max=200"`
}

func (a *API) handleScreening(w http.ResponseWriter, r *http.Request) {
	var req screeningRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var pt *domain.Point
	if req.Lat != nil && req.Lon != nil {
		pt = &domain.Point{Lat: *req.Lat, Lon: *req.Lon}
	}

	ctx, cancel := context.WithTimeout(r.Context(), retrievalTimeout)
	defer cancel()

	out, err := a.sessions.Screen(ctx, pt, req.Place, nil)
	if err != nil {
		a.writeDomainError(w, err)
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, out)
}

type jobsResponse struct {
	Results   []domain.Result                                  `json:"results"`
	Documents map[domain.VariableCode]session.VariableDocument `json:"documents"`
}

func (a *API) handleJobs(w http.ResponseWriter, r *http.Request) {
	results, err := a.sessions.Results(r.Context())
	if err != nil {
		a.writeDomainError(w, err)
		return
	}
	if results == nil {
		results = []domain.Result{}
	}
	sharedobs.WriteJSON(w, http.StatusOK, jobsResponse{
		Results:   results,
		Documents: session.Documents(results),
	})
}

// writeDomainError maps request errors to 4xx and everything else to 500.
func (a *API) writeDomainError(w http.ResponseWriter, err error) {
	var locErr *domain.LocatorError
	switch {
	case errors.As(err, &locErr),
		errors.Is(err, registry.ErrUnknownVariable),
		errors.Is(err, domain.ErrInvalidPoint),
		errors.Is(err, domain.ErrNoLocation),
		errors.Is(err, domain.ErrGeocodingDisabled):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrPlaceNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, "retrieval timed out")
	default:
		a.logger.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode request body: %w", err)
	}
	return nil
}

func writeError(w http.ResponseWriter, status int, msg string) {
	sharedobs.WriteJSON(w, status, map[string]string{"error": msg})
}
