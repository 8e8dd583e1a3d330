// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/cadencefin/riskpipe/internal/app"
	"github.com/cadencefin/riskpipe/internal/domain/model"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	// Submit admits a batch for async processing. accepted is false on
	// backpressure; duplicate is true for a repeated client_ref.
	Submit(ctx context.Context, clientRef string, schemaVersion uint64, asOf time.Time, records []model.RawRecord) (batchID string, duplicate, accepted bool)

	// Read operations expose batch outcomes and results.
	BatchReport(ctx context.Context, batchID string) (app.Report, bool)
	Lineage(ctx context.Context, batchID string) (model.LineageEntry, error)
	Results(ctx context.Context, batchID string) ([]model.ScoreResult, error)
	ResultsByRecord(ctx context.Context, recordID string) ([]model.ScoreResult, error)
	Trail(ctx context.Context, batchID string) []app.Transition
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler  *HealthHandler
	statsHandler   *StatsHandler
	batchesHandler *BatchesHandler
	resultsHandler *ResultsHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider) *Server {
	return &Server{
		healthHandler:  NewHealthHandler(),
		statsHandler:   NewStatsHandler(statsProvider),
		batchesHandler: NewBatchesHandler(deps),
		resultsHandler: NewResultsHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(ctx context.Context, mux *http.ServeMux) {
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/metrics", s.healthHandler.HandleMetrics)
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("/batches", MetricsMiddleware(s.batchesHandler.HandlePostBatch, "batches"))
	mux.HandleFunc("/batches/", MetricsMiddleware(s.batchesHandler.HandleGetBatch, "batch"))
	mux.HandleFunc("/results/", MetricsMiddleware(s.resultsHandler.HandleGetResults, "results"))
}

// recordRequest mirrors one raw record in a batch submission.
type recordRequest struct {
	ID        string            `json:"id"`
	Timestamp string            `json:"timestamp"`
	Source    string            `json:"source"`
	Fields    map[string]string `json:"fields"`
}

// batchRequest is the body of POST /batches.
type batchRequest struct {
	ClientRef     string          `json:"client_ref"`
	SchemaVersion uint64          `json:"schema_version"`
	AsOf          string          `json:"as_of"`
	Records       []recordRequest `json:"records"`
}

func (b batchRequest) validate() error {
	switch {
	case b.SchemaVersion == 0:
		return errors.New("missing schema_version")
	case strings.TrimSpace(b.AsOf) == "":
		return errors.New("missing as_of")
	}
	if _, err := time.Parse(time.RFC3339, b.AsOf); err != nil {
		return errors.New("invalid as_of; must be RFC3339")
	}
	for i, r := range b.Records {
		if strings.TrimSpace(r.ID) == "" {
			return errors.New("record missing id")
		}
		if _, err := time.Parse(time.RFC3339, r.Timestamp); err != nil {
			return errors.New("record " + b.Records[i].ID + ": invalid timestamp; must be RFC3339")
		}
	}
	return nil
}

// toModel converts a validated request into domain records.
func (b batchRequest) toModel() (time.Time, []model.RawRecord) {
	asOf, _ := time.Parse(time.RFC3339, b.AsOf)
	records := make([]model.RawRecord, len(b.Records))
	for i, r := range b.Records {
		ts, _ := time.Parse(time.RFC3339, r.Timestamp)
		records[i] = model.RawRecord{
			ID:        r.ID,
			Timestamp: ts,
			Source:    r.Source,
			Fields:    r.Fields,
		}
	}
	return asOf, records
}

type ackResponse struct {
	Status    string `json:"status"`
	BatchID   string `json:"batch_id,omitempty"`
	Duplicate bool   `json:"duplicate"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// batchResponse is the body of GET /batches/{id}.
type batchResponse struct {
	Report      app.Report          `json:"report"`
	Lineage     *model.LineageEntry `json:"lineage,omitempty"`
	Results     []model.ScoreResult `json:"results,omitempty"`
	Transitions []app.Transition    `json:"transitions,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}
