// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/cadencefin/riskpipe/internal/adapters/lineage"
)

// BatchesHandler handles batch submission and lookup requests.
type BatchesHandler struct {
	deps Dependencies
}

// NewBatchesHandler creates a new batches handler.
func NewBatchesHandler(deps Dependencies) *BatchesHandler {
	return &BatchesHandler{deps: deps}
}

// HandlePostBatch handles POST /batches requests.
func (h *BatchesHandler) HandlePostBatch(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_batch"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	asOf, records := req.toModel()
	batchID, duplicate, accepted := h.deps.Submit(r.Context(), req.ClientRef, req.SchemaVersion, asOf, records)
	if duplicate {
		writeJSON(w, http.StatusOK, ackResponse{Status: "duplicate", Duplicate: true})
		return
	}
	if !accepted {
		writeError(w, http.StatusTooManyRequests, "backpressure", NewKind(op, ErrBackpressure))
		return
	}
	writeJSON(w, http.StatusAccepted, ackResponse{Status: "accepted", BatchID: batchID})
}

// HandleGetBatch handles GET /batches/{id} requests. The response carries the
// outcome report plus, for committed batches, the lineage entry, results and
// the ordered audit trail.
func (h *BatchesHandler) HandleGetBatch(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_batch"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	batchID := strings.TrimPrefix(r.URL.Path, "/batches/")
	if batchID == "" || strings.Contains(batchID, "/") {
		writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
		return
	}

	report, ok := h.deps.BatchReport(r.Context(), batchID)
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", NewKind(op, ErrNotFound))
		return
	}

	resp := batchResponse{
		Report:      report,
		Transitions: h.deps.Trail(r.Context(), batchID),
	}
	entry, err := h.deps.Lineage(r.Context(), batchID)
	if err == nil {
		resp.Lineage = &entry
		if results, rerr := h.deps.Results(r.Context(), batchID); rerr == nil {
			resp.Results = results
		}
	} else if !errors.Is(err, lineage.ErrNotFound) {
		writeError(w, http.StatusInternalServerError, "internal", WrapKind(op, ErrInternal, err))
		return
	}

	writeJSON(w, http.StatusOK, resp)
}
