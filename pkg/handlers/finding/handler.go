// Package finding exposes the findings-management HTTP interface.
package finding

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/secureaudit/secureaudit/pkg/adapters"
	"github.com/secureaudit/secureaudit/pkg/models/api"
	"github.com/secureaudit/secureaudit/pkg/models/domain"
	"github.com/secureaudit/secureaudit/pkg/services/findings"
)

const defaultQueryLimit = 50

type Handler struct {
	findings findings.Service
}

func NewHandler(findingsSvc findings.Service) *Handler {
	return &Handler{findings: findingsSvc}
}

func (h *Handler) QueryFindings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := zerolog.Ctx(ctx)
	q := r.URL.Query()

	filter := domain.FindingFilter{
		AuditRunID:   q.Get("auditRunId"),
		ResourceType: q.Get("resourceType"),
		Framework:    q.Get("framework"),
		Limit:        queryInt(r, "limit", defaultQueryLimit),
		Offset:       queryInt(r, "offset", 0),
	}

	if severity := q.Get("severity"); severity != "" {
		if !domain.Severity(severity).Valid() {
			writeError(w, http.StatusBadRequest, "unknown severity "+severity)
			return
		}
		filter.Severity = domain.Severity(severity)
	}
	if status := q.Get("status"); status != "" {
		if !domain.FindingStatus(status).Valid() {
			writeError(w, http.StatusBadRequest, "unknown status "+status)
			return
		}
		filter.Status = domain.FindingStatus(status)
	}

	result, err := h.findings.Query(ctx, filter)
	if err != nil {
		logger.Error().Err(err).Msg("failed to query findings")
		writeError(w, http.StatusInternalServerError, "failed to query findings")
		return
	}

	response := api.FindingList{Findings: make([]api.Finding, 0, len(result)), Count: len(result)}
	for _, f := range result {
		response.Findings = append(response.Findings, adapters.MapFindingDomainToApi(f))
	}
	writeJSON(ctx, w, http.StatusOK, response)
}

func (h *Handler) UpdateFindingStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := zerolog.Ctx(ctx)
	id := chi.URLParam(r, "findingID")

	var req api.UpdateFindingStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !domain.FindingStatus(req.Status).Valid() {
		writeError(w, http.StatusBadRequest, "unknown status "+req.Status)
		return
	}

	updated, err := h.findings.UpdateStatus(ctx, id, domain.FindingStatus(req.Status))
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			writeError(w, http.StatusNotFound, "finding not found")
		case errors.Is(err, domain.ErrInvalidTransition):
			writeError(w, http.StatusConflict, err.Error())
		case errors.Is(err, domain.ErrConcurrentUpdate):
			// Retryable, unlike a transition outside the lifecycle.
			writeError(w, http.StatusServiceUnavailable, "finding is being updated concurrently, retry")
		default:
			logger.Error().Err(err).Str("finding_id", id).Msg("failed to update finding status")
			writeError(w, http.StatusInternalServerError, "failed to update finding status")
		}
		return
	}
	writeJSON(ctx, w, http.StatusOK, adapters.MapFindingDomainToApi(*updated))
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return fallback
	}
	return v
}

func writeJSON(ctx context.Context, w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(api.Error{Error: message})
}
