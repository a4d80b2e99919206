// Package audit exposes the audit-management HTTP interface.
package audit

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
	auditservice "github.com/secureaudit/secureaudit/pkg/services/audit"
)

const defaultListLimit = 50

type Handler struct {
	audits auditservice.Service
}

func NewHandler(audits auditservice.Service) *Handler {
	return &Handler{audits: audits}
}

func (h *Handler) StartAuditRun(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := zerolog.Ctx(ctx)

	var req api.StartAuditRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	run, created, err := h.audits.StartAuditRun(ctx, req.AuditRunID, req.ComplianceFrameworks, domain.ScanConfig(req.ScanConfig))
	if err != nil {
		if errors.Is(err, domain.ErrInvalidConfiguration) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		logger.Error().Err(err).Msg("failed to start audit run")
		writeError(w, http.StatusInternalServerError, "failed to start audit run")
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(ctx, w, status, adapters.MapAuditRunDomainToApi(*run))
}

func (h *Handler) GetAuditRun(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := zerolog.Ctx(ctx)
	id := chi.URLParam(r, "auditRunID")

	run, err := h.audits.GetAuditRun(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "audit run not found")
			return
		}
		logger.Error().Err(err).Str("audit_run_id", id).Msg("failed to get audit run")
		writeError(w, http.StatusInternalServerError, "failed to get audit run")
		return
	}
	writeJSON(ctx, w, http.StatusOK, adapters.MapAuditRunDomainToApi(*run))
}

func (h *Handler) ListAuditRuns(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := zerolog.Ctx(ctx)

	status := r.URL.Query().Get("status")
	if status != "" && !domain.RunStatus(status).Valid() {
		writeError(w, http.StatusBadRequest, "unknown status "+status)
		return
	}
	limit := queryInt(r, "limit", defaultListLimit)

	runs, err := h.audits.ListAuditRuns(ctx, domain.RunStatus(status), limit)
	if err != nil {
		logger.Error().Err(err).Msg("failed to list audit runs")
		writeError(w, http.StatusInternalServerError, "failed to list audit runs")
		return
	}

	response := api.AuditRunList{AuditRuns: make([]api.AuditRun, 0, len(runs)), Count: len(runs)}
	for _, run := range runs {
		response.AuditRuns = append(response.AuditRuns, adapters.MapAuditRunDomainToApi(run))
	}
	writeJSON(ctx, w, http.StatusOK, response)
}

func (h *Handler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := zerolog.Ctx(ctx)
	id := chi.URLParam(r, "auditRunID")

	snap, err := h.audits.GetSnapshot(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "snapshot not found")
			return
		}
		logger.Error().Err(err).Str("audit_run_id", id).Msg("failed to get snapshot")
		writeError(w, http.StatusInternalServerError, "failed to get snapshot")
		return
	}
	writeJSON(ctx, w, http.StatusOK, adapters.MapSnapshotDomainToApi(*snap))
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
