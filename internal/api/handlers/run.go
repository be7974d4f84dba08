package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/Harshitk-cp/pinaht/internal/domain"
	"github.com/Harshitk-cp/pinaht/internal/scenario"
	"github.com/Harshitk-cp/pinaht/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

const maxScenarioBytes = 1 << 20

type RunHandler struct {
	svc *service.RunService
}

func NewRunHandler(svc *service.RunService) *RunHandler {
	return &RunHandler{svc: svc}
}

// Create runs the scenario YAML in the request body and returns its report.
func (h *RunHandler) Create(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxScenarioBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	sc, err := scenario.Parse(body, h.svc.Schema())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	report, err := h.svc.Execute(r.Context(), sc)
	if err != nil {
		if report != nil && errors.Is(err, domain.ErrContractViolation) {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
				"error":  err.Error(),
				"run_id": report.ID,
			})
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to execute run")
		return
	}

	writeJSON(w, http.StatusCreated, report.Summary())
}

func (h *RunHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	runs, err := h.svc.List(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	if runs == nil {
		runs = []domain.RunSummary{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (h *RunHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	report, ok := h.load(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *RunHandler) Facts(w http.ResponseWriter, r *http.Request) {
	report, ok := h.load(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"facts": report.Facts})
}

func (h *RunHandler) Provenance(w http.ResponseWriter, r *http.Request) {
	id, ok := runID(w, r)
	if !ok {
		return
	}
	order := service.ProvenanceOrder(r.URL.Query().Get("order"))

	nodes, err := h.svc.Provenance(r.Context(), id, order)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidOrder):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, service.ErrRunNotFound):
			writeError(w, http.StatusNotFound, "run not found")
		default:
			writeError(w, http.StatusInternalServerError, "failed to load provenance")
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"nodes": nodes})
}

func (h *RunHandler) Ancestors(w http.ResponseWriter, r *http.Request) {
	id, ok := runID(w, r)
	if !ok {
		return
	}
	n, err := strconv.Atoi(chi.URLParam(r, "node"))
	if err != nil || n < 0 {
		writeError(w, http.StatusBadRequest, "invalid node id")
		return
	}

	entries, err := h.svc.Ancestors(r.Context(), id, domain.NodeID(n))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrRunNotFound):
			writeError(w, http.StatusNotFound, "run not found")
		case errors.Is(err, service.ErrNodeNotFound):
			writeError(w, http.StatusNotFound, "node not found")
		case errors.Is(err, domain.ErrCycle):
			writeError(w, http.StatusConflict, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, "failed to sort provenance")
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ancestors": entries})
}

func (h *RunHandler) load(w http.ResponseWriter, r *http.Request) (*domain.RunReport, bool) {
	id, ok := runID(w, r)
	if !ok {
		return nil, false
	}
	report, err := h.svc.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrRunNotFound) {
			writeError(w, http.StatusNotFound, "run not found")
			return nil, false
		}
		writeError(w, http.StatusInternalServerError, "failed to get run")
		return nil, false
	}
	return report, true
}

func runID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid run id")
		return uuid.Nil, false
	}
	return id, true
}
