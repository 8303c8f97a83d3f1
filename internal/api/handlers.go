package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/mmrzaf/tablegen/internal/app"
	"github.com/mmrzaf/tablegen/internal/domain"
	"github.com/mmrzaf/tablegen/internal/infra/repos/jobs"
	"github.com/mmrzaf/tablegen/internal/infra/repos/requests"
	"github.com/mmrzaf/tablegen/internal/registry"
	"github.com/mmrzaf/tablegen/internal/validation"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

type Handler struct {
	jobService  *app.JobService
	requestRepo requests.Repository
	genRegistry *registry.GeneratorRegistry
}

func NewHandler(jobService *app.JobService, requestRepo requests.Repository, genRegistry *registry.GeneratorRegistry) *Handler {
	return &Handler{
		jobService:  jobService,
		requestRepo: requestRepo,
		genRegistry: genRegistry,
	}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

// Jobs

func (h *Handler) CreateJob(w http.ResponseWriter, r *http.Request) {
	var req domain.GenerationRequest
	if err := decodeJSONStrict(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", fmt.Sprintf("Invalid JSON: %v", err))
		return
	}
	h.startJob(w, r, &req)
}

func (h *Handler) CreateJobFromRequest(w http.ResponseWriter, r *http.Request) {
	entry, err := h.requestRepo.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "request_not_found", err.Error())
		return
	}
	h.startJob(w, r, entry.Request)
}

func (h *Handler) startJob(w http.ResponseWriter, r *http.Request, req *domain.GenerationRequest) {
	job, err := h.jobService.StartJob(r.Context(), req)
	switch {
	case err == nil:
	case errors.Is(err, app.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	case errors.Is(err, app.ErrQueueFull), errors.Is(err, app.ErrPoolClosed):
		writeError(w, http.StatusServiceUnavailable, "unavailable", err.Error())
		return
	default:
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	w.Header().Set("Location", "/api/v1/jobs/"+job.ID)
	writeJSONStatus(w, http.StatusAccepted, job)
}

func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	limit := defaultListLimit
	if q := r.URL.Query().Get("limit"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n <= 0 || n > maxListLimit {
			writeError(w, http.StatusBadRequest, "invalid_limit", fmt.Sprintf("limit must be within 1..%d", maxListLimit))
			return
		}
		limit = n
	}
	status := r.URL.Query().Get("status")
	if status != "" && !domain.IsValidJobStatus(status) {
		writeError(w, http.StatusBadRequest, "invalid_status", fmt.Sprintf("unknown status: %s", status))
		return
	}

	list, err := h.jobService.ListJobs(r.Context(), limit, status)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	for _, job := range list {
		job.Data = nil
	}
	writeJSON(w, list)
}

func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.jobService.GetJob(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeJobError(w, err)
		return
	}
	writeJSON(w, job)
}

func (h *Handler) CancelJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.jobService.CancelJob(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeJobError(w, err)
		return
	}
	writeJSON(w, job)
}

func (h *Handler) ExportJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	exporter, err := h.jobService.ExportFormat(r.Context(), id, r.URL.Query().Get("format"))
	if err != nil {
		if errors.Is(err, jobs.ErrNotFound) {
			writeJobError(w, err)
			return
		}
		writeError(w, http.StatusBadRequest, "invalid_format", err.Error())
		return
	}
	ds, err := h.jobService.Dataset(r.Context(), id)
	if err != nil {
		writeJobError(w, err)
		return
	}

	w.Header().Set("Content-Type", exporter.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s%s"`, exportName(id), exporter.FileExtension()))
	if err := exporter.Export(r.Context(), ds, w); err != nil {
		// Headers are already sent; the client sees a truncated body.
		panic(http.ErrAbortHandler)
	}
}

// Requests

func (h *Handler) ListRequests(w http.ResponseWriter, r *http.Request) {
	list, err := h.requestRepo.List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	writeJSON(w, list)
}

func (h *Handler) GetRequest(w http.ResponseWriter, r *http.Request) {
	entry, err := h.requestRepo.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "request_not_found", err.Error())
		return
	}
	writeJSON(w, entry)
}

type planResponse struct {
	Valid      bool     `json:"valid"`
	Error      string   `json:"error,omitempty"`
	Order      []string `json:"order,omitempty"`
	Unresolved []string `json:"unresolved,omitempty"`
}

// PlanRequest validates a request and reports the table generation order.
func (h *Handler) PlanRequest(w http.ResponseWriter, r *http.Request) {
	var req domain.GenerationRequest
	if err := decodeJSONStrict(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", fmt.Sprintf("Invalid JSON: %v", err))
		return
	}
	if err := h.jobService.Validate(&req); err != nil {
		writeJSONStatus(w, http.StatusUnprocessableEntity, planResponse{Valid: false, Error: err.Error()})
		return
	}
	res := validation.ResolveOrder(req.Tables)
	writeJSON(w, planResponse{
		Valid:      true,
		Order:      validation.OrderNames(req.Tables, res.Order),
		Unresolved: validation.OrderNames(req.Tables, res.Unresolved),
	})
}

func (h *Handler) ListGenerators(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string][]string{
		"types":         h.genRegistry.List(),
		"faker_methods": h.genRegistry.FakerMethods(),
	})
}

func exportName(id string) string {
	return "tablegen-" + strings.ReplaceAll(id, `"`, "")
}

func writeJobError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, jobs.ErrNotFound):
		writeError(w, http.StatusNotFound, "job_not_found", err.Error())
	case errors.Is(err, jobs.ErrJobFinalized):
		writeError(w, http.StatusConflict, "job_finalized", err.Error())
	case errors.Is(err, app.ErrNotCompleted):
		writeError(w, http.StatusConflict, "job_not_completed", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
	}
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSONStatus(w, status, errorResponse{Error: msg, Code: code})
}

func writeJSON(w http.ResponseWriter, v any) {
	writeJSONStatus(w, http.StatusOK, v)
}

func writeJSONStatus(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeJSONStrict(r *http.Request, out any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(out)
}
