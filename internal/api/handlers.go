package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/clipforge/clipforge/internal/db"
	"github.com/clipforge/clipforge/internal/models"
	"github.com/clipforge/clipforge/internal/queue"
	"github.com/clipforge/clipforge/internal/storage"
)

type Handler struct {
	db              *db.DB
	queue           *queue.Queue
	storage         *storage.Storage
	defaultProvider string
}

func NewHandler(database *db.DB, q *queue.Queue, stor *storage.Storage, defaultProvider string) *Handler {
	return &Handler{
		db:              database,
		queue:           q,
		storage:         stor,
		defaultProvider: defaultProvider,
	}
}

// CreateClip handles POST /v1/clips
func (h *Handler) CreateClip(w http.ResponseWriter, r *http.Request) {
	var req models.CreateClipRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.Prompt == "" {
		respondError(w, http.StatusBadRequest, "Prompt is required")
		return
	}

	aspect := models.AspectPortrait
	if req.Aspect != nil {
		if !validAspect(*req.Aspect) {
			respondError(w, http.StatusBadRequest, "Invalid aspect. Allowed: 9:16, 16:9, 1:1")
			return
		}
		aspect = *req.Aspect
	}

	provider := h.defaultProvider
	if req.Provider != nil {
		if *req.Provider != "veo" && *req.Provider != "grok" {
			respondError(w, http.StatusBadRequest, "Invalid provider. Allowed: veo, grok")
			return
		}
		provider = *req.Provider
	}

	clip := &models.ClipReference{
		ID:       uuid.New(),
		Prompt:   req.Prompt,
		Aspect:   aspect,
		Provider: provider,
		Status:   models.ClipStatusQueued,
	}
	if req.DurationSec != nil {
		d := float64(*req.DurationSec)
		clip.DurationSec = &d
	}

	if err := h.db.CreateClip(r.Context(), clip); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to create clip")
		return
	}

	if err := h.queue.EnqueueGenerateClip(r.Context(), clip.ID); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to enqueue generation")
		return
	}

	respondJSON(w, http.StatusCreated, models.CreateClipResponse{
		ClipID: clip.ID,
		Status: clip.Status,
	})
}

// ListClips handles GET /v1/clips
// Query params:
//   - aspect: filter by aspect class (9:16, 16:9, 1:1) — the merge picker
//     uses this so only clips compatible with the open clip are offered
//   - status: filter by clip status (queued, generating, ready, failed)
//   - limit:  max results per page (default 20, max 100)
//   - offset: number of results to skip (default 0)
func (h *Handler) ListClips(w http.ResponseWriter, r *http.Request) {
	aspectFilter := r.URL.Query().Get("aspect")
	if aspectFilter != "" && !validAspect(models.AspectClass(aspectFilter)) {
		respondError(w, http.StatusBadRequest, "Invalid aspect filter. Allowed: 9:16, 16:9, 1:1")
		return
	}

	statusFilter := r.URL.Query().Get("status")
	if statusFilter != "" {
		switch models.ClipStatus(statusFilter) {
		case models.ClipStatusQueued, models.ClipStatusGenerating,
			models.ClipStatusReady, models.ClipStatusFailed:
			// valid
		default:
			respondError(w, http.StatusBadRequest, "Invalid status filter. Allowed: queued, generating, ready, failed")
			return
		}
	}

	limit := 20
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if limit > 100 {
		limit = 100
	}

	offset := 0
	if o := r.URL.Query().Get("offset"); o != "" {
		if parsed, err := strconv.Atoi(o); err == nil && parsed >= 0 {
			offset = parsed
		}
	}

	total, err := h.db.CountClips(r.Context(), aspectFilter, statusFilter)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to count clips")
		return
	}

	clips, err := h.db.ListClips(r.Context(), aspectFilter, statusFilter, limit, offset)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to list clips")
		return
	}

	responses := make([]models.ClipResponse, len(clips))
	for i, clip := range clips {
		responses[i] = h.buildClipResponse(clip)
	}

	respondJSON(w, http.StatusOK, models.ListClipsResponse{
		Clips:  responses,
		Total:  total,
		Limit:  limit,
		Offset: offset,
	})
}

// GetClip handles GET /v1/clips/{id}
func (h *Handler) GetClip(w http.ResponseWriter, r *http.Request) {
	clipID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid clip ID")
		return
	}

	clip, err := h.db.GetClip(r.Context(), clipID)
	if err != nil {
		respondError(w, http.StatusNotFound, "Clip not found")
		return
	}

	respondJSON(w, http.StatusOK, h.buildClipResponse(*clip))
}

// ExtendClip handles POST /v1/clips/{id}/extend. The new clip inherits the
// source's aspect class and provider and is seeded with the source's final
// frame, so the generated footage continues the scene.
func (h *Handler) ExtendClip(w http.ResponseWriter, r *http.Request) {
	sourceID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid clip ID")
		return
	}

	var req models.ExtendClipRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Prompt == "" {
		respondError(w, http.StatusBadRequest, "Prompt is required")
		return
	}

	source, err := h.db.GetClip(r.Context(), sourceID)
	if err != nil {
		respondError(w, http.StatusNotFound, "Clip not found")
		return
	}
	if source.Status != models.ClipStatusReady {
		respondError(w, http.StatusConflict, "Clip is not ready to extend")
		return
	}

	clip := &models.ClipReference{
		ID:          uuid.New(),
		Prompt:      req.Prompt,
		Aspect:      source.Aspect,
		Provider:    source.Provider,
		ExtendsClip: &sourceID,
		Status:      models.ClipStatusQueued,
	}

	if err := h.db.CreateClip(r.Context(), clip); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to create clip")
		return
	}

	if err := h.queue.EnqueueGenerateClip(r.Context(), clip.ID); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to enqueue generation")
		return
	}

	respondJSON(w, http.StatusCreated, models.CreateClipResponse{
		ClipID: clip.ID,
		Status: clip.Status,
	})
}

// ListClipExports handles GET /v1/clips/{id}/exports
func (h *Handler) ListClipExports(w http.ResponseWriter, r *http.Request) {
	clipID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid clip ID")
		return
	}

	exports, err := h.db.ListClipExports(r.Context(), clipID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to list exports")
		return
	}

	responses := make([]models.ExportResponse, len(exports))
	for i, export := range exports {
		responses[i] = h.buildExportResponse(export)
	}
	respondJSON(w, http.StatusOK, responses)
}

// CreateExport handles POST /v1/exports. The plan is snapshotted as-is;
// later edits to the same clip do not affect a queued export.
func (h *Handler) CreateExport(w http.ResponseWriter, r *http.Request) {
	var req models.CreateExportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	clip, err := h.db.GetClip(r.Context(), req.Plan.ClipID)
	if err != nil {
		respondError(w, http.StatusNotFound, "Clip not found")
		return
	}
	if clip.Status != models.ClipStatusReady {
		respondError(w, http.StatusConflict, "Clip is not ready to export")
		return
	}

	sourceDuration := 0.0
	if clip.DurationSec != nil {
		sourceDuration = *clip.DurationSec
	}
	if err := req.Plan.Validate(sourceDuration); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	export := &models.Export{
		ID:     uuid.New(),
		ClipID: req.Plan.ClipID,
		Plan:   req.Plan,
		Status: models.ExportStatusQueued,
	}

	if err := h.db.CreateExport(r.Context(), export); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to create export")
		return
	}

	if err := h.queue.EnqueueRenderExport(r.Context(), export.ID); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to enqueue render")
		return
	}

	respondJSON(w, http.StatusCreated, models.CreateExportResponse{
		ExportID: export.ID,
		Status:   export.Status,
	})
}

// GetExport handles GET /v1/exports/{id}
func (h *Handler) GetExport(w http.ResponseWriter, r *http.Request) {
	exportID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid export ID")
		return
	}

	export, err := h.db.GetExport(r.Context(), exportID)
	if err != nil {
		respondError(w, http.StatusNotFound, "Export not found")
		return
	}

	respondJSON(w, http.StatusOK, h.buildExportResponse(*export))
}

// GetExportDownload handles GET /v1/exports/{id}/download
func (h *Handler) GetExportDownload(w http.ResponseWriter, r *http.Request) {
	exportID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid export ID")
		return
	}

	export, err := h.db.GetExport(r.Context(), exportID)
	if err != nil {
		respondError(w, http.StatusNotFound, "Export not found")
		return
	}

	if export.Status != models.ExportStatusCompleted || export.ArtifactPath == nil {
		respondError(w, http.StatusNotFound, "Export not ready")
		return
	}

	// Get signed URL (valid for 1 hour)
	signedURL, err := h.storage.GetSignedURL(r.Context(), *export.ArtifactPath, 3600)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to generate download URL")
		return
	}

	http.Redirect(w, r, signedURL, http.StatusTemporaryRedirect)
}

// Helper methods

func (h *Handler) buildClipResponse(clip models.ClipReference) models.ClipResponse {
	response := models.ClipResponse{
		ClipReference: clip,
	}
	if clip.SourceURL != "" {
		url := h.storage.GetPublicURL(clip.SourceURL)
		response.ClipURL = &url
	}
	return response
}

func (h *Handler) buildExportResponse(export models.Export) models.ExportResponse {
	response := models.ExportResponse{
		Export: export,
	}
	if export.ArtifactPath != nil {
		url := h.storage.GetPublicURL(*export.ArtifactPath)
		response.ArtifactURL = &url
	}
	return response
}

func validAspect(a models.AspectClass) bool {
	switch a {
	case models.AspectPortrait, models.AspectLandscape, models.AspectSquare:
		return true
	}
	return false
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// Health check
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
