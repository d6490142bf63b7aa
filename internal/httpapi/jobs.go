package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"vidgen/internal/templates"
	"vidgen/internal/videoapi"
)

type submitRequest struct {
	Prompt     string `json:"prompt"`
	Model      string `json:"model"`
	Seconds    int    `json:"seconds"`
	Size       string `json:"size"`
	TemplateID string `json:"template_id"`
}

// SubmitJob creates a remote generation job and starts tracking it. The
// prompt can come from the body directly or from a stored template.
func (a *App) SubmitJob(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if req.Prompt == "" && req.TemplateID != "" {
		if a.Templates == nil {
			a.error(w, http.StatusBadRequest, "bad_request", "template store unavailable")
			return
		}
		tpl, err := a.Templates.Get(r.Context(), req.TemplateID)
		if err != nil {
			if errors.Is(err, templates.ErrNotFound) {
				a.error(w, http.StatusNotFound, "not_found", "template not found")
				return
			}
			a.error(w, http.StatusInternalServerError, "internal", "template lookup failed")
			return
		}
		req.Prompt = tpl.Prompt
	}

	job, err := a.Orc.Submit(r.Context(), videoapi.CreateJobRequest{
		Prompt:  req.Prompt,
		Model:   req.Model,
		Seconds: req.Seconds,
		Size:    req.Size,
	})
	if err != nil {
		a.apiError(w, err)
		return
	}
	a.json(w, http.StatusAccepted, job)
}

// ListJobs returns the cached job list, most recently created first.
func (a *App) ListJobs(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, map[string]any{"data": a.Orc.Jobs().List()})
}

// RefreshJobs reconciles the cache with the server's listing.
func (a *App) RefreshJobs(w http.ResponseWriter, r *http.Request) {
	if err := a.Orc.RefreshAll(r.Context()); err != nil {
		a.apiError(w, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{"count": len(a.Orc.Jobs().List())})
}

// GetJob returns one cached job.
func (a *App) GetJob(w http.ResponseWriter, r *http.Request) {
	job, ok := a.Orc.Jobs().Get(chi.URLParam(r, "id"))
	if !ok {
		a.error(w, http.StatusNotFound, "not_found", "job not found")
		return
	}
	a.json(w, http.StatusOK, job)
}

// DeleteJob removes a job remotely and locally.
func (a *App) DeleteJob(w http.ResponseWriter, r *http.Request) {
	if err := a.Orc.DeleteJob(r.Context(), chi.URLParam(r, "id")); err != nil {
		a.apiError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DownloadJob materializes the artifact of a completed job and returns its
// local path.
func (a *App) DownloadJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, ok := a.Orc.Jobs().Get(id); !ok {
		a.error(w, http.StatusNotFound, "not_found", "job not found")
		return
	}
	path, err := a.Orc.RetrieveArtifact(r.Context(), id)
	if err != nil {
		a.apiError(w, err)
		return
	}
	a.json(w, http.StatusOK, map[string]string{"path": path})
}

// ServeArtifact serves a downloaded artifact file for playback.
func (a *App) ServeArtifact(w http.ResponseWriter, r *http.Request) {
	job, ok := a.Orc.Jobs().Get(chi.URLParam(r, "id"))
	if !ok {
		a.error(w, http.StatusNotFound, "not_found", "job not found")
		return
	}
	if job.LocalArtifact == "" {
		a.error(w, http.StatusNotFound, "not_found", "artifact not downloaded")
		return
	}
	http.ServeFile(w, r, job.LocalArtifact)
}

// ExportJobs streams a zip of every downloaded artifact.
func (a *App) ExportJobs(w http.ResponseWriter, r *http.Request) {
	name := "vidgen-export-" + time.Now().Format("20060102-150405") + ".zip"
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	if _, err := a.Orc.ExportArtifacts(w); err != nil {
		// Headers are gone by now; all that is left is to log it.
		a.Logger.Error().Err(err).Msg("httpapi: artifact export failed")
	}
}
