package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"vidgen/internal/templates"
)

type templateRequest struct {
	Title  string `json:"title"`
	Prompt string `json:"prompt"`
}

// ListTemplates returns every stored prompt template.
func (a *App) ListTemplates(w http.ResponseWriter, r *http.Request) {
	all, err := a.Templates.List(r.Context())
	if err != nil {
		a.error(w, http.StatusInternalServerError, "internal", "template listing failed")
		return
	}
	if all == nil {
		all = []templates.Template{}
	}
	a.json(w, http.StatusOK, map[string]any{"data": all})
}

// CreateTemplate stores a new prompt template.
func (a *App) CreateTemplate(w http.ResponseWriter, r *http.Request) {
	var req templateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	tpl, err := a.Templates.Put(r.Context(), templates.Template{Title: req.Title, Prompt: req.Prompt})
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	a.json(w, http.StatusCreated, tpl)
}

// UpdateTemplate replaces the title and prompt of an existing template.
func (a *App) UpdateTemplate(w http.ResponseWriter, r *http.Request) {
	var req templateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	tpl, err := a.Templates.Put(r.Context(), templates.Template{
		ID:     chi.URLParam(r, "id"),
		Title:  req.Title,
		Prompt: req.Prompt,
	})
	if err != nil {
		if errors.Is(err, templates.ErrNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "template not found")
			return
		}
		a.error(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	a.json(w, http.StatusOK, tpl)
}

// DeleteTemplate removes a template.
func (a *App) DeleteTemplate(w http.ResponseWriter, r *http.Request) {
	if err := a.Templates.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		if errors.Is(err, templates.ErrNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "template not found")
			return
		}
		a.error(w, http.StatusInternalServerError, "internal", "template delete failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
