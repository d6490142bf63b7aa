package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"vidgen/internal/middleware"
)

// NewRouter wires the daemon's control surface.
func NewRouter(app *App) http.Handler {
	r := chi.NewRouter()

	r.Use(
		chimw.Recoverer,
		middleware.RequestID,
		middleware.Logger(*app.Logger),
	)

	r.Get("/healthz", app.Health)

	r.Route("/v1", func(r chi.Router) {
		r.Route("/jobs", func(r chi.Router) {
			r.Post("/", app.SubmitJob)
			r.Get("/", app.ListJobs)
			r.Post("/refresh", app.RefreshJobs)
			r.Get("/export", app.ExportJobs)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", app.GetJob)
				r.Delete("/", app.DeleteJob)
				r.Post("/download", app.DownloadJob)
				r.Get("/artifact", app.ServeArtifact)
			})
		})

		r.Get("/events", app.Events)

		r.Route("/templates", func(r chi.Router) {
			r.Get("/", app.ListTemplates)
			r.Post("/", app.CreateTemplate)
			r.Put("/{id}", app.UpdateTemplate)
			r.Delete("/{id}", app.DeleteTemplate)
		})
	})

	return r
}
