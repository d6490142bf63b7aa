package httpapi

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/rs/zerolog"

	"vidgen/internal/infra"
	"vidgen/internal/orchestrator"
	"vidgen/internal/templates"
	"vidgen/internal/videoapi"
)

// App bundles everything the daemon's handlers need.
type App struct {
	Orc       *orchestrator.Orchestrator
	Templates *templates.Store
	Hub       *Hub
	Logger    *infra.Logger
}

// NewApp builds the handler container. A nil hub or logger is replaced with
// an inert one so the wiring in tests stays short.
func NewApp(orc *orchestrator.Orchestrator, tpls *templates.Store, hub *Hub, logger *infra.Logger) *App {
	if logger == nil {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}
	if hub == nil {
		hub = NewHub(logger)
	}
	return &App{Orc: orc, Templates: tpls, Hub: hub, Logger: logger}
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, errCode, message string) {
	a.json(w, code, map[string]any{
		"error": map[string]string{"code": errCode, "message": message},
	})
}

// apiError translates a core error into an HTTP response. Upstream 4xx
// statuses pass through; everything upstream-shaped that is not the caller's
// fault maps to 502.
func (a *App) apiError(w http.ResponseWriter, err error) {
	apiErr, ok := videoapi.AsError(err)
	if !ok {
		a.error(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	switch apiErr.Kind {
	case videoapi.ErrValidation:
		a.error(w, http.StatusBadRequest, "invalid_request", apiErr.Error())
	case videoapi.ErrAuth:
		a.error(w, http.StatusUnauthorized, "unauthorized", "no API credential configured")
	case videoapi.ErrNetwork:
		a.error(w, http.StatusBadGateway, "upstream_unreachable", apiErr.Error())
	case videoapi.ErrDecode:
		a.error(w, http.StatusBadGateway, "upstream_decode", apiErr.Error())
	case videoapi.ErrHTTP:
		if apiErr.StatusCode >= 400 && apiErr.StatusCode < 500 {
			a.error(w, apiErr.StatusCode, "upstream_rejected", apiErr.Error())
			return
		}
		a.error(w, http.StatusBadGateway, "upstream_error", apiErr.Error())
	default:
		a.error(w, http.StatusInternalServerError, "internal", apiErr.Error())
	}
}

// Health reports liveness.
func (a *App) Health(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, map[string]string{"status": "ok"})
}
