package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"cutoutly/internal/domain"
	"cutoutly/internal/infra"
	"cutoutly/internal/jobs"
	"cutoutly/internal/middleware"
)

// defaultMaxBodyBytes leaves room for a base64 image of jobs.DefaultMaxUploadBytes.
const defaultMaxBodyBytes = 16 << 20

type App struct {
	Config  *infra.Config
	Logger  infra.Logger
	Machine *jobs.Machine
	// MaxBodyBytes caps JSON request bodies. Zero uses defaultMaxBodyBytes.
	MaxBodyBytes int64
}

func NewApp(cfg *infra.Config, logger infra.Logger, machine *jobs.Machine) *App {
	app := &App{Config: cfg, Logger: logger, Machine: machine}
	if cfg != nil && cfg.MaxUploadBytes > 0 {
		// base64 grows by 4/3, plus the rest of the payload
		app.MaxBodyBytes = int64(cfg.MaxUploadBytes)*4/3 + 64<<10
	}
	return app
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, status int, code, message string) {
	a.json(w, status, map[string]any{
		"error": map[string]string{"code": code, "message": message},
	})
}

// fail maps domain errors onto HTTP responses.
func (a *App) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrUnauthorized):
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing owner")
	case errors.Is(err, domain.ErrNotFound):
		a.error(w, http.StatusNotFound, "not_found", "not found")
	case errors.Is(err, domain.ErrInvalidInput):
		a.error(w, http.StatusBadRequest, "bad_request", err.Error())
	case errors.Is(err, jobs.ErrJobBusy):
		a.error(w, http.StatusConflict, "conflict", jobs.MessageAlreadyInProgress)
	case errors.Is(err, jobs.ErrNotReady):
		a.error(w, http.StatusConflict, "not_ready", err.Error())
	default:
		a.Logger.Error().
			Err(err).
			Str("path", r.URL.Path).
			Str("request_id", middleware.RequestIDFromContext(r.Context())).
			Msg("request failed")
		a.error(w, http.StatusInternalServerError, "internal", "internal error")
	}
}

func (a *App) currentOwnerID(r *http.Request) string {
	return middleware.OwnerIDFromContext(r.Context())
}

// decode reads a size-capped JSON body into v.
func (a *App) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	limit := a.MaxBodyBytes
	if limit <= 0 {
		limit = defaultMaxBodyBytes
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			a.error(w, http.StatusRequestEntityTooLarge, "too_large", "request body too large")
			return false
		}
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return false
	}
	return true
}
