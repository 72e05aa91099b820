// Package handlers holds the HTTP surface. Handlers translate requests into
// calls on the batch orchestrator and the job service, and translate domain
// errors back into stable JSON error codes.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"photoflow/internal/batch"
	"photoflow/internal/domain"
	"photoflow/internal/infra"
	"photoflow/internal/jobs"
)

type App struct {
	Batch  *batch.Orchestrator
	Jobs   *jobs.Service
	Logger infra.Logger
}

func NewApp(orchestrator *batch.Orchestrator, jobService *jobs.Service, logger infra.Logger) *App {
	return &App{Batch: orchestrator, Jobs: jobService, Logger: logger}
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, codeStr, msg string) {
	a.json(w, code, errorResponse{Code: codeStr, Message: msg})
}

// domainError maps the shared sentinel errors onto HTTP responses so every
// handler reports them the same way.
func (a *App) domainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		a.error(w, http.StatusBadRequest, "bad_request", err.Error())
	case errors.Is(err, domain.ErrNotFound):
		a.error(w, http.StatusNotFound, "not_found", "task not found")
	case errors.Is(err, domain.ErrOperationNotAllowed):
		a.error(w, http.StatusConflict, "conflict", err.Error())
	default:
		a.error(w, http.StatusInternalServerError, "internal", "internal error")
	}
}

// currentUserID identifies the caller. Authentication proper sits in front of
// this service; here the identity arrives as a trusted header.
func (a *App) currentUserID(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get("X-User-ID"))
}
