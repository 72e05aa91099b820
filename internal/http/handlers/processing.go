package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"photoflow/internal/domain"
)

type jobSubmitRequest struct {
	Image     string `json:"image"`
	Operation string `json:"operation"`
	StyleID   string `json:"style_id"`
}

type jobResponse struct {
	JobID        string     `json:"job_id"`
	Status       string     `json:"status"`
	Operation    string     `json:"operation"`
	Progress     int        `json:"progress"`
	ResultURLs   []string   `json:"result_urls,omitempty"`
	ErrorMessage string     `json:"error,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

func jobToResponse(job domain.Job) jobResponse {
	resp := jobResponse{
		JobID:        job.ID,
		Status:       string(job.Status),
		Operation:    string(job.Operation),
		Progress:     job.Progress,
		ResultURLs:   job.ResultURLs,
		ErrorMessage: job.ErrorMessage,
		CreatedAt:    job.CreatedAt,
	}
	if !job.CompletedAt.IsZero() {
		completed := job.CompletedAt
		resp.CompletedAt = &completed
	}
	return resp
}

func (a *App) JobSubmit(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	var req jobSubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	job, err := a.Jobs.Submit(userID, req.Image, req.Operation, req.StyleID)
	if err != nil {
		a.domainError(w, err)
		return
	}
	a.json(w, http.StatusAccepted, jobToResponse(job))
}

func (a *App) JobStatus(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	job, err := a.Jobs.Status(jobID)
	if err != nil {
		a.domainError(w, err)
		return
	}
	a.json(w, http.StatusOK, jobToResponse(job))
}

func (a *App) JobCancel(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	jobID := chi.URLParam(r, "job_id")
	if err := a.Jobs.Cancel(jobID, userID); err != nil {
		a.domainError(w, err)
		return
	}
	a.json(w, http.StatusOK, map[string]string{"job_id": jobID, "status": string(domain.JobStatusFailed), "reason": domain.CancelReason})
}
