package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"photoflow/internal/batch"
	"photoflow/internal/domain"
)

type batchCreateRequest struct {
	Images     []batchImage `json:"images"`
	Operations []string     `json:"operations"`
	StyleID    string       `json:"style_id"`
}

type batchImage struct {
	Data     string `json:"data"`
	Filename string `json:"filename"`
}

type batchCreateResponse struct {
	TaskID           string `json:"task_id"`
	Status           string `json:"status"`
	TotalImages      int    `json:"total_images"`
	EstimatedSeconds int    `json:"estimated_time_seconds"`
}

type batchStatusResponse struct {
	TaskID          string     `json:"task_id"`
	Status          string     `json:"status"`
	TotalImages     int        `json:"total_images"`
	ProcessedImages int        `json:"processed_images"`
	SuccessCount    int        `json:"success_count"`
	FailedCount     int        `json:"failed_count"`
	Progress        float64    `json:"progress"`
	CreatedAt       time.Time  `json:"created_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
}

type batchResultItem struct {
	Index    int               `json:"index"`
	Filename string            `json:"filename"`
	Success  bool              `json:"success"`
	Outputs  []batchResultFile `json:"outputs,omitempty"`
	Error    string            `json:"error,omitempty"`
}

type batchResultFile struct {
	URL    string `json:"url"`
	Format string `json:"format"`
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
}

type batchItemError struct {
	Index int    `json:"index"`
	Error string `json:"error"`
}

type batchResultsResponse struct {
	TaskID       string            `json:"task_id"`
	Status       string            `json:"status"`
	SuccessCount int               `json:"success_count"`
	FailedCount  int               `json:"failed_count"`
	Results      []batchResultItem `json:"results"`
	Errors       []batchItemError  `json:"errors"`
}

func (a *App) BatchCreate(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	var req batchCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	images := make([]batch.ImageInput, 0, len(req.Images))
	for _, img := range req.Images {
		images = append(images, batch.ImageInput{Data: img.Data, Filename: img.Filename})
	}
	created, err := a.Batch.CreateTask(userID, images, req.Operations, req.StyleID)
	if err != nil {
		a.domainError(w, err)
		return
	}
	a.json(w, http.StatusAccepted, batchCreateResponse{
		TaskID:           created.TaskID,
		Status:           string(created.Status),
		TotalImages:      created.TotalImages,
		EstimatedSeconds: created.EstimatedSeconds,
	})
}

func (a *App) BatchStatus(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "task_id")
	summary, err := a.Batch.GetStatus(taskID)
	if err != nil {
		a.domainError(w, err)
		return
	}
	resp := batchStatusResponse{
		TaskID:          summary.TaskID,
		Status:          string(summary.Status),
		TotalImages:     summary.TotalImages,
		ProcessedImages: summary.ProcessedImages,
		SuccessCount:    summary.SuccessCount,
		FailedCount:     summary.FailedCount,
		Progress:        summary.Progress,
		CreatedAt:       summary.CreatedAt,
	}
	if !summary.CompletedAt.IsZero() {
		completed := summary.CompletedAt
		resp.CompletedAt = &completed
	}
	a.json(w, http.StatusOK, resp)
}

func (a *App) BatchResults(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "task_id")
	results, err := a.Batch.GetResults(taskID)
	if err != nil {
		a.domainError(w, err)
		return
	}
	resp := batchResultsResponse{
		TaskID:       results.TaskID,
		Status:       string(results.Status),
		SuccessCount: results.SuccessCount,
		FailedCount:  results.FailedCount,
		Results:      make([]batchResultItem, 0, len(results.Results)),
		Errors:       make([]batchItemError, 0, len(results.Errors)),
	}
	for _, item := range results.Results {
		out := batchResultItem{
			Index:    item.Index,
			Filename: item.Filename,
			Success:  item.Success,
			Error:    item.Error,
		}
		for _, variant := range item.Outputs {
			out.Outputs = append(out.Outputs, batchResultFile{
				URL:    variant.URL,
				Format: variant.Format,
				Width:  variant.Width,
				Height: variant.Height,
			})
		}
		resp.Results = append(resp.Results, out)
	}
	for _, itemErr := range results.Errors {
		resp.Errors = append(resp.Errors, batchItemError{Index: itemErr.Index, Error: itemErr.Error})
	}
	a.json(w, http.StatusOK, resp)
}

func (a *App) BatchCancel(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	taskID := chi.URLParam(r, "task_id")
	if a.Batch.Cancel(taskID, userID) {
		a.json(w, http.StatusOK, map[string]string{"task_id": taskID, "status": string(domain.BatchStatusCancelled)})
		return
	}
	// Distinguish a finished task from one the caller cannot see.
	if summary, err := a.Batch.GetStatus(taskID); err == nil && summary.Status.Terminal() {
		a.error(w, http.StatusConflict, "conflict", "task already finished")
		return
	}
	a.error(w, http.StatusNotFound, "not_found", "task not found")
}

func (a *App) BatchDownload(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "task_id")
	archive, err := a.Batch.Package(taskID)
	if err != nil {
		if errors.Is(err, batch.ErrNotReady) {
			a.error(w, http.StatusConflict, "not_ready", "task has no downloadable results")
			return
		}
		a.domainError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "batch_"+taskID+".zip"))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(archive)
}

func (a *App) ProcessorStatus(w http.ResponseWriter, r *http.Request) {
	status := a.Batch.Status()
	a.json(w, http.StatusOK, map[string]any{
		"active_tasks":         status.ActiveTasks,
		"total_tasks":          status.TotalTasks,
		"supported_operations": status.SupportedOperations,
		"supported_styles":     status.SupportedStyles,
		"max_images_per_batch": a.Batch.MaxImages(),
	})
}
