package domain

import (
	"strings"
	"time"
)

// OperationType enumerates supported image transformations.
type OperationType string

const (
	OperationTextRemoval           OperationType = "text_removal"
	OperationBackgroundReplacement OperationType = "background_replacement"
)

// ParseOperationType validates free-form user input against the closed set of
// supported operations.
func ParseOperationType(s string) (OperationType, bool) {
	switch OperationType(strings.ToLower(strings.TrimSpace(s))) {
	case OperationTextRemoval:
		return OperationTextRemoval, true
	case OperationBackgroundReplacement:
		return OperationBackgroundReplacement, true
	default:
		return "", false
	}
}

// JobStatus enumerates job lifecycle states.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Terminal reports whether no further transition can occur.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// CancelReason is recorded as the failure message of a cooperatively
// cancelled job.
const CancelReason = "cancelled by user"

// Job is the processing unit for one image, standalone or inside a batch.
type Job struct {
	ID           string
	OwnerID      string
	ImageRef     string
	Operation    OperationType
	Parameters   map[string]string
	Status       JobStatus
	Progress     int
	ResultURLs   []string
	ErrorMessage string
	CreatedAt    time.Time
	StartedAt    time.Time
	CompletedAt  time.Time
}

// NewJob constructs a pending job.
func NewJob(id, ownerID, imageRef string, op OperationType, params map[string]string) *Job {
	return &Job{
		ID:         id,
		OwnerID:    ownerID,
		ImageRef:   imageRef,
		Operation:  op,
		Parameters: params,
		Status:     JobStatusPending,
		CreatedAt:  time.Now(),
	}
}

// Start transitions the job from pending to processing and stamps StartedAt.
// Calling it again once the job left pending is a no-op, which keeps
// double-start races harmless.
func (j *Job) Start() {
	if j.Status != JobStatusPending {
		return
	}
	j.Status = JobStatusProcessing
	j.StartedAt = time.Now()
	j.Progress = 10
}

// UpdateProgress records progress while processing. Values are clamped to
// [0, 100] and may only grow, so late out-of-order updates cannot move the
// job backwards.
func (j *Job) UpdateProgress(percent int) error {
	if j.Status != JobStatusProcessing {
		return ErrOperationNotAllowed
	}
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	if percent < j.Progress {
		return nil
	}
	j.Progress = percent
	return nil
}

// Complete finishes a processing job with its result URLs.
func (j *Job) Complete(resultURLs []string) error {
	if j.Status != JobStatusProcessing {
		return ErrOperationNotAllowed
	}
	if len(resultURLs) == 0 {
		return ErrEmptyResult
	}
	j.Status = JobStatusCompleted
	j.Progress = 100
	j.ResultURLs = resultURLs
	j.CompletedAt = time.Now()
	return nil
}

// Fail marks the job as failed. Legal from pending as well, covering provider
// submission errors that happen before any work started.
func (j *Job) Fail(reason string) error {
	if j.Status.Terminal() {
		return ErrOperationNotAllowed
	}
	j.Status = JobStatusFailed
	j.ErrorMessage = reason
	j.CompletedAt = time.Now()
	return nil
}

// Cancel is cooperative cancellation, modeled as a failure with a fixed
// reason. A job that already reached a terminal state cannot be cancelled.
func (j *Job) Cancel() error {
	if j.Status.Terminal() {
		return ErrOperationNotAllowed
	}
	return j.Fail(CancelReason)
}
