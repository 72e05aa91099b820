// Package batch owns the table of in-flight batch tasks. A batch fans one
// submission of up to 50 images out to the item processor, sequentially and
// on a single background goroutine per task, and aggregates the per-item
// outcomes under one lock. Task state lives in memory for the task's whole
// life; callers only ever hold the opaque task ID.
package batch

import (
	"context"
	"fmt"
	"image"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"photoflow/internal/domain"
	"photoflow/internal/imaging"
	"photoflow/internal/infra"
	"photoflow/internal/processing"
	"photoflow/internal/storage"
)

const (
	defaultMaxImages        = 50
	estimateSecondsPerImage = 10
)

// ImageInput is one uploaded image in a batch submission. Data is a base64
// payload, with or without a data-URL prefix.
type ImageInput struct {
	Data     string
	Filename string
}

// ItemProcessor is the per-image processing capability. Satisfied by
// *processing.ItemProcessor.
type ItemProcessor interface {
	ProcessItem(ctx context.Context, img image.Image, ops []domain.OperationType, styleID string) processing.Outcome
}

// CreateResult is returned to the caller immediately after scheduling.
type CreateResult struct {
	TaskID           string
	Status           domain.BatchStatus
	TotalImages      int
	EstimatedSeconds int
}

// ServiceStatus summarizes the orchestrator itself.
type ServiceStatus struct {
	ActiveTasks         int
	TotalTasks          int
	SupportedOperations []string
	SupportedStyles     []string
}

type task struct {
	id              string
	ownerID         string
	status          domain.BatchStatus
	images          []ImageInput
	operations      []domain.OperationType
	styleID         string
	totalImages     int
	processedImages int
	successCount    int
	failedCount     int
	progress        float64
	results         []domain.ItemResult
	errors          []domain.ItemError
	createdAt       time.Time
	completedAt     time.Time
}

// Options configures an Orchestrator.
type Options struct {
	Processor      ItemProcessor
	Store          *storage.FileStore
	StorageBaseURL string
	MaxImages      int
	// EstimateSecPerImage overrides the per-image-per-operation estimate
	// used for the scheduling hint. Zero means the default.
	EstimateSecPerImage int
	Logger              infra.Logger
}

// Orchestrator creates batch tasks, drives their background loops and serves
// status and result reads. The task table and every task's mutable fields
// are guarded by the one mutex; image decoding and provider calls happen
// outside it.
type Orchestrator struct {
	mu             sync.Mutex
	tasks          map[string]*task
	processor      ItemProcessor
	store          *storage.FileStore
	baseURL        string
	maxImages      int
	secondsPerItem int
	logger         infra.Logger
}

// NewOrchestrator constructs the orchestrator. It is built once at process
// start and handed to the HTTP layer by reference.
func NewOrchestrator(opts Options) *Orchestrator {
	maxImages := opts.MaxImages
	if maxImages <= 0 {
		maxImages = defaultMaxImages
	}
	secondsPerItem := opts.EstimateSecPerImage
	if secondsPerItem <= 0 {
		secondsPerItem = estimateSecondsPerImage
	}
	return &Orchestrator{
		tasks:          make(map[string]*task),
		processor:      opts.Processor,
		store:          opts.Store,
		baseURL:        strings.TrimRight(opts.StorageBaseURL, "/"),
		maxImages:      maxImages,
		secondsPerItem: secondsPerItem,
		logger:         opts.Logger,
	}
}

// CreateTask validates the submission, allocates a pending task and starts
// its background loop. The call returns immediately; invalid submissions
// create no task at all.
func (o *Orchestrator) CreateTask(ownerID string, images []ImageInput, operations []string, styleID string) (CreateResult, error) {
	if len(images) == 0 {
		return CreateResult{}, fmt.Errorf("%w: at least one image is required", domain.ErrValidation)
	}
	if len(images) > o.maxImages {
		return CreateResult{}, fmt.Errorf("%w: at most %d images per batch, got %d", domain.ErrValidation, o.maxImages, len(images))
	}
	if len(operations) == 0 {
		return CreateResult{}, fmt.Errorf("%w: at least one operation is required", domain.ErrValidation)
	}
	ops := make([]domain.OperationType, 0, len(operations))
	for _, name := range operations {
		op, ok := domain.ParseOperationType(name)
		if !ok {
			return CreateResult{}, fmt.Errorf("%w: unknown operation %q", domain.ErrValidation, name)
		}
		ops = append(ops, op)
	}
	if strings.TrimSpace(styleID) == "" {
		styleID = processing.DefaultStyleID
	}

	t := &task{
		id:          uuid.NewString(),
		ownerID:     ownerID,
		status:      domain.BatchStatusPending,
		images:      images,
		operations:  ops,
		styleID:     styleID,
		totalImages: len(images),
		results:     make([]domain.ItemResult, 0, len(images)),
		createdAt:   time.Now(),
	}

	o.mu.Lock()
	o.tasks[t.id] = t
	o.mu.Unlock()

	go o.run(t)

	o.logger.Info().
		Str("task_id", t.id).
		Str("owner_id", ownerID).
		Int("total_images", t.totalImages).
		Msg("batch: task created")

	return CreateResult{
		TaskID:           t.id,
		Status:           domain.BatchStatusPending,
		TotalImages:      t.totalImages,
		EstimatedSeconds: o.estimateSeconds(len(images), len(ops)),
	}, nil
}

// estimateSeconds mirrors the sizing heuristic callers plan around: the
// configured seconds per image per operation, discounted by 20%.
func (o *Orchestrator) estimateSeconds(imageCount, operationCount int) int {
	return imageCount * o.secondsPerItem * operationCount * 8 / 10
}

// run is the background loop for one task. It processes images in submission
// order, checks for cancellation at every item boundary, and always leaves
// the task in a terminal state.
func (o *Orchestrator) run(t *task) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		o.mu.Lock()
		if !t.status.Terminal() {
			t.status = domain.BatchStatusFailed
			t.errors = append(t.errors, domain.ItemError{Index: -1, Error: fmt.Sprintf("internal error: %v", r)})
			t.completedAt = time.Now()
		}
		o.mu.Unlock()
		o.logger.Error().Str("task_id", t.id).Interface("panic", r).Msg("batch: task loop panicked")
	}()

	o.mu.Lock()
	// A cancellation can land between scheduling and the first iteration;
	// it must not be overwritten.
	if t.status.Terminal() {
		o.mu.Unlock()
		return
	}
	t.status = domain.BatchStatusProcessing
	images, ops, styleID := t.images, t.operations, t.styleID
	o.mu.Unlock()

	ctx := context.Background()
	for i, input := range images {
		o.mu.Lock()
		cancelled := t.status == domain.BatchStatusCancelled
		o.mu.Unlock()
		if cancelled {
			o.logger.Info().Str("task_id", t.id).Int("processed", i).Msg("batch: task cancelled, loop stopping")
			return
		}

		// Decode and process outside the lock; only the bookkeeping below
		// holds it.
		result := o.processOne(ctx, t.id, i, input, ops, styleID)

		o.mu.Lock()
		t.processedImages++
		if result.Success {
			t.successCount++
		} else {
			t.failedCount++
			t.errors = append(t.errors, domain.ItemError{Index: i, Error: result.Error})
		}
		t.results = append(t.results, result)
		t.progress = float64(t.processedImages) / float64(t.totalImages) * 100
		o.mu.Unlock()
	}

	o.mu.Lock()
	if t.status == domain.BatchStatusCancelled {
		o.mu.Unlock()
		return
	}
	if t.successCount > 0 {
		t.status = domain.BatchStatusCompleted
	} else {
		t.status = domain.BatchStatusFailed
	}
	t.completedAt = time.Now()
	success, failed := t.successCount, t.failedCount
	o.mu.Unlock()

	o.logger.Info().
		Str("task_id", t.id).
		Int("success", success).
		Int("failed", failed).
		Msg("batch: task finished")
}

func (o *Orchestrator) processOne(ctx context.Context, taskID string, index int, input ImageInput, ops []domain.OperationType, styleID string) domain.ItemResult {
	filename := strings.TrimSpace(input.Filename)
	if filename == "" {
		filename = fmt.Sprintf("image_%d.jpg", index)
	}
	result := domain.ItemResult{Index: index, Filename: filename}

	img, err := imaging.DecodeDataURL(input.Data)
	if err != nil {
		result.Error = fmt.Sprintf("decode image: %v", err)
		return result
	}

	outcome := o.processor.ProcessItem(ctx, img, ops, styleID)
	result.Success = outcome.Success
	result.Error = outcome.Error
	result.Outputs = outcome.Outputs
	if result.Success {
		o.persistOutputs(ctx, taskID, &result)
	}
	return result
}

// persistOutputs writes each variant to the file store and rewrites its URL
// to the public static address. Persistence failures are logged and the
// in-memory bytes stay authoritative.
func (o *Orchestrator) persistOutputs(ctx context.Context, taskID string, result *domain.ItemResult) {
	if o.store == nil {
		return
	}
	base := variantBaseName(result.Filename)
	for i := range result.Outputs {
		variant := &result.Outputs[i]
		if len(variant.Data) == 0 {
			continue
		}
		key := fmt.Sprintf("results/%s/%s_%02d.jpg", taskID, base, i)
		savedKey, err := o.store.Write(ctx, key, variant.Data)
		if err != nil {
			o.logger.Warn().Err(err).Str("task_id", taskID).Str("key", key).Msg("batch: persist output failed")
			continue
		}
		if o.baseURL != "" {
			variant.URL = o.baseURL + "/" + savedKey
		} else {
			variant.URL = savedKey
		}
	}
}

func variantBaseName(filename string) string {
	base := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	if base == "" || base == "." {
		base = "image"
	}
	return base
}

// GetStatus returns a copy of the task's aggregate counters.
func (o *Orchestrator) GetStatus(taskID string) (domain.BatchSummary, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	t, ok := o.tasks[taskID]
	if !ok {
		return domain.BatchSummary{}, domain.ErrNotFound
	}
	return domain.BatchSummary{
		TaskID:          t.id,
		Status:          t.status,
		TotalImages:     t.totalImages,
		ProcessedImages: t.processedImages,
		SuccessCount:    t.successCount,
		FailedCount:     t.failedCount,
		Progress:        t.progress,
		CreatedAt:       t.createdAt,
		CompletedAt:     t.completedAt,
	}, nil
}

// GetResults returns a copy of the per-item outcomes in submission order.
func (o *Orchestrator) GetResults(taskID string) (domain.BatchResults, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	t, ok := o.tasks[taskID]
	if !ok {
		return domain.BatchResults{}, domain.ErrNotFound
	}
	results := make([]domain.ItemResult, len(t.results))
	copy(results, t.results)
	errs := make([]domain.ItemError, len(t.errors))
	copy(errs, t.errors)
	return domain.BatchResults{
		TaskID:       t.id,
		Status:       t.status,
		Results:      results,
		Errors:       errs,
		SuccessCount: t.successCount,
		FailedCount:  t.failedCount,
	}, nil
}

// Cancel flags a task cancelled. It reports false for an unknown task, a
// task owned by someone else, or a task already in a terminal state. The
// background loop observes the flag at its next item boundary, so already
// recorded outcomes stay untouched.
func (o *Orchestrator) Cancel(taskID, ownerID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	t, ok := o.tasks[taskID]
	if !ok || t.ownerID != ownerID {
		return false
	}
	if t.status.Terminal() {
		return false
	}
	t.status = domain.BatchStatusCancelled
	t.completedAt = time.Now()
	return true
}

// MaxImages reports the per-batch submission cap.
func (o *Orchestrator) MaxImages() int {
	return o.maxImages
}

// Status summarizes the orchestrator for the processor-status endpoint.
func (o *Orchestrator) Status() ServiceStatus {
	o.mu.Lock()
	active, total := 0, len(o.tasks)
	for _, t := range o.tasks {
		if t.status == domain.BatchStatusProcessing {
			active++
		}
	}
	o.mu.Unlock()
	return ServiceStatus{
		ActiveTasks: active,
		TotalTasks:  total,
		SupportedOperations: []string{
			string(domain.OperationTextRemoval),
			string(domain.OperationBackgroundReplacement),
		},
		SupportedStyles: processing.SupportedStyles(),
	}
}
