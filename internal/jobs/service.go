// Package jobs runs single-image processing jobs outside any batch. A job
// shares the item processor with the batch loop but has its own lifecycle:
// callers submit one image and one operation, then poll the job until it
// lands in a terminal state.
package jobs

import (
	"context"
	"encoding/base64"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"photoflow/internal/batch"
	"photoflow/internal/domain"
	"photoflow/internal/imaging"
	"photoflow/internal/infra"
	"photoflow/internal/storage"
)

// Progress milestones the background goroutine walks through. Decoding the
// upload is the cheap first third; the provider round-trip is the rest.
const (
	progressDecoded = 30
	progressDone    = 100
)

type jobEntry struct {
	job    *domain.Job
	cancel context.CancelFunc
}

// Options configures a Service.
type Options struct {
	Processor      batch.ItemProcessor
	Store          *storage.FileStore
	StorageBaseURL string
	Logger         infra.Logger
}

// Service owns the in-memory job table. All job mutation goes through the
// one mutex; the processor call itself runs outside it.
type Service struct {
	mu        sync.Mutex
	jobs      map[string]*jobEntry
	processor batch.ItemProcessor
	store     *storage.FileStore
	baseURL   string
	logger    infra.Logger
}

// NewService constructs the job service.
func NewService(opts Options) *Service {
	return &Service{
		jobs:      make(map[string]*jobEntry),
		processor: opts.Processor,
		store:     opts.Store,
		baseURL:   opts.StorageBaseURL,
		logger:    opts.Logger,
	}
}

// Submit validates the request, registers a pending job and starts its
// background goroutine. The returned snapshot reflects the pending state.
func (s *Service) Submit(ownerID, imageData, operation, styleID string) (domain.Job, error) {
	op, ok := domain.ParseOperationType(operation)
	if !ok {
		return domain.Job{}, fmt.Errorf("%w: unknown operation %q", domain.ErrValidation, operation)
	}
	if imageData == "" {
		return domain.Job{}, fmt.Errorf("%w: image data is required", domain.ErrValidation)
	}

	params := map[string]string{}
	if styleID != "" {
		params["style_id"] = styleID
	}
	job := domain.NewJob(uuid.NewString(), ownerID, "", op, params)
	ctx, cancel := context.WithCancel(context.Background())

	s.mu.Lock()
	s.jobs[job.ID] = &jobEntry{job: job, cancel: cancel}
	s.mu.Unlock()

	go s.run(ctx, job.ID, imageData, op, styleID)

	s.logger.Info().
		Str("job_id", job.ID).
		Str("owner_id", ownerID).
		Str("operation", string(op)).
		Msg("jobs: job submitted")

	return *job, nil
}

// run drives one job to a terminal state. Cancellation races are absorbed by
// the domain transitions: once the job is terminal, Complete and Fail are
// rejected and the late outcome is simply dropped.
func (s *Service) run(ctx context.Context, jobID, imageData string, op domain.OperationType, styleID string) {
	defer func() {
		if r := recover(); r != nil {
			s.fail(jobID, fmt.Sprintf("internal error: %v", r))
			s.logger.Error().Str("job_id", jobID).Interface("panic", r).Msg("jobs: job panicked")
		}
	}()

	s.mu.Lock()
	entry, ok := s.jobs[jobID]
	if !ok {
		s.mu.Unlock()
		return
	}
	entry.job.Start()
	started := entry.job.Status == domain.JobStatusProcessing
	s.mu.Unlock()
	if !started {
		// Cancelled before the goroutine got scheduled.
		return
	}

	img, err := imaging.DecodeDataURL(imageData)
	if err != nil {
		s.fail(jobID, fmt.Sprintf("decode image: %v", err))
		return
	}
	s.progress(jobID, progressDecoded)

	outcome := s.processor.ProcessItem(ctx, img, []domain.OperationType{op}, styleID)
	if !outcome.Success {
		s.fail(jobID, outcome.Error)
		return
	}

	urls := s.persist(ctx, jobID, outcome.Outputs)
	if len(urls) == 0 {
		// Processing succeeded but nothing could be stored; the job still
		// must land in a terminal state.
		s.fail(jobID, "no output could be stored")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok = s.jobs[jobID]
	if !ok {
		return
	}
	if err := entry.job.Complete(urls); err != nil {
		s.logger.Debug().Str("job_id", jobID).Err(err).Msg("jobs: completion dropped")
	}
}

// persist writes each output variant to the file store and returns the
// public URLs. Without a store the bytes are served inline as data URLs.
func (s *Service) persist(ctx context.Context, jobID string, outputs []domain.OutputVariant) []string {
	urls := make([]string, 0, len(outputs))
	for i, variant := range outputs {
		if len(variant.Data) == 0 {
			if variant.URL != "" {
				urls = append(urls, variant.URL)
			}
			continue
		}
		if s.store == nil {
			urls = append(urls, "data:image/jpeg;base64,"+base64.StdEncoding.EncodeToString(variant.Data))
			continue
		}
		key := fmt.Sprintf("jobs/%s/output_%02d.jpg", jobID, i)
		savedKey, err := s.store.Write(ctx, key, variant.Data)
		if err != nil {
			s.logger.Warn().Err(err).Str("job_id", jobID).Str("key", key).Msg("jobs: persist output failed")
			continue
		}
		if s.baseURL != "" {
			urls = append(urls, s.baseURL+"/"+savedKey)
		} else {
			urls = append(urls, savedKey)
		}
	}
	return urls
}

func (s *Service) progress(jobID string, percent int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry, ok := s.jobs[jobID]; ok {
		_ = entry.job.UpdateProgress(percent)
	}
}

func (s *Service) fail(jobID, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.jobs[jobID]
	if !ok {
		return
	}
	if err := entry.job.Fail(reason); err != nil {
		s.logger.Debug().Str("job_id", jobID).Err(err).Msg("jobs: failure dropped")
	}
}

// Status returns a snapshot of the job.
func (s *Service) Status(jobID string) (domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.jobs[jobID]
	if !ok {
		return domain.Job{}, domain.ErrNotFound
	}
	return *entry.job, nil
}

// Cancel cancels the caller's own job. The context handed to the processor
// is cancelled too, so an in-flight provider poll unblocks instead of
// running to its timeout.
func (s *Service) Cancel(jobID, ownerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.jobs[jobID]
	if !ok || entry.job.OwnerID != ownerID {
		return domain.ErrNotFound
	}
	if err := entry.job.Cancel(); err != nil {
		return err
	}
	entry.cancel()
	return nil
}
