package batch

import (
	"errors"
	"fmt"

	"photoflow/internal/domain"
	"photoflow/pkg/zip"
)

// ErrNotReady indicates the task has no downloadable archive. Failed and
// cancelled batches never produce one, even when some items succeeded.
var ErrNotReady = errors.New("batch: task is not ready for download")

// Package assembles every successful item's output variants into a single
// zip archive. It requires the batch to be Completed; any other state,
// terminal or not, yields ErrNotReady.
func (o *Orchestrator) Package(taskID string) ([]byte, error) {
	o.mu.Lock()
	t, ok := o.tasks[taskID]
	if !ok {
		o.mu.Unlock()
		return nil, domain.ErrNotFound
	}
	if t.status != domain.BatchStatusCompleted {
		o.mu.Unlock()
		return nil, ErrNotReady
	}
	assets := make([]zip.Asset, 0, len(t.results))
	for _, result := range t.results {
		if !result.Success {
			continue
		}
		base := variantBaseName(result.Filename)
		for i, variant := range result.Outputs {
			if len(variant.Data) == 0 {
				continue
			}
			assets = append(assets, zip.Asset{
				Filename: fmt.Sprintf("%s_%02d.jpg", base, i),
				MIME:     variant.Format,
				Data:     variant.Data,
			})
		}
	}
	o.mu.Unlock()

	if len(assets) == 0 {
		return nil, ErrNotReady
	}
	return zip.ArchiveAssets(assets)
}
