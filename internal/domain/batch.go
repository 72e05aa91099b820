package domain

import "time"

// BatchStatus enumerates batch task lifecycle states.
type BatchStatus string

const (
	BatchStatusPending    BatchStatus = "pending"
	BatchStatusProcessing BatchStatus = "processing"
	BatchStatusCompleted  BatchStatus = "completed"
	BatchStatusFailed     BatchStatus = "failed"
	BatchStatusCancelled  BatchStatus = "cancelled"
)

// Terminal reports whether no further transition can occur.
func (s BatchStatus) Terminal() bool {
	return s == BatchStatusCompleted || s == BatchStatusFailed || s == BatchStatusCancelled
}

// OutputVariant is one generated image produced for an item.
type OutputVariant struct {
	URL    string
	Data   []byte
	Format string
	Width  int
	Height int
}

// ItemResult records the outcome of one image inside a batch, in submission
// order.
type ItemResult struct {
	Index    int
	Filename string
	Success  bool
	Outputs  []OutputVariant
	Error    string
}

// BatchSummary is the read-only status view handed to callers.
type BatchSummary struct {
	TaskID          string
	Status          BatchStatus
	TotalImages     int
	ProcessedImages int
	SuccessCount    int
	FailedCount     int
	Progress        float64
	CreatedAt       time.Time
	CompletedAt     time.Time
}

// BatchResults is the read-only per-item view handed to callers.
type BatchResults struct {
	TaskID       string
	Status       BatchStatus
	Results      []ItemResult
	Errors       []ItemError
	SuccessCount int
	FailedCount  int
}

// ItemError records an item failure for the errors listing.
type ItemError struct {
	Index int
	Error string
}
