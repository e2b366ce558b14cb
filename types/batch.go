package types

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// BatchMeta identifies one batch run.
type BatchMeta struct {
	// BatchID is a unique identifier for the batch.
	BatchID string `json:"batch_id"`
	// StartedAt is when the batch was requested. Report naming derives from it.
	StartedAt time.Time `json:"started_at"`
	// Total is the number of identifiers in the batch.
	Total int `json:"total"`
}

// NewBatchMeta creates metadata for a batch of total identifiers starting now.
func NewBatchMeta(total int) *BatchMeta {
	return &BatchMeta{
		BatchID:   uuid.New().String(),
		StartedAt: time.Now(),
		Total:     total,
	}
}

// Validate checks batch metadata.
func (m *BatchMeta) Validate() error {
	if m == nil {
		return errors.New("batch metadata is required")
	}
	if m.BatchID == "" {
		return errors.New("batch_id must not be empty")
	}
	if m.Total < 0 {
		return errors.New("total must be >= 0")
	}
	return nil
}

// Day returns the partition day (YYYY-MM-DD, UTC) of the batch start.
func (m *BatchMeta) Day() string {
	return m.StartedAt.UTC().Format("2006-01-02")
}
