package export

import (
	"time"

	"github.com/google/uuid"
)

// ExportStatus describes the lifecycle stage of a single target export.
type ExportStatus string

const (
	ExportStatusQueued    ExportStatus = "queued"
	ExportStatusRunning   ExportStatus = "running"
	ExportStatusSucceeded ExportStatus = "succeeded"
	ExportStatusFailed    ExportStatus = "failed"
)

// ExportRecord tracks one target through a cycle.
type ExportRecord struct {
	ID          string       `json:"id"`
	Target      Target       `json:"target"`
	Status      ExportStatus `json:"status"`
	Error       string       `json:"error,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
	CompletedAt *time.Time   `json:"completed_at,omitempty"`
}

func newRecord(t Target, now time.Time) *ExportRecord {
	return &ExportRecord{
		ID:        uuid.NewString(),
		Target:    t,
		Status:    ExportStatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (r *ExportRecord) start(now time.Time) {
	r.Status = ExportStatusRunning
	r.UpdatedAt = now
}

func (r *ExportRecord) finish(err error, now time.Time) {
	r.UpdatedAt = now
	r.CompletedAt = &now
	if err != nil {
		r.Status = ExportStatusFailed
		r.Error = err.Error()
		return
	}
	r.Status = ExportStatusSucceeded
}
