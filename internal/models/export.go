package models

import "time"

// ExportJobStatus tracks the lifecycle of an asynchronous archive export.
type ExportJobStatus string

const (
	ExportJobPending   ExportJobStatus = "pending"
	ExportJobRunning   ExportJobStatus = "running"
	ExportJobCompleted ExportJobStatus = "completed"
	ExportJobFailed    ExportJobStatus = "failed"
)

// ExportJob is the tracked state of one archive export request. Jobs live in
// memory; the rendered file on disk outlives the process and is reachable
// through the signed download token.
type ExportJob struct {
	ID          string          `json:"id"`
	SchoolID    string          `json:"school_id,omitempty"`
	Format      ExportFormat    `json:"format"`
	Status      ExportJobStatus `json:"status"`
	FilePath    string          `json:"-"`
	Token       string          `json:"token,omitempty"`
	DownloadURL string          `json:"download_url,omitempty"`
	Error       string          `json:"error,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	ExpiresAt   *time.Time      `json:"expires_at,omitempty"`
}
