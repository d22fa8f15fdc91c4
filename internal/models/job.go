package models

import "time"

// JobStatus is the lifecycle state of an analysis job.
// Jobs move pending -> in_progress -> {completed, failed}; the two
// terminal states are never left once entered.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusInProgress JobStatus = "in_progress"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// IsTerminal reports whether the status is completed or failed.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// AnalysisJob is one execution of one pipeline against one document.
// The worker only ever mutates Status; everything else is written by
// the API service when the job is created.
type AnalysisJob struct {
	ID         string    `db:"id" json:"id"`
	OrgID      string    `db:"org_id" json:"org_id"`
	DocumentID string    `db:"document_id" json:"document_id"`
	PipelineID string    `db:"pipeline_id" json:"pipeline_id"`
	Status     JobStatus `db:"status" json:"status"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
