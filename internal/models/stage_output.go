package models

import (
	"fmt"
	"time"
)

// Output types recorded for stage artifacts.
const (
	OutputTypeJSON = "json"
	OutputTypeTxt  = "txt"
	OutputTypePDF  = "pdf"
)

// JobStageOutput indexes one artifact a stage wrote to the blob store.
// The blob is always written before the row is inserted, so a row is a
// guarantee that the object exists.
type JobStageOutput struct {
	ID         string    `db:"id" json:"id"`
	JobID      string    `db:"job_id" json:"job_id"`
	StageName  string    `db:"stage_name" json:"stage_name"`
	OutputType string    `db:"output_type" json:"output_type"`
	S3Bucket   string    `db:"s3_bucket" json:"s3_bucket"`
	S3Key      string    `db:"s3_key" json:"s3_key"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// StageOutputKey builds the blob key for an intermediate stage artifact.
// Keys embed a millisecond timestamp so re-delivered jobs append new
// artifacts instead of colliding with earlier runs.
func StageOutputKey(jobID, stageName, ext string) string {
	return fmt.Sprintf("jobs/%s/outputs/%s_%d.%s", jobID, stageName, time.Now().UnixMilli(), ext)
}

// StageInputKey builds the blob key for the saved AI request body.
func StageInputKey(jobID, stageName string) string {
	return fmt.Sprintf("jobs/%s/outputs/%s_input_%d.json", jobID, stageName, time.Now().UnixMilli())
}

// ReportKey builds the fixed blob key of the final report PDF. The key
// carries no timestamp; a re-run overwrites the report in place.
func ReportKey(jobID string) string {
	return fmt.Sprintf("jobs/%s/outputs/%s-report.pdf", jobID, jobID)
}
