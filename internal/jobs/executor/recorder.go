package executor

import (
	"context"

	"github.com/ternarybob/arbor"

	"github.com/Christopher-Schulze/crPipeline-sub000/internal/models"
	"github.com/Christopher-Schulze/crPipeline-sub000/internal/storage/blob"
	"github.com/Christopher-Schulze/crPipeline-sub000/internal/storage/postgres"
)

// ArtifactRecorder uploads stage artifacts and records their metadata
// rows. The blob is always written before the row so every row points
// at an existing object. Storage failures here are warnings, never
// critical: a missing artifact does not corrupt the rolling context, so
// the job keeps running.
type ArtifactRecorder struct {
	store  *postgres.Store
	blobs  blob.Store
	logger arbor.ILogger
}

func NewArtifactRecorder(store *postgres.Store, blobs blob.Store, logger arbor.ILogger) *ArtifactRecorder {
	return &ArtifactRecorder{
		store:  store,
		blobs:  blobs,
		logger: logger,
	}
}

// SaveOutput stores an intermediate stage artifact under the
// timestamped stage key.
func (r *ArtifactRecorder) SaveOutput(ctx context.Context, jobID, stageName, outputType string, data []byte) {
	r.save(ctx, jobID, stageName, outputType, models.StageOutputKey(jobID, stageName, outputType), data)
}

// SaveInput stores the composed AI request body before the call is
// made, so a failed call still leaves its input behind for inspection.
func (r *ArtifactRecorder) SaveInput(ctx context.Context, jobID, stageName string, data []byte) {
	r.save(ctx, jobID, stageName, models.OutputTypeJSON, models.StageInputKey(jobID, stageName), data)
}

// SaveReport stores the final report PDF under its fixed key.
func (r *ArtifactRecorder) SaveReport(ctx context.Context, jobID, stageName string, data []byte) {
	r.save(ctx, jobID, stageName, models.OutputTypePDF, models.ReportKey(jobID), data)
}

func (r *ArtifactRecorder) save(ctx context.Context, jobID, stageName, outputType, key string, data []byte) {
	if err := r.blobs.Put(ctx, key, data); err != nil {
		r.logger.Warn().
			Str("job_id", jobID).
			Str("stage", stageName).
			Str("key", key).
			Err(err).
			Msg("Failed to upload stage artifact")
		return
	}

	output := &models.JobStageOutput{
		JobID:      jobID,
		StageName:  stageName,
		OutputType: outputType,
		S3Bucket:   r.blobs.Bucket(),
		S3Key:      key,
	}
	if err := r.store.InsertStageOutput(ctx, output); err != nil {
		r.logger.Warn().
			Str("job_id", jobID).
			Str("stage", stageName).
			Str("key", key).
			Err(err).
			Msg("Failed to record stage output row")
		return
	}

	r.logger.Debug().
		Str("job_id", jobID).
		Str("stage", stageName).
		Str("key", key).
		Int("size", len(data)).
		Msg("Stage artifact recorded")
}
