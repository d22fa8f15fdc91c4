package executor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/Christopher-Schulze/crPipeline-sub000/internal/models"
	"github.com/Christopher-Schulze/crPipeline-sub000/internal/pipeline"
	"github.com/Christopher-Schulze/crPipeline-sub000/internal/storage/blob"
	"github.com/Christopher-Schulze/crPipeline-sub000/internal/storage/postgres"
)

// JobExecutor walks one analysis job through its pipeline. Stages run
// strictly sequentially; the first critical stage failure sends the job
// to failed and ends the loop. Execute never panics out and never
// requeues - the queue consumer always moves on to the next message.
type JobExecutor struct {
	store          *postgres.Store
	blobs          blob.Store
	recorder       *ArtifactRecorder
	stageExecutors map[string]StageExecutor
	logger         arbor.ILogger
}

func NewJobExecutor(store *postgres.Store, blobs blob.Store, recorder *ArtifactRecorder, logger arbor.ILogger) *JobExecutor {
	return &JobExecutor{
		store:          store,
		blobs:          blobs,
		recorder:       recorder,
		stageExecutors: make(map[string]StageExecutor),
		logger:         logger,
	}
}

// RegisterStageExecutor registers an executor for a stage type.
func (e *JobExecutor) RegisterStageExecutor(se StageExecutor) {
	e.stageExecutors[se.StageType()] = se
	e.logger.Info().
		Str("stage_type", se.StageType()).
		Msg("Stage executor registered")
}

// Execute runs the full job state machine for one queued job id:
// load state, mark in_progress, run the stage loop, record the terminal
// status. Temp files are removed on every exit path including panics.
func (e *JobExecutor) Execute(ctx context.Context, jobID string) {
	logger := e.logger.WithCorrelationId(jobID)
	started := time.Now()

	job, err := e.store.GetJob(ctx, jobID)
	if err != nil {
		// The message is consumed either way; an unknown id is dropped
		logger.Error().Err(err).Msg("Failed to load job, dropping message")
		return
	}

	settings, err := e.store.GetOrgSettings(ctx, job.OrgID)
	if err != nil {
		// Settings absent or unreadable: proceed with env-level fallbacks
		logger.Debug().Err(err).Str("org_id", job.OrgID).Msg("Org settings unavailable, using env fallbacks")
		settings = nil
	}

	doc, err := e.store.GetDocument(ctx, job.DocumentID)
	if err != nil {
		logger.Error().Err(err).Str("document_id", job.DocumentID).Msg("Document missing, failing job")
		e.finish(ctx, logger, jobID, models.JobStatusFailed, 0, started)
		return
	}

	if err := e.store.UpdateJobStatus(ctx, jobID, models.JobStatusInProgress); err != nil {
		logger.Warn().Err(err).Msg("Failed to mark job in_progress")
	}

	pipe, err := e.store.GetPipeline(ctx, job.PipelineID)
	if err != nil {
		logger.Error().Err(err).Str("pipeline_id", job.PipelineID).Msg("Pipeline missing, failing job")
		e.finish(ctx, logger, jobID, models.JobStatusFailed, 0, started)
		return
	}
	stages, err := pipe.DecodeStages()
	if err == nil {
		err = pipeline.ValidateStages(stages)
	}
	if err != nil {
		logger.Error().Err(err).Msg("Pipeline stages undecodable, failing job")
		e.finish(ctx, logger, jobID, models.JobStatusFailed, 0, started)
		return
	}

	tempDir, err := os.MkdirTemp("", "crpipeline-job-")
	if err != nil {
		logger.Error().Err(err).Msg("Failed to create job temp directory, failing job")
		e.finish(ctx, logger, jobID, models.JobStatusFailed, 0, started)
		return
	}

	executed := 0
	failed := false

	// Terminal transition and temp cleanup run on every exit path,
	// including a panicking stage handler.
	defer func() {
		if p := recover(); p != nil {
			logger.Error().Str("panic", fmt.Sprint(p)).Msg("Stage handler panicked, failing job")
			failed = true
		}
		if err := os.RemoveAll(tempDir); err != nil {
			logger.Warn().Err(err).Str("dir", tempDir).Msg("Failed to remove job temp directory")
		}
		status := models.JobStatusCompleted
		if failed {
			status = models.JobStatusFailed
		}
		e.finish(ctx, logger, jobID, status, executed, started)
	}()

	inputPDF := filepath.Join(tempDir, jobID+"-input.pdf")
	pdfBytes, err := e.blobs.Get(ctx, doc.Filename)
	if err != nil {
		logger.Error().Err(err).Str("key", doc.Filename).Msg("Document blob missing, failing job")
		failed = true
		return
	}
	if err := os.WriteFile(inputPDF, pdfBytes, 0644); err != nil {
		logger.Error().Err(err).Msg("Failed to write input document, failing job")
		failed = true
		return
	}

	sc := &StageContext{
		JobID:        jobID,
		OrgID:        job.OrgID,
		DocumentName: doc.DisplayName,
		Rolling:      NewContext(),
		InputPDF:     inputPDF,
		OCRTextPath:  filepath.Join(tempDir, jobID+"-input.txt"),
		Settings:     settings,
	}

	logger.Info().
		Str("pipeline", pipe.Name).
		Int("stages", len(stages)).
		Str("document", doc.DisplayName).
		Msg("Starting pipeline execution")

	for i, stage := range stages {
		se, ok := e.stageExecutors[stage.Type]
		if !ok {
			logger.Warn().
				Int("stage_index", i).
				Str("stage_type", stage.Type).
				Msg("No executor for stage type, skipping stage")
			continue
		}

		logger.Info().
			Int("stage_index", i).
			Str("stage_type", stage.Type).
			Msg("Executing stage")

		if err := se.ExecuteStage(ctx, stage, sc); err != nil {
			logger.Error().
				Err(err).
				Int("stage_index", i).
				Str("stage_type", stage.Type).
				Msg("Stage failed, terminating pipeline")
			failed = true
			return
		}
		executed++
	}
}

// finish records the terminal transition and writes the audit line. A
// completed transition is conditional on the job still being
// in_progress so a stale duplicate run cannot overwrite a terminal
// status.
func (e *JobExecutor) finish(ctx context.Context, logger arbor.ILogger, jobID string, status models.JobStatus, executed int, started time.Time) {
	if status == models.JobStatusCompleted {
		changed, err := e.store.CompleteJobIfInProgress(ctx, jobID)
		if err != nil {
			logger.Error().Err(err).Msg("Failed to record completed status")
		} else if !changed {
			logger.Warn().Msg("Job no longer in_progress at completion, leaving status untouched")
		}
	} else {
		if err := e.store.UpdateJobStatus(ctx, jobID, status); err != nil {
			logger.Error().Err(err).Str("status", string(status)).Msg("Failed to record terminal status")
		}
	}

	logger.Info().
		Str("status", string(status)).
		Int("stages_executed", executed).
		Str("duration", time.Since(started).Round(time.Millisecond).String()).
		Msg("Job finished")
}
