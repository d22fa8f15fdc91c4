package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"

	"github.com/Christopher-Schulze/crPipeline-sub000/internal/models"
)

// ErrNotFound is returned when a row does not exist.
var ErrNotFound = errors.New("not found")

// Store gives the worker its read/write access to the job tables. The
// underlying pool is safe for concurrent use across executor
// goroutines.
type Store struct {
	db *sqlx.DB
}

// NewStore connects to Postgres via the pgx stdlib driver.
func NewStore(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	db.SetMaxOpenConns(16)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// NewStoreWithDB wraps an existing connection. Used by tests with
// sqlmock.
func NewStoreWithDB(db *sql.DB, driverName string) *Store {
	return &Store{db: sqlx.NewDb(db, driverName)}
}

func (s *Store) Close() error {
	return s.db.Close()
}

// GetJob loads an analysis job by id.
func (s *Store) GetJob(ctx context.Context, id string) (*models.AnalysisJob, error) {
	var job models.AnalysisJob
	err := s.db.GetContext(ctx, &job,
		`SELECT id, org_id, document_id, pipeline_id, status, created_at FROM analysis_jobs WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("job %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to load job %s: %w", id, err)
	}
	return &job, nil
}

// UpdateJobStatus sets the job status unconditionally.
func (s *Store) UpdateJobStatus(ctx context.Context, id string, status models.JobStatus) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE analysis_jobs SET status = $2 WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("failed to update job %s status to %s: %w", id, status, err)
	}
	return nil
}

// CompleteJobIfInProgress moves a job to completed only when it is
// still in_progress. A duplicate delivery that lost the race therefore
// cannot resurrect a terminal job. Returns whether the row changed.
func (s *Store) CompleteJobIfInProgress(ctx context.Context, id string) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE analysis_jobs SET status = $2 WHERE id = $1 AND status = $3`,
		id, models.JobStatusCompleted, models.JobStatusInProgress)
	if err != nil {
		return false, fmt.Errorf("failed to complete job %s: %w", id, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected for job %s: %w", id, err)
	}
	return rows > 0, nil
}

// GetPipeline loads a pipeline with its raw stage array.
func (s *Store) GetPipeline(ctx context.Context, id string) (*models.Pipeline, error) {
	var pipeline models.Pipeline
	err := s.db.GetContext(ctx, &pipeline,
		`SELECT id, org_id, name, stages FROM pipelines WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("pipeline %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to load pipeline %s: %w", id, err)
	}
	return &pipeline, nil
}

// GetDocument loads a document row.
func (s *Store) GetDocument(ctx context.Context, id string) (*models.Document, error) {
	var doc models.Document
	err := s.db.GetContext(ctx, &doc,
		`SELECT id, org_id, filename, display_name, pages, is_target, expires_at FROM documents WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("document %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to load document %s: %w", id, err)
	}
	return &doc, nil
}

// GetOrgSettings loads per-organization settings. A missing row is
// reported as ErrNotFound; the executor treats that (and any other load
// failure) as settings absent and falls through to env defaults.
func (s *Store) GetOrgSettings(ctx context.Context, orgID string) (*models.OrgSettings, error) {
	var settings models.OrgSettings
	err := s.db.GetContext(ctx, &settings,
		`SELECT org_id, ai_endpoint, ai_key, ai_custom_headers, ocr_endpoint, ocr_key, prompt_templates FROM org_settings WHERE org_id = $1`, orgID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("org settings %s: %w", orgID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to load org settings %s: %w", orgID, err)
	}
	return &settings, nil
}

// InsertStageOutput appends an artifact metadata row. The blob behind
// (bucket, key) must already exist when this is called.
func (s *Store) InsertStageOutput(ctx context.Context, output *models.JobStageOutput) error {
	if output.ID == "" {
		output.ID = uuid.New().String()
	}
	if output.CreatedAt.IsZero() {
		output.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO job_stage_outputs (id, job_id, stage_name, output_type, s3_bucket, s3_key, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		output.ID, output.JobID, output.StageName, output.OutputType, output.S3Bucket, output.S3Key, output.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert stage output for job %s stage %s: %w", output.JobID, output.StageName, err)
	}
	return nil
}
