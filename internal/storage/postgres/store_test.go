package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Christopher-Schulze/crPipeline-sub000/internal/models"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewStoreWithDB(db, "sqlmock"), mock
}

func TestGetJob(t *testing.T) {
	store, mock := newMockStore(t)
	created := time.Now().UTC()

	mock.ExpectQuery(`SELECT id, org_id, document_id, pipeline_id, status, created_at FROM analysis_jobs`).
		WithArgs("j-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "org_id", "document_id", "pipeline_id", "status", "created_at"}).
			AddRow("j-1", "org-1", "doc-1", "pipe-1", "pending", created))

	job, err := store.GetJob(context.Background(), "j-1")
	require.NoError(t, err)
	assert.Equal(t, "j-1", job.ID)
	assert.Equal(t, models.JobStatusPending, job.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetJobNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT id, org_id, document_id, pipeline_id, status, created_at FROM analysis_jobs`).
		WithArgs("absent").
		WillReturnRows(sqlmock.NewRows([]string{"id", "org_id", "document_id", "pipeline_id", "status", "created_at"}))

	_, err := store.GetJob(context.Background(), "absent")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateJobStatus(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(`UPDATE analysis_jobs SET status`).
		WithArgs("j-1", models.JobStatusInProgress).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.UpdateJobStatus(context.Background(), "j-1", models.JobStatusInProgress))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCompleteJobIfInProgress(t *testing.T) {
	tests := []struct {
		name         string
		rowsAffected int64
		wantChanged  bool
	}{
		{name: "still in_progress completes", rowsAffected: 1, wantChanged: true},
		{name: "already terminal leaves status untouched", rowsAffected: 0, wantChanged: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, mock := newMockStore(t)

			mock.ExpectExec(`UPDATE analysis_jobs SET status`).
				WithArgs("j-1", models.JobStatusCompleted, models.JobStatusInProgress).
				WillReturnResult(sqlmock.NewResult(0, tt.rowsAffected))

			changed, err := store.CompleteJobIfInProgress(context.Background(), "j-1")
			require.NoError(t, err)
			assert.Equal(t, tt.wantChanged, changed)
		})
	}
}

func TestGetOrgSettingsNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT org_id, ai_endpoint, ai_key, ai_custom_headers, ocr_endpoint, ocr_key, prompt_templates FROM org_settings`).
		WithArgs("org-1").
		WillReturnRows(sqlmock.NewRows([]string{"org_id"}))

	_, err := store.GetOrgSettings(context.Background(), "org-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestInsertStageOutputFillsDefaults(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(`INSERT INTO job_stage_outputs`).
		WithArgs(sqlmock.AnyArg(), "j-1", "ocr", models.OutputTypeTxt, "bucket", "jobs/j-1/outputs/ocr_1.txt", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	output := &models.JobStageOutput{
		JobID:      "j-1",
		StageName:  "ocr",
		OutputType: models.OutputTypeTxt,
		S3Bucket:   "bucket",
		S3Key:      "jobs/j-1/outputs/ocr_1.txt",
	}
	require.NoError(t, store.InsertStageOutput(context.Background(), output))

	assert.NotEmpty(t, output.ID, "id must be generated when absent")
	assert.False(t, output.CreatedAt.IsZero(), "created_at must be filled when absent")
	assert.NoError(t, mock.ExpectationsWereMet())
}
