package executor

import (
	"context"

	"github.com/Christopher-Schulze/crPipeline-sub000/internal/models"
)

// StageExecutor handles one stage type. An executor either rolls the
// stage context forward (recording zero or more artifacts on the way)
// or returns an error, which the job executor treats as critical: the
// job goes to failed and no further stages run.
type StageExecutor interface {
	// StageType returns the stage type this executor is registered for.
	StageType() string

	// ExecuteStage runs the stage against the job's rolling context.
	ExecuteStage(ctx context.Context, stage models.Stage, sc *StageContext) error
}

// StageContext is the transient per-job state rolled forward through
// the stage loop. It lives for the duration of one job execution.
type StageContext struct {
	JobID        string
	OrgID        string
	DocumentName string

	// Rolling is the JSON value passed from stage to stage.
	Rolling *Context

	// InputPDF is the local path of the downloaded document.
	InputPDF string

	// OCRTextPath is where OCR output lands; the file may or may not
	// exist depending on which stages ran.
	OCRTextPath string

	// OCRText holds the recognized text after a successful OCR stage.
	// The on-disk file is deleted once its artifact is saved, so later
	// stages read the text from here.
	OCRText    string
	HasOCRText bool

	// Settings are the org settings, nil when the row is absent or
	// failed to load.
	Settings *models.OrgSettings
}
