// Package pipeline validates stage shapes before execution. The API
// service runs the same checks at save time; the worker re-runs them at
// decode time so a hand-edited row cannot reach the stage handlers.
package pipeline

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/Christopher-Schulze/crPipeline-sub000/internal/models"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// ValidateStages checks the decoded stage sequence against the shape
// rules: type non-empty, command non-empty when present, ocr_engine in
// {default, external}, external requires a stage endpoint, and a stage
// key is only allowed alongside ocr_engine="external".
func ValidateStages(stages []models.Stage) error {
	for i, stage := range stages {
		if err := validateStage(stage); err != nil {
			return fmt.Errorf("stage %d (%s): %w", i, stage.Type, err)
		}
	}
	return nil
}

func validateStage(stage models.Stage) error {
	if strings.TrimSpace(stage.Type) == "" {
		return fmt.Errorf("type must not be empty")
	}
	if err := validate.Struct(stage); err != nil {
		return fmt.Errorf("invalid stage shape: %w", err)
	}
	if stage.Command != "" && strings.TrimSpace(stage.Command) == "" {
		return fmt.Errorf("command must not be blank when present")
	}
	if stage.OCREngine == models.OCREngineExternal && strings.TrimSpace(stage.OCRStageEndpoint) == "" {
		return fmt.Errorf("ocr_engine \"external\" requires ocr_stage_endpoint")
	}
	if stage.OCRStageKey != "" && stage.OCREngine != models.OCREngineExternal {
		return fmt.Errorf("ocr_stage_key is only valid with ocr_engine \"external\"")
	}
	return nil
}
