package models

import (
	"encoding/json"
	"fmt"
)

// Stage type values routed by the executor registry. Unknown types are
// skipped with a warning rather than failing the job.
const (
	StageTypeOCR    = "ocr"
	StageTypeParse  = "parse"
	StageTypeAI     = "ai"
	StageTypeReport = "report"
)

// OCR engine selection on a stage. "default" forces the local OCR path
// and suppresses every external endpoint source; "external" requires a
// stage-level endpoint.
const (
	OCREngineDefault  = "default"
	OCREngineExternal = "external"
)

// Pipeline is an ordered sequence of stages owned by one organization.
// Stages is stored as a JSON array and decoded with DecodeStages.
type Pipeline struct {
	ID     string          `db:"id" json:"id"`
	OrgID  string          `db:"org_id" json:"org_id"`
	Name   string          `db:"name" json:"name"`
	Stages json.RawMessage `db:"stages" json:"stages"`
}

// Stage is one typed step of a pipeline. Optional fields are only
// meaningful for particular types: Command and the OCR fields for "ocr"
// stages, PromptName for "ai" stages, Config for "parse" and "report".
type Stage struct {
	Type             string          `json:"type" validate:"required"`
	Command          string          `json:"command,omitempty"`
	PromptName       string          `json:"prompt_name,omitempty"`
	OCREngine        string          `json:"ocr_engine,omitempty" validate:"omitempty,oneof=default external"`
	OCRStageEndpoint string          `json:"ocr_stage_endpoint,omitempty"`
	OCRStageKey      string          `json:"ocr_stage_key,omitempty"`
	Config           json.RawMessage `json:"config,omitempty"`
}

// Name returns the stage name used for artifact keys and output rows.
// Stages are named by their type.
func (s Stage) Name() string {
	return s.Type
}

// DecodeStages unmarshals the stored stage array.
func (p *Pipeline) DecodeStages() ([]Stage, error) {
	if len(p.Stages) == 0 {
		return nil, nil
	}
	var stages []Stage
	if err := json.Unmarshal(p.Stages, &stages); err != nil {
		return nil, fmt.Errorf("failed to decode pipeline stages: %w", err)
	}
	return stages, nil
}
