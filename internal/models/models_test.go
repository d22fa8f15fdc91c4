package models

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobStatusIsTerminal(t *testing.T) {
	assert.False(t, JobStatusPending.IsTerminal())
	assert.False(t, JobStatusInProgress.IsTerminal())
	assert.True(t, JobStatusCompleted.IsTerminal())
	assert.True(t, JobStatusFailed.IsTerminal())
}

func TestStageOutputKeyLayout(t *testing.T) {
	key := StageOutputKey("j-1", "ocr", "txt")
	assert.Regexp(t, regexp.MustCompile(`^jobs/j-1/outputs/ocr_\d+\.txt$`), key)

	key = StageOutputKey("j-1", "ai", "json")
	assert.Regexp(t, regexp.MustCompile(`^jobs/j-1/outputs/ai_\d+\.json$`), key)
}

func TestStageInputKeyLayout(t *testing.T) {
	key := StageInputKey("j-1", "ai")
	assert.Regexp(t, regexp.MustCompile(`^jobs/j-1/outputs/ai_input_\d+\.json$`), key)
}

func TestReportKeyIsFixed(t *testing.T) {
	assert.Equal(t, "jobs/j-1/outputs/j-1-report.pdf", ReportKey("j-1"))
	// Re-runs must land on the same key
	assert.Equal(t, ReportKey("j-1"), ReportKey("j-1"))
}

func TestStageNameIsType(t *testing.T) {
	assert.Equal(t, "ocr", Stage{Type: StageTypeOCR}.Name())
	assert.Equal(t, "report", Stage{Type: StageTypeReport}.Name())
}

func TestDecodeStages(t *testing.T) {
	p := &Pipeline{Stages: []byte(`[{"type":"ocr","ocr_engine":"default"},{"type":"ai","prompt_name":"summary"}]`)}

	stages, err := p.DecodeStages()
	require.NoError(t, err)
	require.Len(t, stages, 2)
	assert.Equal(t, StageTypeOCR, stages[0].Type)
	assert.Equal(t, OCREngineDefault, stages[0].OCREngine)
	assert.Equal(t, "summary", stages[1].PromptName)
}

func TestDecodeStagesEmpty(t *testing.T) {
	stages, err := (&Pipeline{}).DecodeStages()
	require.NoError(t, err)
	assert.Nil(t, stages)
}

func TestDecodeStagesInvalid(t *testing.T) {
	_, err := (&Pipeline{Stages: []byte(`{"not":"an array"}`)}).DecodeStages()
	assert.Error(t, err)
}

func TestOrgSettingsNilSafety(t *testing.T) {
	var settings *OrgSettings

	assert.Nil(t, settings.CustomHeaders())
	_, ok := settings.Template("summary")
	assert.False(t, ok)
}

func TestOrgSettingsCustomHeaders(t *testing.T) {
	settings := &OrgSettings{AICustomHeaders: []byte(`[{"name":"X-Org","value":"acme"}]`)}
	assert.Equal(t, []HeaderKV{{Name: "X-Org", Value: "acme"}}, settings.CustomHeaders())

	settings = &OrgSettings{AICustomHeaders: []byte(`{broken`)}
	assert.Nil(t, settings.CustomHeaders(), "malformed headers yield an empty list")
}

func TestOrgSettingsTemplateLookup(t *testing.T) {
	settings := &OrgSettings{PromptTemplates: []byte(`[{"name":"summary","text":"Summarize: {{json_input}}"}]`)}

	template, ok := settings.Template("summary")
	require.True(t, ok)
	assert.Equal(t, "Summarize: {{json_input}}", template.Text)

	_, ok = settings.Template("absent")
	assert.False(t, ok)

	_, ok = settings.Template("")
	assert.False(t, ok)
}
