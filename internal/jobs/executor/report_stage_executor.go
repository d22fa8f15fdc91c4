package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/ternarybob/arbor"
	"github.com/tidwall/gjson"

	"github.com/Christopher-Schulze/crPipeline-sub000/internal/models"
	"github.com/Christopher-Schulze/crPipeline-sub000/internal/services/pdf"
)

// placeholderPattern matches {{path}} placeholders in report templates.
var placeholderPattern = regexp.MustCompile(`\{\{([^{}]+)\}\}`)

type reportConfig struct {
	Template      string   `json:"template"`
	SummaryFields []string `json:"summaryFields"`
}

// ReportStageExecutor renders the final PDF. With a template the
// Markdown is rendered after {{path}} substitution against the
// templating object (rolling context plus document_name and job_id);
// without one, or when Markdown rendering fails, the object is drawn
// with the basic renderer. The PDF lands under the fixed report key.
type ReportStageExecutor struct {
	pdf      *pdf.Service
	recorder *ArtifactRecorder
	logger   arbor.ILogger
}

func NewReportStageExecutor(pdfService *pdf.Service, recorder *ArtifactRecorder, logger arbor.ILogger) *ReportStageExecutor {
	return &ReportStageExecutor{
		pdf:      pdfService,
		recorder: recorder,
		logger:   logger,
	}
}

func (e *ReportStageExecutor) StageType() string {
	return models.StageTypeReport
}

func (e *ReportStageExecutor) ExecuteStage(ctx context.Context, stage models.Stage, sc *StageContext) error {
	logger := e.logger.WithCorrelationId(sc.JobID)

	var config reportConfig
	if len(stage.Config) > 0 {
		if err := json.Unmarshal(stage.Config, &config); err != nil {
			return fmt.Errorf("failed to decode report stage config: %w", err)
		}
	}

	templatingObject, err := sc.Rolling.MergeInto(map[string]interface{}{
		"document_name": sc.DocumentName,
		"job_id":        sc.JobID,
	}, "previous_stage_output")
	if err != nil {
		return err
	}

	if len(config.SummaryFields) > 0 {
		e.saveSummary(ctx, logger, sc.JobID, templatingObject, config.SummaryFields)
	}

	pdfBytes, err := e.render(logger, templatingObject, config.Template)
	if err != nil {
		return err
	}

	e.recorder.SaveReport(ctx, sc.JobID, stage.Name(), pdfBytes)

	logger.Info().
		Int("pdf_size", len(pdfBytes)).
		Bool("templated", config.Template != "").
		Msg("Report stage generated PDF")
	return nil
}

// render tries the Markdown template first and falls back to the basic
// renderer; only both failing is critical.
func (e *ReportStageExecutor) render(logger arbor.ILogger, templatingObject json.RawMessage, template string) ([]byte, error) {
	if template != "" {
		processed := e.substitute(logger, template, templatingObject)
		pdfBytes, err := e.pdf.RenderMarkdown(processed)
		if err == nil {
			return pdfBytes, nil
		}
		logger.Warn().Err(err).Msg("Template rendering failed, falling back to basic renderer")
	}

	serialized, err := json.MarshalIndent(json.RawMessage(templatingObject), "", "  ")
	if err != nil {
		serialized = templatingObject
	}
	pdfBytes, err := e.pdf.RenderPlain(string(serialized))
	if err != nil {
		return nil, fmt.Errorf("report rendering failed: %w", err)
	}
	return pdfBytes, nil
}

// substitute replaces every {{path}} placeholder with the node the path
// resolves to. Unresolved placeholders are left in place with a
// warning so the gap is visible in the rendered report.
func (e *ReportStageExecutor) substitute(logger arbor.ILogger, template string, doc json.RawMessage) string {
	return placeholderPattern.ReplaceAllStringFunc(template, func(match string) string {
		path := placeholderPattern.FindStringSubmatch(match)[1]
		result, ok := ResolvePath(doc, path)
		if !ok {
			logger.Warn().Str("path", path).Msg("Template path did not resolve")
			return match
		}
		if result.Type == gjson.Null {
			return ""
		}
		return result.String()
	})
}

// saveSummary evaluates each summary field against the templating
// object and saves the collected map as a JSON artifact.
func (e *ReportStageExecutor) saveSummary(ctx context.Context, logger arbor.ILogger, jobID string, doc json.RawMessage, fields []string) {
	summary := make(map[string]interface{}, len(fields))
	for _, field := range fields {
		result, ok := ResolvePath(doc, field)
		if !ok {
			logger.Warn().Str("path", field).Msg("Summary field did not resolve")
			continue
		}
		summary[LeafKey(field)] = result.Value()
	}

	data, err := json.Marshal(summary)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to encode report summary")
		return
	}
	e.recorder.SaveOutput(ctx, jobID, "report_summary", models.OutputTypeJSON, data)
}
