package executor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ternarybob/arbor"

	"github.com/Christopher-Schulze/crPipeline-sub000/internal/httpclient"
	"github.com/Christopher-Schulze/crPipeline-sub000/internal/jobs/resolver"
	"github.com/Christopher-Schulze/crPipeline-sub000/internal/models"
	"github.com/Christopher-Schulze/crPipeline-sub000/internal/ocr"
)

// OCRStageExecutor turns the input document into text. Exactly one
// method runs per stage, picked in priority order: the stage's custom
// command, the resolved external endpoint (stage, org or env level),
// then the built-in local engine. ocr_engine="default" never reaches an
// external endpoint because the resolver suppresses those sources.
type OCRStageExecutor struct {
	engine   *ocr.LocalEngine
	client   *httpclient.OCRClient
	recorder *ArtifactRecorder
	env      resolver.Env
	logger   arbor.ILogger
}

func NewOCRStageExecutor(engine *ocr.LocalEngine, client *httpclient.OCRClient, recorder *ArtifactRecorder, env resolver.Env, logger arbor.ILogger) *OCRStageExecutor {
	return &OCRStageExecutor{
		engine:   engine,
		client:   client,
		recorder: recorder,
		env:      env,
		logger:   logger,
	}
}

func (e *OCRStageExecutor) StageType() string {
	return models.StageTypeOCR
}

func (e *OCRStageExecutor) ExecuteStage(ctx context.Context, stage models.Stage, sc *StageContext) error {
	resolved := resolver.Resolve(stage, sc.Settings, e.env)
	logger := e.logger.WithCorrelationId(sc.JobID)

	// The custom-command branch is the only lenient one: an exit code 0
	// with no output file is a warning, not a failure.
	lenient := false

	switch {
	case resolved.OCRCommand != "":
		lenient = true
		if err := e.engine.RunCommand(ctx, resolved.OCRCommand, sc.InputPDF, sc.OCRTextPath); err != nil {
			return fmt.Errorf("custom OCR command failed: %w", err)
		}

	case resolved.OCREndpoint != "":
		pdfBytes, err := os.ReadFile(sc.InputPDF)
		if err != nil {
			return fmt.Errorf("failed to read input document: %w", err)
		}
		text, err := e.client.Recognize(ctx, resolved.OCREndpoint, resolved.OCRKey, filepath.Base(sc.InputPDF), pdfBytes)
		if err != nil {
			return err
		}
		if err := os.WriteFile(sc.OCRTextPath, []byte(text), 0644); err != nil {
			return fmt.Errorf("failed to write OCR text: %w", err)
		}

	default:
		if err := e.engine.Extract(ctx, sc.InputPDF, sc.OCRTextPath); err != nil {
			return fmt.Errorf("local OCR failed: %w", err)
		}
	}

	data, err := os.ReadFile(sc.OCRTextPath)
	if err != nil {
		if os.IsNotExist(err) && lenient {
			logger.Warn().
				Str("path", sc.OCRTextPath).
				Msg("OCR command produced no output file, continuing without text")
			return nil
		}
		return fmt.Errorf("OCR produced no readable output: %w", err)
	}

	// Later stages consume the text from the stage context; the local
	// file is removed once the artifact is saved.
	sc.OCRText = string(data)
	sc.HasOCRText = true
	e.recorder.SaveOutput(ctx, sc.JobID, stage.Name(), models.OutputTypeTxt, data)
	if err := os.Remove(sc.OCRTextPath); err != nil {
		logger.Warn().Err(err).Str("path", sc.OCRTextPath).Msg("Failed to remove OCR text file")
	}

	logger.Info().
		Int("text_size", len(data)).
		Bool("lenient", lenient).
		Msg("OCR stage produced text")
	return nil
}
