// Package ocr runs OCR on the local machine: either an
// operator-supplied program or an in-process text extraction built on
// pdfcpu. External OCR endpoints live in internal/httpclient.
package ocr

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/ternarybob/arbor"
)

// Placeholders substituted into custom command arguments. Substitution
// is literal token replacement on already-split arguments; commands are
// never passed through a shell.
const (
	PlaceholderInputPDF  = "{{input_pdf}}"
	PlaceholderOutputTxt = "{{output_txt}}"
)

// LocalEngine executes OCR on the worker host.
type LocalEngine struct {
	toolPath string
	logger   arbor.ILogger
}

// NewLocalEngine creates an engine. toolPath is the operator-configured
// OCR program invoked as "program <input.pdf> <output-base>"; when
// empty the engine extracts text in-process with pdfcpu.
func NewLocalEngine(toolPath string, logger arbor.ILogger) *LocalEngine {
	return &LocalEngine{
		toolPath: toolPath,
		logger:   logger,
	}
}

// RunCommand executes a stage's custom OCR command. The command string
// is split on whitespace and each argument has the input/output
// placeholders replaced. A non-zero exit is returned as an error.
func (e *LocalEngine) RunCommand(ctx context.Context, command, inputPDF, outputTxt string) error {
	args := strings.Fields(command)
	if len(args) == 0 {
		return fmt.Errorf("OCR command is empty")
	}
	for i, arg := range args {
		arg = strings.ReplaceAll(arg, PlaceholderInputPDF, inputPDF)
		arg = strings.ReplaceAll(arg, PlaceholderOutputTxt, outputTxt)
		args[i] = arg
	}

	e.logger.Debug().
		Str("program", args[0]).
		Int("args", len(args)-1).
		Msg("Running custom OCR command")

	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("OCR command %s failed: %w: %s", args[0], err, strings.TrimSpace(string(output)))
	}
	return nil
}

// Extract runs the built-in OCR path: the configured tool when one is
// set, otherwise in-process pdfcpu extraction. The recognized text ends
// up at outputTxt.
func (e *LocalEngine) Extract(ctx context.Context, inputPDF, outputTxt string) error {
	if e.toolPath != "" {
		// Tool contract: program <input.pdf> <output-base>, writes <output-base>.txt
		outputBase := strings.TrimSuffix(outputTxt, ".txt")
		cmd := exec.CommandContext(ctx, e.toolPath, inputPDF, outputBase)
		output, err := cmd.CombinedOutput()
		if err != nil {
			return fmt.Errorf("OCR tool %s failed: %w: %s", e.toolPath, err, strings.TrimSpace(string(output)))
		}
		if _, err := os.Stat(outputTxt); err != nil {
			return fmt.Errorf("OCR tool %s produced no output at %s: %w", e.toolPath, outputTxt, err)
		}
		return nil
	}

	text, err := e.extractText(inputPDF)
	if err != nil {
		return err
	}
	if err := os.WriteFile(outputTxt, []byte(text), 0644); err != nil {
		return fmt.Errorf("failed to write OCR text %s: %w", outputTxt, err)
	}
	return nil
}

// extractText pulls page content out of a PDF with pdfcpu. pdfcpu has
// no direct text extraction, so page content streams are extracted to a
// scratch directory and concatenated in page order.
func (e *LocalEngine) extractText(inputPDF string) (string, error) {
	pdfCtx, err := api.ReadContextFile(inputPDF)
	if err != nil {
		return "", fmt.Errorf("failed to read PDF %s: %w", inputPDF, err)
	}
	pageCount := pdfCtx.PageCount

	outDir, err := os.MkdirTemp("", "crpipeline-ocr-")
	if err != nil {
		return "", fmt.Errorf("failed to create extraction directory: %w", err)
	}
	defer os.RemoveAll(outDir)

	conf := model.NewDefaultConfiguration()
	if err := api.ExtractContentFile(inputPDF, outDir, nil, conf); err != nil {
		return "", fmt.Errorf("failed to extract PDF content: %w", err)
	}

	pageTexts := make(map[int]string)
	files, _ := os.ReadDir(outDir)
	for _, file := range files {
		if file.IsDir() {
			continue
		}
		content, err := os.ReadFile(filepath.Join(outDir, file.Name()))
		if err != nil {
			continue
		}
		var pageNum int
		if _, err := fmt.Sscanf(file.Name(), "Content_page_%d", &pageNum); err == nil {
			pageTexts[pageNum] = string(content)
		} else if _, err := fmt.Sscanf(file.Name(), "page_%d", &pageNum); err == nil {
			pageTexts[pageNum] = string(content)
		}
	}

	var builder strings.Builder
	for pageNum := 1; pageNum <= pageCount; pageNum++ {
		text, ok := pageTexts[pageNum]
		if !ok {
			continue
		}
		if builder.Len() > 0 {
			builder.WriteString("\n\n")
		}
		builder.WriteString(text)
	}
	return builder.String(), nil
}
