package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/Christopher-Schulze/crPipeline-sub000/internal/models"
)

// Parse strategies selectable through stage config.
const (
	strategyKeyword     = "keywordExtraction"
	strategyRegex       = "regexExtraction"
	strategySimpleTable = "simpleTableExtraction"
	strategyPassthrough = "passthrough"
)

// defaultDelimiter splits table lines on two or more spaces, a tab, or
// a pipe with optional surrounding spaces.
var defaultDelimiter = regexp.MustCompile(`\s{2,}|\t|\s*\|\s*`)

type parseConfig struct {
	Strategy       string         `json:"strategy"`
	Keywords       []string       `json:"keywords"`
	CaseSensitive  bool           `json:"caseSensitive"`
	Patterns       []regexPattern `json:"patterns"`
	HeaderKeywords []string       `json:"headerKeywords"`
	StopKeywords   []string       `json:"stopKeywords"`
	DelimiterRegex string         `json:"delimiterRegex"`
	NumericSummary bool           `json:"numericSummary"`
}

type regexPattern struct {
	Name              string `json:"name"`
	Regex             string `json:"regex"`
	CaptureGroupIndex *int   `json:"captureGroupIndex"` // defaults to 1
}

// ParseStageExecutor derives structured data from the OCR text. The
// strategy's output replaces the rolling context and is saved as a JSON
// artifact. Without OCR text the stage is skipped and the context kept.
type ParseStageExecutor struct {
	recorder *ArtifactRecorder
	logger   arbor.ILogger
}

func NewParseStageExecutor(recorder *ArtifactRecorder, logger arbor.ILogger) *ParseStageExecutor {
	return &ParseStageExecutor{
		recorder: recorder,
		logger:   logger,
	}
}

func (e *ParseStageExecutor) StageType() string {
	return models.StageTypeParse
}

func (e *ParseStageExecutor) ExecuteStage(ctx context.Context, stage models.Stage, sc *StageContext) error {
	logger := e.logger.WithCorrelationId(sc.JobID)

	if !sc.HasOCRText {
		logger.Info().Msg("No OCR text available, skipping parse stage")
		return nil
	}

	var config parseConfig
	if len(stage.Config) > 0 {
		if err := json.Unmarshal(stage.Config, &config); err != nil {
			return fmt.Errorf("failed to decode parse stage config: %w", err)
		}
	}

	var output interface{}
	switch config.Strategy {
	case strategyKeyword:
		output = e.extractKeywords(sc.OCRText, config)
	case strategyRegex:
		output = e.extractRegex(logger, sc.OCRText, config)
	case strategySimpleTable:
		var err error
		output, err = e.extractTable(sc.OCRText, config)
		if err != nil {
			return err
		}
	case strategyPassthrough, "":
		output = e.passthrough(sc.OCRText, config)
	default:
		logger.Warn().Str("strategy", config.Strategy).Msg("Unknown parse strategy, using passthrough")
		output = e.passthrough(sc.OCRText, config)
	}

	if err := sc.Rolling.ReplaceValue(output); err != nil {
		return err
	}
	e.recorder.SaveOutput(ctx, sc.JobID, stage.Name(), models.OutputTypeJSON, sc.Rolling.Raw())

	logger.Info().
		Str("strategy", firstNonEmptyString(config.Strategy, strategyPassthrough)).
		Msg("Parse stage updated rolling context")
	return nil
}

// extractKeywords maps each configured keyword to its occurrence count.
func (e *ParseStageExecutor) extractKeywords(text string, config parseConfig) map[string]int {
	haystack := text
	if !config.CaseSensitive {
		haystack = strings.ToLower(text)
	}
	counts := make(map[string]int, len(config.Keywords))
	for _, keyword := range config.Keywords {
		needle := keyword
		if !config.CaseSensitive {
			needle = strings.ToLower(keyword)
		}
		if needle == "" {
			counts[keyword] = 0
			continue
		}
		counts[keyword] = strings.Count(haystack, needle)
	}
	return counts
}

// extractRegex collects capture-group matches per named pattern. A
// compile failure becomes a diagnostic value for that field and the
// remaining patterns still run; an out-of-range group index falls back
// to the full match with a warning.
func (e *ParseStageExecutor) extractRegex(logger arbor.ILogger, text string, config parseConfig) map[string][]string {
	results := make(map[string][]string, len(config.Patterns))
	for _, pattern := range config.Patterns {
		re, err := regexp.Compile(pattern.Regex)
		if err != nil {
			logger.Warn().
				Str("pattern", pattern.Name).
				Err(err).
				Msg("Regex compilation failed")
			results[pattern.Name] = []string{fmt.Sprintf("Regex Compile Error: %v", err)}
			continue
		}

		groupIndex := 1
		if pattern.CaptureGroupIndex != nil {
			groupIndex = *pattern.CaptureGroupIndex
		}

		values := []string{}
		for _, match := range re.FindAllStringSubmatch(text, -1) {
			if groupIndex < 0 || groupIndex >= len(match) {
				logger.Warn().
					Str("pattern", pattern.Name).
					Int("group", groupIndex).
					Msg("Capture group out of bounds, using full match")
				values = append(values, match[0])
				continue
			}
			values = append(values, match[groupIndex])
		}
		results[pattern.Name] = values
	}
	return results
}

type tableResult struct {
	Headers []string                      `json:"headers"`
	Rows    [][]string                    `json:"rows"`
	Summary map[string]map[string]float64 `json:"summary,omitempty"`
}

// extractTable scans for the first line containing every header keyword
// (case-insensitive), derives headers from it, and reads following
// non-empty lines as rows until a stop keyword appears.
func (e *ParseStageExecutor) extractTable(text string, config parseConfig) (*tableResult, error) {
	delimiter := defaultDelimiter
	if config.DelimiterRegex != "" {
		var err error
		delimiter, err = regexp.Compile(config.DelimiterRegex)
		if err != nil {
			return nil, fmt.Errorf("invalid table delimiter regex: %w", err)
		}
	}

	result := &tableResult{Headers: []string{}, Rows: [][]string{}}
	lines := strings.Split(text, "\n")

	headerIndex := -1
	for i, line := range lines {
		if containsAll(line, config.HeaderKeywords) {
			headerIndex = i
			break
		}
	}
	if headerIndex < 0 {
		return result, nil
	}

	result.Headers = splitCells(delimiter, lines[headerIndex])

	for _, line := range lines[headerIndex+1:] {
		if strings.TrimSpace(line) == "" {
			continue
		}
		if containsAny(line, config.StopKeywords) {
			break
		}
		result.Rows = append(result.Rows, splitCells(delimiter, line))
	}

	if config.NumericSummary {
		result.Summary = summarizeColumns(result.Headers, result.Rows)
	}
	return result, nil
}

// summarizeColumns computes {sum, avg} for every column whose cells all
// parse as numbers. A comma is accepted as decimal separator.
func summarizeColumns(headers []string, rows [][]string) map[string]map[string]float64 {
	if len(rows) == 0 {
		return nil
	}
	summary := make(map[string]map[string]float64)
	for col, header := range headers {
		sum := 0.0
		numeric := true
		for _, row := range rows {
			if col >= len(row) {
				numeric = false
				break
			}
			value, err := parseNumber(row[col])
			if err != nil {
				numeric = false
				break
			}
			sum += value
		}
		if numeric {
			summary[header] = map[string]float64{
				"sum": sum,
				"avg": sum / float64(len(rows)),
			}
		}
	}
	if len(summary) == 0 {
		return nil
	}
	return summary
}

func parseNumber(cell string) (float64, error) {
	cell = strings.TrimSpace(cell)
	cell = strings.ReplaceAll(cell, ",", ".")
	return strconv.ParseFloat(cell, 64)
}

// passthrough returns the trimmed lines of the text unchanged.
func (e *ParseStageExecutor) passthrough(text string, config parseConfig) map[string]interface{} {
	rawLines := strings.Split(text, "\n")
	lines := make([]string, 0, len(rawLines))
	for _, line := range rawLines {
		lines = append(lines, strings.TrimSpace(line))
	}
	return map[string]interface{}{
		"strategy_used": firstNonEmptyString(config.Strategy, strategyPassthrough),
		"lines":         lines,
	}
}

func splitCells(delimiter *regexp.Regexp, line string) []string {
	parts := delimiter.Split(strings.TrimSpace(line), -1)
	cells := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" {
			cells = append(cells, part)
		}
	}
	return cells
}

func containsAll(line string, keywords []string) bool {
	if len(keywords) == 0 {
		return false
	}
	lower := strings.ToLower(line)
	for _, keyword := range keywords {
		if !strings.Contains(lower, strings.ToLower(keyword)) {
			return false
		}
	}
	return true
}

func containsAny(line string, keywords []string) bool {
	lower := strings.ToLower(line)
	for _, keyword := range keywords {
		if keyword != "" && strings.Contains(lower, strings.ToLower(keyword)) {
			return true
		}
	}
	return false
}

func firstNonEmptyString(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
