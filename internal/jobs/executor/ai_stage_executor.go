package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/Christopher-Schulze/crPipeline-sub000/internal/httpclient"
	"github.com/Christopher-Schulze/crPipeline-sub000/internal/jobs/resolver"
	"github.com/Christopher-Schulze/crPipeline-sub000/internal/models"
)

// Prompt template placeholders, both replaced with the rolling context
// serialized as JSON.
const (
	placeholderJSONInput = "{{json_input}}"
	placeholderContent   = "{{content}}"
)

// aiRequest is the structured body sent when a prompt template is in
// play. Without a template the rolling context goes out unchanged.
type aiRequest struct {
	Prompt      string          `json:"prompt"`
	ContextData json.RawMessage `json:"context_data"`
}

// AIStageExecutor sends the rolling context to the resolved AI endpoint
// and replaces it with the response. The composed request body is saved
// as an artifact before the call so failed calls remain inspectable.
// A missing endpoint, an exhausted retry budget, or a non-JSON response
// are all critical.
type AIStageExecutor struct {
	client   *httpclient.AIClient
	recorder *ArtifactRecorder
	env      resolver.Env
	logger   arbor.ILogger
}

func NewAIStageExecutor(client *httpclient.AIClient, recorder *ArtifactRecorder, env resolver.Env, logger arbor.ILogger) *AIStageExecutor {
	return &AIStageExecutor{
		client:   client,
		recorder: recorder,
		env:      env,
		logger:   logger,
	}
}

func (e *AIStageExecutor) StageType() string {
	return models.StageTypeAI
}

func (e *AIStageExecutor) ExecuteStage(ctx context.Context, stage models.Stage, sc *StageContext) error {
	logger := e.logger.WithCorrelationId(sc.JobID)
	resolved := resolver.Resolve(stage, sc.Settings, e.env)

	if resolved.AIEndpoint == "" {
		return fmt.Errorf("no AI endpoint configured for stage %s", stage.Name())
	}

	body, usedTemplate, err := e.composeBody(stage, sc)
	if err != nil {
		return err
	}

	e.recorder.SaveInput(ctx, sc.JobID, stage.Name(), body)

	logger.Debug().
		Bool("templated", usedTemplate).
		Int("body_size", len(body)).
		Msg("Dispatching AI request")

	response, err := e.client.Complete(ctx, resolved.AIEndpoint, resolved.AIKey, body, resolved.AIHeaders)
	if err != nil {
		return err
	}

	if err := sc.Rolling.Replace(response); err != nil {
		return fmt.Errorf("AI response rejected: %w", err)
	}
	e.recorder.SaveOutput(ctx, sc.JobID, stage.Name(), models.OutputTypeJSON, response)

	logger.Info().
		Int("response_size", len(response)).
		Msg("AI stage updated rolling context")
	return nil
}

// composeBody renders the stage's prompt template when one matches,
// otherwise the rolling context is sent unchanged.
func (e *AIStageExecutor) composeBody(stage models.Stage, sc *StageContext) ([]byte, bool, error) {
	contextJSON := string(sc.Rolling.Raw())

	template, ok := sc.Settings.Template(stage.PromptName)
	if !ok {
		if stage.PromptName != "" {
			e.logger.WithCorrelationId(sc.JobID).Warn().
				Str("prompt_name", stage.PromptName).
				Msg("Prompt template not found, sending rolling context unchanged")
		}
		return []byte(contextJSON), false, nil
	}

	rendered := strings.ReplaceAll(template.Text, placeholderJSONInput, contextJSON)
	rendered = strings.ReplaceAll(rendered, placeholderContent, contextJSON)

	body, err := json.Marshal(aiRequest{
		Prompt:      rendered,
		ContextData: sc.Rolling.Raw(),
	})
	if err != nil {
		return nil, false, fmt.Errorf("failed to compose AI request body: %w", err)
	}
	return body, true, nil
}
