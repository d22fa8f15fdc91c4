package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/ternarybob/arbor"

	"github.com/Christopher-Schulze/crPipeline-sub000/internal/models"
)

// AIClient posts a JSON body to an AI completion endpoint and returns
// the JSON response. Authentication is Bearer; per-organization custom
// headers are appended and treated as sensitive.
type AIClient struct {
	client *Client
	logger arbor.ILogger
}

func NewAIClient(logger arbor.ILogger) *AIClient {
	return &AIClient{
		client: NewClient(logger),
		logger: logger,
	}
}

// Complete sends body to the endpoint and returns the raw JSON
// response. A non-JSON response body is an error even on HTTP 200,
// because the result becomes the next rolling context.
func (c *AIClient) Complete(ctx context.Context, endpoint, apiKey string, body []byte, custom []models.HeaderKV) (json.RawMessage, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("AI endpoint is empty")
	}

	build := func() (*http.Request, error) {
		req, err := http.NewRequest(http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	}

	var headers []Header
	if apiKey != "" {
		headers = append(headers, BearerHeader(apiKey))
	}
	for _, h := range custom {
		headers = append(headers, Header{Name: h.Name, Value: h.Value, Sensitive: true})
	}

	c.logger.Debug().
		Str("endpoint", endpoint).
		Int("body_size", len(body)).
		Int("custom_headers", len(custom)).
		Msg("Calling AI endpoint")

	respBody, err := c.client.do(ctx, build, headers)
	if err != nil {
		return nil, fmt.Errorf("AI call failed: %w", err)
	}

	if !json.Valid(respBody) {
		return nil, fmt.Errorf("AI endpoint returned a non-JSON response")
	}
	return json.RawMessage(respBody), nil
}
