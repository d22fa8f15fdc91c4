package httpclient

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"

	"github.com/ternarybob/arbor"
)

// OCRClient posts a PDF to an external OCR endpoint as multipart form
// data and returns the recognized text. Credentials ride in X-API-Key.
type OCRClient struct {
	client *Client
	logger arbor.ILogger
}

func NewOCRClient(logger arbor.ILogger) *OCRClient {
	return &OCRClient{
		client: NewClient(logger),
		logger: logger,
	}
}

// Recognize uploads pdf under the given file name and returns the
// response body as text. apiKey may be empty for open endpoints.
func (c *OCRClient) Recognize(ctx context.Context, endpoint, apiKey, fileName string, pdf []byte) (string, error) {
	if endpoint == "" {
		return "", fmt.Errorf("OCR endpoint is empty")
	}

	build := func() (*http.Request, error) {
		var buf bytes.Buffer
		writer := multipart.NewWriter(&buf)

		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, fileName))
		header.Set("Content-Type", "application/pdf")
		part, err := writer.CreatePart(header)
		if err != nil {
			return nil, fmt.Errorf("failed to create multipart file part: %w", err)
		}
		if _, err := part.Write(pdf); err != nil {
			return nil, fmt.Errorf("failed to write multipart body: %w", err)
		}
		if err := writer.Close(); err != nil {
			return nil, fmt.Errorf("failed to finalize multipart body: %w", err)
		}

		req, err := http.NewRequest(http.MethodPost, endpoint, &buf)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", writer.FormDataContentType())
		return req, nil
	}

	var headers []Header
	if apiKey != "" {
		headers = append(headers, APIKeyHeader(apiKey))
	}

	c.logger.Debug().
		Str("endpoint", endpoint).
		Str("file", fileName).
		Int("size", len(pdf)).
		Msg("Calling external OCR endpoint")

	body, err := c.client.do(ctx, build, headers)
	if err != nil {
		return "", fmt.Errorf("external OCR call failed: %w", err)
	}
	return string(body), nil
}
