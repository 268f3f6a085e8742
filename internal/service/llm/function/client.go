// Package function calls a remote generation function over HTTP.
package function

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/yusin8/WERO/internal/observability/logging"
	"github.com/yusin8/WERO/internal/service/llm"
)

// maxErrorBody bounds how much of an error response is kept for the message.
const maxErrorBody = 512

// Request is the function's JSON request body.
type Request struct {
	Prompt string `json:"prompt"`
}

// Response is the function's JSON response body.
type Response struct {
	Response string `json:"response,omitempty"`
	Error    string `json:"error,omitempty"`
	Detail   string `json:"detail,omitempty"`
}

// Client implements llm.Generator against a function URL.
type Client struct {
	url    string
	http   *http.Client
	logger zerolog.Logger
}

// New creates a client for url. A nil httpClient uses http.DefaultClient;
// deadlines come from the caller's context.
func New(url string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		url:    url,
		http:   httpClient,
		logger: logging.WithProvider("llm", "function"),
	}
}

// Generate posts {"prompt"} and returns the "response" field.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(Request{Prompt: prompt})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: build request: %v", llm.ErrGenerationFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", fmt.Errorf("call function: %w", ctxErr)
		}
		return "", fmt.Errorf("%w: %v", llm.ErrGenerationFailed, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: read response: %v", llm.ErrGenerationFailed, err)
	}

	var out Response
	decodeErr := json.Unmarshal(raw, &out)

	switch {
	case resp.StatusCode == http.StatusBadGateway && decodeErr == nil && out.Response == "":
		return "", llm.ErrEmptyResponse
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		msg := out.Error
		if msg == "" {
			msg = truncate(strings.TrimSpace(string(raw)), maxErrorBody)
		}
		c.logger.Warn().Int("status", resp.StatusCode).Str("error", msg).Msg("Function call failed")
		return "", fmt.Errorf("%w: status %d: %s", llm.ErrGenerationFailed, resp.StatusCode, msg)
	case decodeErr != nil:
		return "", fmt.Errorf("%w: decode response: %v", llm.ErrGenerationFailed, decodeErr)
	}

	text := strings.TrimSpace(out.Response)
	if text == "" {
		return "", llm.ErrEmptyResponse
	}
	return text, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

var _ llm.Generator = (*Client)(nil)
