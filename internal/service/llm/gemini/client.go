// Package gemini calls the Gemini API directly through the genai SDK.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"google.golang.org/genai"

	"github.com/yusin8/WERO/internal/observability/logging"
	"github.com/yusin8/WERO/internal/service/llm"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "gemini-2.5-flash"

// ErrMissingAPIKey is returned by New without an API key.
var ErrMissingAPIKey = errors.New("gemini: api key is required")

type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Client implements llm.Generator with the persona prompt applied to every
// question.
type Client struct {
	models contentGenerator
	model  string
	logger zerolog.Logger
}

// New validates the key and creates a Gemini API client.
func New(ctx context.Context, apiKey, model string) (*Client, error) {
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	c, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return newWithModels(c.Models, model), nil
}

func newWithModels(m contentGenerator, model string) *Client {
	if model == "" {
		model = DefaultModel
	}
	return &Client{
		models: m,
		model:  model,
		logger: logging.WithProvider("llm", "gemini"),
	}
}

// Model returns the model name requests are sent to.
func (c *Client) Model() string {
	return c.model
}

// Generate asks the model to answer question in persona.
func (c *Client) Generate(ctx context.Context, question string) (string, error) {
	resp, err := c.models.GenerateContent(ctx, c.model, genai.Text(llm.PersonaPrompt(question)), nil)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", fmt.Errorf("generate content: %w", ctxErr)
		}
		return "", fmt.Errorf("%w: %v", llm.ErrGenerationFailed, err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		c.logger.Warn().Str("model", c.model).Msg("Model returned no text")
		return "", llm.ErrEmptyResponse
	}
	return text, nil
}
