package llm

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/genai"
)

const (
	defaultGeminiModel = "gemini-2.5-flash"
	geminiSafety       = "SAFETY"
)

// GeminiClient generates text with the Gemini API.
type GeminiClient struct {
	client *genai.Client
	model  string
	opts   options
}

// NewGeminiClient creates a Gemini client for model.
func NewGeminiClient(ctx context.Context, apiKey, model string, opts ...Option) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	if model == "" {
		model = defaultGeminiModel
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return &GeminiClient{client: client, model: model, opts: buildOptions(opts)}, nil
}

// Name returns the provider and model.
func (c *GeminiClient) Name() string {
	return "gemini/" + c.model
}

// Generate sends a single-turn prompt.
func (c *GeminiClient) Generate(ctx context.Context, req Request) (string, error) {
	ctx, cancel := c.opts.withTimeout(ctx)
	defer cancel()

	cfg := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(float32(req.Temperature)),
		MaxOutputTokens: int32(c.opts.maxTokens),
	}
	if req.JSON {
		cfg.ResponseMIMEType = "application/json"
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(req.Prompt), cfg)
	if err != nil {
		if strings.Contains(strings.ToUpper(err.Error()), geminiSafety) {
			return "", fmt.Errorf("%w: %v", ErrSafetyBlocked, err)
		}
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	if reason := geminiBlockReason(resp); reason != "" {
		c.opts.logger.Warn("gemini blocked response", zap.String("reason", reason), zap.String("model", c.model))
		return "", ErrSafetyBlocked
	}

	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyResponse
	}
	c.opts.logger.Debug("gemini response", zap.String("model", c.model), zap.Int("bytes", len(text)))
	return text, nil
}

// geminiBlockReason reports whether the prompt or a candidate was blocked for safety.
func geminiBlockReason(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	if fb := resp.PromptFeedback; fb != nil && string(fb.BlockReason) == geminiSafety {
		return "prompt: " + string(fb.BlockReason)
	}
	for _, cand := range resp.Candidates {
		if cand != nil && string(cand.FinishReason) == geminiSafety {
			return "candidate: " + string(cand.FinishReason)
		}
	}
	return ""
}
