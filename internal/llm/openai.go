package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"
	"go.uber.org/zap"
)

const defaultOpenAIModel = "gpt-4.1-mini"

// OpenAIClient generates text with the OpenAI Responses API.
type OpenAIClient struct {
	client openai.Client
	model  string
	opts   options
}

// NewOpenAIClient creates an OpenAI client for model.
func NewOpenAIClient(apiKey, model string, opts ...Option) *OpenAIClient {
	if model == "" {
		model = defaultOpenAIModel
	}
	return &OpenAIClient{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
		opts:   buildOptions(opts),
	}
}

// Name returns the provider and model.
func (c *OpenAIClient) Name() string {
	return "openai/" + c.model
}

// Generate sends a single-turn prompt. When req carries a Schema the response is
// constrained to it and, if ArrayField is set, only that field is returned.
func (c *OpenAIClient) Generate(ctx context.Context, req Request) (string, error) {
	ctx, cancel := c.opts.withTimeout(ctx)
	defer cancel()

	params := responses.ResponseNewParams{
		Model:           c.model,
		MaxOutputTokens: openai.Int(int64(c.opts.maxTokens)),
		Temperature:     openai.Float(req.Temperature),
		Input: responses.ResponseNewParamsInputUnion{
			OfInputItemList: []responses.ResponseInputItemUnionParam{
				responses.ResponseInputItemParamOfMessage(req.Prompt, responses.EasyInputMessageRoleUser),
			},
		},
	}
	if req.JSON && req.Schema != nil {
		params.Text = responses.ResponseTextConfigParam{
			Format: responses.ResponseFormatTextConfigUnionParam{
				OfJSONSchema: &responses.ResponseFormatTextJSONSchemaConfigParam{
					Name:        req.Schema.Name,
					Schema:      req.Schema.Definition,
					Strict:      openai.Bool(true),
					Description: openai.String(req.Schema.Description),
					Type:        "json_schema",
				},
			},
		}
	}

	resp, err := c.client.Responses.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai generate: %w", err)
	}
	if refusal := openAIRefusal(resp); refusal != "" {
		c.opts.logger.Warn("openai refused prompt", zap.String("model", c.model), zap.String("refusal", refusal))
		return "", ErrSafetyBlocked
	}

	text := resp.OutputText()
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyResponse
	}
	if req.JSON && req.Schema != nil && req.Schema.ArrayField != "" {
		return unwrapField(text, req.Schema.ArrayField), nil
	}
	return text, nil
}

func openAIRefusal(resp *responses.Response) string {
	if resp == nil {
		return ""
	}
	for _, item := range resp.Output {
		for _, content := range item.Content {
			if content.Type == "refusal" {
				return content.Refusal
			}
		}
	}
	return ""
}

// unwrapField returns the raw JSON of field in the object text. Text that does not decode
// as an object is returned unchanged so the caller's parser reports it.
func unwrapField(text, field string) string {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &obj); err != nil {
		return text
	}
	raw, ok := obj[field]
	if !ok {
		return text
	}
	return string(raw)
}
