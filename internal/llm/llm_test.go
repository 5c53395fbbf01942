package llm

import (
	"context"
	"strings"
	"testing"

	"google.golang.org/genai"

	"github.com/hyperjump/taxonomia/internal/config"
)

type envelope struct {
	Items []struct {
		Text  string `json:"text" jsonschema:"required"`
		Level string `json:"level" jsonschema:"required,enum=a,enum=b"`
	} `json:"items" jsonschema:"required"`
}

func TestGenerateSchema_strict(t *testing.T) {
	s := GenerateSchema[envelope]()
	if s["type"] != "object" {
		t.Fatalf("root type = %v", s["type"])
	}
	if s["additionalProperties"] != false {
		t.Error("root should forbid additional properties")
	}
	if _, ok := s["$schema"]; ok {
		t.Error("$schema should be stripped")
	}
	props := s["properties"].(map[string]interface{})
	items := props["items"].(map[string]interface{})["items"].(map[string]interface{})
	if items["additionalProperties"] != false {
		t.Error("nested objects should forbid additional properties")
	}
	req, _ := items["required"].([]string)
	if len(req) != 2 || req[0] != "level" || req[1] != "text" {
		t.Errorf("nested required = %v", items["required"])
	}
}

func TestUnwrapField(t *testing.T) {
	tests := []struct {
		name, in, want string
	}{
		{"object", `{"items":[{"a":1}]}`, `[{"a":1}]`},
		{"missing field", `{"other":[]}`, `{"other":[]}`},
		{"not an object", `[1,2]`, `[1,2]`},
		{"garbage", `nope`, `nope`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := unwrapField(tt.in, "items"); got != tt.want {
				t.Errorf("unwrapField() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestGeminiBlockReason(t *testing.T) {
	if r := geminiBlockReason(nil); r != "" {
		t.Errorf("nil response: got %q", r)
	}
	prompt := &genai.GenerateContentResponse{
		PromptFeedback: &genai.GenerateContentResponsePromptFeedback{BlockReason: "SAFETY"},
	}
	if r := geminiBlockReason(prompt); !strings.HasPrefix(r, "prompt") {
		t.Errorf("prompt block: got %q", r)
	}
	cand := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{FinishReason: "STOP"}, {FinishReason: "SAFETY"}},
	}
	if r := geminiBlockReason(cand); !strings.HasPrefix(r, "candidate") {
		t.Errorf("candidate block: got %q", r)
	}
	ok := &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{FinishReason: "STOP"}}}
	if r := geminiBlockReason(ok); r != "" {
		t.Errorf("unblocked: got %q", r)
	}
}

func TestNew(t *testing.T) {
	ctx := context.Background()

	if _, err := New(ctx, config.LLMConfig{Provider: config.ProviderAnthropic, APIKeyEnv: "TAXONOMIA_UNSET_KEY"}, nil); err == nil {
		t.Error("expected error without API key")
	}
	if _, err := New(ctx, config.LLMConfig{Provider: "mystery", APIKey: "k"}, nil); err == nil {
		t.Error("expected error for unknown provider")
	}

	c, err := New(ctx, config.LLMConfig{Provider: config.ProviderAnthropic, APIKey: "k", Model: "m"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if c.Name() != "anthropic/m" {
		t.Errorf("Name() = %s", c.Name())
	}
	c, err = New(ctx, config.LLMConfig{Provider: config.ProviderOpenAI, APIKey: "k"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if c.Name() != "openai/"+defaultOpenAIModel {
		t.Errorf("Name() = %s", c.Name())
	}
}
