// Package aiinference is a reference Adapter exercising the AI-inference
// capability surface. It claims the "ai.infer" step type and dispatches
// to one of three SDKs selected by params.provider, grounded on the
// teacher's per-provider ChatModel implementations
// (graph/model/{anthropic,openai,google}): Anthropic's Messages API,
// OpenAI's Chat Completions API, and Google's Gemini GenerateContent API.
// No inference provider is itself deterministic, so every step type this
// adapter claims is marked Deterministic: false in its manifest.
package aiinference

import (
	"context"
	"errors"
	"fmt"
	"time"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	anthropicoption "github.com/anthropics/anthropic-sdk-go/option"
	"github.com/google/generative-ai-go/genai"
	openaisdk "github.com/openai/openai-go"
	openaioption "github.com/openai/openai-go/option"
	googleoption "google.golang.org/api/option"

	"github.com/meridianflow/workflow/workflow"
)

const StepType = "ai.infer"

// Adapter routes ai.infer steps to Anthropic, OpenAI, or Google according
// to params.provider. API keys are supplied per step (params.api_key) so
// that a single adapter instance can serve multiple credentials.
type Adapter struct{}

// New returns an aiinference Adapter.
func New() *Adapter { return &Adapter{} }

func (a *Adapter) Manifest() workflow.AdapterManifest {
	return workflow.AdapterManifest{
		ID:      "aiinference",
		Version: "1.0.0",
		StepTypes: []workflow.StepTypeDescriptor{
			{Type: StepType, Deterministic: false},
		},
	}
}

func (a *Adapter) Validate(step workflow.Step, params workflow.Value) error {
	provider, ok := params.Get("provider")
	if !ok || provider.Str == "" {
		return errors.New("aiinference: params.provider is required")
	}
	switch provider.Str {
	case "anthropic", "openai", "google":
	default:
		return fmt.Errorf("aiinference: unsupported provider %q", provider.Str)
	}
	if prompt, ok := params.Get("prompt"); !ok || prompt.Kind != workflow.KindString || prompt.Str == "" {
		return errors.New("aiinference: params.prompt is required")
	}
	if key, ok := params.Get("api_key"); !ok || key.Kind != workflow.KindString || key.Str == "" {
		return errors.New("aiinference: params.api_key is required")
	}
	return nil
}

func (a *Adapter) HealthCheck(ctx context.Context) error { return nil }

func (a *Adapter) Execute(ctx context.Context, step workflow.Step, params workflow.Value) (workflow.Receipt, error) {
	start := time.Now()

	provider, _ := params.Get("provider")
	prompt, _ := params.Get("prompt")
	apiKey, _ := params.Get("api_key")
	modelName := ""
	if m, ok := params.Get("model"); ok {
		modelName = m.Str
	}
	system := ""
	if s, ok := params.Get("system"); ok {
		system = s.Str
	}

	var text string
	var err error
	switch provider.Str {
	case "anthropic":
		text, err = a.callAnthropic(ctx, apiKey.Str, modelName, system, prompt.Str)
	case "openai":
		text, err = a.callOpenAI(ctx, apiKey.Str, modelName, system, prompt.Str)
	case "google":
		text, err = a.callGoogle(ctx, apiKey.Str, modelName, prompt.Str)
	}

	meta := &workflow.ExecutionMetadata{
		LatencyMs:      time.Since(start).Milliseconds(),
		AdapterVersion: "aiinference/1.0.0",
	}
	if err != nil {
		return workflow.Receipt{
			StepID:            step.ID,
			Status:            workflow.StatusError,
			Error:             &workflow.ReceiptError{Code: "aiinference." + provider.Str + "_error", Message: err.Error(), Retryable: true},
			ExecutionMetadata: meta,
		}, nil
	}

	out := workflow.NewMap()
	out.Set("text", workflow.String(text))
	out.Set("provider", provider)
	return workflow.Receipt{StepID: step.ID, Status: workflow.StatusSuccess, Output: out, ExecutionMetadata: meta}, nil
}

func (a *Adapter) callAnthropic(ctx context.Context, apiKey, modelName, system, prompt string) (string, error) {
	if modelName == "" {
		modelName = "claude-sonnet-4-5-20250929"
	}
	client := anthropicsdk.NewClient(anthropicoption.WithAPIKey(apiKey))
	p := anthropicsdk.MessageNewParams{
		Model:     anthropicsdk.Model(modelName),
		MaxTokens: 4096,
		Messages:  []anthropicsdk.MessageParam{anthropicsdk.NewUserMessage(anthropicsdk.NewTextBlock(prompt))},
	}
	if system != "" {
		p.System = []anthropicsdk.TextBlockParam{{Text: system}}
	}
	resp, err := client.Messages.New(ctx, p)
	if err != nil {
		return "", fmt.Errorf("anthropic: %w", err)
	}
	var out string
	for _, block := range resp.Content {
		if block.Type == "text" {
			out += block.Text
		}
	}
	return out, nil
}

func (a *Adapter) callOpenAI(ctx context.Context, apiKey, modelName, system, prompt string) (string, error) {
	if modelName == "" {
		modelName = "gpt-4o-mini"
	}
	client := openaisdk.NewClient(openaioption.WithAPIKey(apiKey))
	messages := []openaisdk.ChatCompletionMessageParamUnion{}
	if system != "" {
		messages = append(messages, openaisdk.SystemMessage(system))
	}
	messages = append(messages, openaisdk.UserMessage(prompt))
	resp, err := client.Chat.Completions.New(ctx, openaisdk.ChatCompletionNewParams{
		Model:    openaisdk.ChatModel(modelName),
		Messages: messages,
	})
	if err != nil {
		return "", fmt.Errorf("openai: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openai: empty response")
	}
	return resp.Choices[0].Message.Content, nil
}

func (a *Adapter) callGoogle(ctx context.Context, apiKey, modelName, prompt string) (string, error) {
	if modelName == "" {
		modelName = "gemini-1.5-flash"
	}
	client, err := genai.NewClient(ctx, googleoption.WithAPIKey(apiKey))
	if err != nil {
		return "", fmt.Errorf("google: client: %w", err)
	}
	defer func() { _ = client.Close() }()

	genModel := client.GenerativeModel(modelName)
	resp, err := genModel.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("google: %w", err)
	}
	var out string
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if t, ok := part.(genai.Text); ok {
				out += string(t)
			}
		}
	}
	return out, nil
}
