package ai

import (
	"context"
	"errors"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/ollama"
)

// langchainProvider adapts a langchaingo model to ChatProvider.
type langchainProvider struct {
	name  string
	model string
	llm   llms.Model
	// usage keys in the generation info map, which differ per backend
	promptKey     string
	completionKey string
}

func newAnthropicProvider(model string, cred ProviderCredential) (ChatProvider, error) {
	if cred.APIKey == "" {
		return nil, errors.New("anthropic API key is required")
	}
	opts := []anthropic.Option{
		anthropic.WithToken(cred.APIKey),
		anthropic.WithModel(model),
	}
	if cred.BaseURL != "" {
		opts = append(opts, anthropic.WithBaseURL(cred.BaseURL))
	}
	llm, err := anthropic.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create anthropic client: %w", err)
	}
	return &langchainProvider{
		name:          ProviderAnthropic,
		model:         model,
		llm:           llm,
		promptKey:     "InputTokens",
		completionKey: "OutputTokens",
	}, nil
}

func newOllamaProvider(model string, cred ProviderCredential) (ChatProvider, error) {
	if cred.BaseURL == "" {
		return nil, errors.New("ollama base URL is required")
	}
	llm, err := ollama.New(
		ollama.WithModel(model),
		ollama.WithServerURL(cred.BaseURL),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create ollama client: %w", err)
	}
	return &langchainProvider{
		name:          ProviderOllama,
		model:         model,
		llm:           llm,
		promptKey:     "PromptTokens",
		completionKey: "CompletionTokens",
	}, nil
}

func (p *langchainProvider) Name() string  { return p.name }
func (p *langchainProvider) Model() string { return p.model }

func (p *langchainProvider) Complete(ctx context.Context, req CompletionRequest) (*Completion, error) {
	messages := []llms.MessageContent{}
	if req.SystemPrompt != "" {
		messages = append(messages, llms.TextParts(llms.ChatMessageTypeSystem, req.SystemPrompt))
	}
	messages = append(messages, llms.TextParts(llms.ChatMessageTypeHuman, req.UserPrompt))

	opts := []llms.CallOption{
		llms.WithTemperature(float64(req.Temperature)),
	}
	if req.MaxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(req.MaxTokens))
	}
	if req.JSONMode && p.name == ProviderOllama {
		opts = append(opts, llms.WithJSONMode())
	}

	resp, err := p.llm.GenerateContent(ctx, messages, opts...)
	if err != nil {
		return nil, fmt.Errorf("%s generate content failed: %w", p.name, err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("empty response from " + p.name)
	}

	choice := resp.Choices[0]
	return &Completion{
		Content:          choice.Content,
		PromptTokens:     intFromInfo(choice.GenerationInfo, p.promptKey),
		CompletionTokens: intFromInfo(choice.GenerationInfo, p.completionKey),
	}, nil
}

// intFromInfo reads a token count from a generation info map.
func intFromInfo(info map[string]any, key string) int {
	switch v := info[key].(type) {
	case int:
		return v
	case int32:
		return int(v)
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}
