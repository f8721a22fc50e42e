package ai

import (
	"context"
	"errors"
	"fmt"

	"github.com/sashabaranov/go-openai"
)

// openAICompatibleProvider serves OpenAI and the OpenAI-compatible APIs of DeepSeek and SiliconFlow.
type openAICompatibleProvider struct {
	name   string
	model  string
	client *openai.Client
}

func newOpenAICompatibleProvider(name, model string, cred ProviderCredential) (ChatProvider, error) {
	if cred.APIKey == "" {
		return nil, fmt.Errorf("%s API key is required", name)
	}
	clientConfig := openai.DefaultConfig(cred.APIKey)
	if cred.BaseURL != "" {
		clientConfig.BaseURL = cred.BaseURL
	}
	return &openAICompatibleProvider{
		name:   name,
		model:  model,
		client: openai.NewClientWithConfig(clientConfig),
	}, nil
}

func (p *openAICompatibleProvider) Name() string  { return p.name }
func (p *openAICompatibleProvider) Model() string { return p.model }

func (p *openAICompatibleProvider) Complete(ctx context.Context, req CompletionRequest) (*Completion, error) {
	messages := []openai.ChatCompletionMessage{}
	if req.SystemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.SystemPrompt})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: req.UserPrompt})

	request := openai.ChatCompletionRequest{
		Model:       p.model,
		Messages:    messages,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}
	if req.JSONMode {
		request.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	resp, err := p.client.CreateChatCompletion(ctx, request)
	if err != nil {
		return nil, fmt.Errorf("%s chat completion failed: %w", p.name, err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("empty response from " + p.name)
	}

	return &Completion{
		Content:          resp.Choices[0].Message.Content,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
	}, nil
}
