package ai

import (
	"context"
	"fmt"
)

// CompletionRequest is a single-turn prompt sent to a chat provider.
type CompletionRequest struct {
	SystemPrompt string
	UserPrompt   string
	MaxTokens    int
	Temperature  float32
	// JSONMode asks the provider to answer with a JSON object.
	JSONMode bool
}

// Completion is a provider answer with its token usage.
type Completion struct {
	Content          string
	PromptTokens     int
	CompletionTokens int
}

// ChatProvider is the strategy interface implemented once per provider family.
type ChatProvider interface {
	// Name returns the provider name, such as "openai".
	Name() string
	// Model returns the model requests are sent to.
	Model() string
	// Complete sends a single-turn completion request.
	Complete(ctx context.Context, req CompletionRequest) (*Completion, error)
}

// NewChatProvider creates the provider strategy for a provider family.
func NewChatProvider(ctx context.Context, provider, model string, cred ProviderCredential) (ChatProvider, error) {
	model = ModelOrDefault(provider, model)

	switch provider {
	case ProviderOpenAI, ProviderDeepSeek, ProviderSiliconFlow:
		return newOpenAICompatibleProvider(provider, model, cred)
	case ProviderAnthropic:
		return newAnthropicProvider(model, cred)
	case ProviderOllama:
		return newOllamaProvider(model, cred)
	case ProviderGemini:
		return newGeminiProvider(ctx, model, cred)
	default:
		return nil, fmt.Errorf("unsupported chat provider: %s", provider)
	}
}
