package ai

import (
	"errors"
	"fmt"

	"github.com/hrygo/verdict/internal/profile"
)

// Provider names.
const (
	ProviderOpenAI      = "openai"
	ProviderDeepSeek    = "deepseek"
	ProviderSiliconFlow = "siliconflow"
	ProviderAnthropic   = "anthropic"
	ProviderGemini      = "gemini"
	ProviderOllama      = "ollama"
	// ProviderAuto makes the judge inherit the orchestration's chat provider.
	ProviderAuto = "auto"
)

// DefaultModels is the model used for a provider when none is configured.
var DefaultModels = map[string]string{
	ProviderOpenAI:      "gpt-4o-mini",
	ProviderDeepSeek:    "deepseek-chat",
	ProviderSiliconFlow: "Qwen/Qwen2.5-7B-Instruct",
	ProviderAnthropic:   "claude-3-5-haiku-latest",
	ProviderGemini:      "gemini-2.0-flash",
	ProviderOllama:      "llama3.1",
}

// Config represents AI configuration.
type Config struct {
	Embedding   EmbeddingConfig
	Judge       JudgeConfig
	Credentials Credentials
}

// EmbeddingConfig represents vector embedding configuration.
// An empty Provider disables embeddings.
type EmbeddingConfig struct {
	Provider   string // openai, siliconflow, gemini
	Model      string // text-embedding-3-small
	Dimensions int
	APIKey     string
	BaseURL    string
}

// JudgeConfig names the judge providers. Models may be empty to use DefaultModels.
type JudgeConfig struct {
	PrimaryProvider  string
	PrimaryModel     string
	FallbackProvider string
	FallbackModel    string
	// ChatProvider and ChatModel describe the orchestration's own chat provider.
	ChatProvider string
	ChatModel    string
}

// ProviderCredential holds what is needed to reach one provider.
type ProviderCredential struct {
	APIKey  string
	BaseURL string
}

// Credentials maps provider names to their credentials.
type Credentials map[string]ProviderCredential

// Has reports whether a usable credential exists for provider.
// Ollama is keyless, so a base URL counts as its credential.
func (c Credentials) Has(provider string) bool {
	cred, ok := c[provider]
	if !ok {
		return false
	}
	if provider == ProviderOllama {
		return cred.BaseURL != ""
	}
	return cred.APIKey != ""
}

// NewConfigFromProfile creates AI config from profile.
func NewConfigFromProfile(p *profile.Profile) *Config {
	cfg := &Config{
		Credentials: Credentials{
			ProviderOpenAI:      {APIKey: p.AIOpenAIAPIKey, BaseURL: p.AIOpenAIBaseURL},
			ProviderDeepSeek:    {APIKey: p.AIDeepSeekAPIKey, BaseURL: p.AIDeepSeekBaseURL},
			ProviderSiliconFlow: {APIKey: p.AISiliconFlowAPIKey, BaseURL: p.AISiliconFlowBaseURL},
			ProviderAnthropic:   {APIKey: p.AIAnthropicAPIKey},
			ProviderGemini:      {APIKey: p.AIGeminiAPIKey},
			ProviderOllama:      {BaseURL: p.AIOllamaBaseURL},
		},
		Judge: JudgeConfig{
			PrimaryProvider:  p.JudgePrimaryProvider,
			PrimaryModel:     p.JudgePrimaryModel,
			FallbackProvider: p.JudgeFallbackProvider,
			FallbackModel:    p.JudgeFallbackModel,
			ChatProvider:     p.ChatProvider,
			ChatModel:        p.ChatModel,
		},
	}
	if cfg.Judge.PrimaryProvider == "" {
		cfg.Judge.PrimaryProvider = ProviderAuto
	}

	if p.AIEmbeddingProvider != "" {
		cred := cfg.Credentials[p.AIEmbeddingProvider]
		cfg.Embedding = EmbeddingConfig{
			Provider: p.AIEmbeddingProvider,
			Model:    p.AIEmbeddingModel,
			APIKey:   cred.APIKey,
			BaseURL:  cred.BaseURL,
		}
	}

	return cfg
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Embedding.Provider != "" && c.Embedding.APIKey == "" {
		return fmt.Errorf("embedding provider %s has no API key", c.Embedding.Provider)
	}
	if c.Judge.PrimaryProvider == "" {
		return errors.New("judge primary provider is required, use \"auto\" to inherit the chat provider")
	}
	for _, name := range []string{c.Judge.PrimaryProvider, c.Judge.FallbackProvider, c.Judge.ChatProvider} {
		if name == "" || name == ProviderAuto {
			continue
		}
		if _, ok := DefaultModels[name]; !ok {
			return fmt.Errorf("unsupported provider: %s", name)
		}
	}
	return nil
}

// ModelOrDefault returns model, or the provider's default model when empty.
func ModelOrDefault(provider, model string) string {
	if model != "" {
		return model
	}
	return DefaultModels[provider]
}
