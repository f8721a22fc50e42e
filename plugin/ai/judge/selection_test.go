package judge

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hrygo/verdict/plugin/ai"
)

func TestResolveSelection(t *testing.T) {
	creds := ai.Credentials{
		ai.ProviderOpenAI:    {APIKey: "sk-openai"},
		ai.ProviderDeepSeek:  {APIKey: "sk-deepseek"},
		ai.ProviderAnthropic: {APIKey: ""},
		ai.ProviderOllama:    {BaseURL: "http://localhost:11434"},
	}

	tests := []struct {
		name     string
		cfg      ai.JudgeConfig
		expected Selection
	}{
		{
			name: "primary with credentials",
			cfg:  ai.JudgeConfig{PrimaryProvider: ai.ProviderDeepSeek, PrimaryModel: "deepseek-reasoner", FallbackProvider: ai.ProviderOpenAI},
			expected: Selection{
				Provider: ai.ProviderDeepSeek, Model: "deepseek-reasoner", Source: SourcePrimary, Available: true,
			},
		},
		{
			name: "primary without credentials falls back",
			cfg:  ai.JudgeConfig{PrimaryProvider: ai.ProviderAnthropic, FallbackProvider: ai.ProviderOpenAI},
			expected: Selection{
				Provider: ai.ProviderOpenAI, Model: ai.DefaultModels[ai.ProviderOpenAI], Source: SourceFallback, Available: true,
			},
		},
		{
			name: "auto inherits chat provider",
			cfg:  ai.JudgeConfig{PrimaryProvider: ai.ProviderAuto, ChatProvider: ai.ProviderOllama, ChatModel: "qwen2.5"},
			expected: Selection{
				Provider: ai.ProviderOllama, Model: "qwen2.5", Source: SourceInherited, Available: true,
			},
		},
		{
			name: "fallback wins over inherited",
			cfg:  ai.JudgeConfig{PrimaryProvider: ai.ProviderAuto, FallbackProvider: ai.ProviderDeepSeek, ChatProvider: ai.ProviderOpenAI},
			expected: Selection{
				Provider: ai.ProviderDeepSeek, Model: ai.DefaultModels[ai.ProviderDeepSeek], Source: SourceFallback, Available: true,
			},
		},
		{
			name:     "named primary never inherits",
			cfg:      ai.JudgeConfig{PrimaryProvider: ai.ProviderAnthropic, ChatProvider: ai.ProviderOpenAI},
			expected: Unavailable,
		},
		{
			name:     "nothing credentialed",
			cfg:      ai.JudgeConfig{PrimaryProvider: ai.ProviderGemini, FallbackProvider: ai.ProviderSiliconFlow},
			expected: Unavailable,
		},
		{
			name:     "auto without chat provider",
			cfg:      ai.JudgeConfig{PrimaryProvider: ai.ProviderAuto},
			expected: Unavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ResolveSelection(tt.cfg, creds))
		})
	}
}

func TestResolveChain_Deduplicates(t *testing.T) {
	creds := ai.Credentials{ai.ProviderOpenAI: {APIKey: "sk"}}
	chain := resolveChain(ai.JudgeConfig{
		PrimaryProvider:  ai.ProviderOpenAI,
		FallbackProvider: ai.ProviderOpenAI,
	}, creds)

	assert.Len(t, chain, 1)
	assert.Equal(t, SourcePrimary, chain[0].Source)
}
