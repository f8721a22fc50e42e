package profile

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var verdictEnvVars = []string{
	"VERDICT_AI_OPENAI_API_KEY",
	"VERDICT_AI_OPENAI_BASE_URL",
	"VERDICT_AI_DEEPSEEK_API_KEY",
	"VERDICT_AI_DEEPSEEK_BASE_URL",
	"VERDICT_AI_SILICONFLOW_API_KEY",
	"VERDICT_AI_SILICONFLOW_BASE_URL",
	"VERDICT_AI_ANTHROPIC_API_KEY",
	"VERDICT_AI_GEMINI_API_KEY",
	"VERDICT_AI_OLLAMA_BASE_URL",
	"VERDICT_AI_EMBEDDING_PROVIDER",
	"VERDICT_AI_EMBEDDING_MODEL",
	"VERDICT_JUDGE_PROVIDER",
	"VERDICT_JUDGE_MODEL",
	"VERDICT_JUDGE_FALLBACK_PROVIDER",
	"VERDICT_JUDGE_FALLBACK_MODEL",
	"VERDICT_CHAT_PROVIDER",
	"VERDICT_CHAT_MODEL",
	"VERDICT_TRACE_RETENTION",
}

// clearEnv unsets every variable FromEnv reads for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range verdictEnvVars {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func TestProfileDefaults(t *testing.T) {
	clearEnv(t)

	p := &Profile{}
	p.FromEnv()

	tests := []struct {
		name     string
		actual   string
		expected string
	}{
		{"OpenAI base url", p.AIOpenAIBaseURL, "https://api.openai.com/v1"},
		{"DeepSeek base url", p.AIDeepSeekBaseURL, "https://api.deepseek.com"},
		{"SiliconFlow base url", p.AISiliconFlowBaseURL, "https://api.siliconflow.cn/v1"},
		{"Ollama base url is empty", p.AIOllamaBaseURL, ""},
		{"embedding model", p.AIEmbeddingModel, "text-embedding-3-small"},
		{"judge provider", p.JudgePrimaryProvider, "auto"},
		{"fallback provider", p.JudgeFallbackProvider, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.actual)
		})
	}
	assert.False(t, p.IsJudgeConfigured())
	assert.Zero(t, p.TraceRetention)
}

func TestProfileFromEnv(t *testing.T) {
	tests := []struct {
		name     string
		envVar   string
		envValue string
		field    func(*Profile) string
	}{
		{"judge provider", "VERDICT_JUDGE_PROVIDER", "anthropic", func(p *Profile) string { return p.JudgePrimaryProvider }},
		{"judge model", "VERDICT_JUDGE_MODEL", "claude-3-5-haiku-latest", func(p *Profile) string { return p.JudgePrimaryModel }},
		{"fallback provider", "VERDICT_JUDGE_FALLBACK_PROVIDER", "openai", func(p *Profile) string { return p.JudgeFallbackProvider }},
		{"chat provider", "VERDICT_CHAT_PROVIDER", "deepseek", func(p *Profile) string { return p.ChatProvider }},
		{"gemini key", "VERDICT_AI_GEMINI_API_KEY", "g-key", func(p *Profile) string { return p.AIGeminiAPIKey }},
		{"ollama url", "VERDICT_AI_OLLAMA_BASE_URL", "http://localhost:11434", func(p *Profile) string { return p.AIOllamaBaseURL }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.envVar, tt.envValue)

			p := &Profile{}
			p.FromEnv()
			assert.Equal(t, tt.envValue, tt.field(p))
		})
	}
}

func TestProfileTraceRetention(t *testing.T) {
	t.Run("valid duration", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("VERDICT_TRACE_RETENTION", "72h")
		p := &Profile{}
		p.FromEnv()
		assert.Equal(t, 72*time.Hour, p.TraceRetention)
	})

	t.Run("invalid duration disables cleanup", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("VERDICT_TRACE_RETENTION", "three days")
		p := &Profile{}
		p.FromEnv()
		assert.Zero(t, p.TraceRetention)
	})
}

func TestIsJudgeConfigured(t *testing.T) {
	assert.True(t, (&Profile{AIAnthropicAPIKey: "k"}).IsJudgeConfigured())
	assert.True(t, (&Profile{AIOllamaBaseURL: "http://localhost:11434"}).IsJudgeConfigured())
	assert.False(t, (&Profile{}).IsJudgeConfigured())
}

func TestValidate(t *testing.T) {
	t.Run("sqlite dsn derived from data dir", func(t *testing.T) {
		dir := t.TempDir()
		p := &Profile{Mode: "dev", Data: dir}
		require.NoError(t, p.Validate())
		assert.Equal(t, "sqlite", p.Driver)
		assert.Equal(t, filepath.Join(p.Data, "verdict_dev.db"), p.DSN)
	})

	t.Run("unknown mode falls back to demo", func(t *testing.T) {
		p := &Profile{Mode: "staging", Data: t.TempDir()}
		require.NoError(t, p.Validate())
		assert.Equal(t, "demo", p.Mode)
	})

	t.Run("postgres requires dsn", func(t *testing.T) {
		p := &Profile{Mode: "dev", Data: t.TempDir(), Driver: "postgres"}
		assert.Error(t, p.Validate())
	})

	t.Run("unsupported driver", func(t *testing.T) {
		p := &Profile{Mode: "dev", Data: t.TempDir(), Driver: "mysql"}
		assert.Error(t, p.Validate())
	})

	t.Run("missing data dir", func(t *testing.T) {
		p := &Profile{Mode: "dev", Data: filepath.Join(t.TempDir(), "missing")}
		assert.Error(t, p.Validate())
	})
}
