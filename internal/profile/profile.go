package profile

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Profile is the configuration to start the evaluation server and CLI.
type Profile struct {
	// Mode can be "prod" or "dev" or "demo"
	Mode string
	// Addr is the binding address for server
	Addr string
	// Port is the binding port for server
	Port int
	// Data is the data directory
	Data string
	// DSN points to where verdict stores traces and evaluations
	DSN string
	// Driver is the database driver (sqlite or postgres)
	Driver string
	// Version is the current version of server
	Version string

	// TraceRetention is how long finalized traces are kept. Zero disables cleanup.
	TraceRetention time.Duration // VERDICT_TRACE_RETENTION (default: 0)

	// Provider credentials
	AIOpenAIAPIKey       string // VERDICT_AI_OPENAI_API_KEY
	AIOpenAIBaseURL      string // VERDICT_AI_OPENAI_BASE_URL (default: https://api.openai.com/v1)
	AIDeepSeekAPIKey     string // VERDICT_AI_DEEPSEEK_API_KEY
	AIDeepSeekBaseURL    string // VERDICT_AI_DEEPSEEK_BASE_URL (default: https://api.deepseek.com)
	AISiliconFlowAPIKey  string // VERDICT_AI_SILICONFLOW_API_KEY
	AISiliconFlowBaseURL string // VERDICT_AI_SILICONFLOW_BASE_URL (default: https://api.siliconflow.cn/v1)
	AIAnthropicAPIKey    string // VERDICT_AI_ANTHROPIC_API_KEY
	AIGeminiAPIKey       string // VERDICT_AI_GEMINI_API_KEY
	AIOllamaBaseURL      string // VERDICT_AI_OLLAMA_BASE_URL (no default, presence enables ollama)

	// Embeddings for Tier 1 semantic similarity. Empty provider disables embeddings.
	AIEmbeddingProvider string // VERDICT_AI_EMBEDDING_PROVIDER
	AIEmbeddingModel    string // VERDICT_AI_EMBEDDING_MODEL (default: text-embedding-3-small)

	// Judge provider selection
	JudgePrimaryProvider  string // VERDICT_JUDGE_PROVIDER (default: auto)
	JudgePrimaryModel     string // VERDICT_JUDGE_MODEL
	JudgeFallbackProvider string // VERDICT_JUDGE_FALLBACK_PROVIDER
	JudgeFallbackModel    string // VERDICT_JUDGE_FALLBACK_MODEL
	// ChatProvider is the provider the orchestrated agents use. Inherited by an "auto" judge.
	ChatProvider string // VERDICT_CHAT_PROVIDER
	ChatModel    string // VERDICT_CHAT_MODEL
}

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

// IsJudgeConfigured returns true if at least one provider credential is present.
func (p *Profile) IsJudgeConfigured() bool {
	return p.AIOpenAIAPIKey != "" || p.AIDeepSeekAPIKey != "" || p.AISiliconFlowAPIKey != "" ||
		p.AIAnthropicAPIKey != "" || p.AIGeminiAPIKey != "" || p.AIOllamaBaseURL != ""
}

// getEnvOrDefault returns the environment variable value or the default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// FromEnv loads provider and judge configuration from VERDICT_* environment variables.
func (p *Profile) FromEnv() {
	p.AIOpenAIAPIKey = os.Getenv("VERDICT_AI_OPENAI_API_KEY")
	p.AIOpenAIBaseURL = getEnvOrDefault("VERDICT_AI_OPENAI_BASE_URL", "https://api.openai.com/v1")
	p.AIDeepSeekAPIKey = os.Getenv("VERDICT_AI_DEEPSEEK_API_KEY")
	p.AIDeepSeekBaseURL = getEnvOrDefault("VERDICT_AI_DEEPSEEK_BASE_URL", "https://api.deepseek.com")
	p.AISiliconFlowAPIKey = os.Getenv("VERDICT_AI_SILICONFLOW_API_KEY")
	p.AISiliconFlowBaseURL = getEnvOrDefault("VERDICT_AI_SILICONFLOW_BASE_URL", "https://api.siliconflow.cn/v1")
	p.AIAnthropicAPIKey = os.Getenv("VERDICT_AI_ANTHROPIC_API_KEY")
	p.AIGeminiAPIKey = os.Getenv("VERDICT_AI_GEMINI_API_KEY")
	p.AIOllamaBaseURL = os.Getenv("VERDICT_AI_OLLAMA_BASE_URL")

	p.AIEmbeddingProvider = os.Getenv("VERDICT_AI_EMBEDDING_PROVIDER")
	p.AIEmbeddingModel = getEnvOrDefault("VERDICT_AI_EMBEDDING_MODEL", "text-embedding-3-small")

	p.JudgePrimaryProvider = getEnvOrDefault("VERDICT_JUDGE_PROVIDER", "auto")
	p.JudgePrimaryModel = os.Getenv("VERDICT_JUDGE_MODEL")
	p.JudgeFallbackProvider = os.Getenv("VERDICT_JUDGE_FALLBACK_PROVIDER")
	p.JudgeFallbackModel = os.Getenv("VERDICT_JUDGE_FALLBACK_MODEL")
	p.ChatProvider = os.Getenv("VERDICT_CHAT_PROVIDER")
	p.ChatModel = os.Getenv("VERDICT_CHAT_MODEL")

	if raw := os.Getenv("VERDICT_TRACE_RETENTION"); raw != "" {
		retention, err := time.ParseDuration(raw)
		if err != nil {
			slog.Warn("invalid trace retention, cleanup disabled", slog.String("value", raw), slog.String("error", err.Error()))
		} else {
			p.TraceRetention = retention
		}
	}
}

func checkDataDir(dataDir string) (string, error) {
	// Convert to absolute path if relative path is supplied.
	if !filepath.IsAbs(dataDir) {
		absDir, err := filepath.Abs(dataDir)
		if err != nil {
			return "", err
		}
		dataDir = absDir
	}

	// Trim trailing \ or / in case user supplies
	dataDir = strings.TrimRight(dataDir, "\\/")
	if _, err := os.Stat(dataDir); err != nil {
		return "", errors.Wrapf(err, "unable to access data folder %s", dataDir)
	}
	return dataDir, nil
}

func (p *Profile) Validate() error {
	if p.Mode != "demo" && p.Mode != "dev" && p.Mode != "prod" {
		p.Mode = "demo"
	}
	if p.Driver == "" {
		p.Driver = "sqlite"
	}
	if p.Driver != "sqlite" && p.Driver != "postgres" {
		return errors.Errorf("unsupported driver %q: only sqlite and postgres are supported", p.Driver)
	}

	if p.Mode == "prod" && p.Data == "" {
		if runtime.GOOS == "windows" {
			p.Data = filepath.Join(os.Getenv("ProgramData"), "verdict")
		} else {
			p.Data = "/var/opt/verdict"
		}
		if _, err := os.Stat(p.Data); os.IsNotExist(err) {
			if err := os.MkdirAll(p.Data, 0770); err != nil {
				slog.Error("failed to create data directory", slog.String("data", p.Data), slog.String("error", err.Error()))
				return err
			}
		}
	}
	if p.Data == "" {
		p.Data = "."
	}

	dataDir, err := checkDataDir(p.Data)
	if err != nil {
		slog.Error("failed to check data dir", slog.String("data", p.Data), slog.String("error", err.Error()))
		return err
	}

	p.Data = dataDir
	if p.Driver == "sqlite" && p.DSN == "" {
		dbFile := fmt.Sprintf("verdict_%s.db", p.Mode)
		p.DSN = filepath.Join(dataDir, dbFile)
	}
	if p.Driver == "postgres" && p.DSN == "" {
		return errors.New("dsn is required for the postgres driver")
	}

	return nil
}
