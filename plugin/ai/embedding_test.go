package ai

import (
	"context"
	"testing"
)

func TestNewEmbeddingService(t *testing.T) {
	tests := []struct {
		name        string
		cfg         *EmbeddingConfig
		expectError bool
	}{
		{
			name: "SiliconFlow config",
			cfg: &EmbeddingConfig{
				Provider:   "siliconflow",
				Model:      "BAAI/bge-m3",
				Dimensions: 1024,
				APIKey:     "test-key",
				BaseURL:    "https://api.siliconflow.cn/v1",
			},
		},
		{
			name: "OpenAI config",
			cfg: &EmbeddingConfig{
				Provider: "openai",
				Model:    "text-embedding-3-small",
				APIKey:   "test-key",
			},
		},
		{
			name: "Gemini config",
			cfg: &EmbeddingConfig{
				Provider: "gemini",
				APIKey:   "test-key",
			},
		},
		{
			name:        "Gemini without key",
			cfg:         &EmbeddingConfig{Provider: "gemini"},
			expectError: true,
		},
		{
			name:        "Unsupported provider",
			cfg:         &EmbeddingConfig{Provider: "unsupported"},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewEmbeddingService(context.Background(), tt.cfg)
			if (err != nil) != tt.expectError {
				t.Errorf("NewEmbeddingService() error = %v, expectError %v", err, tt.expectError)
			}
		})
	}
}

func TestEmbedBatch_NoTexts(t *testing.T) {
	svc, err := NewEmbeddingService(context.Background(), &EmbeddingConfig{Provider: "openai", APIKey: "k"})
	if err != nil {
		t.Fatalf("NewEmbeddingService() error = %v", err)
	}
	if _, err := svc.EmbedBatch(context.Background(), nil); err == nil {
		t.Error("expected error for empty input")
	}
}
