package judge

import (
	"github.com/hrygo/verdict/plugin/ai"
)

// Source tells how a provider was selected.
type Source string

const (
	SourcePrimary   Source = "primary"
	SourceFallback  Source = "fallback"
	SourceInherited Source = "inherited"
	SourceNone      Source = "none"
)

// Selection is the resolved judge provider.
type Selection struct {
	Provider  string `json:"provider"`
	Model     string `json:"model"`
	Source    Source `json:"source"`
	Available bool   `json:"available"`
}

// Unavailable is the selection when no provider can be reached.
var Unavailable = Selection{Source: SourceNone}

// ResolveSelection picks the judge provider:
//  1. the primary provider when it is named and has credentials;
//  2. else the fallback provider when it is named and has credentials;
//  3. else, for primary "auto", the orchestration's chat provider when it has credentials;
//  4. else nothing is available.
func ResolveSelection(cfg ai.JudgeConfig, creds ai.Credentials) Selection {
	candidates := resolveChain(cfg, creds)
	if len(candidates) == 0 {
		return Unavailable
	}
	return candidates[0]
}

// resolveChain returns every usable selection in preference order.
func resolveChain(cfg ai.JudgeConfig, creds ai.Credentials) []Selection {
	var chain []Selection
	add := func(provider, model string, source Source) {
		if provider == "" || provider == ai.ProviderAuto || !creds.Has(provider) {
			return
		}
		for _, s := range chain {
			if s.Provider == provider {
				return
			}
		}
		chain = append(chain, Selection{
			Provider:  provider,
			Model:     ai.ModelOrDefault(provider, model),
			Source:    source,
			Available: true,
		})
	}

	add(cfg.PrimaryProvider, cfg.PrimaryModel, SourcePrimary)
	add(cfg.FallbackProvider, cfg.FallbackModel, SourceFallback)
	if cfg.PrimaryProvider == ai.ProviderAuto || cfg.PrimaryProvider == "" {
		add(cfg.ChatProvider, cfg.ChatModel, SourceInherited)
	}
	return chain
}
