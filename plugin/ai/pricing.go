package ai

import "sync"

// ModelPricing is the USD price per million tokens of one model.
type ModelPricing struct {
	InputPer1M  float64
	OutputPer1M float64
}

// PricingConfig maps provider -> model -> pricing.
type PricingConfig struct {
	mu      sync.RWMutex
	Pricing map[string]map[string]ModelPricing
}

// NewPricingConfig creates an empty pricing table.
func NewPricingConfig() *PricingConfig {
	return &PricingConfig{Pricing: make(map[string]map[string]ModelPricing)}
}

// DefaultPricing returns list prices for the default judge models.
// Ollama models run locally and are free.
func DefaultPricing() *PricingConfig {
	config := NewPricingConfig()
	config.SetProviderPricing(ProviderOpenAI, map[string]ModelPricing{
		"gpt-4o-mini": {InputPer1M: 0.15, OutputPer1M: 0.60},
		"gpt-4o":      {InputPer1M: 2.50, OutputPer1M: 10.00},
		"gpt-4.1":     {InputPer1M: 2.00, OutputPer1M: 8.00},
	})
	config.SetProviderPricing(ProviderDeepSeek, map[string]ModelPricing{
		"deepseek-chat":     {InputPer1M: 0.27, OutputPer1M: 1.10},
		"deepseek-reasoner": {InputPer1M: 0.55, OutputPer1M: 2.19},
	})
	config.SetProviderPricing(ProviderSiliconFlow, map[string]ModelPricing{
		"Qwen/Qwen2.5-7B-Instruct": {InputPer1M: 0, OutputPer1M: 0},
	})
	config.SetProviderPricing(ProviderAnthropic, map[string]ModelPricing{
		"claude-3-5-haiku-latest":  {InputPer1M: 0.80, OutputPer1M: 4.00},
		"claude-3-5-sonnet-latest": {InputPer1M: 3.00, OutputPer1M: 15.00},
		"claude-3-haiku-20240307":  {InputPer1M: 0.25, OutputPer1M: 1.25},
	})
	config.SetProviderPricing(ProviderGemini, map[string]ModelPricing{
		"gemini-2.0-flash": {InputPer1M: 0.10, OutputPer1M: 0.40},
		"gemini-1.5-flash": {InputPer1M: 0.075, OutputPer1M: 0.30},
		"gemini-1.5-pro":   {InputPer1M: 1.25, OutputPer1M: 5.00},
	})
	return config
}

// SetProviderPricing replaces the pricing of every model of a provider.
func (c *PricingConfig) SetProviderPricing(provider string, models map[string]ModelPricing) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Pricing[provider] = models
}

// SetModelPricing sets the pricing of one model.
func (c *PricingConfig) SetModelPricing(provider, model string, pricing ModelPricing) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Pricing[provider] == nil {
		c.Pricing[provider] = make(map[string]ModelPricing)
	}
	c.Pricing[provider][model] = pricing
}

// GetModelPricing returns the pricing of a model, or nil if unknown.
func (c *PricingConfig) GetModelPricing(provider, model string) *ModelPricing {
	c.mu.RLock()
	defer c.mu.RUnlock()
	pricing, ok := c.Pricing[provider][model]
	if !ok {
		return nil
	}
	return &pricing
}

// EstimateCost returns the USD cost of a request. Unknown models cost 0.
func (c *PricingConfig) EstimateCost(provider, model string, promptTokens, completionTokens int) float64 {
	pricing := c.GetModelPricing(provider, model)
	if pricing == nil {
		return 0
	}
	return float64(promptTokens)/1e6*pricing.InputPer1M + float64(completionTokens)/1e6*pricing.OutputPer1M
}
