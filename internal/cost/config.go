package cost

import (
	"fmt"
)

// Config holds token budgeting configuration for a single run
type Config struct {
	// MaxTokensPerRun is the maximum number of tokens (input + output) for the whole run
	// 0 = unlimited
	MaxTokensPerRun int64 `json:"max_tokens_per_run"`

	// MaxTokensPerFolder is the maximum number of tokens spent on one folder
	// 0 = unlimited
	MaxTokensPerFolder int64 `json:"max_tokens_per_folder"`

	// AlertThreshold is the fraction of the run budget that triggers a warning
	// Default: 0.80
	AlertThreshold float64 `json:"alert_threshold"`

	// InputTokenCost is the cost per 1M input tokens (in USD), for the estimate only
	InputTokenCost float64 `json:"input_token_cost"`

	// OutputTokenCost is the cost per 1M output tokens (in USD), for the estimate only
	OutputTokenCost float64 `json:"output_token_cost"`
}

// DefaultConfig returns an unlimited budget priced for provider.
func DefaultConfig(provider string) *Config {
	in, out := PricingFor(provider)
	return &Config{
		AlertThreshold:  0.80,
		InputTokenCost:  in,
		OutputTokenCost: out,
	}
}

// PricingFor returns list prices per 1M tokens (input, output) for the
// default model of provider.
func PricingFor(provider string) (input, output float64) {
	switch provider {
	case "anthropic":
		return 3.00, 15.00 // Claude Sonnet 4.5
	default:
		return 0.30, 2.50 // Gemini 2.5 Flash
	}
}

// Validate checks that the configuration has safe and reasonable values
func (c *Config) Validate() error {
	if c.MaxTokensPerRun < 0 {
		return fmt.Errorf("max_tokens_per_run must be non-negative, got %d", c.MaxTokensPerRun)
	}
	if c.MaxTokensPerFolder < 0 {
		return fmt.Errorf("max_tokens_per_folder must be non-negative, got %d", c.MaxTokensPerFolder)
	}
	if c.AlertThreshold <= 0 || c.AlertThreshold > 1.0 {
		return fmt.Errorf("alert_threshold must be between 0 and 1, got %.2f", c.AlertThreshold)
	}
	if c.InputTokenCost < 0 || c.OutputTokenCost < 0 {
		return fmt.Errorf("token costs must be non-negative")
	}
	return nil
}
