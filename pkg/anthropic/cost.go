package anthropic

import "go.uber.org/zap"

// TokenUsage tracks token consumption.
type TokenUsage struct {
	InputTokens  int64
	OutputTokens int64
}

// Total returns input plus output tokens.
func (u TokenUsage) Total() int64 { return u.InputTokens + u.OutputTokens }

// Pricing is a model's price in USD per million tokens.
type Pricing struct {
	InputPerMTok  float64 `mapstructure:"input_per_mtok"`
	OutputPerMTok float64 `mapstructure:"output_per_mtok"`
}

// DefaultPricing lists published prices for the models analysis runs on.
var DefaultPricing = map[string]Pricing{
	"claude-haiku-4-5":           {InputPerMTok: 1.00, OutputPerMTok: 5.00},
	"claude-haiku-4-5-20251001":  {InputPerMTok: 1.00, OutputPerMTok: 5.00},
	"claude-sonnet-4-5":          {InputPerMTok: 3.00, OutputPerMTok: 15.00},
	"claude-sonnet-4-5-20250929": {InputPerMTok: 3.00, OutputPerMTok: 15.00},
}

// PricingFor returns the price for model, preferring overrides. Unknown
// models price at zero.
func PricingFor(model string, overrides map[string]Pricing) Pricing {
	if p, ok := overrides[model]; ok {
		return p
	}
	return DefaultPricing[model]
}

// Cost returns the USD cost of u at p.
func (u TokenUsage) Cost(p Pricing) float64 {
	return float64(u.InputTokens)/1e6*p.InputPerMTok + float64(u.OutputTokens)/1e6*p.OutputPerMTok
}

// LogCost logs token usage and cost with structured zap fields.
func (u TokenUsage) LogCost(model, phase string, p Pricing) {
	zap.L().Info("cost attribution",
		zap.String("model", model),
		zap.String("phase", phase),
		zap.Int64("input_tokens", u.InputTokens),
		zap.Int64("output_tokens", u.OutputTokens),
		zap.Float64("estimated_cost_usd", u.Cost(p)),
	)
}
