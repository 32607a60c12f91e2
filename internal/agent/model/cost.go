package model

import (
	"github.com/cloudwego/eino/schema"
)

// Pricing defines USD cost per 1M tokens for input/output.
type Pricing struct {
	InputPerM  float64
	OutputPerM float64
}

// defaultPricing provides USD pricing per 1M text tokens.
var defaultPricing = map[ModelName]Pricing{
	ModelGeminiFlash:     {InputPerM: 0.30, OutputPerM: 2.50},
	ModelGeminiFlashLite: {InputPerM: 0.10, OutputPerM: 0.40},
	ModelLlama:           {InputPerM: 0.85, OutputPerM: 1.20},
}

// ResolvePricing returns the pricing for a model, zero when unknown.
func ResolvePricing(model ModelName) Pricing {
	return defaultPricing[model]
}

// ComputeCost converts token usage to USD cost using per-1M Pricing.
func ComputeCost(usage *schema.TokenUsage, p Pricing) (inputCost, outputCost, total float64) {
	if usage == nil {
		return 0, 0, 0
	}
	inputCost = p.InputPerM * float64(usage.PromptTokens) / 1_000_000.0
	outputCost = p.OutputPerM * float64(usage.CompletionTokens) / 1_000_000.0
	total = inputCost + outputCost
	return
}

// MessageCost returns the cost of the call that produced msg.
func MessageCost(msg *schema.Message, model ModelName) float64 {
	if msg == nil || msg.ResponseMeta == nil || msg.ResponseMeta.Usage == nil {
		return 0
	}
	_, _, total := ComputeCost(msg.ResponseMeta.Usage, ResolvePricing(model))
	return total
}
