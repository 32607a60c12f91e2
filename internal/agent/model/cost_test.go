package model

import (
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
)

func TestComputeCost(t *testing.T) {
	usage := &schema.TokenUsage{PromptTokens: 1_000_000, CompletionTokens: 500_000}
	in, out, total := ComputeCost(usage, ResolvePricing(ModelGeminiFlash))

	assert.InDelta(t, 0.30, in, 1e-9)
	assert.InDelta(t, 1.25, out, 1e-9)
	assert.InDelta(t, 1.55, total, 1e-9)
}

func TestMessageCost(t *testing.T) {
	assert.Zero(t, MessageCost(nil, ModelGeminiFlash))
	assert.Zero(t, MessageCost(schema.AssistantMessage("x", nil), ModelGeminiFlash))

	msg := schema.AssistantMessage("x", nil)
	msg.ResponseMeta = &schema.ResponseMeta{Usage: &schema.TokenUsage{PromptTokens: 2_000_000}}
	assert.InDelta(t, 0.2, MessageCost(msg, ModelGeminiFlashLite), 1e-9)
	assert.Zero(t, MessageCost(msg, ModelName("unknown")))
}
