package nodes

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components"
	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/Chative-rag-assistant/server/internal/agent/model"
	errx "github.com/Chative-rag-assistant/server/internal/core/error"
	logx "github.com/Chative-rag-assistant/server/pkg/logger"
)

// ===== Small helpers to keep handlers simple/readable =====

// snapshot copies the graph state out of the state lock.
func snapshot(ctx context.Context) (model.AppState, error) {
	var s model.AppState
	err := compose.ProcessState(ctx, func(_ context.Context, state *model.AppState) error {
		s = state.Snapshot()
		return nil
	})
	if err != nil {
		return model.AppState{}, fmt.Errorf("failed to access state: %w", err)
	}
	return s, nil
}

// apply merges a node's partial update into the graph state.
func apply(ctx context.Context, upd model.StateUpdate) error {
	err := compose.ProcessState(ctx, func(_ context.Context, state *model.AppState) error {
		state.Apply(upd)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to update state: %w", err)
	}
	return nil
}

// generate calls a role model under a chat-model run info so model
// callbacks fire, and returns the reply with its cost.
func generate(ctx context.Context, cm einomodel.BaseChatModel, name model.ModelName, node string, sessionID string, msgs []*schema.Message) (*schema.Message, float64, error) {
	ctx = callbacks.ReuseHandlers(ctx, &callbacks.RunInfo{
		Name:      node,
		Type:      string(name),
		Component: components.ComponentOfChatModel,
	})

	out, err := cm.Generate(ctx, msgs)
	if err != nil {
		logx.Error().Err(err).Str("session_id", sessionID).Str("node", node).Msg("model call failed")
		return nil, 0, errx.WrapModel(err)
	}
	if out == nil {
		return nil, 0, errx.WrapModel(fmt.Errorf("%s: nil model reply", node))
	}
	return out, logUsage(sessionID, node, name, out), nil
}

// logUsage logs token usage and returns the cost of the call.
func logUsage(sessionID, node string, name model.ModelName, out *schema.Message) float64 {
	if out.ResponseMeta == nil || out.ResponseMeta.Usage == nil {
		return 0
	}
	usage := out.ResponseMeta.Usage
	inC, outC, totalC := model.ComputeCost(usage, model.ResolvePricing(name))
	logx.Debug().
		Str("session_id", sessionID).
		Str("node", node).
		Str("model", string(name)).
		Int("prompt_tokens", usage.PromptTokens).
		Int("completion_tokens", usage.CompletionTokens).
		Int("total_tokens", usage.TotalTokens).
		Float64("input_cost_usd", inC).
		Float64("output_cost_usd", outC).
		Float64("total_cost_usd", totalC).
		Msg("LLM usage")
	return totalC
}
