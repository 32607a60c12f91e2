package nodes

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/Chative-rag-assistant/server/internal/agent/model"
	logx "github.com/Chative-rag-assistant/server/pkg/logger"
)

// NewFinalizeNode reads the terminal state into the graph output.
func NewFinalizeNode() *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, route model.Route) (*model.TurnResult, error) {
		var out *model.TurnResult
		err := compose.ProcessState(ctx, func(_ context.Context, state *model.AppState) error {
			turn := state.TurnMessages()
			msgs := make([]*schema.Message, len(turn))
			copy(msgs, turn)
			out = &model.TurnResult{
				Route:         state.Route,
				Reply:         state.LastAssistantReply(),
				TurnMessages:  msgs,
				QueryAttempts: state.QueryAttempts,
				QueryFailed:   state.Route == model.RouteStructuredQuery && state.QueryError != "",
				CostUSD:       state.TotalCostUSD,
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to access state: %w", err)
		}
		logx.Debug().
			Str("route", out.Route.String()).
			Int("turn_messages", len(out.TurnMessages)).
			Int("query_attempts", out.QueryAttempts).
			Float64("total_cost_usd", out.CostUSD).
			Msg("turn finalized")
		return out, nil
	})
}
