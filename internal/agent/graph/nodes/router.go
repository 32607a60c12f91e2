package nodes

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/Chative-rag-assistant/server/internal/agent/model"
	"github.com/Chative-rag-assistant/server/internal/agent/router"
	logx "github.com/Chative-rag-assistant/server/pkg/logger"
)

// NewRouterPreHandler seeds the per-turn state from the graph input.
func NewRouterPreHandler() func(context.Context, model.TurnInput, *model.AppState) (model.TurnInput, error) {
	return func(ctx context.Context, in model.TurnInput, s *model.AppState) (model.TurnInput, error) {
		s.SessionID = in.SessionID
		s.Model = in.Model
		s.SourceHint = in.SourceHint

		s.Messages = make([]*schema.Message, 0, len(in.History)+4)
		s.Messages = append(s.Messages, in.History...)
		s.TurnStart = len(s.Messages)
		s.Messages = append(s.Messages, schema.UserMessage(in.Question))

		s.Route = ""
		s.TotalCostUSD = 0
		return in, nil
	}
}

// NewRouterNode runs the three routing tiers and records the decision.
func NewRouterNode(r *router.Router) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, in model.TurnInput) (model.Route, error) {
		state, err := snapshot(ctx)
		if err != nil {
			return "", err
		}
		decision, upd := r.Route(ctx, state)
		if err := apply(ctx, upd); err != nil {
			return "", err
		}
		return decision.Route, nil
	})
}

// RouteTable maps every route to the first node of its branch.
func RouteTable() map[model.Route]string {
	return map[model.Route]string{
		model.RouteRetrieval:       NodeRetrieval,
		model.RouteStructuredQuery: NodeFetchSchema,
		model.RouteDirectAnswer:    NodeAnswer,
		model.RoutePersonaAnswer:   NodeAnswer,
		model.RouteTerminate:       NodeFinalize,
	}
}

// NewRouterCondition dispatches on the router output through table.
func NewRouterCondition(table map[model.Route]string) func(context.Context, model.Route) (string, error) {
	return func(ctx context.Context, route model.Route) (string, error) {
		next, ok := table[route]
		if !ok {
			return "", fmt.Errorf("no branch for route %q", route)
		}
		logx.Debug().Str("route", route.String()).Str("next", next).Msg("dispatching route")
		return next, nil
	}
}
