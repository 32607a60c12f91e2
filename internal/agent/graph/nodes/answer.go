package nodes

import (
	"context"
	"strings"

	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/Chative-rag-assistant/server/internal/agent/graph/conversations"
	"github.com/Chative-rag-assistant/server/internal/agent/graph/prompts"
	"github.com/Chative-rag-assistant/server/internal/agent/model"
)

type AnswerConfig struct {
	Persona       string
	Language      string
	FallbackReply string
}

// NewAnswerNode synthesizes the final reply from persona, context and history.
func NewAnswerNode(cms *ChatModels, mm *conversations.MessagesManager, cfg AnswerConfig) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, route model.Route) (model.Route, error) {
		state, err := snapshot(ctx)
		if err != nil {
			return route, err
		}

		vars := prompts.AnswerVars{
			Persona:     cfg.Persona,
			Language:    cfg.Language,
			PersonaOnly: state.Route == model.RoutePersonaAnswer,
		}
		if !vars.PersonaOnly {
			vars.Context = prompts.FormatContext(state.RetrievedContext, state.WebContext)
		}
		msgs, err := prompts.RenderAnswer(ctx, vars, mm.PromptHistory(state.Messages))
		if err != nil {
			return route, err
		}

		out, cost, err := generate(ctx, cms.Answer, cms.Name, NodeAnswer, state.SessionID, msgs)
		if err != nil {
			return route, err
		}
		return route, apply(ctx, model.StateUpdate{
			Messages: []*schema.Message{assistantReply(out.Content, cfg.FallbackReply)},
			CostUSD:  cost,
		})
	})
}

func assistantReply(content, fallback string) *schema.Message {
	content = strings.TrimSpace(content)
	if content == "" {
		content = fallback
	}
	return schema.AssistantMessage(content, nil)
}
