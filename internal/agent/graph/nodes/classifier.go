package nodes

import (
	"context"
	"fmt"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/Chative-rag-assistant/server/internal/agent/graph/conversations"
	"github.com/Chative-rag-assistant/server/internal/agent/graph/parsers"
	"github.com/Chative-rag-assistant/server/internal/agent/graph/prompts"
	"github.com/Chative-rag-assistant/server/internal/agent/model"
)

// LLMClassifier is the router's model tier.
type LLMClassifier struct {
	chat  einomodel.BaseChatModel
	name  model.ModelName
	mm    *conversations.MessagesManager
	table string
}

func NewLLMClassifier(chat einomodel.BaseChatModel, name model.ModelName, mm *conversations.MessagesManager, table string) *LLMClassifier {
	return &LLMClassifier{chat: chat, name: name, mm: mm, table: table}
}

func (c *LLMClassifier) Classify(ctx context.Context, history []*schema.Message) (*model.RouteDecision, float64, error) {
	msgs, err := prompts.RenderRouter(ctx, c.table, c.mm.RouterHistory(history))
	if err != nil {
		return nil, 0, fmt.Errorf("render router prompt: %w", err)
	}
	out, cost, err := generate(ctx, c.chat, c.name, NodeRouter, "", msgs)
	if err != nil {
		return nil, 0, err
	}
	decision, err := parsers.ParseRouteDecision(out.Content)
	if err != nil {
		return nil, cost, err
	}
	return decision, cost, nil
}
