package router

import (
	"context"
	"strings"

	"github.com/cloudwego/eino/schema"

	"github.com/Chative-rag-assistant/server/internal/agent/catalog"
	"github.com/Chative-rag-assistant/server/internal/agent/model"
	logx "github.com/Chative-rag-assistant/server/pkg/logger"
)

const DefaultTerminateReply = "Claro, ¿hay algo más en lo que pueda ayudarte?"

// Lookup resolves an out-of-band document hint.
type Lookup interface {
	Lookup(ctx context.Context, hint string) (catalog.SourceKind, error)
}

// Classifier is the model-backed last tier. costUSD is reported even when
// the decision is unusable.
type Classifier interface {
	Classify(ctx context.Context, history []*schema.Message) (decision *model.RouteDecision, costUSD float64, err error)
}

type Config struct {
	Catalog      Lookup
	Keywords     KeywordSet
	Classifier   Classifier
	DefaultReply string
}

// Router picks exactly one route per turn: hint, then keywords, then the
// classifier. It never fails; unusable classifier output falls back to retrieval.
type Router struct {
	catalog      Lookup
	keywords     KeywordSet
	classifier   Classifier
	defaultReply string
}

func New(cfg Config) *Router {
	reply := strings.TrimSpace(cfg.DefaultReply)
	if reply == "" {
		reply = DefaultTerminateReply
	}
	return &Router{
		catalog:      cfg.Catalog,
		keywords:     cfg.Keywords,
		classifier:   cfg.Classifier,
		defaultReply: reply,
	}
}

// Route decides the branch for the turn held in state and returns the
// partial update to merge.
func (r *Router) Route(ctx context.Context, state model.AppState) (model.RouteDecision, model.StateUpdate) {
	log := logx.With(state.SessionID)

	decision, cost := r.decide(ctx, state)
	upd := model.StateUpdate{Route: model.Ptr(decision.Route), CostUSD: cost}
	if decision.Route == model.RouteTerminate {
		if decision.Reply == "" {
			decision.Reply = r.defaultReply
		}
		upd.Messages = []*schema.Message{schema.AssistantMessage(decision.Reply, nil)}
	}

	log.Debug().
		Str("route", decision.Route.String()).
		Str("tier", string(decision.Tier)).
		Msg("route selected")
	return decision, upd
}

func (r *Router) decide(ctx context.Context, state model.AppState) (model.RouteDecision, float64) {
	log := logx.With(state.SessionID)

	if hint := strings.TrimSpace(state.SourceHint); hint != "" && r.catalog != nil {
		kind, err := r.catalog.Lookup(ctx, hint)
		switch {
		case err != nil:
			log.Warn().Err(err).Str("hint", hint).Msg("source hint lookup failed; trying next tier")
		case kind == catalog.SourceStructured:
			return model.RouteDecision{Route: model.RouteStructuredQuery, Tier: model.TierHint}, 0
		case kind == catalog.SourceKnowledgeBase:
			return model.RouteDecision{Route: model.RouteRetrieval, Tier: model.TierHint}, 0
		}
	}

	if kw, ok := r.keywords.Match(state.LastUserMessage()); ok {
		log.Debug().Str("keyword", kw).Msg("keyword tier matched")
		return model.RouteDecision{Route: model.RouteStructuredQuery, Tier: model.TierKeyword}, 0
	}

	fallback := model.RouteDecision{Route: model.RouteRetrieval, Tier: model.TierFallback}
	if r.classifier == nil {
		return fallback, 0
	}
	d, cost, err := r.classifier.Classify(ctx, state.Messages)
	if err != nil {
		log.Warn().Err(err).Msg("route classifier failed; falling back to retrieval")
		return fallback, cost
	}
	if d == nil || !d.Route.Valid() {
		log.Warn().Msg("route classifier returned an invalid route; falling back to retrieval")
		return fallback, cost
	}
	d.Tier = model.TierClassifier
	return *d, cost
}
