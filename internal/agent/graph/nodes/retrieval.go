package nodes

import (
	"context"
	"strings"

	"github.com/cloudwego/eino/compose"

	"github.com/Chative-rag-assistant/server/internal/agent/model"
	"github.com/Chative-rag-assistant/server/internal/agent/retrieval"
	logx "github.com/Chative-rag-assistant/server/pkg/logger"
)

// NewRetrievalNode looks up knowledge-base context for the newest user message.
// A failed or empty search leaves the context empty.
func NewRetrievalNode(searcher retrieval.Searcher) *compose.Lambda {
	return newSearchNode(NodeRetrieval, searcher, func(text string) model.StateUpdate {
		return model.StateUpdate{RetrievedContext: model.Ptr(text)}
	})
}

// NewWebSearchNode is the web fallback for an empty knowledge-base search.
func NewWebSearchNode(searcher retrieval.Searcher) *compose.Lambda {
	return newSearchNode(NodeWebSearch, searcher, func(text string) model.StateUpdate {
		return model.StateUpdate{WebContext: model.Ptr(text)}
	})
}

func newSearchNode(node string, searcher retrieval.Searcher, update func(string) model.StateUpdate) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, route model.Route) (model.Route, error) {
		state, err := snapshot(ctx)
		if err != nil {
			return route, err
		}
		log := logx.With(state.SessionID)

		text := ""
		if searcher != nil {
			out, err := searcher.Search(ctx, state.LastUserMessage())
			switch {
			case err != nil:
				log.Warn().Err(err).Str("node", node).Msg("search failed; continuing without context")
			case strings.TrimSpace(out) == "":
				log.Debug().Str("node", node).Msg("search returned no context")
			default:
				text = strings.TrimSpace(out)
			}
		}
		log.Debug().Str("node", node).Int("context_len", len(text)).Msg("search done")
		return route, apply(ctx, update(text))
	})
}

// NewRetrievalCondition continues to the web search only when it is enabled
// and the knowledge base gave nothing.
func NewRetrievalCondition(webEnabled bool) func(context.Context, model.Route) (string, error) {
	return func(ctx context.Context, _ model.Route) (string, error) {
		if !webEnabled {
			return NodeAnswer, nil
		}
		var empty bool
		err := compose.ProcessState(ctx, func(_ context.Context, state *model.AppState) error {
			empty = state.RetrievedContext == ""
			return nil
		})
		if err != nil {
			return "", err
		}
		if empty {
			return NodeWebSearch, nil
		}
		return NodeAnswer, nil
	}
}
