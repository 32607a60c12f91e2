package nodes

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/Chative-rag-assistant/server/internal/agent/dataset"
	"github.com/Chative-rag-assistant/server/internal/agent/graph/conversations"
	"github.com/Chative-rag-assistant/server/internal/agent/graph/parsers"
	"github.com/Chative-rag-assistant/server/internal/agent/graph/prompts"
	"github.com/Chative-rag-assistant/server/internal/agent/model"
	logx "github.com/Chative-rag-assistant/server/pkg/logger"
)

// Dataset is the read-only table the structured-query branch runs against.
type Dataset interface {
	Schema(ctx context.Context) (string, error)
	Execute(ctx context.Context, query string) ([]dataset.Row, error)
}

// NewFetchSchemaNode resets the branch state and loads the table definition.
func NewFetchSchemaNode(ds Dataset) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, route model.Route) (model.Route, error) {
		state, err := snapshot(ctx)
		if err != nil {
			return route, err
		}
		upd := model.StateUpdate{
			DBSchema:       model.Ptr(""),
			GeneratedQuery: model.Ptr(""),
			QueryResult:    model.Ptr(""),
			QueryError:     model.Ptr(""),
			QueryAttempts:  model.Ptr(0),
		}
		if ds == nil {
			upd.QueryError = model.Ptr("no hay datos tabulares cargados")
			return route, apply(ctx, upd)
		}
		s, err := ds.Schema(ctx)
		if err != nil {
			log := logx.With(state.SessionID)
			log.Error().Err(err).Msg("failed to read dataset schema")
			upd.QueryError = model.Ptr(err.Error())
			return route, apply(ctx, upd)
		}
		upd.DBSchema = model.Ptr(s)
		return route, apply(ctx, upd)
	})
}

// NewFetchSchemaCondition skips generation when no schema could be loaded.
func NewFetchSchemaCondition() func(context.Context, model.Route) (string, error) {
	return func(ctx context.Context, _ model.Route) (string, error) {
		var ok bool
		err := compose.ProcessState(ctx, func(_ context.Context, state *model.AppState) error {
			ok = state.DBSchema != ""
			return nil
		})
		if err != nil {
			return "", err
		}
		if ok {
			return NodeGenerateQuery, nil
		}
		return NodeQueryApology, nil
	}
}

// NewGenerateQueryNode asks the query model for one SELECT statement. The
// previous attempt's error, if any, is fed back as a correction request.
func NewGenerateQueryNode(cms *ChatModels, mm *conversations.MessagesManager) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, route model.Route) (model.Route, error) {
		state, err := snapshot(ctx)
		if err != nil {
			return route, err
		}
		attempt := state.QueryAttempts + 1
		log := logx.With(state.SessionID)

		msgs, err := prompts.RenderQueryGeneration(ctx, state.DBSchema, mm.PromptHistory(state.Messages), state.QueryError)
		if err != nil {
			return route, err
		}

		upd := model.StateUpdate{QueryAttempts: model.Ptr(attempt)}
		out, cost, err := generate(ctx, cms.Query, cms.Name, NodeGenerateQuery, state.SessionID, msgs)
		if err != nil {
			// counts as a failed attempt so the retry bound still applies
			log.Warn().Err(err).Int("attempt", attempt).Msg("query generation failed")
			upd.GeneratedQuery = model.Ptr("")
			return route, apply(ctx, upd)
		}
		query := parsers.ExtractSQL(out.Content)
		log.Debug().Int("attempt", attempt).Str("query", query).Msg("query generated")

		upd.GeneratedQuery = model.Ptr(query)
		upd.CostUSD = cost
		return route, apply(ctx, upd)
	})
}

// NewExecuteQueryNode runs the generated statement through the guarded dataset.
func NewExecuteQueryNode(ds Dataset) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, route model.Route) (model.Route, error) {
		state, err := snapshot(ctx)
		if err != nil {
			return route, err
		}
		log := logx.With(state.SessionID)

		fail := func(msg string) (model.Route, error) {
			log.Warn().Int("attempt", state.QueryAttempts).Str("error", msg).Msg("query failed")
			return route, apply(ctx, model.StateUpdate{QueryResult: model.Ptr(""), QueryError: model.Ptr(msg)})
		}
		if strings.TrimSpace(state.GeneratedQuery) == "" {
			return fail("no se generó ninguna consulta SQL")
		}

		rows, err := ds.Execute(ctx, state.GeneratedQuery)
		if err != nil {
			return fail(err.Error())
		}
		result, err := encodeRows(rows)
		if err != nil {
			return fail(err.Error())
		}
		log.Debug().Int("attempt", state.QueryAttempts).Int("rows", len(rows)).Msg("query executed")
		return route, apply(ctx, model.StateUpdate{QueryResult: model.Ptr(result), QueryError: model.Ptr("")})
	})
}

// encodeRows renders rows as indented JSON keeping non-ASCII text as is.
func encodeRows(rows []dataset.Row) (string, error) {
	if rows == nil {
		rows = []dataset.Row{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rows); err != nil {
		return "", fmt.Errorf("encode rows: %w", err)
	}
	return strings.TrimSpace(buf.String()), nil
}

// NewExecuteQueryCondition answers on success, retries while attempts remain
// and apologizes otherwise.
func NewExecuteQueryCondition(maxAttempts int) func(context.Context, model.Route) (string, error) {
	maxAttempts = model.NormalizeMaxAttempts(maxAttempts)
	return func(ctx context.Context, _ model.Route) (string, error) {
		var (
			failed   bool
			attempts int
		)
		err := compose.ProcessState(ctx, func(_ context.Context, state *model.AppState) error {
			failed = state.QueryError != ""
			attempts = state.QueryAttempts
			return nil
		})
		if err != nil {
			return "", err
		}
		switch {
		case !failed:
			return NodeQueryAnswer, nil
		case attempts < maxAttempts:
			logx.Debug().Int("attempt", attempts).Int("max_attempts", maxAttempts).Msg("retrying query generation")
			return NodeGenerateQuery, nil
		default:
			logx.Warn().Int("attempts", attempts).Msg("query attempts exhausted")
			return NodeQueryApology, nil
		}
	}
}

// NewQueryAnswerNode turns the result rows into a natural-language reply.
func NewQueryAnswerNode(cms *ChatModels, cfg AnswerConfig) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, route model.Route) (model.Route, error) {
		state, err := snapshot(ctx)
		if err != nil {
			return route, err
		}
		msgs, err := prompts.RenderQueryAnswer(ctx, state.LastUserMessage(), state.QueryResult, cfg.Language)
		if err != nil {
			return route, err
		}
		out, cost, err := generate(ctx, cms.Answer, cms.Name, NodeQueryAnswer, state.SessionID, msgs)
		if err != nil {
			return route, err
		}
		return route, apply(ctx, model.StateUpdate{
			Messages: []*schema.Message{assistantReply(out.Content, cfg.FallbackReply)},
			CostUSD:  cost,
		})
	})
}

// NewQueryApologyNode closes the branch with a graceful message.
func NewQueryApologyNode(message string) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, route model.Route) (model.Route, error) {
		return route, apply(ctx, model.StateUpdate{
			Messages: []*schema.Message{schema.AssistantMessage(message, nil)},
		})
	})
}
