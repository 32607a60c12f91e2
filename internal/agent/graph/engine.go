package graph

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cloudwego/eino/compose"
	"github.com/google/uuid"
	"google.golang.org/genai"

	"github.com/Chative-rag-assistant/server/internal/agent/graph/conversations"
	"github.com/Chative-rag-assistant/server/internal/agent/graph/nodes"
	"github.com/Chative-rag-assistant/server/internal/agent/graph/observers"
	"github.com/Chative-rag-assistant/server/internal/agent/model"
	errx "github.com/Chative-rag-assistant/server/internal/core/error"
	logx "github.com/Chative-rag-assistant/server/pkg/logger"
)

// Runner executes one chat turn for the public QueryInput.
type Runner interface {
	Invoke(ctx context.Context, in model.QueryInput) (*model.QueryResponse, error)
}

// TurnObserver is called once per finished turn, after the session was
// persisted. result is nil when err is set.
type TurnObserver func(in model.QueryInput, result *model.TurnResult, elapsed time.Duration, err error)

type Option func(*Engine)

// WithTurnObserver registers fn to be told about every turn.
func WithTurnObserver(fn TurnObserver) Option {
	return func(e *Engine) {
		e.observers = append(e.observers, fn)
	}
}

// Engine runs the compiled graph of the requested model and commits the
// turn to the session store only when the graph finished.
type Engine struct {
	graphs       map[model.ModelName]compose.Runnable[model.TurnInput, *model.TurnResult]
	defaultModel model.ModelName
	mm           *conversations.MessagesManager
	observers    []TurnObserver
	newID        func() string
}

// NewEngine wires compiled graphs keyed by model name. defaultModel must be
// one of them.
func NewEngine(graphs map[model.ModelName]compose.Runnable[model.TurnInput, *model.TurnResult], defaultModel model.ModelName, mm *conversations.MessagesManager, opts ...Option) (*Engine, error) {
	if len(graphs) == 0 {
		return nil, fmt.Errorf("no compiled graphs")
	}
	if _, ok := graphs[defaultModel]; !ok {
		return nil, fmt.Errorf("default model %q has no graph", defaultModel)
	}
	if mm == nil {
		return nil, fmt.Errorf("messages manager is nil")
	}
	e := &Engine{
		graphs:       graphs,
		defaultModel: defaultModel,
		mm:           mm,
		newID:        uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Models lists the model names the engine can serve.
func (e *Engine) Models() []model.ModelName {
	out := make([]model.ModelName, 0, len(e.graphs))
	for name := range e.graphs {
		out = append(out, name)
	}
	return out
}

func (e *Engine) resolveModel(requested model.ModelName) model.ModelName {
	if requested == "" {
		return e.defaultModel
	}
	if _, ok := e.graphs[requested]; ok {
		return requested
	}
	logx.Warn().Str("model", string(requested)).Str("default", string(e.defaultModel)).Msg("unknown model requested; using default")
	return e.defaultModel
}

func (e *Engine) Invoke(ctx context.Context, in model.QueryInput) (*model.QueryResponse, error) {
	start := time.Now()
	result, resp, err := e.invoke(ctx, &in)
	for _, fn := range e.observers {
		fn(in, result, time.Since(start), err)
	}
	return resp, err
}

func (e *Engine) invoke(ctx context.Context, in *model.QueryInput) (*model.TurnResult, *model.QueryResponse, error) {
	in.Question = strings.TrimSpace(in.Question)
	if in.Question == "" {
		return nil, nil, errx.BadRequest(fmt.Errorf("empty question"))
	}
	if in.SessionID == "" {
		in.SessionID = e.newID()
	}
	in.Model = e.resolveModel(in.Model)
	log := logx.With(in.SessionID)

	session, err := e.mm.Load(ctx, in.SessionID)
	if err != nil {
		log.Error().Err(err).Msg("failed to load session")
		return nil, nil, err
	}

	result, err := e.graphs[in.Model].Invoke(ctx, model.TurnInput{
		SessionID:  in.SessionID,
		Model:      in.Model,
		Question:   in.Question,
		SourceHint: in.SourceHint,
		History:    session.Messages,
	}, compose.WithCallbacks(observers.NewAllCallbacks()))
	if err != nil {
		log.Error().Err(err).Msg("graph run failed")
		return nil, nil, classify(ctx, err)
	}
	if result == nil {
		return nil, nil, errx.Internal(fmt.Errorf("graph returned no result"))
	}

	if err := e.mm.Commit(ctx, session, result); err != nil {
		return nil, nil, classify(ctx, err)
	}

	log.Info().
		Str("route", result.Route.String()).
		Str("model", string(in.Model)).
		Int("query_attempts", result.QueryAttempts).
		Float64("cost_usd", result.CostUSD).
		Msg("turn completed")

	return result, &model.QueryResponse{
		Answer:    result.Reply,
		SessionID: in.SessionID,
		Model:     in.Model,
		Route:     result.Route,
	}, nil
}

// classify keeps AppErrors raised inside the graph and maps everything else.
func classify(ctx context.Context, err error) error {
	var app *errx.AppError
	if errors.As(err, &app) {
		return app
	}
	if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return errx.New(err, http.StatusRequestTimeout, errx.CanceledMessage)
	}
	return errx.Internal(err)
}

// Config holds everything needed to compose one graph per configured model.
type Config struct {
	Models       []model.ModelName
	DefaultModel model.ModelName
	ChatModels   nodes.ChatModelConfig
	// GeminiClient serves every Gemini model; may be nil when none is configured.
	GeminiClient *genai.Client

	// Shared is copied for every model; its ChatModels field is set per model.
	Shared GraphConfig
}

// BuildEngine creates the chat models and compiled graph of every model and
// returns the engine serving them.
func BuildEngine(ctx context.Context, cfg Config, opts ...Option) (*Engine, error) {
	models := cfg.Models
	if len(models) == 0 {
		models = []model.ModelName{cfg.DefaultModel}
	}

	graphs := make(map[model.ModelName]compose.Runnable[model.TurnInput, *model.TurnResult], len(models))
	for _, name := range models {
		cms, err := nodes.NewChatModels(ctx, name, cfg.GeminiClient, cfg.ChatModels)
		if err != nil {
			return nil, err
		}
		gc := cfg.Shared
		gc.ChatModels = cms
		runnable, err := BuildGraph(ctx, &gc)
		if err != nil {
			return nil, fmt.Errorf("build graph for %s: %w", name, err)
		}
		graphs[name] = runnable
	}

	e, err := NewEngine(graphs, cfg.DefaultModel, cfg.Shared.MessagesManager, opts...)
	if err != nil {
		return nil, err
	}
	logx.Debug().Int("models", len(graphs)).Msg("Assistant engine built successfully")
	return e, nil
}
