package graph

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/compose"

	"github.com/Chative-rag-assistant/server/internal/agent/graph/conversations"
	"github.com/Chative-rag-assistant/server/internal/agent/graph/nodes"
	"github.com/Chative-rag-assistant/server/internal/agent/model"
	"github.com/Chative-rag-assistant/server/internal/agent/retrieval"
	"github.com/Chative-rag-assistant/server/internal/agent/router"
	logx "github.com/Chative-rag-assistant/server/pkg/logger"
)

// GraphConfig holds all configuration needed to build the graph for one model family.
type GraphConfig struct {
	ChatModels      *nodes.ChatModels
	MessagesManager *conversations.MessagesManager

	// Router tiers. Keywords are usually derived from the dataset columns.
	Catalog  router.Lookup
	Keywords router.KeywordSet

	Dataset   nodes.Dataset
	Table     string
	Retriever retrieval.Searcher
	// WebSearch is optional; nil disables the web fallback.
	WebSearch retrieval.Searcher

	Router model.RouterConfig
	Query  model.QueryConfig
	Answer nodes.AnswerConfig
}

// GraphBuilder handles the construction of the assistant workflow graph
type GraphBuilder struct {
	config *GraphConfig
	routes map[model.Route]string
	graph  *compose.Graph[model.TurnInput, *model.TurnResult]
}

// BuildGraph constructs and returns the compiled workflow graph
func BuildGraph(ctx context.Context, config *GraphConfig) (compose.Runnable[model.TurnInput, *model.TurnResult], error) {
	if config == nil {
		return nil, fmt.Errorf("graph config is nil")
	}
	cms := config.ChatModels
	if cms == nil || cms.Router == nil || cms.Query == nil || cms.Answer == nil {
		return nil, fmt.Errorf("chat models are not properly initialized")
	}
	if config.MessagesManager == nil {
		return nil, fmt.Errorf("messages manager is nil")
	}

	builder := &GraphBuilder{
		config: config,
		routes: nodes.RouteTable(),
		graph: compose.NewGraph[model.TurnInput, *model.TurnResult](
			compose.WithGenLocalState(func(ctx context.Context) *model.AppState {
				return &model.AppState{}
			}),
		),
	}

	if err := builder.addNodes(); err != nil {
		return nil, err
	}
	if err := builder.addEdges(); err != nil {
		return nil, err
	}
	if err := builder.addBranches(); err != nil {
		return nil, err
	}
	return builder.compile(ctx)
}

type lambdaNode struct {
	name string
	node *compose.Lambda
	opts []compose.GraphAddNodeOpt
}

// addNodes adds all processing nodes to the graph
func (b *GraphBuilder) addNodes() error {
	cfg := b.config
	cms := cfg.ChatModels
	mm := cfg.MessagesManager

	classifier := nodes.NewLLMClassifier(cms.Router, cms.Name, mm, cfg.Table)
	rt := router.New(router.Config{
		Catalog:      cfg.Catalog,
		Keywords:     cfg.Keywords,
		Classifier:   classifier,
		DefaultReply: cfg.Router.DefaultReply,
	})

	lambdas := []lambdaNode{
		{nodes.NodeRouter, nodes.NewRouterNode(rt), []compose.GraphAddNodeOpt{
			compose.WithStatePreHandler(nodes.NewRouterPreHandler()),
		}},
		{nodes.NodeRetrieval, nodes.NewRetrievalNode(cfg.Retriever), nil},
		{nodes.NodeAnswer, nodes.NewAnswerNode(cms, mm, cfg.Answer), nil},
		{nodes.NodeFetchSchema, nodes.NewFetchSchemaNode(cfg.Dataset), nil},
		{nodes.NodeGenerateQuery, nodes.NewGenerateQueryNode(cms, mm), nil},
		{nodes.NodeExecuteQuery, nodes.NewExecuteQueryNode(cfg.Dataset), nil},
		{nodes.NodeQueryAnswer, nodes.NewQueryAnswerNode(cms, cfg.Answer), nil},
		{nodes.NodeQueryApology, nodes.NewQueryApologyNode(cfg.Query.ApologyMessage), nil},
		{nodes.NodeFinalize, nodes.NewFinalizeNode(), nil},
	}
	if cfg.WebSearch != nil {
		lambdas = append(lambdas, lambdaNode{nodes.NodeWebSearch, nodes.NewWebSearchNode(cfg.WebSearch), nil})
	}

	for _, l := range lambdas {
		if err := b.graph.AddLambdaNode(l.name, l.node, l.opts...); err != nil {
			logx.Error().Err(err).Str("node", l.name).Msg("Error adding node")
			return fmt.Errorf("error adding node %s: %w", l.name, err)
		}
	}
	return nil
}

// addEdges creates the unconditional connections between nodes
func (b *GraphBuilder) addEdges() error {
	edges := [][2]string{
		{compose.START, nodes.NodeRouter},
		{nodes.NodeAnswer, nodes.NodeFinalize},
		{nodes.NodeGenerateQuery, nodes.NodeExecuteQuery},
		{nodes.NodeQueryAnswer, nodes.NodeFinalize},
		{nodes.NodeQueryApology, nodes.NodeFinalize},
		{nodes.NodeFinalize, compose.END},
	}
	if b.config.WebSearch != nil {
		edges = append(edges, [2]string{nodes.NodeWebSearch, nodes.NodeAnswer})
	}

	for _, edge := range edges {
		if err := b.graph.AddEdge(edge[0], edge[1]); err != nil {
			logx.Error().Err(err).Str("from", edge[0]).Str("to", edge[1]).Msg("Error adding edge")
			return fmt.Errorf("error adding edge %s -> %s: %w", edge[0], edge[1], err)
		}
	}
	return nil
}

// addBranches creates conditional routing branches
func (b *GraphBuilder) addBranches() error {
	routeEnds := map[string]bool{}
	for _, next := range b.routes {
		routeEnds[next] = true
	}

	retrievalEnds := map[string]bool{nodes.NodeAnswer: true}
	if b.config.WebSearch != nil {
		retrievalEnds[nodes.NodeWebSearch] = true
	}

	branches := []struct {
		from   string
		label  string
		branch *compose.GraphBranch
	}{
		{nodes.NodeRouter, "route", compose.NewGraphBranch(
			nodes.NewRouterCondition(b.routes), routeEnds)},
		{nodes.NodeRetrieval, "retrieval", compose.NewGraphBranch(
			nodes.NewRetrievalCondition(b.config.WebSearch != nil), retrievalEnds)},
		{nodes.NodeFetchSchema, "schema", compose.NewGraphBranch(
			nodes.NewFetchSchemaCondition(),
			map[string]bool{nodes.NodeGenerateQuery: true, nodes.NodeQueryApology: true})},
		{nodes.NodeExecuteQuery, "query retry", compose.NewGraphBranch(
			nodes.NewExecuteQueryCondition(b.config.Query.MaxAttempts),
			map[string]bool{nodes.NodeQueryAnswer: true, nodes.NodeGenerateQuery: true, nodes.NodeQueryApology: true})},
	}

	for _, br := range branches {
		if err := b.graph.AddBranch(br.from, br.branch); err != nil {
			logx.Error().Err(err).Str("branch", br.label).Msg("Error adding branch")
			return fmt.Errorf("error adding %s branch: %w", br.label, err)
		}
	}
	return nil
}

// compile finalizes and compiles the graph
func (b *GraphBuilder) compile(ctx context.Context) (compose.Runnable[model.TurnInput, *model.TurnResult], error) {
	// Limit total run steps so the query retry loop can never spin forever
	maxSteps := 10 + model.NormalizeMaxAttempts(b.config.Query.MaxAttempts)*2
	if maxSteps < 20 {
		maxSteps = 20
	}

	runnable, err := b.graph.Compile(ctx,
		compose.WithGraphName("assistant"),
		compose.WithMaxRunSteps(maxSteps),
	)
	if err != nil {
		logx.Error().Err(err).Msg("Error compiling graph")
		return nil, fmt.Errorf("error compiling graph: %w", err)
	}

	logx.Debug().Str("model", string(b.config.ChatModels.Name)).Int("max_steps", maxSteps).Msg("Graph compiled successfully")
	return runnable, nil
}
