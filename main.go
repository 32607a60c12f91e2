package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"golang.org/x/sync/errgroup"
	"google.golang.org/genai"

	"github.com/Chative-rag-assistant/server/internal/agent/catalog"
	"github.com/Chative-rag-assistant/server/internal/agent/dataset"
	"github.com/Chative-rag-assistant/server/internal/agent/graph"
	"github.com/Chative-rag-assistant/server/internal/agent/graph/conversations"
	"github.com/Chative-rag-assistant/server/internal/agent/graph/nodes"
	"github.com/Chative-rag-assistant/server/internal/agent/graph/prompts"
	"github.com/Chative-rag-assistant/server/internal/agent/model"
	"github.com/Chative-rag-assistant/server/internal/agent/repo"
	"github.com/Chative-rag-assistant/server/internal/agent/retrieval"
	"github.com/Chative-rag-assistant/server/internal/agent/router"
	"github.com/Chative-rag-assistant/server/internal/core"
	"github.com/Chative-rag-assistant/server/internal/server"
	logx "github.com/Chative-rag-assistant/server/pkg/logger"
	pkgredis "github.com/Chative-rag-assistant/server/pkg/redis"
)

// AppConfig defines all configurable parameters of the assistant,
// sourced from environment variables (loaded from .env for local runs).
type AppConfig struct {
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
	LogFile     string `envconfig:"LOG_FILE"`

	// Infrastructure
	Redis     pkgredis.Config
	Store     repo.Config
	Catalog   catalog.Config
	Retrieval retrieval.Config
	HTTP      server.Config

	// Dataset
	DatasetPath       string   `envconfig:"DATASET_PATH" default:"data/datos.xlsx"`
	SkipSampleColumns []string `envconfig:"DATASET_SKIP_SAMPLE_COLUMNS" default:"n,defecto,comentarios"`
	PersonaFile       string   `envconfig:"PERSONA_FILE"`

	// Agent configs
	LLM          model.LLMConfig
	RouterModel  model.RouterModelConfig
	QueryModel   model.QueryModelConfig
	AnswerModel  model.AnswerModelConfig
	Router       model.RouterConfig
	Query        model.QueryConfig
	Answer       model.AnswerConfig
	Conversation model.ConversationConfig
}

func main() {
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Warning: Could not load .env file: %v", err)
	}

	var envCfg AppConfig
	if err := envconfig.Process("", &envCfg); err != nil {
		log.Fatalf("Failed to process environment config: %v", err)
	}
	logx.Init(logx.LoggerOpts{
		Environment: core.ParseEnvironment(envCfg.Environment),
		FilePath:    envCfg.LogFile,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, envCfg); err != nil {
		logx.Fatal().Err(err).Msg("assistant stopped")
	}
	logx.Info().Msg("assistant exited")
}

func run(ctx context.Context, cfg AppConfig) error {
	ttl, err := time.ParseDuration(cfg.Conversation.TTL)
	if err != nil {
		return fmt.Errorf("invalid CONVERSATION_TTL '%s': %w", cfg.Conversation.TTL, err)
	}

	store, closeStore, err := openSessionStore(ctx, cfg, ttl)
	if err != nil {
		return err
	}
	defer closeStore()

	// ====================================================
	// Dataset and routing vocabulary
	tbl, err := dataset.ReadFile(cfg.DatasetPath)
	if err != nil {
		return err
	}
	ds, err := dataset.New(ctx, tbl, dataset.Options{
		ExtraKeywords:     cfg.Router.ExtraKeywords,
		SkipSampleColumns: cfg.SkipSampleColumns,
	})
	if err != nil {
		return err
	}
	defer ds.Close()

	cat, err := catalog.Open(cfg.Catalog)
	if err != nil {
		return err
	}
	defer cat.Close()
	if err := cat.Register(ctx, filepath.Base(cfg.DatasetPath), catalog.SourceStructured, "dataset"); err != nil {
		return err
	}

	// ====================================================
	// Models and retrieval
	var client *genai.Client
	if cfg.LLM.GeminiAPIKey != "" {
		client, err = nodes.NewGeminiClient(ctx, cfg.LLM.GeminiAPIKey, cfg.LLM.GeminiBaseURL)
		if err != nil {
			return err
		}
	}

	retriever, closeRetriever, err := openRetriever(ctx, cfg.Retrieval, client)
	if err != nil {
		return err
	}
	defer closeRetriever()

	persona := prompts.DefaultPersona()
	if cfg.PersonaFile != "" {
		raw, err := os.ReadFile(cfg.PersonaFile)
		if err != nil {
			return fmt.Errorf("read persona file: %w", err)
		}
		persona = strings.TrimSpace(string(raw))
	}

	shared := graph.GraphConfig{
		MessagesManager: conversations.NewMessagesManager(store, cfg.Conversation),
		Catalog:         cat,
		Keywords:        router.NewKeywordSet(ds.Keywords()),
		Dataset:         ds,
		Table:           ds.Table(),
		Retriever:       retriever,
		Router:          cfg.Router,
		Query:           cfg.Query,
		Answer: nodes.AnswerConfig{
			Persona:       persona,
			Language:      cfg.Answer.Language,
			FallbackReply: cfg.Answer.FallbackReply,
		},
	}
	web, err := retrieval.NewWebSearcherFromConfig(cfg.Retrieval)
	if err != nil {
		return err
	}
	if web != nil {
		logx.Info().Str("provider", web.Name()).Msg("web search fallback enabled")
		shared.WebSearch = web
	}

	models := make([]model.ModelName, 0, len(cfg.LLM.Models))
	for _, m := range cfg.LLM.Models {
		if m = strings.TrimSpace(m); m != "" {
			models = append(models, model.ModelName(m))
		}
	}

	metrics := server.NewMetrics()
	engine, err := graph.BuildEngine(ctx, graph.Config{
		Models:       models,
		DefaultModel: model.ModelName(cfg.LLM.DefaultModel),
		ChatModels: nodes.ChatModelConfig{
			LLM:    cfg.LLM,
			Router: cfg.RouterModel,
			Query:  cfg.QueryModel,
			Answer: cfg.AnswerModel,
		},
		GeminiClient: client,
		Shared:       shared,
	}, graph.WithTurnObserver(metrics.ObserveTurn))
	if err != nil {
		return fmt.Errorf("failed to build engine: %w", err)
	}

	// ====================================================
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.New(engine, metrics, cfg.HTTP).Run(ctx)
	})
	return g.Wait()
}

func openSessionStore(ctx context.Context, cfg AppConfig, ttl time.Duration) (model.SessionStore, func(), error) {
	switch strings.ToLower(cfg.Store.Backend) {
	case "", "redis":
		rdb, err := cfg.Redis.New(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialise Redis client: %w", err)
		}
		logx.Info().Msg("Connected to Redis successfully")
		return repo.NewRedisSessionStore(rdb, ttl), func() { rdb.Close() }, nil
	case "sqlite":
		s, err := repo.NewSqliteSessionStore(ctx, repo.SqliteOptions{Path: cfg.Store.SqlitePath})
		if err != nil {
			return nil, nil, err
		}
		return s, func() { s.Close() }, nil
	case "memory":
		return repo.NewMemorySessionStore(ttl), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown SESSION_STORE %q", cfg.Store.Backend)
	}
}

// openRetriever prefers pgvector search and falls back to the static
// knowledge file.
func openRetriever(ctx context.Context, cfg retrieval.Config, client *genai.Client) (retrieval.Searcher, func(), error) {
	if cfg.DatabaseURL != "" {
		if client == nil {
			return nil, nil, fmt.Errorf("RETRIEVAL_DATABASE_URL needs GEMINI_API_KEY for query embeddings")
		}
		pool, err := retrieval.OpenPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		embedder := retrieval.NewGeminiEmbedder(client, cfg.EmbeddingModel, cfg.Dimensions)
		return retrieval.NewVectorSearcher(pool, embedder, cfg.Table, cfg.TopK), pool.Close, nil
	}
	if cfg.KnowledgeFile != "" {
		s, err := retrieval.LoadStaticSearcher(cfg.KnowledgeFile, cfg.TopK)
		if err != nil {
			return nil, nil, err
		}
		return s, func() {}, nil
	}
	logx.Warn().Msg("no knowledge base configured; retrieval answers without context")
	return retrieval.NewStaticSearcher(nil, cfg.TopK), func() {}, nil
}
