package nodes

import (
	"context"
	"fmt"

	logx "github.com/Chative-rag-assistant/server/pkg/logger"
	"github.com/cloudwego/eino-ext/components/model/gemini"
	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/tmc/langchaingo/llms/openai"
	"google.golang.org/genai"

	"github.com/Chative-rag-assistant/server/internal/agent/model"
)

// ChatModelConfig holds the configuration for chat model creation
type ChatModelConfig struct {
	LLM    model.LLMConfig
	Router model.RouterModelConfig
	Query  model.QueryModelConfig
	Answer model.AnswerModelConfig
}

// ChatModels holds the three role models of one model family. They share a
// backend and differ only in temperature and token budget.
type ChatModels struct {
	Name   model.ModelName
	Router einomodel.BaseChatModel
	Query  einomodel.BaseChatModel
	Answer einomodel.BaseChatModel
}

// NewGeminiClient creates the shared Gemini API client.
func NewGeminiClient(ctx context.Context, apiKey, baseURL string) (*genai.Client, error) {
	clientCfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if baseURL != "" {
		clientCfg.HTTPOptions.BaseURL = baseURL
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		logx.Error().Err(err).Msg("Error creating Gemini client")
		return nil, fmt.Errorf("error creating Gemini client: %w", err)
	}
	return client, nil
}

// NewChatModels creates the role models for name. Gemini names use client;
// every other name goes to the OpenAI-compatible endpoint.
func NewChatModels(ctx context.Context, name model.ModelName, client *genai.Client, config ChatModelConfig) (*ChatModels, error) {
	if name.IsGemini() {
		return newGeminiChatModels(ctx, name, client, config)
	}
	return newOpenAIChatModels(name, config)
}

func newGeminiChatModels(ctx context.Context, name model.ModelName, client *genai.Client, config ChatModelConfig) (*ChatModels, error) {
	if client == nil {
		return nil, fmt.Errorf("gemini client is nil for model %s", name)
	}

	build := func(role string, temperature float32, maxTokens int, thinking *genai.ThinkingConfig) (*gemini.ChatModel, error) {
		cm, err := gemini.NewChatModel(ctx, &gemini.Config{
			Client:         client,
			Model:          string(name),
			Temperature:    &temperature,
			MaxTokens:      &maxTokens,
			ThinkingConfig: thinking,
		})
		if err != nil {
			logx.Error().Err(err).Str("role", role).Str("model", string(name)).Msg("Error creating Gemini model")
			return nil, fmt.Errorf("error creating %s model: %w", role, err)
		}
		return cm, nil
	}

	// only the answer model gets a thinking budget
	noThinking := &genai.ThinkingConfig{ThinkingBudget: genai.Ptr(int32(0))}
	routerModel, err := build("router", config.Router.Temperature, config.Router.MaxTokens, noThinking)
	if err != nil {
		return nil, err
	}
	queryModel, err := build("query", config.Query.Temperature, config.Query.MaxTokens, noThinking)
	if err != nil {
		return nil, err
	}
	answerModel, err := build("answer", config.Answer.Temperature, config.Answer.MaxTokens, &genai.ThinkingConfig{
		IncludeThoughts: false,
		ThinkingBudget:  genai.Ptr(int32(2000)),
	})
	if err != nil {
		return nil, err
	}

	return &ChatModels{Name: name, Router: routerModel, Query: queryModel, Answer: answerModel}, nil
}

func newOpenAIChatModels(name model.ModelName, config ChatModelConfig) (*ChatModels, error) {
	if config.LLM.OpenAIAPIKey == "" {
		return nil, fmt.Errorf("OPENAI_COMPAT_API_KEY is required for model %s", name)
	}
	llm, err := openai.New(
		openai.WithToken(config.LLM.OpenAIAPIKey),
		openai.WithBaseURL(config.LLM.OpenAIBaseURL),
		openai.WithModel(string(name)),
	)
	if err != nil {
		logx.Error().Err(err).Str("model", string(name)).Msg("Error creating OpenAI-compatible client")
		return nil, fmt.Errorf("error creating OpenAI-compatible client: %w", err)
	}

	return &ChatModels{
		Name:   name,
		Router: NewLangchainChatModel(llm, string(name), config.Router.Temperature, config.Router.MaxTokens),
		Query:  NewLangchainChatModel(llm, string(name), config.Query.Temperature, config.Query.MaxTokens),
		Answer: NewLangchainChatModel(llm, string(name), config.Answer.Temperature, config.Answer.MaxTokens),
	}, nil
}
