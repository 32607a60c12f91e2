package nodes

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/callbacks"
	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/tmc/langchaingo/llms"
)

// LangchainChatModel exposes a langchaingo model as an Eino chat model.
type LangchainChatModel struct {
	llm         llms.Model
	model       string
	temperature float32
	maxTokens   int
}

func NewLangchainChatModel(llm llms.Model, modelName string, temperature float32, maxTokens int) *LangchainChatModel {
	return &LangchainChatModel{llm: llm, model: modelName, temperature: temperature, maxTokens: maxTokens}
}

func (m *LangchainChatModel) GetType() string {
	return "Langchain"
}

func (m *LangchainChatModel) IsCallbacksEnabled() bool {
	return true
}

func (m *LangchainChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...einomodel.Option) (out *schema.Message, err error) {
	options := einomodel.GetCommonOptions(&einomodel.Options{
		Temperature: &m.temperature,
		MaxTokens:   &m.maxTokens,
		Model:       &m.model,
	}, opts...)

	ctx = callbacks.OnStart(ctx, &einomodel.CallbackInput{
		Messages: input,
		Config: &einomodel.Config{
			Model:       *options.Model,
			MaxTokens:   *options.MaxTokens,
			Temperature: *options.Temperature,
		},
	})
	defer func() {
		if err != nil {
			callbacks.OnError(ctx, err)
		}
	}()

	callOpts := []llms.CallOption{
		llms.WithModel(*options.Model),
		llms.WithTemperature(float64(*options.Temperature)),
	}
	if *options.MaxTokens > 0 {
		callOpts = append(callOpts, llms.WithMaxTokens(*options.MaxTokens))
	}
	if len(options.Stop) > 0 {
		callOpts = append(callOpts, llms.WithStopWords(options.Stop))
	}

	resp, err := m.llm.GenerateContent(ctx, toMessageContents(input), callOpts...)
	if err != nil {
		return nil, fmt.Errorf("langchain generate: %w", err)
	}
	if resp == nil || len(resp.Choices) == 0 || resp.Choices[0] == nil {
		return nil, fmt.Errorf("langchain generate: empty response")
	}

	choice := resp.Choices[0]
	usage := &schema.TokenUsage{
		PromptTokens:     intInfo(choice.GenerationInfo, "PromptTokens"),
		CompletionTokens: intInfo(choice.GenerationInfo, "CompletionTokens"),
		TotalTokens:      intInfo(choice.GenerationInfo, "TotalTokens"),
	}
	out = schema.AssistantMessage(choice.Content, nil)
	out.ResponseMeta = &schema.ResponseMeta{FinishReason: choice.StopReason, Usage: usage}

	callbacks.OnEnd(ctx, &einomodel.CallbackOutput{
		Message: out,
		TokenUsage: &einomodel.TokenUsage{
			PromptTokens:     usage.PromptTokens,
			CompletionTokens: usage.CompletionTokens,
			TotalTokens:      usage.TotalTokens,
		},
	})
	return out, nil
}

// Stream emits the whole generation as a single chunk.
func (m *LangchainChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...einomodel.Option) (*schema.StreamReader[*schema.Message], error) {
	out, err := m.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{out}), nil
}

func toMessageContents(input []*schema.Message) []llms.MessageContent {
	out := make([]llms.MessageContent, 0, len(input))
	for _, msg := range input {
		if msg == nil {
			continue
		}
		var role llms.ChatMessageType
		switch msg.Role {
		case schema.System:
			role = llms.ChatMessageTypeSystem
		case schema.Assistant:
			role = llms.ChatMessageTypeAI
		default:
			role = llms.ChatMessageTypeHuman
		}
		out = append(out, llms.TextParts(role, msg.Content))
	}
	return out
}

func intInfo(info map[string]any, key string) int {
	switch v := info[key].(type) {
	case int:
		return v
	case int32:
		return int(v)
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

var _ einomodel.BaseChatModel = (*LangchainChatModel)(nil)
