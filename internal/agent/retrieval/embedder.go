package retrieval

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// Embedder turns text into a query vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// contentEmbedder is the subset of *genai.Models used here.
type contentEmbedder interface {
	EmbedContent(ctx context.Context, model string, contents []*genai.Content, config *genai.EmbedContentConfig) (*genai.EmbedContentResponse, error)
}

// GeminiEmbedder embeds retrieval queries through the Gemini API.
type GeminiEmbedder struct {
	models     contentEmbedder
	model      string
	dimensions int32
}

func NewGeminiEmbedder(client *genai.Client, model string, dimensions int32) *GeminiEmbedder {
	return newGeminiEmbedder(client.Models, model, dimensions)
}

func newGeminiEmbedder(models contentEmbedder, model string, dimensions int32) *GeminiEmbedder {
	if model == "" {
		model = "gemini-embedding-001"
	}
	return &GeminiEmbedder{models: models, model: model, dimensions: dimensions}
}

func (e *GeminiEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	cfg := &genai.EmbedContentConfig{TaskType: "RETRIEVAL_QUERY"}
	if e.dimensions > 0 {
		cfg.OutputDimensionality = genai.Ptr(e.dimensions)
	}

	resp, err := e.models.EmbedContent(ctx, e.model, genai.Text(text), cfg)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if resp == nil || len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Values) == 0 {
		return nil, fmt.Errorf("embed query: empty embedding")
	}
	return resp.Embeddings[0].Values, nil
}
