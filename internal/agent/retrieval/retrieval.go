package retrieval

import (
	"context"
	"errors"
	"strings"
)

// ErrNoResults is returned when a search completed but found nothing usable.
var ErrNoResults = errors.New("retrieval: no results")

// Searcher returns a single context blob for a question.
type Searcher interface {
	Search(ctx context.Context, query string) (string, error)
}

// SearcherFunc adapts a plain function to Searcher.
type SearcherFunc func(ctx context.Context, query string) (string, error)

func (f SearcherFunc) Search(ctx context.Context, query string) (string, error) {
	return f(ctx, query)
}

// Config is bound from RETRIEVAL_* variables.
type Config struct {
	// DatabaseURL enables pgvector search when set.
	DatabaseURL    string `envconfig:"RETRIEVAL_DATABASE_URL"`
	Table          string `envconfig:"RETRIEVAL_TABLE" default:"documents"`
	TopK           int    `envconfig:"RETRIEVAL_TOP_K" default:"4"`
	EmbeddingModel string `envconfig:"RETRIEVAL_EMBEDDING_MODEL" default:"gemini-embedding-001"`
	Dimensions     int32  `envconfig:"RETRIEVAL_EMBEDDING_DIMENSIONS" default:"768"`
	// KnowledgeFile seeds the static searcher when no vector store is configured.
	KnowledgeFile string `envconfig:"RETRIEVAL_KNOWLEDGE_FILE"`

	// WebProvider is one of "", "duckduckgo" or "serpapi".
	WebProvider   string `envconfig:"WEB_SEARCH_PROVIDER"`
	WebMaxResults int    `envconfig:"WEB_SEARCH_MAX_RESULTS" default:"5"`
	SerpAPIKey    string `envconfig:"SERPAPI_API_KEY"`
}

// joinChunks concatenates non-blank chunks separated by a blank line.
func joinChunks(chunks []string) string {
	var kept []string
	for _, c := range chunks {
		if c = strings.TrimSpace(c); c != "" {
			kept = append(kept, c)
		}
	}
	return strings.Join(kept, "\n\n")
}
