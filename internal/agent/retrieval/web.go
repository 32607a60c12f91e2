package retrieval

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/tools"
	"github.com/tmc/langchaingo/tools/duckduckgo"
	"github.com/tmc/langchaingo/tools/serpapi"
)

// WebSearcher runs a langchaingo search tool as a fallback context source.
type WebSearcher struct {
	tool tools.Tool
}

func NewWebSearcher(tool tools.Tool) *WebSearcher {
	return &WebSearcher{tool: tool}
}

// NewWebSearcherFromConfig builds the configured provider. It returns nil
// when web search is disabled.
func NewWebSearcherFromConfig(cfg Config) (*WebSearcher, error) {
	var (
		tool tools.Tool
		err  error
	)
	switch strings.ToLower(strings.TrimSpace(cfg.WebProvider)) {
	case "":
		return nil, nil
	case "duckduckgo", "ddg":
		tool, err = duckduckgo.New(cfg.WebMaxResults, duckduckgo.DefaultUserAgent)
	case "serpapi":
		tool, err = serpapi.New(serpapi.WithAPIKey(cfg.SerpAPIKey))
	default:
		return nil, fmt.Errorf("unknown web search provider %q", cfg.WebProvider)
	}
	if err != nil {
		return nil, fmt.Errorf("init %s: %w", cfg.WebProvider, err)
	}
	return NewWebSearcher(tool), nil
}

func (s *WebSearcher) Name() string {
	return s.tool.Name()
}

func (s *WebSearcher) Search(ctx context.Context, query string) (string, error) {
	if strings.TrimSpace(query) == "" {
		return "", ErrNoResults
	}
	out, err := s.tool.Call(ctx, query)
	if err != nil {
		return "", fmt.Errorf("%s: %w", s.tool.Name(), err)
	}
	if strings.TrimSpace(out) == "" {
		return "", ErrNoResults
	}
	return strings.TrimSpace(out), nil
}
