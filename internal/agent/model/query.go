package model

import (
	"strings"

	"github.com/cloudwego/eino/schema"
)

// ModelName identifies the language model family serving a request.
type ModelName string

const (
	ModelGeminiFlash     ModelName = "gemini-2.5-flash"
	ModelGeminiFlashLite ModelName = "gemini-2.5-flash-lite"
	ModelLlama           ModelName = "llama-3.3-70b"
)

// IsGemini reports whether the model is served by the Gemini API.
func (m ModelName) IsGemini() bool {
	return strings.HasPrefix(string(m), "gemini")
}

// QueryInput is the inbound chat request.
type QueryInput struct {
	Question   string    `json:"question"`
	SessionID  string    `json:"session_id,omitempty"`
	Model      ModelName `json:"model,omitempty"`
	SourceHint string    `json:"source_hint,omitempty"`
}

// QueryResponse is returned for every handled chat request.
type QueryResponse struct {
	Answer    string    `json:"answer"`
	SessionID string    `json:"session_id"`
	Model     ModelName `json:"model"`
	Route     Route     `json:"route,omitempty"`
}

// TurnInput is the graph input: the request plus the history loaded for it.
type TurnInput struct {
	SessionID  string
	Model      ModelName
	Question   string
	SourceHint string
	History    []*schema.Message
}

// TurnResult is the graph output taken from the terminal state.
type TurnResult struct {
	Route         Route
	Reply         string
	TurnMessages  []*schema.Message
	QueryAttempts int
	// QueryFailed is set when the structured-query branch ended in an apology.
	QueryFailed bool
	CostUSD     float64
}
