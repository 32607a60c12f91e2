package model

import (
	"strings"

	"github.com/cloudwego/eino/schema"
)

// AppState stores per-turn state for the workflow graph.
// Concurrency model:
//   - Registered as Graph Local State via compose.WithGenLocalState, one per Invoke.
//   - Reads and writes happen only inside Eino state handlers or
//     compose.ProcessState, which serializes access.
//   - Branch handlers never mutate it directly: they return a StateUpdate
//     that is merged with Apply.
type AppState struct {
	SessionID  string
	Model      ModelName
	SourceHint string

	// Messages holds the loaded history followed by this turn's messages.
	Messages  []*schema.Message
	TurnStart int

	Route Route

	RetrievedContext string
	WebContext       string

	DBSchema       string
	GeneratedQuery string
	QueryResult    string
	QueryError     string
	QueryAttempts  int

	// Accumulated total LLM cost (USD) across model invocations for this turn
	TotalCostUSD float64
}

// StateUpdate is a partial update produced by one node. Messages are
// appended; every non-nil scalar overwrites; CostUSD is accumulated.
type StateUpdate struct {
	Messages []*schema.Message

	Route            *Route
	RetrievedContext *string
	WebContext       *string
	DBSchema         *string
	GeneratedQuery   *string
	QueryResult      *string
	QueryError       *string
	QueryAttempts    *int

	CostUSD float64
}

// Ptr returns a pointer to v, for building StateUpdate literals.
func Ptr[T any](v T) *T {
	return &v
}

// Apply merges u into s.
func (s *AppState) Apply(u StateUpdate) {
	if len(u.Messages) > 0 {
		s.Messages = append(s.Messages, u.Messages...)
	}
	if u.Route != nil {
		s.Route = *u.Route
	}
	if u.RetrievedContext != nil {
		s.RetrievedContext = *u.RetrievedContext
	}
	if u.WebContext != nil {
		s.WebContext = *u.WebContext
	}
	if u.DBSchema != nil {
		s.DBSchema = *u.DBSchema
	}
	if u.GeneratedQuery != nil {
		s.GeneratedQuery = *u.GeneratedQuery
	}
	if u.QueryResult != nil {
		s.QueryResult = *u.QueryResult
	}
	if u.QueryError != nil {
		s.QueryError = *u.QueryError
	}
	if u.QueryAttempts != nil {
		s.QueryAttempts = *u.QueryAttempts
	}
	s.TotalCostUSD += u.CostUSD
}

// Snapshot returns a copy whose message slice can be read outside state handlers.
func (s *AppState) Snapshot() AppState {
	cp := *s
	cp.Messages = make([]*schema.Message, len(s.Messages))
	copy(cp.Messages, s.Messages)
	return cp
}

// LastUserMessage returns the content of the newest user message.
func (s *AppState) LastUserMessage() string {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		m := s.Messages[i]
		if m != nil && m.Role == schema.User {
			return m.Content
		}
	}
	return ""
}

// TurnMessages returns the messages appended by the current turn.
func (s *AppState) TurnMessages() []*schema.Message {
	if s.TurnStart < 0 || s.TurnStart > len(s.Messages) {
		return nil
	}
	return s.Messages[s.TurnStart:]
}

// LastAssistantReply returns the newest non-empty assistant message of this turn.
func (s *AppState) LastAssistantReply() string {
	turn := s.TurnMessages()
	for i := len(turn) - 1; i >= 0; i-- {
		m := turn[i]
		if m != nil && m.Role == schema.Assistant && strings.TrimSpace(m.Content) != "" {
			return m.Content
		}
	}
	return ""
}
