package model

import (
	"context"
	"time"

	"github.com/cloudwego/eino/schema"
)

// SessionStore owns the durable conversation between turns.
type SessionStore interface {
	// Load returns the stored session, or an empty one when none exists.
	Load(ctx context.Context, sessionID string) (*Session, error)

	// Append adds one turn to the durable history. Stored messages are never
	// rewritten, so overlapping turns on one session both survive.
	Append(ctx context.Context, sessionID string, turn Turn) error

	// Delete removes the session.
	Delete(ctx context.Context, sessionID string) error
}

// Session is the durable conversation record addressed by session id.
type Session struct {
	ID           string            `json:"id"`
	Messages     []*schema.Message `json:"messages"`
	Turns        int               `json:"turns"`
	TotalCostUSD float64           `json:"total_cost_usd"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// Turn is what one finished graph run adds to a session.
type Turn struct {
	Messages []*schema.Message
	CostUSD  float64
	At       time.Time
}

// NewSession returns an empty session for id.
func NewSession(id string) *Session {
	return &Session{ID: id, Messages: []*schema.Message{}}
}

// AppendTurn extends the durable history with one turn's messages.
func (s *Session) AppendTurn(msgs []*schema.Message, costUSD float64, at time.Time) {
	s.Messages = append(s.Messages, msgs...)
	s.Turns++
	s.TotalCostUSD += costUSD
	s.UpdatedAt = at.UTC()
}
