package conversations

import (
	"context"
	"fmt"
	"time"

	"github.com/cloudwego/eino/schema"

	"github.com/Chative-rag-assistant/server/internal/agent/model"
	errx "github.com/Chative-rag-assistant/server/internal/core/error"
	logx "github.com/Chative-rag-assistant/server/pkg/logger"
)

// MessagesManager owns session persistence around one turn and the history
// windows handed to each model.
type MessagesManager struct {
	store           model.SessionStore
	routerMaxTurns  int
	historyMaxTurns int
	now             func() time.Time
}

func NewMessagesManager(store model.SessionStore, config model.ConversationConfig) *MessagesManager {
	return &MessagesManager{
		store:           store,
		routerMaxTurns:  config.RouterMaxTurns,
		historyMaxTurns: config.HistoryMaxTurns,
		now:             time.Now,
	}
}

// Load returns the durable session, empty when the id is new.
func (cm *MessagesManager) Load(ctx context.Context, sessionID string) (*model.Session, error) {
	if sessionID == "" {
		return nil, errx.BadRequest(fmt.Errorf("empty session id"))
	}
	session, err := cm.store.Load(ctx, sessionID)
	if err != nil {
		return nil, errx.WrapStore(err)
	}
	if session == nil {
		session = model.NewSession(sessionID)
	}
	if session.ID == "" {
		session.ID = sessionID
	}
	return session, nil
}

// Commit pushes only the turn's own messages to the store, then mirrors
// them onto the loaded session.
func (cm *MessagesManager) Commit(ctx context.Context, session *model.Session, result *model.TurnResult) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	turn := model.Turn{Messages: result.TurnMessages, CostUSD: result.CostUSD, At: cm.now()}
	if err := cm.store.Append(ctx, session.ID, turn); err != nil {
		logx.Error().Err(err).Str("session_id", session.ID).Msg("failed to persist turn")
		return errx.WrapStore(err)
	}
	session.AppendTurn(turn.Messages, turn.CostUSD, turn.At)
	logx.Debug().
		Str("session_id", session.ID).
		Int("turn_messages", len(result.TurnMessages)).
		Int("total_messages", len(session.Messages)).
		Msg("turn persisted")
	return nil
}

// RouterHistory is the short window given to the route classifier.
func (cm *MessagesManager) RouterHistory(messages []*schema.Message) []*schema.Message {
	return conversational(trimTail(messages, cm.routerMaxTurns))
}

// PromptHistory is the window given to the generators.
func (cm *MessagesManager) PromptHistory(messages []*schema.Message) []*schema.Message {
	return conversational(trimTail(messages, cm.historyMaxTurns))
}

// ====================== Helper function ======================
func trimTail(messages []*schema.Message, maxTurns int) []*schema.Message {
	if maxTurns <= 0 || len(messages) <= maxTurns {
		result := make([]*schema.Message, len(messages))
		copy(result, messages)
		return result
	}
	source := messages[len(messages)-maxTurns:]
	result := make([]*schema.Message, len(source))
	copy(result, source)
	return result
}

// conversational drops nil, empty and system messages; prompts add their own system turn.
func conversational(messages []*schema.Message) []*schema.Message {
	out := messages[:0]
	for _, m := range messages {
		if m == nil || m.Content == "" || m.Role == schema.System {
			continue
		}
		out = append(out, m)
	}
	return out
}
