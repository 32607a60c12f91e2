package repo

import (
	"context"
	"sync"
	"time"

	"github.com/Chative-rag-assistant/server/internal/agent/model"
	"github.com/cloudwego/eino/schema"
	"github.com/patrickmn/go-cache"
)

// MemorySessionStore keeps sessions in process memory with expiry.
type MemorySessionStore struct {
	mu    sync.Mutex
	cache *cache.Cache
}

func NewMemorySessionStore(ttl time.Duration) *MemorySessionStore {
	if ttl <= 0 {
		ttl = cache.NoExpiration
	}
	return &MemorySessionStore{cache: cache.New(ttl, 10*time.Minute)}
}

func (r *MemorySessionStore) Load(_ context.Context, sessionID string) (*model.Session, error) {
	if x, found := r.cache.Get(sessionID); found {
		return clone(x.(*model.Session)), nil
	}
	return model.NewSession(sessionID), nil
}

func (r *MemorySessionStore) Append(_ context.Context, sessionID string, turn model.Turn) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	session := model.NewSession(sessionID)
	if x, found := r.cache.Get(sessionID); found {
		session = clone(x.(*model.Session))
	}
	session.AppendTurn(turn.Messages, turn.CostUSD, turn.At)
	r.cache.SetDefault(sessionID, session)
	return nil
}

func (r *MemorySessionStore) Delete(_ context.Context, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache.Delete(sessionID)
	return nil
}

// clone detaches the stored copy from the caller's slice.
func clone(s *model.Session) *model.Session {
	cp := *s
	cp.Messages = make([]*schema.Message, len(s.Messages))
	copy(cp.Messages, s.Messages)
	return &cp
}

var _ model.SessionStore = (*MemorySessionStore)(nil)
