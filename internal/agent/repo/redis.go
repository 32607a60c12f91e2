package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/Chative-rag-assistant/server/internal/agent/model"
	errx "github.com/Chative-rag-assistant/server/internal/core/error"
	logx "github.com/Chative-rag-assistant/server/pkg/logger"
	"github.com/cloudwego/eino/schema"
	"github.com/redis/go-redis/v9"
)

type RedisSessionStore struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func NewRedisSessionStore(rdb redis.Cmdable, ttl time.Duration) *RedisSessionStore {
	return &RedisSessionStore{rdb: rdb, ttl: ttl}
}

func (r *RedisSessionStore) messagesKey(sessionID string) string {
	return fmt.Sprintf("session:%s:messages", sessionID)
}

func (r *RedisSessionStore) metaKey(sessionID string) string {
	return fmt.Sprintf("session:%s:meta", sessionID)
}

func (r *RedisSessionStore) Load(ctx context.Context, sessionID string) (*model.Session, error) {
	key := r.messagesKey(sessionID)

	rows, err := r.rdb.LRange(ctx, key, 0, -1).Result()
	if err != nil && err != redis.Nil {
		logx.Error().Err(err).Str("key", key).Msg("failed to load session messages from redis")
		return nil, errx.WrapRedis(err)
	}

	session := model.NewSession(sessionID)
	for i, s := range rows {
		var m schema.Message
		if err := json.Unmarshal([]byte(s), &m); err != nil {
			logx.Error().Err(err).Str("session_id", sessionID).Int("index", i).Msg("failed to unmarshal message")
			return nil, fmt.Errorf("unmarshal message at index %d: %w", i, err)
		}
		session.Messages = append(session.Messages, &m)
	}

	meta, err := r.rdb.HGetAll(ctx, r.metaKey(sessionID)).Result()
	if err != nil && err != redis.Nil {
		logx.Error().Err(err).Str("key", r.metaKey(sessionID)).Msg("failed to load session meta from redis")
		return nil, errx.WrapRedis(err)
	}
	if v, ok := meta["turns"]; ok {
		session.Turns, _ = strconv.Atoi(v)
	}
	if v, ok := meta["total_cost_usd"]; ok {
		session.TotalCostUSD, _ = strconv.ParseFloat(v, 64)
	}
	if v, ok := meta["updated_at"]; ok {
		session.UpdatedAt, _ = time.Parse(time.RFC3339Nano, v)
	}
	return session, nil
}

// Append pushes the turn's messages and bumps the counters in one MULTI
// block. Nothing already stored is rewritten.
func (r *RedisSessionStore) Append(ctx context.Context, sessionID string, turn model.Turn) error {
	msgs := make([]any, 0, len(turn.Messages))
	for _, m := range turn.Messages {
		b, err := json.Marshal(m)
		if err != nil {
			logx.Error().Err(err).Str("session_id", sessionID).Msg("failed to marshal message")
			return fmt.Errorf("marshal message: %w", err)
		}
		msgs = append(msgs, b)
	}

	key, meta := r.messagesKey(sessionID), r.metaKey(sessionID)
	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if len(msgs) > 0 {
			pipe.RPush(ctx, key, msgs...)
		}
		pipe.HIncrBy(ctx, meta, "turns", 1)
		pipe.HIncrByFloat(ctx, meta, "total_cost_usd", turn.CostUSD)
		pipe.HSet(ctx, meta, "updated_at", turn.At.UTC().Format(time.RFC3339Nano))
		// extend TTL on touch
		if r.ttl > 0 {
			pipe.Expire(ctx, key, r.ttl)
			pipe.Expire(ctx, meta, r.ttl)
		}
		return nil
	})
	if err != nil {
		logx.Error().Err(err).Str("key", key).Msg("failed to append turn to redis")
		return errx.WrapRedis(err)
	}
	return nil
}

func (r *RedisSessionStore) Delete(ctx context.Context, sessionID string) error {
	key := r.messagesKey(sessionID)
	if err := r.rdb.Del(ctx, key, r.metaKey(sessionID)).Err(); err != nil {
		logx.Error().Err(err).Str("key", key).Msg("failed to delete session from redis")
		return errx.WrapRedis(err)
	}
	return nil
}

var _ model.SessionStore = (*RedisSessionStore)(nil)
