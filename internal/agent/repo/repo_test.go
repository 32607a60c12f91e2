package repo

import (
	"context"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/Chative-rag-assistant/server/internal/agent/model"
	errx "github.com/Chative-rag-assistant/server/internal/core/error"
	"github.com/alicebob/miniredis/v2"
	"github.com/cloudwego/eino/schema"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func sampleTurn() model.Turn {
	return model.Turn{
		Messages: []*schema.Message{
			schema.UserMessage("¿Cuántos hallazgos hay?"),
			schema.AssistantMessage("Hay 12 hallazgos abiertos.", nil),
		},
		CostUSD: 0.0015,
		At:      time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}
}

// storeContract is shared by every SessionStore implementation.
func storeContract(t *testing.T, store model.SessionStore) {
	ctx := context.Background()

	empty, err := store.Load(ctx, "missing")
	require.NoError(t, err)
	assert.Equal(t, "missing", empty.ID)
	assert.Empty(t, empty.Messages)
	assert.Zero(t, empty.Turns)

	in := sampleTurn()
	require.NoError(t, store.Append(ctx, "s1", in))

	out, err := store.Load(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, out.Messages, 2)
	assert.Equal(t, schema.User, out.Messages[0].Role)
	assert.Equal(t, "Hay 12 hallazgos abiertos.", out.Messages[1].Content)
	assert.Equal(t, 1, out.Turns)
	assert.InDelta(t, 0.0015, out.TotalCostUSD, 1e-12)
	assert.True(t, in.At.Equal(out.UpdatedAt))

	require.NoError(t, store.Append(ctx, "s1", model.Turn{
		Messages: []*schema.Message{schema.UserMessage("gracias")},
		At:       time.Now(),
	}))
	again, err := store.Load(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, again.Messages, 3)
	assert.Equal(t, "gracias", again.Messages[2].Content)
	assert.Equal(t, 2, again.Turns)

	other, err := store.Load(ctx, "s2")
	require.NoError(t, err)
	assert.Empty(t, other.Messages)

	require.NoError(t, store.Delete(ctx, "s1"))
	gone, err := store.Load(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, gone.Messages)
	assert.Zero(t, gone.Turns)

	overlappingAppends(t, store)
}

// overlappingAppends runs turns on one session at the same time; none may be lost.
func overlappingAppends(t *testing.T, store model.SessionStore) {
	ctx := context.Background()
	const turns = 8

	var g errgroup.Group
	for i := 0; i < turns; i++ {
		g.Go(func() error {
			return store.Append(ctx, "busy", sampleTurn())
		})
	}
	require.NoError(t, g.Wait())

	s, err := store.Load(ctx, "busy")
	require.NoError(t, err)
	assert.Len(t, s.Messages, 2*turns)
	assert.Equal(t, turns, s.Turns)
	assert.InDelta(t, 0.0015*turns, s.TotalCostUSD, 1e-9)
	for i := 0; i < len(s.Messages); i += 2 {
		assert.Equal(t, schema.User, s.Messages[i].Role, "turn messages stay adjacent")
		assert.Equal(t, schema.Assistant, s.Messages[i+1].Role)
	}
}

func TestRedisSessionStore(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	storeContract(t, NewRedisSessionStore(rdb, time.Hour))
}

func TestRedisSessionStoreTTL(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	store := NewRedisSessionStore(rdb, time.Minute)
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, "ttl", sampleTurn()))
	assert.Equal(t, time.Minute, mr.TTL("session:ttl:messages"))
	assert.Equal(t, time.Minute, mr.TTL("session:ttl:meta"))

	stored, err := mr.List("session:ttl:messages")
	require.NoError(t, err)
	assert.Len(t, stored, 2)
	assert.Equal(t, "1", mr.HGet("session:ttl:meta", "turns"))

	mr.FastForward(2 * time.Minute)
	s, err := store.Load(ctx, "ttl")
	require.NoError(t, err)
	assert.Empty(t, s.Messages)
}

func TestRedisSessionStoreUnavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	store := NewRedisSessionStore(rdb, 0)
	mr.Close()

	_, err := store.Load(context.Background(), "x")
	require.Error(t, err)
	assert.Equal(t, http.StatusBadGateway, errx.StatusOf(err))
}

func TestRedisSessionStoreCorruptMessage(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	_, err := mr.RPush("session:bad:messages", "{not json")
	require.NoError(t, err)

	_, err = NewRedisSessionStore(rdb, 0).Load(context.Background(), "bad")
	assert.ErrorContains(t, err, "index 0")
}

func TestSqliteSessionStore(t *testing.T) {
	store, err := NewSqliteSessionStore(context.Background(), SqliteOptions{Path: filepath.Join(t.TempDir(), "sessions.db")})
	require.NoError(t, err)
	defer store.Close()

	storeContract(t, store)
}

func TestMemorySessionStore(t *testing.T) {
	storeContract(t, NewMemorySessionStore(time.Hour))
}

func TestMemorySessionStoreDetachesCopies(t *testing.T) {
	store := NewMemorySessionStore(0)
	ctx := context.Background()
	require.NoError(t, store.Append(ctx, "m", sampleTurn()))

	loaded, err := store.Load(ctx, "m")
	require.NoError(t, err)
	loaded.Messages = append(loaded.Messages, schema.UserMessage("no guardado"))
	loaded.Turns = 9

	again, err := store.Load(ctx, "m")
	require.NoError(t, err)
	assert.Len(t, again.Messages, 2)
	assert.Equal(t, 1, again.Turns)
}
