package redis

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Needs a scratch Redis, e.g. DOCSTREAM_TEST_REDIS_URL=redis://localhost:6379/15
func testClient(t *testing.T) *goredis.Client {
	t.Helper()
	url := os.Getenv("DOCSTREAM_TEST_REDIS_URL")
	if url == "" {
		t.Skip("DOCSTREAM_TEST_REDIS_URL not set")
	}
	opts, err := goredis.ParseURL(url)
	require.NoError(t, err)

	client := goredis.NewClient(opts)
	t.Cleanup(func() { client.Close() })
	require.NoError(t, client.Ping(context.Background()).Err())
	return client
}

func TestPresenceCountsSessions(t *testing.T) {
	client := testClient(t)
	store := NewPresenceStore(client)
	ctx := context.Background()
	tenantID, documentID := uuid.New(), uuid.New()
	ada, bob := uuid.New(), uuid.New()
	t.Cleanup(func() { client.Del(ctx, presenceKey(tenantID, documentID)) })

	// Ada has two tabs open.
	require.NoError(t, store.Join(ctx, tenantID, documentID, ada))
	require.NoError(t, store.Join(ctx, tenantID, documentID, ada))
	require.NoError(t, store.Join(ctx, tenantID, documentID, bob))

	ps, err := store.List(ctx, tenantID, documentID)
	require.NoError(t, err)
	require.Len(t, ps, 2)
	sessions := map[uuid.UUID]int64{}
	for _, p := range ps {
		sessions[p.UserID] = p.Sessions
	}
	assert.Equal(t, int64(2), sessions[ada])
	assert.Equal(t, int64(1), sessions[bob])

	require.NoError(t, store.Leave(ctx, tenantID, documentID, ada))
	require.NoError(t, store.Leave(ctx, tenantID, documentID, bob))

	ps, err = store.List(ctx, tenantID, documentID)
	require.NoError(t, err)
	require.Len(t, ps, 1)
	assert.Equal(t, ada, ps[0].UserID)
	assert.Equal(t, int64(1), ps[0].Sessions)

	ttl, err := client.TTL(ctx, presenceKey(tenantID, documentID)).Result()
	require.NoError(t, err)
	assert.Positive(t, ttl)

	other, err := store.List(ctx, uuid.New(), documentID)
	require.NoError(t, err)
	assert.Empty(t, other)
}
