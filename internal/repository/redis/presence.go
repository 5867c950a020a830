// Package redis keeps the live-participant registry in Redis so every
// process serving a tenant can list who is connected to a document.
package redis

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/lalith-99/docstream/internal/models"
	goredis "github.com/redis/go-redis/v9"
)

// presenceTTL bounds how long entries survive a process that died without
// running Leave. Every Join refreshes it.
const presenceTTL = time.Hour

// leaveScript decrements a user's session count and drops the field at zero,
// atomically so a concurrent Join is never erased.
var leaveScript = goredis.NewScript(`
local n = redis.call("HINCRBY", KEYS[1], ARGV[1], -1)
if n <= 0 then
	redis.call("HDEL", KEYS[1], ARGV[1])
end
return n
`)

type PresenceStore struct {
	client *goredis.Client
}

func NewPresenceStore(client *goredis.Client) *PresenceStore {
	return &PresenceStore{client: client}
}

func presenceKey(tenantID, documentID uuid.UUID) string {
	return fmt.Sprintf("docstream:presence:%s:%s", tenantID, documentID)
}

func (s *PresenceStore) Join(ctx context.Context, tenantID, documentID, userID uuid.UUID) error {
	key := presenceKey(tenantID, documentID)

	pipe := s.client.TxPipeline()
	pipe.HIncrBy(ctx, key, userID.String(), 1)
	pipe.Expire(ctx, key, presenceTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("presence join: %w", err)
	}
	return nil
}

func (s *PresenceStore) Leave(ctx context.Context, tenantID, documentID, userID uuid.UUID) error {
	key := presenceKey(tenantID, documentID)
	if err := leaveScript.Run(ctx, s.client, []string{key}, userID.String()).Err(); err != nil {
		return fmt.Errorf("presence leave: %w", err)
	}
	return nil
}

func (s *PresenceStore) List(ctx context.Context, tenantID, documentID uuid.UUID) ([]models.Participant, error) {
	fields, err := s.client.HGetAll(ctx, presenceKey(tenantID, documentID)).Result()
	if err != nil {
		return nil, fmt.Errorf("presence list: %w", err)
	}

	out := make([]models.Participant, 0, len(fields))
	for field, raw := range fields {
		userID, err := uuid.Parse(field)
		if err != nil {
			continue
		}
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n <= 0 {
			continue
		}
		out = append(out, models.Participant{UserID: userID, Sessions: n})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].UserID.String() < out[j].UserID.String()
	})
	return out, nil
}
