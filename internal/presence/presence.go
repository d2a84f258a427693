// Package presence tracks which users currently hold live connections joined
// to a room. The registry is shared across process instances through Redis so
// the offline-notification check sees connections held by peers.
package presence

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const entryTTL = 24 * time.Hour

// Registry is the cluster-wide room presence store. Each room maps to a hash
// of userID -> live connection count; a user is present while their count is
// positive.
type Registry struct {
	client *redis.Client
	prefix string
}

// NewRegistry creates a presence registry on top of an established Redis
// client.
func NewRegistry(client *redis.Client, prefix string) *Registry {
	if prefix == "" {
		prefix = "chat:presence"
	}
	return &Registry{client: client, prefix: prefix}
}

// Join records one more live connection for userID in roomID.
func (r *Registry) Join(ctx context.Context, roomID, userID uint) error {
	key := r.key(roomID)
	pipe := r.client.TxPipeline()
	pipe.HIncrBy(ctx, key, field(userID), 1)
	pipe.Expire(ctx, key, entryTTL)
	_, err := pipe.Exec(ctx)
	return err
}

// Leave records one fewer live connection for userID in roomID, pruning the
// entry once no connection remains.
func (r *Registry) Leave(ctx context.Context, roomID, userID uint) error {
	key := r.key(roomID)
	remaining, err := r.client.HIncrBy(ctx, key, field(userID), -1).Result()
	if err != nil {
		return err
	}
	if remaining <= 0 {
		return r.client.HDel(ctx, key, field(userID)).Err()
	}
	return nil
}

// IsUserInRoom reports whether userID has any live connection joined to
// roomID on any instance.
func (r *Registry) IsUserInRoom(ctx context.Context, roomID, userID uint) (bool, error) {
	value, err := r.client.HGet(ctx, r.key(roomID), field(userID)).Result()
	if err != nil {
		if err == redis.Nil {
			return false, nil
		}
		return false, err
	}

	count, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// RoomUsers returns the user IDs currently present in roomID.
func (r *Registry) RoomUsers(ctx context.Context, roomID uint) ([]uint, error) {
	entries, err := r.client.HGetAll(ctx, r.key(roomID)).Result()
	if err != nil {
		return nil, err
	}

	users := make([]uint, 0, len(entries))
	for rawID, rawCount := range entries {
		count, err := strconv.ParseInt(rawCount, 10, 64)
		if err != nil || count <= 0 {
			continue
		}
		id, err := strconv.ParseUint(rawID, 10, 64)
		if err != nil {
			continue
		}
		users = append(users, uint(id))
	}
	return users, nil
}

func (r *Registry) key(roomID uint) string {
	return fmt.Sprintf("%s:%d", r.prefix, roomID)
}

func field(userID uint) string {
	return strconv.FormatUint(uint64(userID), 10)
}
