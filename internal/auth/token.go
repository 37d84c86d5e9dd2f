package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const tokenKeyFmt = "arenatoken:%s"

// SetToken records an issued token so it can be revoked before its JWT
// expiry. The redis record, not the JWT, is the source of truth for liveness.
func SetToken(rdb *redis.Client, arenaID, token string, duration time.Duration) error {
	ctx := context.Background()
	key := fmt.Sprintf(tokenKeyFmt, arenaID)
	return rdb.Set(ctx, key, token, duration).Err()
}

func GetToken(rdb *redis.Client, arenaID string) (string, error) {
	ctx := context.Background()
	key := fmt.Sprintf(tokenKeyFmt, arenaID)
	return rdb.Get(ctx, key).Result()
}

func RevokeToken(rdb *redis.Client, arenaID string) error {
	ctx := context.Background()
	key := fmt.Sprintf(tokenKeyFmt, arenaID)
	return rdb.Del(ctx, key).Err()
}

// ActiveTokenCount returns how many arenas currently hold a live token.
func ActiveTokenCount(rdb *redis.Client) (int, error) {
	ctx := context.Background()
	var cursor uint64
	ids := make(map[string]struct{})
	for {
		keys, newCursor, err := rdb.Scan(ctx, cursor, "arenatoken:*", 100).Result()
		if err != nil {
			return 0, err
		}
		for _, key := range keys {
			parts := strings.SplitN(key, ":", 2)
			if len(parts) == 2 && parts[1] != "" {
				ids[parts[1]] = struct{}{}
			}
		}
		if newCursor == 0 {
			break
		}
		cursor = newCursor
	}
	return len(ids), nil
}
