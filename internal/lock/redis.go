package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// releaseScript deletes the key only if it still holds our token, so a run
// that outlived its TTL cannot release a lock another instance now owns.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis is a cross-instance lock built on SET NX PX. The TTL bounds how long
// a crashed holder blocks other instances; it must exceed the longest batch.
type Redis struct {
	client redis.UniversalClient
	key    string
	ttl    time.Duration
	logger *zap.Logger
}

func NewRedis(client redis.UniversalClient, key string, ttl time.Duration, logger *zap.Logger) *Redis {
	return &Redis{client: client, key: key, ttl: ttl, logger: logger}
}

func (r *Redis) TryLock(ctx context.Context) (func(), bool, error) {
	token := uuid.New().String()
	ok, err := r.client.SetNX(ctx, r.key, token, r.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquire redis lock %s: %w", r.key, err)
	}
	if !ok {
		return nil, false, nil
	}
	return func() {
		// Release must run even when the run's context was cancelled.
		relCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 3*time.Second)
		defer cancel()
		if err := releaseScript.Run(relCtx, r.client, []string{r.key}, token).Err(); err != nil {
			r.logger.Warn("failed to release redis lock", zap.String("key", r.key), zap.Error(err))
		}
	}, true, nil
}
