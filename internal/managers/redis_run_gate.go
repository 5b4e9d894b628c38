package managers

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/xid"
	"github.com/rs/zerolog/log"

	"github.com/nudgekit/nudgekit/internal/domain"
)

const (
	runGateKeyPrefix = "nudgekit:run-gate:"

	// DefaultRunLease bounds how long a crashed holder can block a
	// configuration before its lease expires.
	DefaultRunLease = 30 * time.Minute
)

// redisRunGate enforces the per-configuration run lock across replicas with a
// SET NX lease. Release only deletes the key if this process still holds it,
// so an expired lease taken over by another replica is never clobbered.
type redisRunGate struct {
	client *redis.Client
	lease  time.Duration
}

type RedisRunGateDependencies struct {
	Client *redis.Client
	Lease  time.Duration
}

func NewRedisRunGate(deps RedisRunGateDependencies) domain.RunGate {
	lease := deps.Lease
	if lease <= 0 {
		lease = DefaultRunLease
	}

	return &redisRunGate{client: deps.Client, lease: lease}
}

var releaseIfHeldScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0`)

func (g *redisRunGate) TryAcquire(ctx context.Context, configID string) (func(), bool, error) {
	key := runGateKeyPrefix + configID
	holder := xid.New().String()

	acquired, err := g.client.SetNX(ctx, key, holder, g.lease).Result()
	if err != nil {
		return nil, false, err
	}

	if !acquired {
		return nil, false, nil
	}

	var once sync.Once
	release := func() {
		once.Do(func() {
			releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()

			if err := releaseIfHeldScript.Run(releaseCtx, g.client, []string{key}, holder).Err(); err != nil {
				log.Error().Err(err).Str("agent_id", configID).Msg("Failed to release run gate lease")
			}
		})
	}

	return release, true, nil
}
