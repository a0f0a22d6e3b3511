package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"cutoutly/internal/infra"
)

// Guard excludes concurrent advances of the same job.
type Guard interface {
	// TryAcquire claims jobID without blocking. False means another caller
	// holds it.
	TryAcquire(ctx context.Context, jobID string) (bool, error)
	Release(ctx context.Context, jobID string)
}

// MemoryGuard is a process-local set of job ids being advanced. It gives no
// exclusion across instances; the stage compare-and-swap in the job store
// covers that case.
type MemoryGuard struct {
	mu     sync.Mutex
	active map[string]struct{}
}

func NewMemoryGuard() *MemoryGuard {
	return &MemoryGuard{active: make(map[string]struct{})}
}

func (g *MemoryGuard) TryAcquire(_ context.Context, jobID string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, busy := g.active[jobID]; busy {
		return false, nil
	}
	g.active[jobID] = struct{}{}
	return true, nil
}

func (g *MemoryGuard) Release(_ context.Context, jobID string) {
	g.mu.Lock()
	delete(g.active, jobID)
	g.mu.Unlock()
}

// Held reports whether jobID is currently claimed.
func (g *MemoryGuard) Held(jobID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, busy := g.active[jobID]
	return busy
}

// DefaultGuardTTL bounds how long a crashed holder can block a job.
const DefaultGuardTTL = 5 * time.Minute

// releaseScript deletes the lock only when it still carries our token.
var releaseScript = `if redis.call("GET", KEYS[1]) == ARGV[1] then return redis.call("DEL", KEYS[1]) end return 0`

// redisLocker is the slice of the go-redis client the guard needs.
type redisLocker interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *goredis.BoolCmd
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *goredis.Cmd
}

// RedisGuard shares exclusion across instances with SET NX PX. Each lock
// carries a random token so only its holder can release it.
type RedisGuard struct {
	rdb    redisLocker
	prefix string
	ttl    time.Duration
	logger *infra.Logger

	mu     sync.Mutex
	tokens map[string]string
}

func NewRedisGuard(rdb redisLocker, ttl time.Duration, logger *infra.Logger) *RedisGuard {
	if ttl <= 0 {
		ttl = DefaultGuardTTL
	}
	return &RedisGuard{
		rdb:    rdb,
		prefix: "cutoutly:advance:",
		ttl:    ttl,
		logger: logger,
		tokens: make(map[string]string),
	}
}

func (g *RedisGuard) TryAcquire(ctx context.Context, jobID string) (bool, error) {
	token := uuid.NewString()
	ok, err := g.rdb.SetNX(ctx, g.prefix+jobID, token, g.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis guard acquire: %w", err)
	}
	if !ok {
		return false, nil
	}
	g.mu.Lock()
	g.tokens[jobID] = token
	g.mu.Unlock()
	return true, nil
}

func (g *RedisGuard) Release(ctx context.Context, jobID string) {
	g.mu.Lock()
	token, ok := g.tokens[jobID]
	delete(g.tokens, jobID)
	g.mu.Unlock()
	if !ok {
		return
	}
	if err := g.rdb.Eval(ctx, releaseScript, []string{g.prefix + jobID}, token).Err(); err != nil && g.logger != nil {
		// The TTL frees the key eventually.
		g.logger.Warn().Err(err).Str("job_id", jobID).Msg("jobs: redis guard release failed")
	}
}

var (
	_ Guard = (*MemoryGuard)(nil)
	_ Guard = (*RedisGuard)(nil)
)
