package service

import (
	"context"
	"sync"
	"time"

	"codescribe-auth/internal/utils"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

const (
	defaultResetLimit  = 3
	defaultResetWindow = time.Hour
)

// resetCountScript increments the per-identity counter and arms the window
// expiry on first use, atomically.
var resetCountScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return count
`)

// RedisResetLimiter counts password-reset issuance requests per identity in
// a shared Redis window, so the limit holds across server instances.
// Identity keys are hashed before use so email addresses never appear in
// Redis.
type RedisResetLimiter struct {
	Client redis.UniversalClient
	Prefix string
	Limit  int
	Window time.Duration
}

func NewRedisResetLimiter(client redis.UniversalClient) *RedisResetLimiter {
	return &RedisResetLimiter{
		Client: client,
		Prefix: "reset_rl",
		Limit:  defaultResetLimit,
		Window: defaultResetWindow,
	}
}

func (l *RedisResetLimiter) Allow(ctx context.Context, key string) (bool, error) {
	limit := l.Limit
	if limit <= 0 {
		limit = defaultResetLimit
	}
	window := l.Window
	if window <= 0 {
		window = defaultResetWindow
	}

	storeKey := l.Prefix + ":" + utils.HashSecret(key)
	count, err := resetCountScript.Run(ctx, l.Client, []string{storeKey}, window.Milliseconds()).Int64()
	if err != nil {
		return false, err
	}
	return count <= int64(limit), nil
}

// MemoryResetLimiter is the single-process fallback for environments
// without Redis. One token bucket per identity: burst equals the limit and
// the refill interval spreads the limit over the window, so at most Limit
// requests fit in any rolling window.
type MemoryResetLimiter struct {
	mutex    sync.Mutex
	limiters map[string]*rate.Limiter
	lastSeen map[string]time.Time
	limit    int
	window   time.Duration
	clock    Clock
}

func NewMemoryResetLimiter(limit int, window time.Duration, clock Clock) *MemoryResetLimiter {
	if limit <= 0 {
		limit = defaultResetLimit
	}
	if window <= 0 {
		window = defaultResetWindow
	}
	if clock == nil {
		clock = RealClock{}
	}
	return &MemoryResetLimiter{
		limiters: make(map[string]*rate.Limiter),
		lastSeen: make(map[string]time.Time),
		limit:    limit,
		window:   window,
		clock:    clock,
	}
}

func (l *MemoryResetLimiter) Allow(_ context.Context, key string) (bool, error) {
	now := l.clock.Now()

	l.mutex.Lock()
	defer l.mutex.Unlock()

	limiter, ok := l.limiters[key]
	if !ok {
		limiter = rate.NewLimiter(rate.Every(l.window/time.Duration(l.limit)), l.limit)
		l.limiters[key] = limiter
	}
	l.lastSeen[key] = now
	l.cleanup(now)

	return limiter.AllowN(now, 1), nil
}

func (l *MemoryResetLimiter) cleanup(now time.Time) {
	cutoff := now.Add(-2 * l.window)
	for key, last := range l.lastSeen {
		if last.Before(cutoff) {
			delete(l.lastSeen, key)
			delete(l.limiters, key)
		}
	}
}
