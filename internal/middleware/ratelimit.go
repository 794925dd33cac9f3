package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// CounterStore counts hits per key within a fixed window.
type CounterStore interface {
	Hit(ctx context.Context, key string, window time.Duration) (int, error)
}

type visitor struct {
	count    int
	lastSeen time.Time
}

// MemoryStore keeps counters in process. Suitable for a single replica.
type MemoryStore struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	now      func() time.Time

	done      chan struct{}
	closeOnce sync.Once
}

// NewMemoryStore starts a sweeper that evicts idle keys every window. Call
// Close to stop it.
func NewMemoryStore(window time.Duration) *MemoryStore {
	s := &MemoryStore{
		visitors: make(map[string]*visitor),
		now:      time.Now,
		done:     make(chan struct{}),
	}

	go func() {
		ticker := time.NewTicker(window)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.sweep(window)
			case <-s.done:
				return
			}
		}
	}()

	return s
}

// Close stops the sweeper. It is safe to call more than once.
func (s *MemoryStore) Close() error {
	s.closeOnce.Do(func() { close(s.done) })
	return nil
}

func (s *MemoryStore) sweep(window time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, v := range s.visitors {
		if s.now().Sub(v.lastSeen) > window {
			delete(s.visitors, key)
		}
	}
}

func (s *MemoryStore) Hit(_ context.Context, key string, window time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	v, exists := s.visitors[key]
	if !exists || now.Sub(v.lastSeen) > window {
		s.visitors[key] = &visitor{count: 1, lastSeen: now}
		return 1, nil
	}

	v.count++
	v.lastSeen = now
	return v.count, nil
}

// redisCounter is the subset of *redis.Client the Redis store needs.
type redisCounter interface {
	Incr(ctx context.Context, key string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
}

// RedisStore shares counters between gateway replicas.
type RedisStore struct {
	client redisCounter
	prefix string
}

func NewRedisStore(client redisCounter) *RedisStore {
	return &RedisStore{client: client, prefix: "ratelimit:chat:"}
}

func (s *RedisStore) Hit(ctx context.Context, key string, window time.Duration) (int, error) {
	bucket := time.Now().UnixNano() / int64(window)
	redisKey := s.prefix + key + ":" + strconv.FormatInt(bucket, 10)

	n, err := s.client.Incr(ctx, redisKey).Result()
	if err != nil {
		return 0, fmt.Errorf("rate limit incr: %w", err)
	}
	if n == 1 {
		if err := s.client.Expire(ctx, redisKey, window).Err(); err != nil {
			return int(n), fmt.Errorf("rate limit expire: %w", err)
		}
	}
	return int(n), nil
}

type RateLimiter struct {
	store  CounterStore
	limit  int
	window time.Duration
	log    *slog.Logger
}

func NewRateLimiter(store CounterStore, limit int, window time.Duration, log *slog.Logger) *RateLimiter {
	if log == nil {
		log = slog.Default()
	}
	return &RateLimiter{
		store:  store,
		limit:  limit,
		window: window,
		log:    log,
	}
}

func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		count, err := rl.store.Hit(r.Context(), clientKey(r), rl.window)
		if err != nil {
			// A broken counter store must not take the gateway down.
			rl.log.WarnContext(r.Context(), "rate limiter unavailable", "error", err)
			next.ServeHTTP(w, r)
			return
		}

		if count > rl.limit {
			w.Header().Set("Retry-After", strconv.Itoa(int(rl.window.Seconds())))
			writeError(w, http.StatusTooManyRequests, "RATE_LIMITED", "Too many requests. Please try again later.", r)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// clientKey is the caller's address without the ephemeral port.
func clientKey(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
