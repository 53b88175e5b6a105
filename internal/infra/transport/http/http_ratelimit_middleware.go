package http

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/mkrupp/vidrio/internal/infra/logging"
)

// RateLimitConfig configures the per-client limiter of the credential endpoints.
type RateLimitConfig struct {
	// Rate is the number of requests per second a client may sustain
	Rate float64 `env:"RATE" default:"1"`
	// Burst is the number of requests a client may issue at once
	Burst int `env:"BURST" default:"10"`
	// IdleTTL is how long an unused client limiter is kept; zero keeps limiters forever
	IdleTTL time.Duration `env:"IDLE_TTL" default:"10m"`
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter keeps a token bucket per client address.
type RateLimiter struct {
	cfg RateLimitConfig
	log logging.Logger
	now func() time.Time

	mu      sync.Mutex
	clients map[string]*clientLimiter
}

// NewRateLimiter creates a RateLimiter.
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	return &RateLimiter{
		cfg:     cfg,
		log:     logging.GetLogger("infra.transport.http.ratelimit"),
		now:     time.Now,
		mu:      sync.Mutex{},
		clients: make(map[string]*clientLimiter),
	}
}

// Allow reports whether the client identified by key may proceed.
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()

	client, ok := rl.clients[key]
	if !ok {
		client = &clientLimiter{limiter: rate.NewLimiter(rate.Limit(rl.cfg.Rate), rl.cfg.Burst), lastSeen: now}
		rl.clients[key] = client
	}

	client.lastSeen = now

	return client.limiter.AllowN(now, 1)
}

// Sweep drops limiters idle for longer than IdleTTL.
func (rl *RateLimiter) Sweep() int {
	if rl.cfg.IdleTTL <= 0 {
		return 0
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.now().Add(-rl.cfg.IdleTTL)
	dropped := 0

	for key, client := range rl.clients {
		if client.lastSeen.Before(cutoff) {
			delete(rl.clients, key)

			dropped++
		}
	}

	return dropped
}

// Run sweeps idle limiters every interval until ctx is done.
// A non-positive interval disables sweeping and Run returns at once.
func (rl *RateLimiter) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		rl.log.DebugContext(ctx, "limiter sweep disabled")

		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if dropped := rl.Sweep(); dropped > 0 {
				rl.log.DebugContext(ctx, "idle limiters dropped", "count", dropped)
			}
		}
	}
}

// Middleware rejects requests over the client's budget with 429.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := clientAddr(r)
		if rl.Allow(key) {
			next.ServeHTTP(w, r)

			return
		}

		rl.log.WarnContext(r.Context(), "rate limit exceeded", "client", key, "path", r.URL.Path)

		w.Header().Set("Retry-After", strconv.Itoa(max(1, int(1/max(rl.cfg.Rate, 0.001)))))
		//nolint:exhaustruct
		_ = WriteJSON(w, http.StatusTooManyRequests, Response{
			Outcome: OutcomeRateLimited,
			Message: "Demasiados intentos. Espera e intenta de nuevo.",
		})
	})
}

func clientAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}

	return host
}
