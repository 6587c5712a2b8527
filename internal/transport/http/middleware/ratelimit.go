package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

const (
	errRateLimited = "Too many requests. Please try again later"

	defaultMaxClients = 100_000
)

// RateLimiter throttles requests per client IP. Idle clients are evicted at
// most once per evictEvery, and at most maxClients are tracked; new clients
// beyond that are refused until eviction frees room.
type RateLimiter struct {
	limit      rate.Limit
	burst      int
	window     time.Duration
	evictEvery time.Duration
	maxClients int
	now        func() time.Time

	mu        sync.Mutex
	clients   map[string]*clientLimiter
	lastEvict time.Time
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter allows requestsPerMinute per client with a small burst.
// A non-positive budget disables limiting and returns nil.
func NewRateLimiter(requestsPerMinute int) *RateLimiter {
	if requestsPerMinute <= 0 {
		return nil
	}
	return &RateLimiter{
		limit:      rate.Limit(float64(requestsPerMinute) / 60.0),
		burst:      max(requestsPerMinute/5, 1),
		window:     10 * time.Minute,
		evictEvery: time.Minute,
		maxClients: defaultMaxClients,
		now:        time.Now,
		clients:    make(map[string]*clientLimiter),
	}
}

// Handler returns the gin middleware. A nil limiter passes everything through.
func (r *RateLimiter) Handler() gin.HandlerFunc {
	if r == nil {
		return func(c *gin.Context) { c.Next() }
	}

	return func(c *gin.Context) {
		if !r.allow(c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": errRateLimited})
			return
		}
		c.Next()
	}
}

func (r *RateLimiter) allow(key string) bool {
	now := r.now()

	r.mu.Lock()
	if now.Sub(r.lastEvict) >= r.evictEvery {
		r.evictLocked(now)
	}
	entry, ok := r.clients[key]
	if !ok {
		if len(r.clients) >= r.maxClients {
			r.mu.Unlock()
			return false
		}
		entry = &clientLimiter{limiter: rate.NewLimiter(r.limit, r.burst)}
		r.clients[key] = entry
	}
	entry.lastSeen = now
	r.mu.Unlock()

	return entry.limiter.AllowN(now, 1)
}

func (r *RateLimiter) evictLocked(now time.Time) {
	r.lastEvict = now
	for key, entry := range r.clients {
		if now.Sub(entry.lastSeen) > r.window {
			delete(r.clients, key)
		}
	}
}
