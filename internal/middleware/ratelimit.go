package middleware

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter 按 key（playerId 或 IP）各自一个令牌桶
type RateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	limit    rate.Limit
	burst    int
	idle     time.Duration
	now      func() time.Time
}

// NewRateLimiter allows perMinute events per key on average with the given burst.
// Keys unseen for idle are dropped by Sweep.
func NewRateLimiter(perMinute, burst int, idle time.Duration) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		visitors: make(map[string]*visitor),
		limit:    rate.Limit(float64(perMinute) / 60),
		burst:    burst,
		idle:     idle,
		now:      time.Now,
	}
}

func (l *RateLimiter) get(key string) *rate.Limiter {
	now := l.now()
	v, ok := l.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.visitors[key] = v
	}
	v.lastSeen = now
	return v.limiter
}

func (l *RateLimiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.get(key).AllowN(l.now(), 1)
}

// retryAfter seconds until the next token for key.
func (l *RateLimiter) retryAfter(key string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	lim := l.get(key)
	tokens := lim.TokensAt(l.now())
	if tokens >= 1 || l.limit <= 0 {
		return 0
	}
	return int(math.Ceil((1 - tokens) / float64(l.limit)))
}

// Sweep removes idle keys and returns how many were dropped.
func (l *RateLimiter) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	cutoff := l.now().Add(-l.idle)
	n := 0
	for k, v := range l.visitors {
		if v.lastSeen.Before(cutoff) {
			delete(l.visitors, k)
			n++
		}
	}
	return n
}

func (l *RateLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.visitors)
}

// Run sweeps every idle period until ctx is done.
func (l *RateLimiter) Run(ctx context.Context) {
	if l.idle <= 0 {
		return
	}
	t := time.NewTicker(l.idle)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			l.Sweep()
		}
	}
}

// LimitByIP 通用接口限流
func LimitByIP(l *RateLimiter, logger *log.Logger) gin.HandlerFunc {
	logger = logger.WithPrefix("ratelimit")
	return func(c *gin.Context) {
		ip := c.ClientIP()
		if l.Allow(ip) {
			c.Next()
			return
		}
		retry := l.retryAfter(ip)
		logger.Warn("rate limit exceeded", "ip", ip, "method", c.Request.Method, "path", c.Request.URL.Path)
		c.Header("Retry-After", strconv.Itoa(retry))
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"error":      "RATE_LIMIT_EXCEEDED",
			"message":    "too many requests, please try again later",
			"retryAfter": retry,
		})
	}
}
