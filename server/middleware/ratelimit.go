package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	apperrors "github.com/kbukum/speechgate/errors"
)

// RateLimit gives each caller a token bucket refilled at requestsPerMinute
// with a burst of the same size. Callers are keyed by token subject when
// Auth ran first, else by client IP.
func RateLimit(requestsPerMinute int) gin.HandlerFunc {
	if requestsPerMinute <= 0 {
		requestsPerMinute = 60
	}
	rl := &rateLimiter{
		callers: make(map[string]*caller),
		every:   rate.Every(time.Minute / time.Duration(requestsPerMinute)),
		burst:   requestsPerMinute,
		now:     time.Now,
	}

	return func(c *gin.Context) {
		if !rl.allow(callerKey(c)) {
			err := apperrors.New(apperrors.ErrCodeRateLimited, "Rate limit exceeded", http.StatusTooManyRequests)
			c.AbortWithStatusJSON(err.HTTPStatus, err.ToResponse())
			return
		}
		c.Next()
	}
}

func callerKey(c *gin.Context) string {
	if claims, ok := ClaimsFrom(c); ok && claims.Subject != "" {
		return "sub:" + claims.Subject
	}
	return "ip:" + c.ClientIP()
}

type caller struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type rateLimiter struct {
	mu      sync.Mutex
	callers map[string]*caller
	every   rate.Limit
	burst   int
	now     func() time.Time
	calls   int
}

func (rl *rateLimiter) allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()

	// Callers idle for a minute have a full bucket again; drop them.
	rl.calls++
	if rl.calls%1024 == 0 {
		for k, c := range rl.callers {
			if now.Sub(c.lastSeen) > time.Minute {
				delete(rl.callers, k)
			}
		}
	}

	c, ok := rl.callers[key]
	if !ok {
		c = &caller{limiter: rate.NewLimiter(rl.every, rl.burst)}
		rl.callers[key] = c
	}
	c.lastSeen = now
	return c.limiter.AllowN(now, 1)
}
