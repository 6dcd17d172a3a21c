package server

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/peterje/forge/internal/api"
)

// RateLimit caps requests per client IP. A zero RequestsPerSecond disables
// limiting.
type RateLimit struct {
	RequestsPerSecond int
	Burst             int
}

func (r RateLimit) enabled() bool { return r.RequestsPerSecond > 0 }

func rateLimiter(cfg RateLimit) gin.HandlerFunc {
	burst := cfg.Burst
	if burst < 1 {
		burst = cfg.RequestsPerSecond
	}

	var (
		mu       sync.Mutex
		limiters = make(map[string]*rate.Limiter)
	)

	return func(c *gin.Context) {
		ip := c.ClientIP()

		mu.Lock()
		l, ok := limiters[ip]
		if !ok {
			l = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
			limiters[ip] = l
		}
		mu.Unlock()

		if !l.Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, api.ErrorResponse{
				Error: "rate limit exceeded",
				Code:  "rate_limited",
			})
			return
		}
		c.Next()
	}
}
