package middleware

import (
	"log/slog"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// maxTrackedIPs bounds the limiter table; past it the table starts over.
const maxTrackedIPs = 10000

// IPRateLimiter hands out one token bucket per client IP.
type IPRateLimiter struct {
	ips map[string]*rate.Limiter
	mu  sync.Mutex
	r   rate.Limit
	b   int
}

func NewIPRateLimiter(r rate.Limit, b int) *IPRateLimiter {
	return &IPRateLimiter{
		ips: make(map[string]*rate.Limiter),
		r:   r,
		b:   b,
	}
}

func (i *IPRateLimiter) GetLimiter(ip string) *rate.Limiter {
	i.mu.Lock()
	defer i.mu.Unlock()

	limiter, exists := i.ips[ip]
	if !exists {
		if len(i.ips) >= maxTrackedIPs {
			i.ips = make(map[string]*rate.Limiter)
		}
		limiter = rate.NewLimiter(i.r, i.b)
		i.ips[ip] = limiter
	}
	return limiter
}

func exempt(path string) bool {
	return path == "/health" || path == "/metrics"
}

// IPRateLimitMiddleware rejects clients that exceed their bucket with 429.
// Health and metrics probes are never limited.
func IPRateLimitMiddleware(ipLimiter *IPRateLimiter, logger *slog.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(c *gin.Context) {
		if exempt(c.Request.URL.Path) {
			c.Next()
			return
		}

		clientIP := c.ClientIP()
		if !ipLimiter.GetLimiter(clientIP).Allow() {
			logger.Warn("rate limit exceeded", "ip", clientIP, "path", c.Request.URL.Path)
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": gin.H{
					"code":        http.StatusTooManyRequests,
					"description": "Rate limit exceeded",
					"message":     "Please try again in a few seconds.",
				},
			})
			return
		}

		c.Next()
	}
}
