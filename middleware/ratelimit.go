package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/phillip/giftpots-go/apperr"
	"github.com/phillip/giftpots-go/ratelimit"
)

// RateLimit rejects clients that exceed the limiter, keyed by client IP.
// reject writes the apperr.RateLimited response; nil falls back to a bare 429.
func RateLimit(limiter ratelimit.Limiter, reject func(c *gin.Context, err error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter == nil || limiter.Allow(c.ClientIP()) {
			c.Next()
			return
		}
		log.WithFields(log.Fields{
			"ip":   c.ClientIP(),
			"path": c.FullPath(),
		}).Warn("rate limit exceeded")

		err := apperr.RateLimited()
		if reject == nil {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": err.Error()})
			return
		}
		reject(c, err)
		c.Abort()
	}
}
