package server

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lukasmk87/basketmanager/internal/observability/logger"
	"github.com/lukasmk87/basketmanager/internal/ratelimit"
	"go.uber.org/zap"
)

// VoucherRateLimit throttles code checks per club and per client IP so codes
// cannot be enumerated.
func (s *Server) VoucherRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.voucherLimiter.Enabled() {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		clubID := strings.TrimSpace(c.Param("id"))

		decision, err := s.voucherLimiter.AllowClub(ctx, clubID)
		if err != nil {
			logger.FromContext(ctx).Warn("voucher club rate limit check failed", zap.Error(err))
			AbortWithError(c, ErrServiceUnavailable)
			return
		}
		if !decision.Allowed {
			denyVoucherRateLimit(c, decision)
			return
		}

		decision, err = s.voucherLimiter.AllowIP(ctx, c.ClientIP())
		if err != nil {
			logger.FromContext(ctx).Warn("voucher ip rate limit check failed", zap.Error(err))
			AbortWithError(c, ErrServiceUnavailable)
			return
		}
		if !decision.Allowed {
			denyVoucherRateLimit(c, decision)
			return
		}

		c.Next()
	}
}

func denyVoucherRateLimit(c *gin.Context, decision ratelimit.Decision) {
	logger.FromContext(c.Request.Context()).Warn("voucher rate limit exceeded",
		zap.String("reason", decision.Reason),
		zap.String("route", c.FullPath()),
	)

	c.Header("Retry-After", retryAfterSeconds(decision.RetryAfter))
	c.Header("X-Rate-Limited-Reason", decision.Reason)
	AbortWithError(c, ratelimit.ErrRateLimited)
}

func retryAfterSeconds(d time.Duration) string {
	secs := int64(math.Ceil(d.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return strconv.FormatInt(secs, 10)
}
