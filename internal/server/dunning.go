package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lukasmk87/basketmanager/internal/observability/logger"
	"go.uber.org/zap"
)

// RunDunning runs all three dunning stages now. Tenant routes only touch the
// tenant's own invoices.
func (s *Server) RunDunning(c *gin.Context) {
	if s.dunning == nil {
		AbortWithError(c, ErrServiceUnavailable)
		return
	}
	ctx := c.Request.Context()
	result, err := s.dunning.ProcessOverdueInvoices(ctx)
	if err != nil {
		logger.FromContext(ctx).Warn("manual dunning run finished with errors",
			zap.Int("errors", result.Errors),
			zap.Error(err),
		)
		// partial runs still report what moved
		if result.MarkedOverdue+result.RemindersSent+result.SubscriptionsSuspended == 0 && result.Errors == 0 {
			AbortWithError(c, err)
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"data": result})
}
