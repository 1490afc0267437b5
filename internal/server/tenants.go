package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	clubdomain "github.com/lukasmk87/basketmanager/internal/club/domain"
	tenantdomain "github.com/lukasmk87/basketmanager/internal/tenant/domain"
)

type suspendTenantRequest struct {
	Reason string `json:"reason"`
}

type billingIntervalRequest struct {
	BillingInterval string `json:"billing_interval"`
}

func (s *Server) ListTenants(c *gin.Context) {
	items, err := s.tenantSvc.List(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": items})
}

func (s *Server) CreateTenant(c *gin.Context) {
	var req tenantdomain.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.Name = strings.TrimSpace(req.Name)

	tenant, err := s.tenantSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": tenant})
}

func (s *Server) GetTenant(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	tenant, err := s.tenantSvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": tenant})
}

func (s *Server) GetCurrentTenant(c *gin.Context) {
	tenant, ok := currentTenant(c)
	if !ok {
		AbortWithError(c, ErrTenantRequired)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": tenant})
}

func (s *Server) UpdateTenantBilling(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	var req tenantdomain.UpdateBillingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	tenant, err := s.tenantSvc.UpdateBilling(c.Request.Context(), id, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": tenant})
}

func (s *Server) SuspendTenant(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	var req suspendTenantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		AbortWithError(c, newValidationError("reason", "required", "reason is required"))
		return
	}

	tenant, err := s.tenantSvc.Suspend(c.Request.Context(), id, reason)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": tenant})
}

func (s *Server) ReactivateTenant(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	tenant, err := s.tenantSvc.Reactivate(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": tenant})
}

// CreateTenantInvoice bills one period of the tenant's platform tier.
func (s *Server) CreateTenantInvoice(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	var req billingIntervalRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
	}

	invoice, err := s.invoiceSvc.CreateForTenant(c.Request.Context(), id, billingInterval(req.BillingInterval))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": invoice})
}

func billingInterval(value string) clubdomain.BillingInterval {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return clubdomain.IntervalMonthly
	}
	return clubdomain.BillingInterval(value)
}
