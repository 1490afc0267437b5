package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/lukasmk87/basketmanager/internal/tenantcontext"
	voucherdomain "github.com/lukasmk87/basketmanager/internal/voucher/domain"
)

type voucherCodeRequest struct {
	Code   string        `json:"code"`
	PlanID *snowflake.ID `json:"plan_id"`
}

type generateCodeRequest struct {
	Length int `json:"length"`
}

func (s *Server) ListVouchers(c *gin.Context) {
	ctx := c.Request.Context()
	scope := voucherdomain.Scope(strings.TrimSpace(c.Query("scope")))

	var filter voucherdomain.ListFilter
	if tenantID, ok := tenantcontext.TenantIDFromContext(ctx); ok {
		switch scope {
		case "":
			scope = voucherdomain.ScopeTenant
		case voucherdomain.ScopeTenant, voucherdomain.ScopeTenantSpecific:
		default:
			AbortWithError(c, newValidationError("scope", "invalid_scope", "invalid scope"))
			return
		}
		filter = voucherdomain.ListFilter{Scope: scope, TenantID: tenantID}
	} else {
		if scope == "" {
			scope = voucherdomain.ScopeAll
		}
		tenantID, err := parseOptionalSnowflakeID(c.Query("tenant_id"))
		if err != nil {
			AbortWithError(c, invalidIDError("tenant_id"))
			return
		}
		filter = voucherdomain.ListFilter{Scope: scope}
		switch scope {
		case voucherdomain.ScopeAll, voucherdomain.ScopeSystemWide:
		case voucherdomain.ScopeTenant, voucherdomain.ScopeTenantSpecific:
			if tenantID == nil {
				AbortWithError(c, newValidationError("tenant_id", "required", "tenant_id is required"))
				return
			}
			filter.TenantID = *tenantID
		default:
			AbortWithError(c, newValidationError("scope", "invalid_scope", "invalid scope"))
			return
		}
	}

	items, err := s.voucherSvc.List(ctx, filter)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": items})
}

// CreateVoucher creates a tenant voucher on tenant routes and a system-wide
// voucher on admin routes.
func (s *Server) CreateVoucher(c *gin.Context) {
	var req voucherdomain.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.TenantID = nil
	if tenantID, ok := tenantcontext.TenantIDFromContext(c.Request.Context()); ok {
		req.TenantID = &tenantID
	}

	voucher, err := s.voucherSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": voucher})
}

func (s *Server) GenerateVoucherCode(c *gin.Context) {
	var req generateCodeRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
	}
	code, err := s.voucherSvc.GenerateUniqueCode(c.Request.Context(), req.Length)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": gin.H{"code": code}})
}

func (s *Server) GetVoucher(c *gin.Context) {
	voucher, err := s.loadVoucher(c, false)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": voucher})
}

func (s *Server) UpdateVoucher(c *gin.Context) {
	voucher, err := s.loadVoucher(c, true)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	var req voucherdomain.UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	updated, err := s.voucherSvc.Update(c.Request.Context(), voucher.ID, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": updated})
}

func (s *Server) ActivateVoucher(c *gin.Context) {
	voucher, err := s.loadVoucher(c, true)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	updated, err := s.voucherSvc.Activate(c.Request.Context(), voucher.ID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": updated})
}

func (s *Server) DeactivateVoucher(c *gin.Context) {
	voucher, err := s.loadVoucher(c, true)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	updated, err := s.voucherSvc.Deactivate(c.Request.Context(), voucher.ID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": updated})
}

func (s *Server) VoucherStatistics(c *gin.Context) {
	voucher, err := s.loadVoucher(c, true)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	stats, err := s.voucherSvc.VoucherStatistics(c.Request.Context(), voucher.ID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": stats})
}

func (s *Server) VoucherOverallStatistics(c *gin.Context) {
	var scope *snowflake.ID
	if tenantID, ok := tenantcontext.TenantIDFromContext(c.Request.Context()); ok {
		scope = &tenantID
	}
	stats, err := s.voucherSvc.OverallStatistics(c.Request.Context(), scope)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": stats})
}

// ValidateVoucher checks a code for a club without redeeming it.
func (s *Server) ValidateVoucher(c *gin.Context) {
	club, err := s.loadClub(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	var req voucherCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Code) == "" {
		AbortWithError(c, newValidationError("code", "required", "code is required"))
		return
	}
	plan, err := s.loadPlan(c, club.TenantID, req.PlanID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	info, err := s.voucherSvc.Info(c.Request.Context(), req.Code, club, plan)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if !info.Valid {
		AbortWithError(c, &voucherdomain.ValidationError{Code: info.ErrorCode, Message: info.Message})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": info})
}

func (s *Server) RedeemVoucher(c *gin.Context) {
	club, err := s.loadClub(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	var req voucherCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Code) == "" {
		AbortWithError(c, newValidationError("code", "required", "code is required"))
		return
	}
	plan, err := s.loadPlan(c, club.TenantID, req.PlanID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	ctx := c.Request.Context()
	redemption, err := s.voucherSvc.RedeemByCode(ctx, req.Code, club, plan, tenantcontext.ActorID(ctx))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": redemption})
}

func (s *Server) AvailableVouchers(c *gin.Context) {
	club, err := s.loadClub(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	items, err := s.voucherSvc.AvailableForClub(c.Request.Context(), club)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": items})
}

func (s *Server) VoucherHistory(c *gin.Context) {
	club, err := s.loadClub(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	items, err := s.voucherSvc.ClubRedemptionHistory(c.Request.Context(), club.ID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": items})
}

// loadVoucher returns the voucher named by :id if the request tenant may see
// it. Tenants read system-wide vouchers but only manage their own.
func (s *Server) loadVoucher(c *gin.Context, manage bool) (*voucherdomain.Voucher, error) {
	id, err := pathID(c, "id")
	if err != nil {
		return nil, err
	}
	ctx := c.Request.Context()
	voucher, err := s.voucherSvc.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	tenantID, scoped := tenantcontext.TenantIDFromContext(ctx)
	if !scoped {
		return voucher, nil
	}
	if voucher.TenantID == nil {
		if manage {
			return nil, ErrForbidden
		}
		return voucher, nil
	}
	if *voucher.TenantID != tenantID {
		return nil, voucherdomain.ErrNotFound
	}
	return voucher, nil
}
