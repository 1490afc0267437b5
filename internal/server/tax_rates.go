package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	taxdomain "github.com/lukasmk87/basketmanager/internal/tax/domain"
)

func (s *Server) ListTaxRates(c *gin.Context) {
	if s.taxSvc == nil {
		AbortWithError(c, ErrServiceUnavailable)
		return
	}
	var query struct {
		Code      string `form:"code"`
		IsEnabled string `form:"is_enabled"`
		SortBy    string `form:"sort_by"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	isEnabled, err := parseOptionalBool(query.IsEnabled)
	if err != nil {
		AbortWithError(c, newValidationError("is_enabled", "invalid_is_enabled", "invalid is_enabled"))
		return
	}

	items, err := s.taxSvc.List(c.Request.Context(), taxdomain.ListRequest{
		Code:      strings.TrimSpace(query.Code),
		IsEnabled: isEnabled,
		SortBy:    strings.TrimSpace(query.SortBy),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": items})
}

func (s *Server) CreateTaxRate(c *gin.Context) {
	if s.taxSvc == nil {
		AbortWithError(c, ErrServiceUnavailable)
		return
	}
	var req taxdomain.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	item, err := s.taxSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": item})
}

func (s *Server) UpdateTaxRate(c *gin.Context) {
	if s.taxSvc == nil {
		AbortWithError(c, ErrServiceUnavailable)
		return
	}
	id, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	var req taxdomain.UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.ID = id.String()

	item, err := s.taxSvc.Update(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": item})
}

func (s *Server) DisableTaxRate(c *gin.Context) {
	if s.taxSvc == nil {
		AbortWithError(c, ErrServiceUnavailable)
		return
	}
	id, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	item, err := s.taxSvc.Disable(c.Request.Context(), id.String())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": item})
}
