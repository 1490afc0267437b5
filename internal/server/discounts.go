package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type calculateDiscountRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

type previewDiscountRequest struct {
	MonthlyPrice decimal.Decimal `json:"monthly_price"`
	Months       int             `json:"months"`
}

func (s *Server) CalculateDiscount(c *gin.Context) {
	club, err := s.loadClub(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	var req calculateDiscountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	result, err := s.voucherSvc.CalculateDiscount(c.Request.Context(), club, req.Amount)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": result})
}

func (s *Server) PreviewDiscount(c *gin.Context) {
	club, err := s.loadClub(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	var req previewDiscountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if req.Months == 0 {
		req.Months = 12
	}

	result, err := s.voucherSvc.PreviewDiscount(c.Request.Context(), club, req.MonthlyPrice, req.Months)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": result})
}
