package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	invoicedomain "github.com/lukasmk87/basketmanager/internal/invoice/domain"
)

type rejectInvoiceRequest struct {
	Reason string `json:"reason"`
}

// SubmitInvoiceRequest asks the tenant to switch a club to paying by invoice.
func (s *Server) SubmitInvoiceRequest(c *gin.Context) {
	club, err := s.loadClub(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	var req invoicedomain.SubmitInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	item, err := s.invoiceSvc.SubmitRequest(c.Request.Context(), club.ID, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": item})
}

func (s *Server) ListInvoiceRequests(c *gin.Context) {
	status := invoicedomain.RequestStatus(strings.ToLower(strings.TrimSpace(c.Query("status"))))
	switch status {
	case "", invoicedomain.RequestPending, invoicedomain.RequestApproved, invoicedomain.RequestRejected:
	default:
		AbortWithError(c, newValidationError("status", "invalid_status", "invalid status"))
		return
	}

	items, err := s.invoiceSvc.ListRequests(c.Request.Context(), status)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": items})
}

func (s *Server) GetInvoiceRequest(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	item, err := s.invoiceSvc.GetRequest(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": item})
}

func (s *Server) ApproveInvoiceRequest(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	invoice, err := s.invoiceSvc.ApproveRequest(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": invoice})
}

func (s *Server) RejectInvoiceRequest(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	var req rejectInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	item, err := s.invoiceSvc.RejectRequest(c.Request.Context(), id, strings.TrimSpace(req.Reason))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": item})
}
