package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	invoicedomain "github.com/lukasmk87/basketmanager/internal/invoice/domain"
	"github.com/lukasmk87/basketmanager/internal/tenantcontext"
	"github.com/lukasmk87/basketmanager/pkg/db/pagination"
)

type listInvoicesQuery struct {
	PageToken  string `form:"page_token"`
	PageSize   int    `form:"page_size"`
	Type       string `form:"type"`
	BillableID string `form:"billable_id"`
	Status     string `form:"status"`
	Search     string `form:"search"`
	Year       string `form:"year"`
	FromDate   string `form:"from_date"`
	ToDate     string `form:"to_date"`
}

type subscriptionInvoiceRequest struct {
	PlanID          snowflake.ID `json:"plan_id"`
	BillingInterval string       `json:"billing_interval"`
}

type sendInvoiceRequest struct {
	SendEmail *bool `json:"send_email"`
}

type cancelInvoiceRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) ListInvoices(c *gin.Context) {
	var query listInvoicesQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	billableID, err := parseOptionalSnowflakeID(query.BillableID)
	if err != nil {
		AbortWithError(c, invalidIDError("billable_id"))
		return
	}
	year, err := parseOptionalInt64(query.Year)
	if err != nil {
		AbortWithError(c, newValidationError("year", "invalid_year", "invalid year"))
		return
	}
	fromDate, err := parseOptionalTime(query.FromDate, false)
	if err != nil {
		AbortWithError(c, newValidationError("from_date", "invalid_from_date", "invalid from_date"))
		return
	}
	toDate, err := parseOptionalTime(query.ToDate, true)
	if err != nil {
		AbortWithError(c, newValidationError("to_date", "invalid_to_date", "invalid to_date"))
		return
	}

	req := invoicedomain.ListRequest{
		Pagination: pagination.Pagination{
			PageToken: strings.TrimSpace(query.PageToken),
			PageSize:  query.PageSize,
		},
		BillableType: invoicedomain.BillableType(strings.TrimSpace(query.Type)),
		BillableID:   billableID,
		Status:       invoicedomain.Status(strings.TrimSpace(query.Status)),
		Search:       strings.TrimSpace(query.Search),
		FromDate:     fromDate,
		ToDate:       toDate,
	}
	if year != nil {
		req.Year = int(*year)
	}

	resp, err := s.invoiceSvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": resp.Invoices, "page_info": resp.PageInfo})
}

func (s *Server) CreateInvoice(c *gin.Context) {
	var req invoicedomain.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	invoice, err := s.invoiceSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": invoice})
}

// CreateSubscriptionInvoice bills one period of a plan to the club, applying its active voucher.
func (s *Server) CreateSubscriptionInvoice(c *gin.Context) {
	club, err := s.loadClub(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	var req subscriptionInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if req.PlanID == 0 {
		AbortWithError(c, newValidationError("plan_id", "required", "plan_id is required"))
		return
	}
	plan, err := s.clubSvc.GetPlan(c.Request.Context(), club.TenantID, req.PlanID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	invoice, err := s.invoiceSvc.CreateForSubscription(c.Request.Context(), club, plan, billingInterval(req.BillingInterval))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": invoice})
}

func (s *Server) InvoiceStatistics(c *gin.Context) {
	var scope *snowflake.ID
	if tenantID, ok := tenantcontext.TenantIDFromContext(c.Request.Context()); ok {
		scope = &tenantID
	}
	stats, err := s.invoiceSvc.Statistics(c.Request.Context(), scope)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": stats})
}

func (s *Server) GetInvoice(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	invoice, err := s.invoiceSvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": invoice})
}

func (s *Server) RenderInvoice(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	html, err := s.invoiceSvc.RenderHTML(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(html))
}

func (s *Server) UpdateInvoice(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	var req invoicedomain.UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	invoice, err := s.invoiceSvc.Update(c.Request.Context(), id, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": invoice})
}

func (s *Server) DeleteInvoice(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if err := s.invoiceSvc.Delete(c.Request.Context(), id); err != nil {
		AbortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) SendInvoice(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	var req sendInvoiceRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
	}
	sendEmail := req.SendEmail == nil || *req.SendEmail

	invoice, err := s.invoiceSvc.MarkSent(c.Request.Context(), id, sendEmail)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": invoice})
}

func (s *Server) MarkInvoicePaid(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	var req invoicedomain.MarkPaidRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
	}

	invoice, err := s.invoiceSvc.MarkPaid(c.Request.Context(), id, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": invoice})
}

func (s *Server) MarkInvoiceOverdue(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	invoice, err := s.invoiceSvc.MarkOverdue(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": invoice})
}

func (s *Server) CancelInvoice(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	var req cancelInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	invoice, err := s.invoiceSvc.Cancel(c.Request.Context(), id, strings.TrimSpace(req.Reason))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": invoice})
}

func (s *Server) SendInvoiceReminder(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	invoice, err := s.invoiceSvc.SendReminder(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": invoice})
}
