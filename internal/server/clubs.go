package server

import (
	"net/http"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	clubdomain "github.com/lukasmk87/basketmanager/internal/club/domain"
	"github.com/lukasmk87/basketmanager/internal/tenantcontext"
)

func (s *Server) ListClubs(c *gin.Context) {
	tenantID, ok := tenantcontext.TenantIDFromContext(c.Request.Context())
	if !ok {
		AbortWithError(c, ErrTenantRequired)
		return
	}
	items, err := s.clubSvc.List(c.Request.Context(), tenantID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": items})
}

func (s *Server) CreateClub(c *gin.Context) {
	tenantID, ok := tenantcontext.TenantIDFromContext(c.Request.Context())
	if !ok {
		AbortWithError(c, ErrTenantRequired)
		return
	}
	var req clubdomain.CreateClubRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	club, err := s.clubSvc.Create(c.Request.Context(), tenantID, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": club})
}

func (s *Server) GetClub(c *gin.Context) {
	club, err := s.loadClub(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": club})
}

func (s *Server) ListClubEvents(c *gin.Context) {
	club, err := s.loadClub(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	events, err := s.clubSvc.ListEvents(c.Request.Context(), club.TenantID, club.ID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": events})
}

func (s *Server) ListPlans(c *gin.Context) {
	tenantID, ok := tenantcontext.TenantIDFromContext(c.Request.Context())
	if !ok {
		AbortWithError(c, ErrTenantRequired)
		return
	}
	items, err := s.clubSvc.ListPlans(c.Request.Context(), tenantID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": items})
}

func (s *Server) CreatePlan(c *gin.Context) {
	tenantID, ok := tenantcontext.TenantIDFromContext(c.Request.Context())
	if !ok {
		AbortWithError(c, ErrTenantRequired)
		return
	}
	var req clubdomain.CreatePlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	plan, err := s.clubSvc.CreatePlan(c.Request.Context(), tenantID, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": plan})
}

func (s *Server) GetPlan(c *gin.Context) {
	tenantID, ok := tenantcontext.TenantIDFromContext(c.Request.Context())
	if !ok {
		AbortWithError(c, ErrTenantRequired)
		return
	}
	id, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	plan, err := s.clubSvc.GetPlan(c.Request.Context(), tenantID, id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": plan})
}

// loadClub fetches the club named by the :id path parameter inside the request tenant.
func (s *Server) loadClub(c *gin.Context) (*clubdomain.Club, error) {
	tenantID, ok := tenantcontext.TenantIDFromContext(c.Request.Context())
	if !ok {
		return nil, ErrTenantRequired
	}
	id, err := pathID(c, "id")
	if err != nil {
		return nil, err
	}
	return s.clubSvc.Get(c.Request.Context(), tenantID, id)
}

// loadPlan resolves an optional plan reference from a request body.
func (s *Server) loadPlan(c *gin.Context, tenantID snowflake.ID, planID *snowflake.ID) (*clubdomain.Plan, error) {
	if planID == nil || *planID == 0 {
		return nil, nil
	}
	return s.clubSvc.GetPlan(c.Request.Context(), tenantID, *planID)
}
