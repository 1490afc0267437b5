package service

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/lukasmk87/basketmanager/internal/audit/domain"
	clubdomain "github.com/lukasmk87/basketmanager/internal/club/domain"
	"github.com/lukasmk87/basketmanager/internal/invoice/domain"
	"github.com/lukasmk87/basketmanager/internal/tenantcontext"
	"github.com/lukasmk87/basketmanager/pkg/validation"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// SubmitRequest records a club's wish to pay its plan by invoice. A club has
// at most one pending request.
func (s *Service) SubmitRequest(ctx context.Context, clubID snowflake.ID, req domain.SubmitInvoiceRequest) (*domain.InvoiceRequest, error) {
	scoped := scope(ctx)
	if scoped == nil {
		return nil, domain.ErrInvalidTenant
	}
	if err := validation.Struct(req); err != nil {
		return nil, err
	}
	club, err := s.clubs.Get(ctx, *scoped, clubID)
	if err != nil {
		if errors.Is(err, clubdomain.ErrNotFound) {
			return nil, domain.ErrBillableNotFound
		}
		return nil, err
	}
	plan, err := s.clubs.GetPlan(ctx, *scoped, req.PlanID)
	if err != nil {
		return nil, err
	}
	if !plan.IsActive {
		return nil, clubdomain.ErrPlanInactive
	}
	interval := clubdomain.BillingInterval(req.BillingInterval)
	if interval == "" {
		interval = plan.BillingInterval
	}
	if !interval.Valid() {
		return nil, domain.ErrInvalidInterval
	}

	now := s.clock.Now()
	request := &domain.InvoiceRequest{
		ID:              s.genID.Generate(),
		TenantID:        club.TenantID,
		ClubID:          club.ID,
		PlanID:          plan.ID,
		BillingInterval: string(interval),
		BillingName:     strings.TrimSpace(req.BillingName),
		BillingEmail:    strings.TrimSpace(req.BillingEmail),
		BillingAddress:  datatypes.JSONMap(req.BillingAddress),
		VATNumber:       trimmedOrNil(req.VATNumber),
		Status:          domain.RequestPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		pending, err := s.repo.HasPendingRequest(ctx, tx, club.ID)
		if err != nil {
			return err
		}
		if pending {
			return domain.ErrRequestPending
		}
		if err := s.repo.InsertRequest(ctx, tx, request); err != nil {
			return err
		}
		return s.auditRequest(ctx, tx, "invoice_request.submit", request, map[string]any{
			"plan_id":          plan.ID.String(),
			"billing_interval": request.BillingInterval,
		})
	})
	if err != nil {
		return nil, err
	}
	return request, nil
}

func (s *Service) GetRequest(ctx context.Context, id snowflake.ID) (*domain.InvoiceRequest, error) {
	return s.loadRequest(ctx, s.db, id)
}

func (s *Service) loadRequest(ctx context.Context, conn *gorm.DB, id snowflake.ID) (*domain.InvoiceRequest, error) {
	request, err := s.repo.FindRequest(ctx, conn, id)
	if err != nil {
		return nil, err
	}
	if request == nil || !inScope(ctx, request.TenantID) {
		return nil, domain.ErrRequestNotFound
	}
	return request, nil
}

func (s *Service) ListRequests(ctx context.Context, status domain.RequestStatus) ([]domain.InvoiceRequest, error) {
	scoped := scope(ctx)
	if scoped == nil {
		return nil, domain.ErrInvalidTenant
	}
	return s.repo.ListRequests(ctx, s.db, *scoped, status)
}

// ApproveRequest switches the club to invoice payment with the requested
// billing details and issues the first subscription invoice as a draft.
func (s *Service) ApproveRequest(ctx context.Context, id snowflake.ID) (*domain.Invoice, error) {
	request, err := s.loadRequest(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if !request.CanBeProcessed() {
		return nil, domain.ErrRequestProcessed
	}
	club, err := s.clubs.Get(ctx, request.TenantID, request.ClubID)
	if err != nil {
		return nil, err
	}
	plan, err := s.clubs.GetPlan(ctx, request.TenantID, request.PlanID)
	if err != nil {
		return nil, err
	}
	b, err := s.clubBillable(ctx, club)
	if err != nil {
		return nil, err
	}

	var invoice *domain.Invoice
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		locked, err := s.loadRequest(ctx, tx, id)
		if err != nil {
			return err
		}
		if !locked.CanBeProcessed() {
			return domain.ErrRequestProcessed
		}

		// updates b.club in place, so the invoice picks up the new recipient
		if err := s.clubs.SwitchToInvoice(ctx, tx, club, clubdomain.BillingDetails{
			Name:      locked.BillingName,
			Email:     locked.BillingEmail,
			Address:   locked.BillingAddress,
			VATNumber: locked.VATNumber,
		}); err != nil {
			return err
		}
		invoice, err = s.createForSubscription(ctx, tx, b, plan, clubdomain.BillingInterval(locked.BillingInterval))
		if err != nil {
			return err
		}

		now := s.clock.Now()
		locked.Status = domain.RequestApproved
		locked.ProcessedBy = tenantcontext.ActorID(ctx)
		locked.ProcessedAt = &now
		locked.InvoiceID = &invoice.ID
		locked.UpdatedAt = now
		if err := s.repo.UpdateRequest(ctx, tx, locked); err != nil {
			return err
		}
		return s.auditRequest(ctx, tx, "invoice_request.approve", locked, map[string]any{
			"invoice_id": invoice.ID.String(),
		})
	})
	if err != nil {
		return nil, err
	}

	s.issued(ctx, invoice)
	s.log.Info("invoice request approved",
		zap.String("request_id", id.String()),
		zap.String("club_id", club.ID.String()),
		zap.String("invoice_id", invoice.ID.String()),
	)
	return invoice, nil
}

func (s *Service) RejectRequest(ctx context.Context, id snowflake.ID, reason string) (*domain.InvoiceRequest, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, domain.ErrRejectionReason
	}

	var rejected *domain.InvoiceRequest
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		request, err := s.loadRequest(ctx, tx, id)
		if err != nil {
			return err
		}
		if !request.CanBeProcessed() {
			return domain.ErrRequestProcessed
		}
		now := s.clock.Now()
		request.Status = domain.RequestRejected
		request.RejectionReason = &reason
		request.ProcessedBy = tenantcontext.ActorID(ctx)
		request.ProcessedAt = &now
		request.UpdatedAt = now
		if err := s.repo.UpdateRequest(ctx, tx, request); err != nil {
			return err
		}
		rejected = request
		return s.auditRequest(ctx, tx, "invoice_request.reject", request, map[string]any{"reason": reason})
	})
	if err != nil {
		return nil, err
	}
	return rejected, nil
}

func (s *Service) auditRequest(ctx context.Context, tx *gorm.DB, action string, request *domain.InvoiceRequest, metadata map[string]any) error {
	if s.auditSvc == nil {
		return nil
	}
	if metadata == nil {
		metadata = map[string]any{}
	}
	metadata["club_id"] = request.ClubID.String()
	metadata["status"] = string(request.Status)
	tenantID := request.TenantID
	target := request.ID.String()
	return s.auditSvc.Record(ctx, tx, auditdomain.Entry{
		TenantID:   &tenantID,
		Action:     action,
		TargetType: "invoice_request",
		TargetID:   &target,
		Metadata:   metadata,
	})
}
