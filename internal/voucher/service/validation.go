package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	clubdomain "github.com/lukasmk87/basketmanager/internal/club/domain"
	"github.com/lukasmk87/basketmanager/internal/i18n"
	"github.com/lukasmk87/basketmanager/internal/voucher/domain"
	"gorm.io/gorm"
)

func (s *Service) reject(ctx context.Context, code domain.ValidationCode) error {
	s.metrics.RecordVoucherRejected(ctx, string(code))
	return &domain.ValidationError{
		Code:    code,
		Message: i18n.TC(ctx, code.MessageKey()),
	}
}

func (s *Service) Validate(ctx context.Context, code string, club *clubdomain.Club, plan *clubdomain.Plan) (*domain.Voucher, error) {
	voucher, err := s.repo.FindByCode(ctx, s.db, normalizeCode(code))
	if err != nil {
		return nil, err
	}
	return s.check(ctx, s.db, voucher, club, plan)
}

// check runs the ordered validation against an already loaded voucher.
func (s *Service) check(ctx context.Context, conn *gorm.DB, voucher *domain.Voucher, club *clubdomain.Club, plan *clubdomain.Plan) (*domain.Voucher, error) {
	if voucher == nil {
		return nil, s.reject(ctx, domain.CodeNotFound)
	}
	if voucher.TenantID != nil && *voucher.TenantID != club.TenantID {
		return nil, s.reject(ctx, domain.CodeWrongTenant)
	}
	if !voucher.IsActive {
		return nil, s.reject(ctx, domain.CodeInactive)
	}
	now := s.clock.Now()
	if voucher.IsNotYetValid(now) {
		return nil, s.reject(ctx, domain.CodeNotYetValid)
	}
	if voucher.IsExpired(now) {
		return nil, s.reject(ctx, domain.CodeExpired)
	}
	if voucher.IsExhausted() {
		return nil, s.reject(ctx, domain.CodeExhausted)
	}
	redeemed, err := s.repo.HasRedemption(ctx, conn, voucher.ID, club.ID)
	if err != nil {
		return nil, err
	}
	if redeemed {
		return nil, s.reject(ctx, domain.CodeAlreadyRedeemed)
	}
	if plan != nil && !voucher.ApplicableToPlan(plan.ID) {
		return nil, s.reject(ctx, domain.CodeWrongPlan)
	}
	return voucher, nil
}

func (s *Service) Info(ctx context.Context, code string, club *clubdomain.Club, plan *clubdomain.Plan) (domain.InfoResult, error) {
	voucher, err := s.Validate(ctx, code, club, plan)
	if err != nil {
		if verr, ok := domain.AsValidationError(err); ok {
			return domain.InfoResult{
				Valid:     false,
				ErrorCode: verr.Code,
				Message:   verr.Message,
			}, nil
		}
		return domain.InfoResult{}, err
	}

	view := s.view(voucher)
	return domain.InfoResult{
		Valid:   true,
		Voucher: &view,
		Message: i18n.TC(ctx, "voucher.valid"),
	}, nil
}

func (s *Service) view(v *domain.Voucher) domain.VoucherView {
	return domain.VoucherView{
		ID:                 v.ID,
		Code:               v.Code,
		Name:               v.Name,
		Type:               v.Type,
		TypeLabel:          v.TypeLabel(),
		DiscountLabel:      v.FormattedDiscount(s.currency()),
		DurationLabel:      v.DurationLabel(),
		DurationMonths:     v.DurationMonths,
		Description:        v.Description,
		ApplicablePlanIDs:  []snowflake.ID(v.ApplicablePlanIDs),
		DiscountPercent:    v.DiscountPercent,
		DiscountAmount:     v.DiscountAmount,
		TrialExtensionDays: v.TrialExtensionDays,
	}
}
