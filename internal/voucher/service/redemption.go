package service

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	clubdomain "github.com/lukasmk87/basketmanager/internal/club/domain"
	"github.com/lukasmk87/basketmanager/internal/voucher/domain"
	"github.com/lukasmk87/basketmanager/pkg/db"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func (s *Service) RedeemByCode(ctx context.Context, code string, club *clubdomain.Club, plan *clubdomain.Plan, redeemedBy *string) (*domain.Redemption, error) {
	voucher, err := s.Validate(ctx, code, club, plan)
	if err != nil {
		return nil, err
	}
	return s.Redeem(ctx, voucher.ID, club, plan, redeemedBy)
}

func (s *Service) Redeem(ctx context.Context, voucherID snowflake.ID, club *clubdomain.Club, plan *clubdomain.Plan, redeemedBy *string) (*domain.Redemption, error) {
	if redeemedBy == nil {
		redeemedBy = actorID(ctx)
	}

	var redemption *domain.Redemption
	var voucher *domain.Voucher
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		loaded, err := s.repo.FindByID(ctx, tx, voucherID)
		if err != nil {
			return err
		}
		voucher, err = s.check(ctx, tx, loaded, club, plan)
		if err != nil {
			return err
		}

		now := s.clock.Now()
		redemption = &domain.Redemption{
			ID:                 s.genID.Generate(),
			VoucherID:          voucher.ID,
			ClubID:             club.ID,
			TenantID:           club.TenantID,
			VoucherType:        voucher.Type,
			VoucherCode:        voucher.Code,
			DiscountPercent:    voucher.DiscountPercent,
			DiscountAmount:     voucher.DiscountAmount,
			TrialExtensionDays: voucher.TrialExtensionDays,
			DurationMonths:     voucher.DurationMonths,
			AppliedToPlanID:    club.PlanID,
			RedeemedBy:         redeemedBy,
			CreatedAt:          now,
			UpdatedAt:          now,
		}
		if plan != nil {
			redemption.AppliedToPlanID = &plan.ID
		}
		if voucher.Type != domain.TypeTrialExtension {
			expires := now.AddDate(0, voucher.DurationMonths, 0)
			redemption.ExpiresAt = &expires
		}

		if err := s.repo.InsertRedemption(ctx, tx, redemption); err != nil {
			if db.IsDuplicateKeyErr(err) {
				return s.reject(ctx, domain.CodeAlreadyRedeemed)
			}
			return err
		}

		incremented, err := s.repo.IncrementRedemptions(ctx, tx, voucher.ID, now)
		if err != nil {
			return err
		}
		if !incremented {
			return s.reject(ctx, domain.CodeExhausted)
		}
		voucher.CurrentRedemptions++

		if voucher.Type == domain.TypeTrialExtension {
			if _, err := s.clubs.ApplyTrialExtension(ctx, tx, club, *voucher.TrialExtensionDays); err != nil {
				return err
			}
			redemption.IsFullyApplied = true
			redemption.FirstAppliedAt = &now
			redemption.LastAppliedAt = &now
			if err := s.repo.UpdateRedemptionProgress(ctx, tx, redemption); err != nil {
				return err
			}
		}

		if err := s.clubs.LogEvent(ctx, tx, &clubdomain.SubscriptionEvent{
			TenantID:  club.TenantID,
			ClubID:    club.ID,
			EventType: clubdomain.EventVoucherRedeemed,
			PlanID:    club.PlanID,
			Metadata: map[string]any{
				"voucher_id":      voucher.ID.String(),
				"voucher_code":    voucher.Code,
				"voucher_name":    voucher.Name,
				"voucher_type":    string(voucher.Type),
				"discount":        voucher.FormattedDiscount(s.currency()),
				"duration_months": voucher.DurationMonths,
				"redemption_id":   redemption.ID.String(),
			},
		}); err != nil {
			return err
		}

		tenantID := club.TenantID
		return s.audit(ctx, tx, &tenantID, "voucher.redeem", voucher.ID, map[string]any{
			"club_id":       club.ID.String(),
			"redemption_id": redemption.ID.String(),
		})
	})
	if err != nil {
		var verr *domain.ValidationError
		if !errors.As(err, &verr) {
			s.log.Error("voucher redemption failed", zap.String("voucher_id", voucherID.String()), zap.Error(err))
		}
		return nil, err
	}

	s.metrics.RecordVoucherRedeemed(ctx, string(voucher.Type))
	s.log.Info("voucher redeemed",
		zap.String("voucher_id", voucher.ID.String()),
		zap.String("club_id", club.ID.String()),
		zap.String("redemption_id", redemption.ID.String()),
		zap.String("type", string(voucher.Type)),
	)
	return redemption, nil
}

