package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	clubdomain "github.com/lukasmk87/basketmanager/internal/club/domain"
	"github.com/lukasmk87/basketmanager/internal/voucher/domain"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func (s *Service) ActiveRedemption(ctx context.Context, conn *gorm.DB, clubID snowflake.ID) (*domain.Redemption, error) {
	if conn == nil {
		conn = s.db
	}
	return s.repo.FindActiveRedemption(ctx, conn, clubID, s.clock.Now())
}

func (s *Service) CalculateDiscount(ctx context.Context, club *clubdomain.Club, amount decimal.Decimal) (domain.DiscountResult, error) {
	if amount.IsNegative() {
		return domain.DiscountResult{}, domain.ErrInvalidAmountValue
	}
	amount = amount.Round(2)
	result := domain.DiscountResult{
		DiscountAmount: decimal.Zero,
		OriginalAmount: amount,
		FinalAmount:    amount,
	}

	redemption, err := s.ActiveRedemption(ctx, nil, club.ID)
	if err != nil || redemption == nil {
		return result, err
	}

	discount := redemption.DiscountFor(amount)
	result.HasDiscount = discount.IsPositive()
	result.DiscountAmount = discount.Round(2)
	result.FinalAmount = decimal.Max(decimal.Zero, amount.Sub(discount)).Round(2)
	result.Redemption = s.redemptionView(redemption)
	return result, nil
}

func (s *Service) PreviewDiscount(ctx context.Context, club *clubdomain.Club, monthlyPrice decimal.Decimal, months int) (domain.PreviewResult, error) {
	if monthlyPrice.IsNegative() {
		return domain.PreviewResult{}, domain.ErrInvalidAmountValue
	}
	if months <= 0 {
		return domain.PreviewResult{}, domain.ErrInvalidMonths
	}
	total := monthlyPrice.Mul(decimal.NewFromInt(int64(months)))
	result := domain.PreviewResult{
		MonthlyDiscount: decimal.Zero,
		TotalDiscount:   decimal.Zero,
		MonthlyPrice:    monthlyPrice.Round(2),
		TotalPrice:      total.Round(2),
	}

	redemption, err := s.ActiveRedemption(ctx, nil, club.ID)
	if err != nil || redemption == nil {
		return result, err
	}

	applicable := min(months, redemption.RemainingMonths())
	monthly := redemption.DiscountFor(monthlyPrice)
	totalDiscount := monthly.Mul(decimal.NewFromInt(int64(applicable)))

	result.HasDiscount = true
	result.ApplicableMonths = applicable
	result.MonthlyDiscount = monthly.Round(2)
	result.TotalDiscount = totalDiscount.Round(2)
	result.MonthlyPrice = monthlyPrice.Sub(monthly).Round(2)
	result.TotalPrice = total.Sub(totalDiscount).Round(2)
	result.VoucherCode = redemption.VoucherCode
	result.DiscountLabel = redemption.FormattedDiscount(s.currency())
	return result, nil
}

func (s *Service) MarkDiscountApplied(ctx context.Context, conn *gorm.DB, club *clubdomain.Club, discount decimal.Decimal, months int) (*domain.Redemption, error) {
	if conn == nil {
		conn = s.db
	}
	if months < 1 {
		months = 1
	}
	redemption, err := s.repo.FindActiveRedemption(ctx, conn, club.ID, s.clock.Now())
	if err != nil || redemption == nil {
		return nil, err
	}

	now := s.clock.Now()
	redemption.MonthsApplied += months
	redemption.TotalDiscountAmount = redemption.TotalDiscountAmount.Add(discount).Round(2)
	if redemption.FirstAppliedAt == nil {
		redemption.FirstAppliedAt = &now
	}
	redemption.LastAppliedAt = &now
	redemption.IsFullyApplied = redemption.MonthsApplied >= redemption.DurationMonths
	redemption.UpdatedAt = now

	if err := s.repo.UpdateRedemptionProgress(ctx, conn, redemption); err != nil {
		return nil, err
	}

	s.log.Info("voucher discount applied",
		zap.String("club_id", club.ID.String()),
		zap.String("redemption_id", redemption.ID.String()),
		zap.String("discount_amount", discount.StringFixed(2)),
		zap.Int("months_applied", redemption.MonthsApplied),
		zap.Bool("is_fully_applied", redemption.IsFullyApplied),
	)
	return redemption, nil
}

func (s *Service) ExpireRedemptions(ctx context.Context, limit int) (int64, error) {
	if limit <= 0 {
		limit = s.billing.Get().Dunning.BatchSize
	}
	expired, err := s.repo.ExpireRedemptions(ctx, s.db, s.clock.Now(), limit)
	if err != nil {
		return 0, err
	}
	if expired > 0 {
		s.log.Info("voucher redemptions expired", zap.Int64("count", expired))
	}
	return expired, nil
}

func (s *Service) redemptionView(r *domain.Redemption) *domain.RedemptionView {
	return &domain.RedemptionView{
		ID:              r.ID,
		VoucherID:       r.VoucherID,
		VoucherCode:     r.VoucherCode,
		Type:            r.VoucherType,
		RemainingMonths: r.RemainingMonths(),
		DiscountLabel:   r.FormattedDiscount(s.currency()),
	}
}
