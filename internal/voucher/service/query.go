package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	clubdomain "github.com/lukasmk87/basketmanager/internal/club/domain"
	"github.com/lukasmk87/basketmanager/internal/voucher/domain"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

func (s *Service) List(ctx context.Context, filter domain.ListFilter) ([]domain.ListItem, error) {
	if filter.Scope == "" {
		filter.Scope = domain.ScopeTenant
	}
	items, err := s.repo.List(ctx, s.db, filter)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	currency := s.currency()
	for i := range items {
		v := items[i].Voucher
		items[i].StatusLabel = v.StatusLabel(now)
		items[i].TypeLabelText = v.TypeLabel()
		items[i].DiscountLabel = v.FormattedDiscount(currency)
		items[i].DurationLabel = v.DurationLabel()
	}
	return items, nil
}

func (s *Service) AvailableForClub(ctx context.Context, club *clubdomain.Club) ([]domain.Voucher, error) {
	return s.repo.ListAvailable(ctx, s.db, club.TenantID, club.ID, s.clock.Now())
}

func (s *Service) ClubRedemptionHistory(ctx context.Context, clubID snowflake.ID) ([]domain.Redemption, error) {
	return s.repo.ListRedemptionsByClub(ctx, s.db, clubID)
}

func (s *Service) VoucherStatistics(ctx context.Context, id snowflake.ID) (domain.VoucherStatistics, error) {
	voucher, err := s.Get(ctx, id)
	if err != nil {
		return domain.VoucherStatistics{}, err
	}
	redemptions, err := s.repo.ListRedemptionsByVoucher(ctx, s.db, id)
	if err != nil {
		return domain.VoucherStatistics{}, err
	}

	completed := lo.CountBy(redemptions, func(r domain.Redemption) bool { return r.IsFullyApplied })
	given := lo.Reduce(redemptions, func(sum decimal.Decimal, r domain.Redemption, _ int) decimal.Decimal {
		return sum.Add(r.TotalDiscountAmount)
	}, decimal.Zero)
	stats := domain.VoucherStatistics{
		TotalRedemptions:     len(redemptions),
		TotalDiscountGiven:   given.Round(2),
		ActiveRedemptions:    len(redemptions) - completed,
		CompletedRedemptions: completed,
		RemainingRedemptions: voucher.RemainingRedemptions(),
		Redemptions:          redemptions,
	}
	if stats.Redemptions == nil {
		stats.Redemptions = []domain.Redemption{}
	}
	return stats, nil
}

// OverallStatistics covers every voucher when tenantID is nil, otherwise the
// tenant's own vouchers plus system-wide ones.
func (s *Service) OverallStatistics(ctx context.Context, tenantID *snowflake.ID) (domain.OverallStatistics, error) {
	filter := domain.ListFilter{Scope: domain.ScopeAll}
	if tenantID != nil {
		filter = domain.ListFilter{Scope: domain.ScopeTenant, TenantID: *tenantID}
	}
	vouchers, err := s.repo.List(ctx, s.db, filter)
	if err != nil {
		return domain.OverallStatistics{}, err
	}
	count, total, err := s.repo.RedemptionTotals(ctx, s.db, tenantID)
	if err != nil {
		return domain.OverallStatistics{}, err
	}

	stats := domain.OverallStatistics{
		TotalVouchers:      len(vouchers),
		ActiveVouchers:     lo.CountBy(vouchers, func(v domain.ListItem) bool { return v.IsActive }),
		SystemWideVouchers: lo.CountBy(vouchers, func(v domain.ListItem) bool { return v.TenantID == nil }),
		TotalRedemptions:   count,
		TotalDiscountGiven: total.Round(2),
		ByType:             make(map[domain.Type]int, len(domain.Types)),
	}
	for _, t := range domain.Types {
		stats.ByType[t] = lo.CountBy(vouchers, func(v domain.ListItem) bool { return v.Type == t })
	}
	return stats, nil
}
