package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	clubdomain "github.com/lukasmk87/basketmanager/internal/club/domain"
	"github.com/lukasmk87/basketmanager/internal/i18n"
	"github.com/lukasmk87/basketmanager/internal/invoice/domain"
	"github.com/lukasmk87/basketmanager/internal/invoice/format"
	taxservice "github.com/lukasmk87/basketmanager/internal/tax/service"
	"github.com/lukasmk87/basketmanager/internal/tenantcontext"
	"github.com/lukasmk87/basketmanager/pkg/db"
	"github.com/lukasmk87/basketmanager/pkg/db/pagination"
	"github.com/lukasmk87/basketmanager/pkg/validation"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

func (s *Service) Create(ctx context.Context, req domain.CreateRequest) (*domain.Invoice, error) {
	if err := validation.Struct(req); err != nil {
		return nil, err
	}
	if !req.BillableType.Valid() {
		return nil, domain.ErrInvalidBillableType
	}
	if req.NetAmount.IsNegative() {
		return nil, domain.ErrInvalidAmount
	}
	if req.TaxRate != nil && !validRate(*req.TaxRate) {
		return nil, domain.ErrInvalidTaxRate
	}

	b, err := s.resolveBillable(ctx, req.BillableType, req.BillableID)
	if err != nil {
		return nil, err
	}
	if req.PlanID != nil {
		if b.club == nil {
			return nil, clubdomain.ErrPlanNotFound
		}
		if _, err := s.clubs.GetPlan(ctx, b.tenantID, *req.PlanID); err != nil {
			return nil, err
		}
	}

	invoice, err := s.build(b, req)
	if err != nil {
		return nil, err
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.insert(ctx, tx, b, invoice)
	})
	if err != nil {
		return nil, err
	}
	s.issued(ctx, invoice)
	return invoice, nil
}

// build turns a create request into a draft with computed totals.
func (s *Service) build(b *billable, req domain.CreateRequest) (*domain.Invoice, error) {
	cfg := s.billing.Get()
	now := s.clock.Now()

	rate := b.rate
	if req.TaxRate != nil {
		rate = *req.TaxRate
	}
	amounts := taxservice.CalculateAmounts(req.NetAmount, rate, b.smallBusiness)

	issue := now
	if req.IssueDate != nil {
		issue = req.IssueDate.UTC()
	}
	due := issue.AddDate(0, 0, cfg.PaymentTermsDays)
	if req.DueDate != nil {
		due = req.DueDate.UTC()
	}
	if due.Before(issue) {
		return nil, domain.ErrInvalidDates
	}

	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = cfg.Currency
	}
	description := strings.TrimSpace(req.Description)

	items := req.LineItems
	if len(items) == 0 {
		label := description
		if label == "" {
			label = req.BillingPeriod
		}
		items = []domain.LineItem{{
			Description: label,
			Quantity:    1,
			UnitPrice:   amounts.Net,
			Total:       amounts.Net,
		}}
	}

	invoice := &domain.Invoice{
		ID:                  s.genID.Generate(),
		PlanID:              req.PlanID,
		Status:              domain.StatusDraft,
		NetAmount:           amounts.Net,
		TaxRate:             amounts.Rate,
		TaxAmount:           amounts.Tax,
		GrossAmount:         amounts.Gross,
		DiscountAmount:      req.DiscountAmount.Round(2),
		VoucherRedemptionID: req.VoucherRedemptionID,
		Currency:            currency,
		BillingPeriod:       strings.TrimSpace(req.BillingPeriod),
		BillingInterval:     req.BillingInterval,
		Description:         description,
		LineItems:           datatypes.JSONSlice[domain.LineItem](items),
		IssueDate:           issue,
		DueDate:             due,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	b.fill(invoice)
	if req.BillingName != nil {
		invoice.BillingName = strings.TrimSpace(*req.BillingName)
	}
	if req.BillingEmail != nil {
		invoice.BillingEmail = strings.TrimSpace(*req.BillingEmail)
	}
	if req.BillingAddress != nil {
		invoice.BillingAddress = datatypes.JSONMap(req.BillingAddress)
	}
	if req.VATNumber != nil {
		invoice.VATNumber = req.VATNumber
	}
	return invoice, nil
}

// insert numbers and stores a draft. The tenant row lock serializes numbering.
func (s *Service) insert(ctx context.Context, tx *gorm.DB, b *billable, invoice *domain.Invoice) error {
	number, err := s.nextNumber(ctx, tx, b)
	if err != nil {
		return err
	}
	invoice.Number = number
	invoice.CreatedBy = tenantcontext.ActorID(ctx)
	invoice.UpdatedBy = invoice.CreatedBy

	if err := s.repo.Insert(ctx, tx, invoice); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return domain.ErrNumberGenerationLimit
		}
		return err
	}
	if err := s.logClubEvent(ctx, tx, invoice, clubdomain.EventInvoiceCreated, nil); err != nil {
		return err
	}
	return s.audit(ctx, tx, "invoice.create", invoice, map[string]any{
		"gross_amount": invoice.GrossAmount.StringFixed(2),
	})
}

// nextNumber continues the tenant's sequence for the current year. All
// prefixes of a tenant share one sequence.
func (s *Service) nextNumber(ctx context.Context, tx *gorm.DB, b *billable) (string, error) {
	if err := s.repo.LockTenant(ctx, tx, b.tenantID); err != nil {
		return "", err
	}
	now := s.clock.Now()
	yearStart := time.Date(now.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
	last, err := s.repo.LastNumber(ctx, tx, b.tenantID, yearStart, yearStart.AddDate(1, 0, 0))
	if err != nil {
		return "", err
	}
	prefix := b.prefix
	if prefix == "" {
		prefix = s.billing.Get().NumberPrefixes.Default
	}
	return format.InvoiceNumber(prefix, now.Year(), format.NextSequence(last))
}

func (s *Service) issued(ctx context.Context, invoice *domain.Invoice) {
	s.metrics.RecordInvoiceIssued(ctx, string(invoice.BillableType))
	s.log.Info("invoice created",
		zap.String("invoice_id", invoice.ID.String()),
		zap.String("invoice_number", invoice.Number),
		zap.String("billable_type", string(invoice.BillableType)),
		zap.String("gross_amount", invoice.GrossAmount.StringFixed(2)),
	)
}

func (s *Service) CreateForSubscription(ctx context.Context, club *clubdomain.Club, plan *clubdomain.Plan, interval clubdomain.BillingInterval) (*domain.Invoice, error) {
	if club == nil {
		return nil, domain.ErrBillableNotFound
	}
	if plan == nil || plan.TenantID != club.TenantID {
		return nil, clubdomain.ErrPlanNotFound
	}
	if !inScope(ctx, club.TenantID) {
		return nil, domain.ErrBillableNotFound
	}
	b, err := s.clubBillable(ctx, club)
	if err != nil {
		return nil, err
	}

	var invoice *domain.Invoice
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		invoice, err = s.createForSubscription(ctx, tx, b, plan, interval)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.issued(ctx, invoice)
	return invoice, nil
}

// createForSubscription bills one period of plan inside tx. An active voucher
// becomes a negative line item and is booked for the months covered.
func (s *Service) createForSubscription(ctx context.Context, tx *gorm.DB, b *billable, plan *clubdomain.Plan, interval clubdomain.BillingInterval) (*domain.Invoice, error) {
	if interval == "" {
		interval = b.club.BillingInterval
	}
	if interval == "" {
		interval = plan.BillingInterval
	}
	if !interval.Valid() {
		return nil, domain.ErrInvalidInterval
	}

	cfg := s.billing.Get()
	base := s.periodPrice(plan.Price, interval)
	currency := plan.Currency
	if currency == "" {
		currency = cfg.Currency
	}
	items := []domain.LineItem{{
		Description: i18n.T(b.locale, "invoice.line.subscription", plan.Name, string(interval)),
		Quantity:    1,
		UnitPrice:   base,
		Total:       base,
	}}

	discount := decimal.Zero
	months := 0
	var redemptionID *snowflake.ID
	if s.vouchers != nil {
		redemption, err := s.vouchers.ActiveRedemption(ctx, tx, b.club.ID)
		if err != nil {
			return nil, err
		}
		if redemption != nil {
			months = min(interval.Months(), redemption.RemainingMonths())
			monthly := base.Div(decimal.NewFromInt(int64(interval.Months())))
			discount = redemption.DiscountFor(monthly).Mul(decimal.NewFromInt(int64(months)))
			discount = decimal.Min(discount, base).Round(2)
		}
		if discount.IsPositive() {
			items = append(items, domain.LineItem{
				Description: i18n.T(b.locale, "invoice.line.voucher", redemption.VoucherCode, redemption.FormattedDiscount(currency)),
				Quantity:    1,
				UnitPrice:   discount.Neg(),
				Total:       discount.Neg(),
			})
			redemptionID = &redemption.ID
		}
	}

	now := s.clock.Now()
	periodEnd := now.AddDate(0, interval.Months(), -1)
	invoice, err := s.build(b, domain.CreateRequest{
		BillableType:        domain.BillableClub,
		BillableID:          b.club.ID,
		PlanID:              &plan.ID,
		NetAmount:           base.Sub(discount),
		Currency:            currency,
		BillingPeriod:       format.BillingPeriod(now, periodEnd),
		BillingInterval:     string(interval),
		Description:         i18n.T(b.locale, "invoice.description.subscription", plan.Name),
		LineItems:           items,
		DiscountAmount:      discount,
		VoucherRedemptionID: redemptionID,
	})
	if err != nil {
		return nil, err
	}
	if err := s.insert(ctx, tx, b, invoice); err != nil {
		return nil, err
	}
	if redemptionID != nil {
		if _, err := s.vouchers.MarkDiscountApplied(ctx, tx, b.club, discount, months); err != nil {
			return nil, err
		}
	}
	return invoice, nil
}

// periodPrice is the net price of one billing period. Yearly billing gets the
// configured discount on twelve months.
func (s *Service) periodPrice(monthly decimal.Decimal, interval clubdomain.BillingInterval) decimal.Decimal {
	if interval != clubdomain.IntervalYearly {
		return monthly.Round(2)
	}
	factor := decimal.NewFromInt(1).Sub(decimal.NewFromFloat(s.billing.Get().YearlyDiscount).Div(decimal.NewFromInt(100)))
	return monthly.Mul(decimal.NewFromInt(12)).Mul(factor).Round(2)
}

func (s *Service) CreateForTenant(ctx context.Context, tenantID snowflake.ID, interval clubdomain.BillingInterval) (*domain.Invoice, error) {
	if interval == "" {
		interval = clubdomain.IntervalMonthly
	}
	if !interval.Valid() {
		return nil, domain.ErrInvalidInterval
	}
	if !inScope(ctx, tenantID) {
		return nil, domain.ErrBillableNotFound
	}
	b, err := s.tenantBillable(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	tier := b.tenant.SubscriptionTier
	price := s.periodPrice(tier.Limits().MonthlyPrice, interval)
	if !price.IsPositive() {
		return nil, domain.ErrInvalidAmount
	}

	now := s.clock.Now()
	invoice, err := s.build(b, domain.CreateRequest{
		BillableType:    domain.BillableTenant,
		BillableID:      tenantID,
		NetAmount:       price,
		BillingPeriod:   format.BillingPeriod(now, now.AddDate(0, interval.Months(), -1)),
		BillingInterval: string(interval),
		Description:     i18n.T(b.locale, "invoice.description.tier", string(tier)),
		LineItems: []domain.LineItem{{
			Description: i18n.T(b.locale, "invoice.line.tier", string(tier), string(interval)),
			Quantity:    1,
			UnitPrice:   price,
			Total:       price,
		}},
	})
	if err != nil {
		return nil, err
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.insert(ctx, tx, b, invoice)
	})
	if err != nil {
		return nil, err
	}
	s.issued(ctx, invoice)
	return invoice, nil
}

func (s *Service) Update(ctx context.Context, id snowflake.ID, req domain.UpdateRequest) (*domain.Invoice, error) {
	if err := validation.Struct(req); err != nil {
		return nil, err
	}
	if req.NetAmount != nil && req.NetAmount.IsNegative() {
		return nil, domain.ErrInvalidAmount
	}
	if req.TaxRate != nil && !validRate(*req.TaxRate) {
		return nil, domain.ErrInvalidTaxRate
	}

	var updated *domain.Invoice
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		invoice, err := s.load(ctx, tx, id, true)
		if err != nil {
			return err
		}
		if !invoice.CanBeEdited() {
			return domain.ErrNotEditable
		}

		if req.NetAmount != nil || req.TaxRate != nil {
			net, rate := invoice.NetAmount, invoice.TaxRate
			if req.NetAmount != nil {
				net = *req.NetAmount
			}
			if req.TaxRate != nil {
				rate = *req.TaxRate
			}
			amounts := taxservice.CalculateAmounts(net, rate, invoice.IsSmallBusiness)
			invoice.NetAmount = amounts.Net
			invoice.TaxRate = amounts.Rate
			invoice.TaxAmount = amounts.Tax
			invoice.GrossAmount = amounts.Gross
		}
		if req.BillingPeriod != nil {
			invoice.BillingPeriod = strings.TrimSpace(*req.BillingPeriod)
		}
		if req.Description != nil {
			invoice.Description = strings.TrimSpace(*req.Description)
		}
		if req.LineItems != nil {
			invoice.LineItems = datatypes.JSONSlice[domain.LineItem](*req.LineItems)
		}
		if req.IssueDate != nil {
			invoice.IssueDate = req.IssueDate.UTC()
		}
		if req.DueDate != nil {
			invoice.DueDate = req.DueDate.UTC()
		}
		if invoice.DueDate.Before(invoice.IssueDate) {
			return domain.ErrInvalidDates
		}
		if req.BillingName != nil {
			invoice.BillingName = strings.TrimSpace(*req.BillingName)
		}
		if req.BillingEmail != nil {
			invoice.BillingEmail = strings.TrimSpace(*req.BillingEmail)
		}
		if req.BillingAddress != nil {
			invoice.BillingAddress = datatypes.JSONMap(req.BillingAddress)
		}
		if req.VATNumber != nil {
			invoice.VATNumber = req.VATNumber
		}
		invoice.UpdatedBy = tenantcontext.ActorID(ctx)
		invoice.UpdatedAt = s.clock.Now()

		if err := s.repo.Update(ctx, tx, invoice); err != nil {
			return err
		}
		updated = invoice
		return s.audit(ctx, tx, "invoice.update", invoice, map[string]any{
			"gross_amount": invoice.GrossAmount.StringFixed(2),
		})
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *Service) Delete(ctx context.Context, id snowflake.ID) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		invoice, err := s.load(ctx, tx, id, true)
		if err != nil {
			return err
		}
		if !invoice.CanBeEdited() {
			return domain.ErrNotEditable
		}
		if err := s.repo.Delete(ctx, tx, id); err != nil {
			return err
		}
		return s.audit(ctx, tx, "invoice.delete", invoice, nil)
	})
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (*domain.Invoice, error) {
	return s.load(ctx, s.db, id, false)
}

func (s *Service) List(ctx context.Context, req domain.ListRequest) (domain.ListResponse, error) {
	if err := validation.Struct(req); err != nil {
		return domain.ListResponse{}, err
	}
	if req.BillableType != "" && !req.BillableType.Valid() {
		return domain.ListResponse{}, domain.ErrInvalidBillableType
	}
	cursor, err := pagination.DecodeCursor(strings.TrimSpace(req.PageToken))
	if err != nil {
		return domain.ListResponse{}, err
	}

	limit := req.Limit()
	filter := domain.ListFilter{
		TenantID:     scope(ctx),
		BillableType: req.BillableType,
		BillableID:   req.BillableID,
		Status:       req.Status,
		Search:       req.Search,
		Cursor:       cursor,
		Limit:        limit,
	}
	if req.Year > 0 {
		from := time.Date(req.Year, time.January, 1, 0, 0, 0, 0, time.UTC)
		to := from.AddDate(1, 0, 0)
		filter.From, filter.To = &from, &to
	}
	if req.FromDate != nil {
		filter.From = utc(req.FromDate)
	}
	if req.ToDate != nil {
		// inclusive day
		to := req.ToDate.UTC().AddDate(0, 0, 1)
		filter.To = &to
	}

	rows, err := s.repo.List(ctx, s.db, filter)
	if err != nil {
		return domain.ListResponse{}, err
	}
	invoices, info, err := pagination.Page(rows, limit, func(invoice domain.Invoice) pagination.Cursor {
		return pagination.Cursor{ID: int64(invoice.ID), CreatedAt: invoice.CreatedAt}
	})
	if err != nil {
		return domain.ListResponse{}, err
	}
	return domain.ListResponse{PageInfo: info, Invoices: invoices}, nil
}

func (s *Service) Statistics(ctx context.Context, tenantID *snowflake.ID) (domain.Statistics, error) {
	if scoped := scope(ctx); scoped != nil {
		if tenantID != nil && *tenantID != *scoped {
			return domain.Statistics{}, domain.ErrInvalidTenant
		}
		tenantID = scoped
	}
	now := s.clock.Now()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	return s.repo.Statistics(ctx, s.db, tenantID, monthStart, monthStart.AddDate(0, 1, 0))
}
