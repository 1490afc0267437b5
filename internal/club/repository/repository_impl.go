package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/lukasmk87/basketmanager/internal/club/domain"
	"gorm.io/gorm"
)

type repo struct{}

func NewRepository() domain.Repository {
	return &repo{}
}

func (r *repo) InsertClub(ctx context.Context, db *gorm.DB, club *domain.Club) error {
	return db.WithContext(ctx).Create(club).Error
}

func (r *repo) FindClub(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Club, error) {
	var club domain.Club
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM clubs WHERE id = ? LIMIT 1`,
		id,
	).Scan(&club).Error
	if err != nil {
		return nil, err
	}
	if club.ID == 0 {
		return nil, nil
	}
	return &club, nil
}

func (r *repo) ListClubs(ctx context.Context, db *gorm.DB, tenantID snowflake.ID) ([]domain.Club, error) {
	var clubs []domain.Club
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM clubs WHERE tenant_id = ? ORDER BY name ASC, id ASC`,
		tenantID,
	).Scan(&clubs).Error
	return clubs, err
}

func (r *repo) UpdateSubscription(ctx context.Context, db *gorm.DB, club *domain.Club) error {
	return db.WithContext(ctx).Exec(
		`UPDATE clubs
		 SET plan_id = ?, subscription_status = ?, billing_interval = ?, trial_ends_at = ?,
		     subscription_started_at = ?, current_period_start = ?, current_period_end = ?,
		     payment_method_type = ?, updated_at = ?
		 WHERE id = ?`,
		club.PlanID,
		club.SubscriptionStatus,
		club.BillingInterval,
		club.TrialEndsAt,
		club.SubscriptionStartedAt,
		club.CurrentPeriodStart,
		club.CurrentPeriodEnd,
		club.PaymentMethodType,
		club.UpdatedAt,
		club.ID,
	).Error
}

func (r *repo) UpdateBillingDetails(ctx context.Context, db *gorm.DB, club *domain.Club) error {
	return db.WithContext(ctx).Exec(
		`UPDATE clubs
		 SET payment_method_type = ?, invoice_billing_name = ?, invoice_vat_number = ?,
		     billing_email = ?, billing_address = ?, updated_at = ?
		 WHERE id = ?`,
		club.PaymentMethodType,
		club.InvoiceBillingName,
		club.InvoiceVATNumber,
		club.BillingEmail,
		club.BillingAddress,
		club.UpdatedAt,
		club.ID,
	).Error
}

func (r *repo) InsertPlan(ctx context.Context, db *gorm.DB, plan *domain.Plan) error {
	return db.WithContext(ctx).Create(plan).Error
}

func (r *repo) FindPlan(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Plan, error) {
	var plan domain.Plan
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM club_subscription_plans WHERE id = ? LIMIT 1`,
		id,
	).Scan(&plan).Error
	if err != nil {
		return nil, err
	}
	if plan.ID == 0 {
		return nil, nil
	}
	return &plan, nil
}

func (r *repo) FindPlanBySlug(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, slug string) (*domain.Plan, error) {
	var plan domain.Plan
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM club_subscription_plans WHERE tenant_id = ? AND slug = ? LIMIT 1`,
		tenantID,
		slug,
	).Scan(&plan).Error
	if err != nil {
		return nil, err
	}
	if plan.ID == 0 {
		return nil, nil
	}
	return &plan, nil
}

func (r *repo) ListPlans(ctx context.Context, db *gorm.DB, tenantID snowflake.ID) ([]domain.Plan, error) {
	var plans []domain.Plan
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM club_subscription_plans WHERE tenant_id = ? ORDER BY price ASC, id ASC`,
		tenantID,
	).Scan(&plans).Error
	return plans, err
}

func (r *repo) ClearDefaultPlan(ctx context.Context, db *gorm.DB, tenantID snowflake.ID) error {
	return db.WithContext(ctx).Exec(
		`UPDATE club_subscription_plans SET is_default = ? WHERE tenant_id = ? AND is_default = ?`,
		false,
		tenantID,
		true,
	).Error
}

func (r *repo) InsertEvent(ctx context.Context, db *gorm.DB, event *domain.SubscriptionEvent) error {
	return db.WithContext(ctx).Create(event).Error
}

func (r *repo) ListEvents(ctx context.Context, db *gorm.DB, clubID snowflake.ID) ([]domain.SubscriptionEvent, error) {
	var events []domain.SubscriptionEvent
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM subscription_events WHERE club_id = ? ORDER BY event_date DESC, id DESC`,
		clubID,
	).Scan(&events).Error
	return events, err
}
