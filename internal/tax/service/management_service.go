package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/lukasmk87/basketmanager/internal/clock"
	taxdomain "github.com/lukasmk87/basketmanager/internal/tax/domain"
	"github.com/lukasmk87/basketmanager/internal/tenantcontext"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type serviceParams struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Repo     taxdomain.Repository
	Resolver taxdomain.Resolver
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	repo     taxdomain.Repository
	resolver taxdomain.Resolver
}

func NewService(p serviceParams) taxdomain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("tax.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		repo:     p.Repo,
		resolver: p.Resolver,
	}
}

func (s *Service) List(ctx context.Context, req taxdomain.ListRequest) ([]taxdomain.TaxRate, error) {
	tenantID, ok := tenantcontext.TenantIDFromContext(ctx)
	if !ok {
		return nil, taxdomain.ErrInvalidTenant
	}

	filter := taxdomain.ListRequest{
		Code:      strings.ToUpper(strings.TrimSpace(req.Code)),
		IsEnabled: req.IsEnabled,
		SortBy:    strings.TrimSpace(req.SortBy),
	}
	return s.repo.List(ctx, s.db, tenantID, filter)
}

func (s *Service) Create(ctx context.Context, req taxdomain.CreateRequest) (*taxdomain.TaxRate, error) {
	tenantID, ok := tenantcontext.TenantIDFromContext(ctx)
	if !ok {
		return nil, taxdomain.ErrInvalidTenant
	}

	code := strings.ToUpper(strings.TrimSpace(req.Code))
	if code == "" {
		return nil, taxdomain.ErrInvalidTaxCode
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, taxdomain.ErrInvalidName
	}

	isEnabled := true
	if req.IsEnabled != nil {
		isEnabled = *req.IsEnabled
	}

	now := s.clock.Now()
	record := &taxdomain.TaxRate{
		ID:          s.genID.Generate(),
		TenantID:    tenantID,
		Name:        name,
		Code:        code,
		Rate:        req.Rate.Round(2),
		Description: trimmedOrNil(req.Description),
		IsDefault:   req.IsDefault,
		IsEnabled:   isEnabled,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := record.Validate(); err != nil {
		return nil, err
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if record.IsDefault {
			if err := s.repo.ClearDefault(ctx, tx, tenantID); err != nil {
				return err
			}
		}
		return s.repo.Create(ctx, tx, record)
	})
	if err != nil {
		return nil, err
	}
	s.resolver.Invalidate(tenantID)
	return record, nil
}

func (s *Service) Update(ctx context.Context, req taxdomain.UpdateRequest) (*taxdomain.TaxRate, error) {
	tenantID, ok := tenantcontext.TenantIDFromContext(ctx)
	if !ok {
		return nil, taxdomain.ErrInvalidTenant
	}
	rateID, err := snowflake.ParseString(strings.TrimSpace(req.ID))
	if err != nil {
		return nil, taxdomain.ErrInvalidID
	}

	var item *taxdomain.TaxRate
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		item, err = s.repo.FindByID(ctx, tx, tenantID, rateID)
		if err != nil {
			return err
		}
		if item == nil {
			return taxdomain.ErrNotFound
		}

		if req.Name != nil {
			name := strings.TrimSpace(*req.Name)
			if name == "" {
				return taxdomain.ErrInvalidName
			}
			item.Name = name
		}
		if req.Rate != nil {
			item.Rate = req.Rate.Round(2)
		}
		if req.Description != nil {
			item.Description = trimmedOrNil(req.Description)
		}
		if req.IsDefault != nil {
			if *req.IsDefault && !item.IsDefault {
				if err := s.repo.ClearDefault(ctx, tx, tenantID); err != nil {
					return err
				}
			}
			item.IsDefault = *req.IsDefault
		}
		item.UpdatedAt = s.clock.Now()
		if err := item.Validate(); err != nil {
			return err
		}
		return s.repo.Update(ctx, tx, item)
	})
	if err != nil {
		return nil, err
	}
	s.resolver.Invalidate(tenantID)
	return item, nil
}

func (s *Service) Disable(ctx context.Context, id string) (*taxdomain.TaxRate, error) {
	tenantID, ok := tenantcontext.TenantIDFromContext(ctx)
	if !ok {
		return nil, taxdomain.ErrInvalidTenant
	}
	rateID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil {
		return nil, taxdomain.ErrInvalidID
	}

	item, err := s.repo.FindByID(ctx, s.db, tenantID, rateID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, taxdomain.ErrNotFound
	}

	item.IsEnabled = false
	item.UpdatedAt = s.clock.Now()
	if err := s.repo.Update(ctx, s.db, item); err != nil {
		return nil, err
	}
	s.resolver.Invalidate(tenantID)
	s.log.Info("tax rate disabled", zap.String("tax_rate_id", item.ID.String()))
	return item, nil
}

func trimmedOrNil(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
