package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/lukasmk87/basketmanager/internal/voucher/domain"
	"github.com/lukasmk87/basketmanager/pkg/db"
	"github.com/lukasmk87/basketmanager/pkg/validation"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const maxCodeAttempts = 50

var codeCharset = append(append([]rune{}, lo.UpperCaseLettersCharset...), lo.NumbersCharset...)

func (s *Service) Create(ctx context.Context, req domain.CreateRequest) (*domain.Voucher, error) {
	req.Code = normalizeCode(req.Code)
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return nil, domain.ErrInvalidName
	}
	if !req.Type.Valid() {
		return nil, domain.ErrInvalidType
	}
	if err := validation.Struct(req); err != nil {
		return nil, err
	}

	durationMonths := req.DurationMonths
	if durationMonths <= 0 {
		durationMonths = 1
	}

	isActive := true
	if req.IsActive != nil {
		isActive = *req.IsActive
	}

	now := s.clock.Now()
	voucher := &domain.Voucher{
		ID:                s.genID.Generate(),
		TenantID:          req.TenantID,
		Code:              normalizeCode(req.Code),
		Name:              req.Name,
		Description:       trimmedOrNil(req.Description),
		Type:              req.Type,
		DurationMonths:    durationMonths,
		MaxRedemptions:    req.MaxRedemptions,
		ValidFrom:         utcPtr(req.ValidFrom),
		ValidUntil:        utcPtr(req.ValidUntil),
		ApplicablePlanIDs: datatypes.JSONSlice[snowflake.ID](lo.Uniq(req.ApplicablePlanIDs)),
		IsActive:          isActive,
		CreatedBy:         actorID(ctx),
		Metadata:          datatypes.JSONMap(req.Metadata),
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := applyTypeFields(voucher, req.DiscountPercent, req.DiscountAmount, req.TrialExtensionDays); err != nil {
		return nil, err
	}
	if err := validateLimits(voucher); err != nil {
		return nil, err
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if voucher.Code == "" {
			code, err := s.uniqueCode(ctx, tx, s.billing.Get().Voucher.CodeLength)
			if err != nil {
				return err
			}
			voucher.Code = code
		} else {
			exists, err := s.repo.CodeExists(ctx, tx, voucher.Code)
			if err != nil {
				return err
			}
			if exists {
				return domain.ErrCodeTaken
			}
		}

		if err := s.repo.Insert(ctx, tx, voucher); err != nil {
			if db.IsDuplicateKeyErr(err) {
				return domain.ErrCodeTaken
			}
			return err
		}
		return s.audit(ctx, tx, voucher.TenantID, "voucher.create", voucher.ID, map[string]any{
			"code": voucher.Code,
			"type": string(voucher.Type),
		})
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("voucher created",
		zap.String("voucher_id", voucher.ID.String()),
		zap.String("code", voucher.Code),
		zap.String("type", string(voucher.Type)),
		zap.Bool("system_wide", voucher.IsSystemWide()),
	)
	return voucher, nil
}

func (s *Service) Update(ctx context.Context, id snowflake.ID, req domain.UpdateRequest) (*domain.Voucher, error) {
	if err := validation.Struct(req); err != nil {
		return nil, err
	}

	var voucher *domain.Voucher
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		voucher, err = s.repo.FindByID(ctx, tx, id)
		if err != nil {
			return err
		}
		if voucher == nil {
			return domain.ErrNotFound
		}

		changes := make([]string, 0, 8)
		// the code is frozen once anyone redeemed it
		if req.Code != nil && voucher.CurrentRedemptions == 0 {
			code := normalizeCode(*req.Code)
			if code != voucher.Code {
				exists, err := s.repo.CodeExists(ctx, tx, code)
				if err != nil {
					return err
				}
				if exists {
					return domain.ErrCodeTaken
				}
				voucher.Code = code
				changes = append(changes, "code")
			}
		}
		if req.Name != nil {
			name := strings.TrimSpace(*req.Name)
			if name == "" {
				return domain.ErrInvalidName
			}
			voucher.Name = name
			changes = append(changes, "name")
		}
		if req.Description != nil {
			voucher.Description = trimmedOrNil(req.Description)
			changes = append(changes, "description")
		}
		if req.DiscountPercent != nil || req.DiscountAmount != nil || req.TrialExtensionDays != nil {
			percent, amount, days := req.DiscountPercent, req.DiscountAmount, req.TrialExtensionDays
			if percent == nil && voucher.DiscountPercent.Valid {
				current := voucher.DiscountPercent.Decimal
				percent = &current
			}
			if amount == nil && voucher.DiscountAmount.Valid {
				current := voucher.DiscountAmount.Decimal
				amount = &current
			}
			if days == nil {
				days = voucher.TrialExtensionDays
			}
			if err := applyTypeFields(voucher, percent, amount, days); err != nil {
				return err
			}
			changes = append(changes, "discount")
		}
		if req.DurationMonths != nil {
			voucher.DurationMonths = *req.DurationMonths
			changes = append(changes, "duration_months")
		}
		if req.MaxRedemptions != nil {
			voucher.MaxRedemptions = req.MaxRedemptions
			changes = append(changes, "max_redemptions")
		}
		if req.ValidFrom != nil {
			voucher.ValidFrom = utcPtr(req.ValidFrom)
			changes = append(changes, "valid_from")
		}
		if req.ValidUntil != nil {
			voucher.ValidUntil = utcPtr(req.ValidUntil)
			changes = append(changes, "valid_until")
		}
		if req.ApplicablePlanIDs != nil {
			voucher.ApplicablePlanIDs = datatypes.JSONSlice[snowflake.ID](lo.Uniq(*req.ApplicablePlanIDs))
			changes = append(changes, "applicable_plan_ids")
		}
		if req.IsActive != nil {
			voucher.IsActive = *req.IsActive
			changes = append(changes, "is_active")
		}
		if req.Metadata != nil {
			voucher.Metadata = datatypes.JSONMap(req.Metadata)
			changes = append(changes, "metadata")
		}
		if err := validateLimits(voucher); err != nil {
			return err
		}
		if req.MaxRedemptions != nil && *req.MaxRedemptions < voucher.CurrentRedemptions {
			return domain.ErrInvalidMaxRedemptions
		}

		voucher.UpdatedAt = s.clock.Now()
		if err := s.repo.Update(ctx, tx, voucher); err != nil {
			if db.IsDuplicateKeyErr(err) {
				return domain.ErrCodeTaken
			}
			return err
		}
		return s.audit(ctx, tx, voucher.TenantID, "voucher.update", voucher.ID, map[string]any{
			"changes": changes,
		})
	})
	if err != nil {
		return nil, err
	}
	return voucher, nil
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (*domain.Voucher, error) {
	voucher, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if voucher == nil {
		return nil, domain.ErrNotFound
	}
	return voucher, nil
}

func (s *Service) Activate(ctx context.Context, id snowflake.ID) (*domain.Voucher, error) {
	return s.setActive(ctx, id, true)
}

func (s *Service) Deactivate(ctx context.Context, id snowflake.ID) (*domain.Voucher, error) {
	return s.setActive(ctx, id, false)
}

func (s *Service) setActive(ctx context.Context, id snowflake.ID, active bool) (*domain.Voucher, error) {
	var voucher *domain.Voucher
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		voucher, err = s.repo.FindByID(ctx, tx, id)
		if err != nil {
			return err
		}
		if voucher == nil {
			return domain.ErrNotFound
		}
		now := s.clock.Now()
		if err := s.repo.SetActive(ctx, tx, id, active, now); err != nil {
			return err
		}
		voucher.IsActive = active
		voucher.UpdatedAt = now

		action := "voucher.deactivate"
		if active {
			action = "voucher.activate"
		}
		return s.audit(ctx, tx, voucher.TenantID, action, voucher.ID, nil)
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("voucher active flag changed", zap.String("voucher_id", id.String()), zap.Bool("active", active))
	return voucher, nil
}

func (s *Service) GenerateUniqueCode(ctx context.Context, length int) (string, error) {
	return s.uniqueCode(ctx, s.db, length)
}

func (s *Service) uniqueCode(ctx context.Context, conn *gorm.DB, length int) (string, error) {
	if length < 4 {
		length = s.billing.Get().Voucher.CodeLength
	}
	for range maxCodeAttempts {
		code := lo.RandomString(length, codeCharset)
		exists, err := s.repo.CodeExists(ctx, conn, code)
		if err != nil {
			return "", err
		}
		if !exists {
			return code, nil
		}
	}
	return "", domain.ErrCodeGeneration
}

// applyTypeFields keeps only the discount field matching the voucher type.
func applyTypeFields(v *domain.Voucher, percent, amount *decimal.Decimal, days *int) error {
	v.DiscountPercent = decimal.NullDecimal{}
	v.DiscountAmount = decimal.NullDecimal{}
	v.TrialExtensionDays = nil

	switch v.Type {
	case domain.TypePercent:
		if percent == nil {
			return domain.ErrInvalidPercent
		}
		rounded := percent.Round(2)
		if !rounded.IsPositive() || rounded.GreaterThan(decimal.NewFromInt(100)) {
			return domain.ErrInvalidPercent
		}
		v.DiscountPercent = decimal.NewNullDecimal(rounded)
	case domain.TypeFixedAmount:
		if amount == nil {
			return domain.ErrInvalidAmount
		}
		rounded := amount.Round(2)
		if !rounded.IsPositive() {
			return domain.ErrInvalidAmount
		}
		v.DiscountAmount = decimal.NewNullDecimal(rounded)
	case domain.TypeTrialExtension:
		if days == nil || *days <= 0 {
			return domain.ErrInvalidTrialDays
		}
		d := *days
		v.TrialExtensionDays = &d
	default:
		return domain.ErrInvalidType
	}
	return nil
}

func validateLimits(v *domain.Voucher) error {
	if v.DurationMonths <= 0 {
		return domain.ErrInvalidDuration
	}
	if v.MaxRedemptions != nil && *v.MaxRedemptions <= 0 {
		return domain.ErrInvalidMaxRedemptions
	}
	if v.ValidFrom != nil && v.ValidUntil != nil && v.ValidUntil.Before(*v.ValidFrom) {
		return domain.ErrInvalidValidity
	}
	return nil
}
