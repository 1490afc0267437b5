package service

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/lukasmk87/basketmanager/internal/invoice/domain"
	"github.com/lukasmk87/basketmanager/internal/invoice/render"
)

var errRendererMissing = errors.New("renderer_not_configured")

// RenderHTML renders the printable invoice. Club invoices are issued by the
// tenant, tenant invoices by the platform operator.
func (s *Service) RenderHTML(ctx context.Context, id snowflake.ID) (string, error) {
	if s.renderer == nil {
		return "", errRendererMissing
	}
	invoice, err := s.load(ctx, s.db, id, false)
	if err != nil {
		return "", err
	}

	var issuer render.Party
	if invoice.BillableType == domain.BillableClub {
		tenant, err := s.tenants.Get(ctx, invoice.TenantID)
		if err != nil {
			return "", err
		}
		issuer = render.Party{
			Name:      tenant.BillingRecipient(),
			Email:     tenant.BillingEmail,
			Address:   tenant.BillingAddress,
			VATNumber: tenant.VATNumber,
		}
	} else {
		cfg := s.billing.Get().Issuer
		issuer = render.Party{Name: cfg.Name, Email: cfg.Email, Address: cfg.Address}
		if cfg.VATNumber != "" {
			vat := cfg.VATNumber
			issuer.VATNumber = &vat
		}
	}
	return s.renderer.RenderHTML(render.Document{Invoice: invoice, Issuer: issuer})
}
