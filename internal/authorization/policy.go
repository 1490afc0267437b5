package authorization

// Roles asserted by the gateway in X-Actor-Role.
const (
	RoleSuperAdmin  = "super_admin"
	RoleTenantAdmin = "tenant_admin"
	RoleClubAdmin   = "club_admin"
	RoleSystem      = "system"
)

const (
	ObjectTenant         = "tenant"
	ObjectClub           = "club"
	ObjectPlan           = "plan"
	ObjectVoucher        = "voucher"
	ObjectDiscount       = "discount"
	ObjectInvoice        = "invoice"
	ObjectInvoiceRequest = "invoice_request"
	ObjectTaxRate        = "tax_rate"
	ObjectDunning        = "dunning"
	ObjectAuditLog       = "audit_log"
)

const (
	ActionTenantView    = "tenant.view"
	ActionTenantManage  = "tenant.manage"
	ActionTenantSuspend = "tenant.suspend"

	ActionClubView   = "club.view"
	ActionClubManage = "club.manage"

	ActionPlanView   = "plan.view"
	ActionPlanManage = "plan.manage"

	ActionVoucherView          = "voucher.view"
	ActionVoucherManage        = "voucher.manage"
	ActionVoucherManageSystem  = "voucher.manage_system"
	ActionVoucherValidate      = "voucher.validate"
	ActionVoucherRedeem        = "voucher.redeem"
	ActionVoucherViewStatistic = "voucher.statistics"

	ActionDiscountCalculate = "discount.calculate"

	ActionInvoiceView     = "invoice.view"
	ActionInvoiceManage   = "invoice.manage"
	ActionInvoiceMarkPaid = "invoice.mark_paid"
	ActionInvoiceCancel   = "invoice.cancel"
	ActionInvoiceRemind   = "invoice.remind"

	ActionInvoiceRequestCreate  = "invoice_request.create"
	ActionInvoiceRequestView    = "invoice_request.view"
	ActionInvoiceRequestProcess = "invoice_request.process"

	ActionTaxRateView   = "tax_rate.view"
	ActionTaxRateManage = "tax_rate.manage"

	ActionDunningRun = "dunning.run"

	ActionAuditLogView = "audit_log.view"
)

var allObjects = []string{
	ObjectTenant,
	ObjectClub,
	ObjectPlan,
	ObjectVoucher,
	ObjectDiscount,
	ObjectInvoice,
	ObjectInvoiceRequest,
	ObjectTaxRate,
	ObjectDunning,
	ObjectAuditLog,
}

func knownRole(role string) bool {
	switch role {
	case RoleSuperAdmin, RoleTenantAdmin, RoleClubAdmin, RoleSystem:
		return true
	default:
		return false
	}
}

// defaultPolicies returns {role, object, action} triples seeded on start.
func defaultPolicies() [][]string {
	policies := make([][]string, 0, 64)
	for _, obj := range allObjects {
		policies = append(policies, []string{"role:" + RoleSuperAdmin, obj, "*"})
	}

	tenantAdmin := "role:" + RoleTenantAdmin
	policies = append(policies,
		[]string{tenantAdmin, ObjectTenant, ActionTenantView},
		[]string{tenantAdmin, ObjectClub, ActionClubView},
		[]string{tenantAdmin, ObjectClub, ActionClubManage},
		[]string{tenantAdmin, ObjectPlan, ActionPlanView},
		[]string{tenantAdmin, ObjectPlan, ActionPlanManage},
		[]string{tenantAdmin, ObjectVoucher, ActionVoucherView},
		[]string{tenantAdmin, ObjectVoucher, ActionVoucherManage},
		[]string{tenantAdmin, ObjectVoucher, ActionVoucherValidate},
		[]string{tenantAdmin, ObjectVoucher, ActionVoucherRedeem},
		[]string{tenantAdmin, ObjectVoucher, ActionVoucherViewStatistic},
		[]string{tenantAdmin, ObjectDiscount, ActionDiscountCalculate},
		[]string{tenantAdmin, ObjectInvoice, ActionInvoiceView},
		[]string{tenantAdmin, ObjectInvoice, ActionInvoiceManage},
		[]string{tenantAdmin, ObjectInvoice, ActionInvoiceMarkPaid},
		[]string{tenantAdmin, ObjectInvoice, ActionInvoiceCancel},
		[]string{tenantAdmin, ObjectInvoice, ActionInvoiceRemind},
		[]string{tenantAdmin, ObjectInvoiceRequest, ActionInvoiceRequestView},
		[]string{tenantAdmin, ObjectInvoiceRequest, ActionInvoiceRequestProcess},
		[]string{tenantAdmin, ObjectTaxRate, ActionTaxRateView},
		[]string{tenantAdmin, ObjectTaxRate, ActionTaxRateManage},
		[]string{tenantAdmin, ObjectDunning, ActionDunningRun},
		[]string{tenantAdmin, ObjectAuditLog, ActionAuditLogView},
	)

	clubAdmin := "role:" + RoleClubAdmin
	policies = append(policies,
		[]string{clubAdmin, ObjectClub, ActionClubView},
		[]string{clubAdmin, ObjectPlan, ActionPlanView},
		[]string{clubAdmin, ObjectVoucher, ActionVoucherValidate},
		[]string{clubAdmin, ObjectVoucher, ActionVoucherRedeem},
		[]string{clubAdmin, ObjectDiscount, ActionDiscountCalculate},
		[]string{clubAdmin, ObjectInvoice, ActionInvoiceView},
		[]string{clubAdmin, ObjectInvoiceRequest, ActionInvoiceRequestCreate},
	)

	system := "role:" + RoleSystem
	policies = append(policies,
		[]string{system, ObjectDunning, ActionDunningRun},
		[]string{system, ObjectInvoice, ActionInvoiceRemind},
		[]string{system, ObjectInvoice, ActionInvoiceView},
		[]string{system, ObjectTenant, ActionTenantSuspend},
		[]string{system, ObjectVoucher, ActionVoucherView},
	)
	return policies
}

// grantAudited lists actions whose successful checks are written to the audit log.
func grantAudited(action string) bool {
	switch action {
	case ActionInvoiceMarkPaid, ActionInvoiceCancel, ActionTenantSuspend, ActionVoucherManageSystem, ActionDunningRun:
		return true
	default:
		return false
	}
}
