package i18n

var catalog = map[Locale]map[string]string{
	DE: {
		"voucher.valid":            "Voucher ist gültig!",
		"voucher.not_found":        "Voucher-Code nicht gefunden.",
		"voucher.wrong_tenant":     "Dieser Voucher ist für Ihre Organisation nicht gültig.",
		"voucher.inactive":         "Dieser Voucher ist nicht mehr aktiv.",
		"voucher.not_yet_valid":    "Dieser Voucher ist noch nicht gültig.",
		"voucher.expired":          "Dieser Voucher ist abgelaufen.",
		"voucher.exhausted":        "Dieser Voucher wurde bereits zu oft eingelöst.",
		"voucher.already_redeemed": "Ihr Club hat diesen Voucher bereits eingelöst.",
		"voucher.wrong_plan":       "Dieser Voucher gilt nicht für den gewählten Plan.",

		"error.trial_expired":      "Ihr Testzeitraum ist abgelaufen. Bitte wählen Sie ein Abonnement.",
		"error.tenant_suspended":   "Ihr Zugang ist gesperrt.",
		"error.forbidden":          "Sie haben keine Berechtigung für diese Aktion.",
		"error.rate_limited":       "Zu viele Anfragen. Bitte versuchen Sie es später erneut.",
		"error.quota_exceeded":     "Das Limit Ihres Tarifs ist erreicht.",
		"error.not_found":          "Der angeforderte Datensatz wurde nicht gefunden.",
		"error.invalid_transition": "Diese Aktion ist im aktuellen Status nicht möglich.",
		"error.validation":         "Die Eingaben sind ungültig.",
		"error.conflict":           "Der Datensatz existiert bereits.",
		"error.unauthorized":       "Anmeldung erforderlich.",
		"error.internal":           "Ein interner Fehler ist aufgetreten.",
		"error.unavailable":        "Der Dienst ist vorübergehend nicht erreichbar.",

		"invoice.cancelled_note":           "Storniert: %s",
		"invoice.line.subscription":        "Subscription: %s (%s)",
		"invoice.description.subscription": "Subscription für %s",
		"invoice.line.voucher":             "Gutschein %s (%s)",
		"invoice.line.tier":                "Tarif %s (%s)",
		"invoice.description.tier":         "Plattform-Abonnement %s",

		"mail.invoice_sent.subject":                 "Ihre Rechnung %s",
		"mail.invoice_reminder.subject":             "Zahlungserinnerung zur Rechnung %s",
		"mail.invoice_dunning.subject":              "%d. Mahnung zur Rechnung %s",
		"mail.invoice_suspension_warning.subject":   "Sperrung wegen offener Rechnung %s",
		"mail.invoice_payment_confirmation.subject": "Zahlungseingang zur Rechnung %s",
		"mail.invoice_cancelled.subject":            "Stornierung der Rechnung %s",
	},
	EN: {
		"voucher.valid":            "Voucher is valid!",
		"voucher.not_found":        "Voucher code not found.",
		"voucher.wrong_tenant":     "This voucher is not valid for your organization.",
		"voucher.inactive":         "This voucher is no longer active.",
		"voucher.not_yet_valid":    "This voucher is not valid yet.",
		"voucher.expired":          "This voucher has expired.",
		"voucher.exhausted":        "This voucher has reached its redemption limit.",
		"voucher.already_redeemed": "Your club has already redeemed this voucher.",
		"voucher.wrong_plan":       "This voucher does not apply to the selected plan.",

		"error.trial_expired":      "Your trial has expired. Please choose a subscription.",
		"error.tenant_suspended":   "Your account is suspended.",
		"error.forbidden":          "You are not allowed to perform this action.",
		"error.rate_limited":       "Too many requests. Please try again later.",
		"error.quota_exceeded":     "Your plan limit has been reached.",
		"error.not_found":          "The requested record was not found.",
		"error.invalid_transition": "This action is not possible in the current status.",
		"error.validation":         "The input is invalid.",
		"error.conflict":           "The record already exists.",
		"error.unauthorized":       "Authentication required.",
		"error.internal":           "An internal error occurred.",
		"error.unavailable":        "The service is temporarily unavailable.",

		"invoice.cancelled_note":           "Cancelled: %s",
		"invoice.line.subscription":        "Subscription: %s (%s)",
		"invoice.description.subscription": "Subscription for %s",
		"invoice.line.voucher":             "Voucher %s (%s)",
		"invoice.line.tier":                "Tier %s (%s)",
		"invoice.description.tier":         "Platform subscription %s",

		"mail.invoice_sent.subject":                 "Your invoice %s",
		"mail.invoice_reminder.subject":             "Payment reminder for invoice %s",
		"mail.invoice_dunning.subject":              "Reminder %d for invoice %s",
		"mail.invoice_suspension_warning.subject":   "Account suspended over unpaid invoice %s",
		"mail.invoice_payment_confirmation.subject": "Payment received for invoice %s",
		"mail.invoice_cancelled.subject":            "Invoice %s cancelled",
	},
}
