package masking

import "strings"

const maskToken = "****"

// sensitiveKeys are metadata keys whose values never reach the audit table in clear text.
var sensitiveKeys = map[string]struct{}{
	"billing_email":     {},
	"email":             {},
	"vat_number":        {},
	"iban":              {},
	"payment_reference": {},
}

// MaskSecret redacts a value while keeping a minimal suffix for auditing.
func MaskSecret(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}
	if len(trimmed) <= 4 {
		return maskToken
	}
	return maskToken + trimmed[len(trimmed)-4:]
}

// MaskSensitive returns a copy of metadata with sensitive keys masked.
// Nested maps are walked; other values are copied as is.
func MaskSensitive(input map[string]any) map[string]any {
	if len(input) == 0 {
		return nil
	}
	out := make(map[string]any, len(input))
	for key, value := range input {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		if _, ok := sensitiveKeys[strings.ToLower(key)]; ok {
			if s, isString := value.(string); isString {
				out[key] = MaskSecret(s)
				continue
			}
		}
		if nested, ok := value.(map[string]any); ok {
			out[key] = MaskSensitive(nested)
			continue
		}
		out[key] = value
	}
	return out
}
