// Package i18n holds the user-facing message catalog. German is the default.
package i18n

import (
	"context"
	"fmt"
	"strings"
)

type Locale string

const (
	DE Locale = "de"
	EN Locale = "en"

	Default = DE
)

type localeKey struct{}

func WithLocale(ctx context.Context, locale Locale) context.Context {
	return context.WithValue(ctx, localeKey{}, locale)
}

func FromContext(ctx context.Context) Locale {
	if ctx == nil {
		return Default
	}
	if locale, ok := ctx.Value(localeKey{}).(Locale); ok && locale != "" {
		return locale
	}
	return Default
}

// Parse picks the first supported language of an Accept-Language header.
func Parse(header string) Locale {
	for _, part := range strings.Split(header, ",") {
		tag := strings.TrimSpace(strings.SplitN(part, ";", 2)[0])
		lang := strings.ToLower(strings.SplitN(tag, "-", 2)[0])
		switch Locale(lang) {
		case DE, EN:
			return Locale(lang)
		}
	}
	return Default
}

// T returns the message for key, falling back to German and then to the key.
func T(locale Locale, key string, args ...any) string {
	msg, ok := catalog[locale][key]
	if !ok {
		msg, ok = catalog[Default][key]
	}
	if !ok {
		return key
	}
	if len(args) > 0 {
		return fmt.Sprintf(msg, args...)
	}
	return msg
}

// TC translates with the locale carried by ctx.
func TC(ctx context.Context, key string, args ...any) string {
	return T(FromContext(ctx), key, args...)
}
