package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lukasmk87/basketmanager/internal/config"
	"github.com/lukasmk87/basketmanager/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	keyVoucherClub = "ratelimit:voucher:club:%s"
	keyVoucherIP   = "ratelimit:voucher:ip:%s"

	endpointVoucher = "voucher"
)

var ErrRateLimited = errors.New("rate_limited")

// Decision is the outcome of a voucher rate check. Reason names the bucket
// that denied the request.
type Decision struct {
	Allowed    bool
	Reason     string
	RetryAfter time.Duration
}

type VoucherLimiterParams struct {
	fx.In

	Log     *zap.Logger
	Billing *config.BillingConfigHolder
	Bucket  *TokenBucket     `optional:"true"`
	Metrics *metrics.Metrics `optional:"true"`
}

// VoucherLimiter throttles voucher validation and redemption per club and per
// client IP. Without a token bucket every request is allowed.
type VoucherLimiter struct {
	log     *zap.Logger
	billing *config.BillingConfigHolder
	bucket  *TokenBucket
	metrics *metrics.Metrics
}

func NewVoucherLimiter(p VoucherLimiterParams) *VoucherLimiter {
	return &VoucherLimiter{
		log:     p.Log.Named("ratelimit.voucher"),
		billing: p.Billing,
		bucket:  p.Bucket,
		metrics: p.Metrics,
	}
}

func (l *VoucherLimiter) Enabled() bool {
	return l != nil && l.bucket != nil
}

func (l *VoucherLimiter) AllowClub(ctx context.Context, clubID string) (Decision, error) {
	return l.allow(ctx, keyVoucherClub, "club", clubID)
}

func (l *VoucherLimiter) AllowIP(ctx context.Context, ip string) (Decision, error) {
	return l.allow(ctx, keyVoucherIP, "ip", ip)
}

func (l *VoucherLimiter) allow(ctx context.Context, pattern, reason, subject string) (Decision, error) {
	if !l.Enabled() {
		return Decision{Allowed: true}, nil
	}
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return Decision{Allowed: true}, nil
	}

	cfg := l.billing.Get().Voucher
	rate := float64(cfg.RateLimitRate) / 60
	res, err := l.bucket.Allow(ctx, fmt.Sprintf(pattern, subject), rate, cfg.RateLimitBurst)
	if err != nil {
		l.log.Warn("voucher rate limit check failed", zap.String("reason", reason), zap.Error(err))
		return Decision{}, err
	}
	if !res.Allowed {
		l.metrics.RecordRateLimitDenied(ctx, endpointVoucher, reason)
		return Decision{Reason: reason, RetryAfter: res.RetryAfter}, nil
	}
	l.metrics.RecordRateLimitAllowed(ctx, endpointVoucher)
	return Decision{Allowed: true}, nil
}
