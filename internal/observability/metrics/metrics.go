package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes billing-level instruments.
type Metrics struct {
	vouchersRedeemed metric.Int64Counter
	voucherRejected  metric.Int64Counter
	invoicesIssued   metric.Int64Counter
	invoicesPaid     metric.Int64Counter
	remindersSent    metric.Int64Counter
	suspensions      metric.Int64Counter
	rateLimitAllowed metric.Int64Counter
	rateLimitDenied  metric.Int64Counter
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(30*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				return provider.Shutdown(ctx)
			},
		})
	}
	if log != nil {
		log.Info("metrics initialized",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
		)
	}
	return provider, nil
}

// New configures the billing instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "basketmanager"
	}
	meter := provider.Meter(name)

	m := &Metrics{}
	counters := []struct {
		target *metric.Int64Counter
		name   string
	}{
		{&m.vouchersRedeemed, "basketmanager_vouchers_redeemed_total"},
		{&m.voucherRejected, "basketmanager_voucher_rejections_total"},
		{&m.invoicesIssued, "basketmanager_invoices_issued_total"},
		{&m.invoicesPaid, "basketmanager_invoices_paid_total"},
		{&m.remindersSent, "basketmanager_dunning_reminders_total"},
		{&m.suspensions, "basketmanager_dunning_suspensions_total"},
		{&m.rateLimitAllowed, "basketmanager_rate_limit_allowed_total"},
		{&m.rateLimitDenied, "basketmanager_rate_limit_denied_total"},
	}
	for _, c := range counters {
		counter, err := meter.Int64Counter(c.name)
		if err != nil {
			return nil, err
		}
		*c.target = counter
	}
	return m, nil
}

// NewNoop returns instruments backed by a no-op provider.
func NewNoop() *Metrics {
	m, _ := New(Config{}, noop.NewMeterProvider())
	return m
}

func (m *Metrics) add(ctx context.Context, counter metric.Int64Counter, attrs ...attribute.KeyValue) {
	if m == nil || counter == nil {
		return
	}
	counter.Add(ctx, 1, metric.WithAttributes(FilterAttributes(attrs...)...))
}

func (m *Metrics) RecordVoucherRedeemed(ctx context.Context, voucherType string) {
	if m == nil {
		return
	}
	m.add(ctx, m.vouchersRedeemed, attribute.String("voucher_type", voucherType))
}

// RecordVoucherRejected counts failed validations by error code.
func (m *Metrics) RecordVoucherRejected(ctx context.Context, code string) {
	if m == nil {
		return
	}
	m.add(ctx, m.voucherRejected, attribute.String("reason", code))
}

func (m *Metrics) RecordInvoiceIssued(ctx context.Context, billableType string) {
	if m == nil {
		return
	}
	m.add(ctx, m.invoicesIssued, attribute.String("billable_type", billableType))
}

func (m *Metrics) RecordInvoicePaid(ctx context.Context, billableType string) {
	if m == nil {
		return
	}
	m.add(ctx, m.invoicesPaid, attribute.String("billable_type", billableType))
}

func (m *Metrics) RecordReminderSent(ctx context.Context, level int) {
	if m == nil {
		return
	}
	m.add(ctx, m.remindersSent, attribute.Int("level", level))
}

func (m *Metrics) RecordSuspension(ctx context.Context, billableType string) {
	if m == nil {
		return
	}
	m.add(ctx, m.suspensions, attribute.String("billable_type", billableType))
}

func (m *Metrics) RecordRateLimitAllowed(ctx context.Context, endpoint string) {
	if m == nil {
		return
	}
	m.add(ctx, m.rateLimitAllowed, attribute.String("endpoint", endpoint))
}

func (m *Metrics) RecordRateLimitDenied(ctx context.Context, endpoint, reason string) {
	if m == nil {
		return
	}
	m.add(ctx, m.rateLimitDenied,
		attribute.String("endpoint", endpoint),
		attribute.String("reason", reason),
	)
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	switch strings.ToLower(strings.TrimSpace(protocol)) {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{otlpmetrichttp.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

var allowedLabelKeys = map[attribute.Key]struct{}{
	"voucher_type":  {},
	"billable_type": {},
	"level":         {},
	"endpoint":      {},
	"reason":        {},
	"status_code":   {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}
