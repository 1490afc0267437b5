package tracing

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
)

func TestSafeAttributes(t *testing.T) {
	attrs := SafeAttributes(
		attribute.String("http.route", "/api/v1/vouchers"),
		attribute.String("billing_email", "kasse@verein.de"),
	)
	require.Len(t, attrs, 1)
	assert.Equal(t, attribute.Key("http.route"), attrs[0].Key)
}

func TestSafeError(t *testing.T) {
	assert.Nil(t, SafeError(nil))
	assert.EqualError(t, SafeError(errors.New("boom\nstack")), "boom")
}

func TestNewProvider_Disabled(t *testing.T) {
	provider, err := NewProvider(nil, Config{ServiceName: "test", SamplingRatio: 1}, nil)
	require.NoError(t, err)
	assert.NotNil(t, provider.Tracer("x"))
}
