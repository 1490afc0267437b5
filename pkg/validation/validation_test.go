package validation

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Name  string `json:"name" validate:"required"`
	Email string `json:"billing_email" validate:"omitempty,email"`
	Kind  string `json:"type" validate:"oneof=percent fixed_amount"`
}

func TestStruct_ReportsJSONFieldNames(t *testing.T) {
	err := Struct(sample{Email: "nope", Kind: "other"})
	require.Error(t, err)

	var verr *Error
	require.True(t, errors.As(err, &verr))
	fields := map[string]string{}
	for _, f := range verr.Fields {
		fields[f.Field] = f.Rule
	}
	assert.Equal(t, "required", fields["name"])
	assert.Equal(t, "email", fields["billing_email"])
	assert.Equal(t, "oneof", fields["type"])
}

func TestStruct_Valid(t *testing.T) {
	assert.NoError(t, Struct(sample{Name: "TSV", Kind: "percent"}))
}
