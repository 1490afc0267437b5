package migration

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	files, err := Files()
	require.NoError(t, err)

	entries, err := fs.ReadDir(files, ".")
	require.NoError(t, err)
	require.NotEmpty(t, entries)

	ups := map[string]bool{}
	downs := map[string]bool{}
	for _, entry := range entries {
		name := entry.Name()
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			ups[strings.TrimSuffix(name, ".up.sql")] = true
		case strings.HasSuffix(name, ".down.sql"):
			downs[strings.TrimSuffix(name, ".down.sql")] = true
		default:
			t.Fatalf("unexpected file %s", name)
		}
	}
	assert.Equal(t, ups, downs)
}

func TestEmbeddedMigrationsCreateCoreTables(t *testing.T) {
	files, err := Files()
	require.NoError(t, err)

	var schema strings.Builder
	require.NoError(t, fs.WalkDir(files, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !strings.HasSuffix(path, ".up.sql") {
			return err
		}
		raw, err := fs.ReadFile(files, path)
		schema.Write(raw)
		return err
	}))

	for _, table := range []string{
		"tenants", "clubs", "club_subscription_plans", "subscription_events", "tax_rates",
		"vouchers", "voucher_redemptions", "invoices", "invoice_requests", "audit_logs",
	} {
		assert.Contains(t, schema.String(), "CREATE TABLE IF NOT EXISTS "+table+" (", table)
	}
}

func TestRunMigrationsRequiresDatabase(t *testing.T) {
	assert.ErrorIs(t, RunMigrations(nil), ErrNoDatabase)
}
