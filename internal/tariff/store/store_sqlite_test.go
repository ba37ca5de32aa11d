package store_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"regcore/internal/tariff"
	"regcore/internal/tariff/store"
	"regcore/pkg/requestcontext"
	"regcore/pkg/testutil"
)

func TestSQLiteQuotes(t *testing.T) {
	db := testutil.SQLite(t)
	exec := func(query string, args ...any) sql.Result {
		res, err := db.Exec(query, args...)
		require.NoError(t, err, query)
		return res
	}

	zoneID, err := exec(`INSERT INTO domain_tld (tld) VALUES ('.test')`).LastInsertId()
	require.NoError(t, err)
	exec(`INSERT INTO domain_price (tldid, command, m12) VALUES ($1, 'create', 20.00)`, zoneID)
	exec(`INSERT INTO promotion_pricing (tld_id, promo_type, status, start_date, end_date, discount_percentage)
		VALUES ($1, 'full', 'active', '2026-03-01', '2026-03-15', 10)`, zoneID)

	resolver := tariff.New(store.NewPostgres(db))
	tests := []struct {
		name string
		day  time.Time
		want tariff.Quote
	}{
		{"before promotion", time.Date(2026, 2, 28, 23, 0, 0, 0, time.UTC), tariff.Quote{Type: tariff.TypeRegular, Price: "20.00"}},
		{"first day", time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), tariff.Quote{Type: tariff.TypePromotion, Price: "18.00"}},
		{"last day", time.Date(2026, 3, 15, 23, 59, 0, 0, time.UTC), tariff.Quote{Type: tariff.TypePromotion, Price: "18.00"}},
		{"after promotion", time.Date(2026, 3, 16, 0, 0, 0, 0, time.UTC), tariff.Quote{Type: tariff.TypeRegular, Price: "20.00"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := requestcontext.WithTime(context.Background(), tt.day)
			quote, err := resolver.Quote(ctx, "example", zoneID, 12, "create")
			require.NoError(t, err)
			require.Equal(t, tt.want, quote)
		})
	}
}
