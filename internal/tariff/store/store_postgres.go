package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"

	"github.com/shopspring/decimal"

	"regcore/internal/tariff"
)

// PostgresStore reads premium, promotion and regular price tables.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) PremiumPrice(ctx context.Context, label string, zoneID int64) (decimal.Decimal, bool, error) {
	query := `
		SELECT c.category_price
		FROM premium_domain_pricing p
		JOIN premium_domain_categories c ON p.category_id = c.category_id
		WHERE p.domain_name = $1 AND p.tld_id = $2
		LIMIT 1
	`
	var price decimal.Decimal
	err := s.db.QueryRowContext(ctx, query, label, zoneID).Scan(&price)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, false, nil
	}
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("get premium price: %w", err)
	}
	return price, true, nil
}

// ActivePromotion compares dates as YYYY-MM-DD so the day boundary follows
// the caller's clock rather than the database session time zone. today is
// bound as text: Postgres infers date from the comparison and SQLite compares
// its stored date strings.
func (s *PostgresStore) ActivePromotion(ctx context.Context, zoneID int64, today string) (*tariff.Promotion, error) {
	query := `
		SELECT id, tld_id, start_date, end_date, discount_percentage, discount_amount
		FROM promotion_pricing
		WHERE tld_id = $1
		  AND promo_type = 'full'
		  AND status = 'active'
		  AND start_date <= $2
		  AND end_date >= $2
		ORDER BY id
		LIMIT 1
	`
	var p tariff.Promotion
	err := s.db.QueryRowContext(ctx, query, zoneID, today).Scan(
		&p.ID, &p.ZoneID, &p.Start, &p.End, &p.Percentage, &p.Amount,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get active promotion: %w", err)
	}
	return &p, nil
}

func (s *PostgresStore) RegularPrice(ctx context.Context, zoneID int64, command string, months int) (decimal.Decimal, bool, error) {
	// The column name is interpolated, so months must come from the fixed list.
	if !slices.Contains(tariff.Periods, months) {
		return decimal.Zero, false, fmt.Errorf("%w: %d months", tariff.ErrInvalidPeriod, months)
	}
	query := fmt.Sprintf(`SELECT m%d FROM domain_price WHERE tldid = $1 AND command = $2 LIMIT 1`, months)

	var price decimal.Decimal
	err := s.db.QueryRowContext(ctx, query, zoneID, command).Scan(&price)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, false, nil
	}
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("get regular price: %w", err)
	}
	return price, true, nil
}
