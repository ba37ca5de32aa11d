// Package tariff prices domain operations: premium names first, then active
// promotions, then the regular period table.
package tariff

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/shopspring/decimal"

	"regcore/pkg/requestcontext"
)

var (
	// ErrNegativePrice means a promotion discounts more than the regular
	// price. It signals bad pricing data and is never clamped.
	ErrNegativePrice = errors.New("promotion produces a negative price")
	ErrInvalidPeriod = errors.New("unsupported registration period")
)

// Store reads the pricing tables. Lookups that find nothing return ok=false
// (or a nil promotion) without error.
type Store interface {
	PremiumPrice(ctx context.Context, label string, zoneID int64) (price decimal.Decimal, ok bool, err error)
	ActivePromotion(ctx context.Context, zoneID int64, today string) (*Promotion, error)
	RegularPrice(ctx context.Context, zoneID int64, command string, months int) (price decimal.Decimal, ok bool, err error)
}

type Resolver struct {
	store  Store
	logger *slog.Logger
}

type Option func(*Resolver)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) {
		r.logger = logger
	}
}

func New(store Store, opts ...Option) *Resolver {
	r := &Resolver{store: store, logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Quote prices command for label in zoneID over months. The promotion window
// is evaluated against requestcontext.Now(ctx).
func (r *Resolver) Quote(ctx context.Context, label string, zoneID int64, months int, command string) (Quote, error) {
	if !slices.Contains(Periods, months) {
		return Quote{}, fmt.Errorf("%w: %d months", ErrInvalidPeriod, months)
	}

	premium, ok, err := r.store.PremiumPrice(ctx, label, zoneID)
	if err != nil {
		return Quote{}, fmt.Errorf("lookup premium price: %w", err)
	}
	if ok {
		return Quote{Type: TypePremium, Price: premium.StringFixed(2)}, nil
	}

	today := requestcontext.Now(ctx).UTC().Format("2006-01-02")
	promo, err := r.store.ActivePromotion(ctx, zoneID, today)
	if err != nil {
		return Quote{}, fmt.Errorf("lookup promotion: %w", err)
	}

	regular, ok, err := r.store.RegularPrice(ctx, zoneID, command, months)
	if err != nil {
		return Quote{}, fmt.Errorf("lookup regular price: %w", err)
	}
	if !ok {
		return Quote{Type: TypeNotFound, Price: decimal.Zero.StringFixed(2)}, nil
	}

	discount, discounted := promo.discount(regular)
	if !discounted {
		return Quote{Type: TypeRegular, Price: regular.StringFixed(2)}, nil
	}

	price := regular.Sub(discount)
	if price.IsNegative() {
		r.logger.ErrorContext(ctx, "promotion exceeds regular price",
			"promotion_id", promo.ID,
			"zone_id", zoneID,
			"command", command,
			"months", months,
			"regular", regular.StringFixed(2),
			"discount", discount.StringFixed(2),
		)
		return Quote{}, fmt.Errorf("%w: promotion %d on zone %d", ErrNegativePrice, promo.ID, zoneID)
	}
	return Quote{Type: TypePromotion, Price: price.StringFixed(2)}, nil
}

func (p *Promotion) discount(regular decimal.Decimal) (decimal.Decimal, bool) {
	if p == nil {
		return decimal.Zero, false
	}
	if p.Percentage.Valid && !p.Percentage.Decimal.IsZero() {
		return regular.Mul(p.Percentage.Decimal).Div(decimal.NewFromInt(100)), true
	}
	if p.Amount.Valid && !p.Amount.Decimal.IsZero() {
		return p.Amount.Decimal, true
	}
	return decimal.Zero, false
}
