package tariff

import (
	"time"

	"github.com/shopspring/decimal"
)

// Type says which pricing rule produced a quote.
type Type string

const (
	TypePremium   Type = "premium"
	TypePromotion Type = "promotion"
	TypeRegular   Type = "regular"
	TypeNotFound  Type = "not_found"
)

// Quote is computed per call and never stored.
type Quote struct {
	Type  Type
	Price string // two decimals, e.g. "18.00"
}

// Promotion is an active full-domain discount for a zone. Percentage takes
// precedence over Amount when both are set.
type Promotion struct {
	ID         int64
	ZoneID     int64
	Start      time.Time
	End        time.Time
	Percentage decimal.NullDecimal
	Amount     decimal.NullDecimal
}

// Periods lists the registration periods, in months, that carry a regular
// price column.
var Periods = []int{0, 12, 24, 36, 48, 60, 72, 84, 96, 108, 120}
