package label

import "context"

// ZonePolicy is the per-zone configuration a label is checked against.
type ZonePolicy struct {
	ID  int64
	TLD string // leading dot, lowercase
	// IDNTable is the zone's character-class pattern in /pattern/flags form.
	IDNTable  string
	Supported bool
}

// PolicyLookup resolves zone policies. Implementations return
// sentinel.ErrNotFound when the zone has no row.
type PolicyLookup interface {
	ZonePolicy(ctx context.Context, tld string) (*ZonePolicy, error)
}

// ReservedLookup reports whether a second-level label is withheld from
// registration.
type ReservedLookup interface {
	IsReserved(ctx context.Context, name string) (bool, error)
}
