package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores return these (optionally
// wrapped) so the protocol engines can translate them into EPP result codes or
// WHOIS reply lines.
//
// These describe the state of persisted records, not input validation:
// - ErrNotFound: row does not exist (domain, host, registrar, transaction)
// - ErrConflict: row already exists
// - ErrInvalidState: row exists but cannot serve the requested operation
// - ErrUnavailable: backend (database, cache, broker) temporarily unreachable
//
// Validation failures are typed per package (label, dnssec, ledger).
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
)
