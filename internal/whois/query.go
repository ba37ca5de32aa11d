package whois

import (
	"regexp"
	"strings"

	"regcore/internal/label"
)

// Kind is the lookup a query line selects.
type Kind string

const (
	KindDomain     Kind = "domain"
	KindNameserver Kind = "nameserver"
	KindRegistrar  Kind = "registrar"
)

const (
	maxDomainLength     = 68
	maxNameserverLength = 63
	maxRegistrarLength  = 50
)

var (
	nameserverFormat = regexp.MustCompile(`^([a-zA-Z0-9\-]+\.)+[a-zA-Z]{2,}$`)
	registrarFormat  = regexp.MustCompile(`^[a-zA-Z0-9\s\-]+$`)
)

// Reply lines sent verbatim to clients.
const (
	MsgNotFound          = "NOT FOUND"
	MsgDomainEmpty       = "please enter a domain name"
	MsgDomainTooLong     = "domain name is too long"
	MsgDomainPlacement   = "domain name invalid format"
	MsgInvalidTLD        = "Invalid TLD. Please search only allowed TLDs"
	MsgReserved          = "Domain name is reserved or restricted"
	MsgPolicyMissing     = "Failed to fetch domain IDN table"
	MsgDomainFormat      = "Domain name invalid format"
	MsgNameserverEmpty   = "please enter a nameserver"
	MsgNameserverTooLong = "nameserver is too long"
	MsgNameserverFormat  = "Nameserver contains invalid characters or is not in the correct format."
	MsgRegistrarEmpty    = "please enter a registrar name"
	MsgRegistrarTooLong  = "registrar name is too long"
	MsgRegistrarFormat   = "Registrar name contains invalid characters."
	MsgDatabaseError     = "Error connecting to the whois database"
	MsgGeneralError      = "General error"
)

// Query is one parsed request line.
type Query struct {
	Kind  Kind
	Value string
}

// ParseQuery selects the lookup by prefix. Anything without a known prefix
// is a domain query; an explicit "domain " prefix is accepted as well.
func ParseQuery(line string) Query {
	line = strings.TrimSpace(line)
	for _, k := range []Kind{KindNameserver, KindRegistrar, KindDomain} {
		if rest, ok := strings.CutPrefix(line, string(k)+" "); ok {
			return Query{Kind: k, Value: strings.TrimSpace(rest)}
		}
	}
	return Query{Kind: KindDomain, Value: line}
}

// syntaxError returns the reply for a query that fails its syntactic checks,
// or "" when the query may go to the database.
func (q Query) syntaxError() string {
	switch q.Kind {
	case KindNameserver:
		switch {
		case q.Value == "":
			return MsgNameserverEmpty
		case len(q.Value) > maxNameserverLength:
			return MsgNameserverTooLong
		case !nameserverFormat.MatchString(q.Value):
			return MsgNameserverFormat
		}
	case KindRegistrar:
		switch {
		case q.Value == "":
			return MsgRegistrarEmpty
		case len(q.Value) > maxRegistrarLength:
			return MsgRegistrarTooLong
		case !registrarFormat.MatchString(q.Value):
			return MsgRegistrarFormat
		}
	default:
		switch {
		case q.Value == "":
			return MsgDomainEmpty
		case len(q.Value) > maxDomainLength:
			return MsgDomainTooLong
		case !label.WellPlaced(q.Value):
			return MsgDomainPlacement
		}
	}
	return ""
}
