package whois

import "time"

// Registrar is the public face of a sponsoring registrar.
type Registrar struct {
	ID          int64
	Name        string
	IANAID      string
	WHOISServer string
	URL         string
	AbuseEmail  string
	AbusePhone  string
	// Contact is only loaded for registrar queries.
	Contact *RegistrarContact
}

type RegistrarContact struct {
	Street     string
	City       string
	PostalCode string
	Country    string
	Phone      string
	Fax        string
	Email      string
}

// Contact is one domain contact with its first postal info.
type Contact struct {
	Identifier   string
	Name         string
	Organization string
	Street       [3]string
	City         string
	Province     string
	PostalCode   string
	Country      string
	Phone        string
	Fax          string
	Email        string
}

// Domain is everything a domain answer prints. Updated is zero when the
// domain was never modified.
type Domain struct {
	ID          int64
	Name        string
	TLD         string
	Created     time.Time
	Updated     time.Time
	Expires     time.Time
	Registrar   Registrar
	Statuses    []string
	Registrant  *Contact
	Admin       *Contact
	Billing     *Contact
	Tech        *Contact
	Nameservers []string
	Signed      bool
}

type Host struct {
	Name      string
	Registrar *Registrar
}
