package whois

import (
	"strconv"
	"strings"
	"time"
)

// DateFormat is millisecond UTC with a literal Z.
const DateFormat = "2006-01-02T15:04:05.000Z"

const (
	redacted        = "REDACTED FOR PRIVACY"
	redactedEmail   = "Kindly refer to the RDDS server associated with the identified registrar in this output to obtain contact details for the Registrant, Admin, or Tech associated with the queried domain name."
	complaintURL    = "https://www.icann.org/wicf/"
	statusURLPrefix = "https://icann.org/epp#"
)

// formatter renders answers for one registry.
type formatter struct {
	roid           string
	registryName   string
	privacy        bool
	maxNameservers int
}

type answer struct {
	b strings.Builder
}

// field appends "name: value" on its own line.
func (a *answer) field(name, value string) {
	if a.b.Len() > 0 {
		a.b.WriteByte('\n')
	}
	a.b.WriteString(name)
	a.b.WriteString(": ")
	a.b.WriteString(value)
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(DateFormat)
}

func (f formatter) domain(d *Domain, now time.Time) string {
	var a answer
	a.field("Domain Name", strings.ToUpper(d.Name))
	a.field("Registry Domain ID", "D"+strconv.FormatInt(d.ID, 10)+"-"+f.roid)
	a.field("Registrar WHOIS Server", d.Registrar.WHOISServer)
	a.field("Registrar URL", d.Registrar.URL)
	a.field("Updated Date", formatDate(d.Updated))
	a.field("Creation Date", formatDate(d.Created))
	a.field("Registry Expiry Date", formatDate(d.Expires))
	a.field("Registrar", d.Registrar.Name)
	a.field("Registrar IANA ID", d.Registrar.IANAID)
	a.field("Registrar Abuse Contact Email", d.Registrar.AbuseEmail)
	a.field("Registrar Abuse Contact Phone", d.Registrar.AbusePhone)
	for _, status := range d.Statuses {
		a.field("Domain Status", status+" "+statusURLPrefix+status)
	}

	f.contact(&a, "Registrant", d.Registrant)
	f.contact(&a, "Admin", d.Admin)
	f.contact(&a, "Billing", d.Billing)
	f.contact(&a, "Tech", d.Tech)

	for i, ns := range d.Nameservers {
		if i == f.maxNameservers {
			break
		}
		a.field("Name Server", ns)
	}
	if d.Signed {
		a.field("DNSSEC", "signedDelegation")
	} else {
		a.field("DNSSEC", "unsigned")
	}
	f.footer(&a, d.TLD+" ", now)
	return a.b.String()
}

func (f formatter) contact(a *answer, role string, c *Contact) {
	if f.privacy {
		a.field("Registry "+role+" ID", redacted)
		for _, name := range []string{"Name", "Organization", "Street", "Street", "Street", "City", "State/Province", "Postal Code", "Country", "Phone", "Fax"} {
			a.field(role+" "+name, redacted)
		}
		a.field(role+" Email", redactedEmail)
		return
	}

	if c == nil {
		c = &Contact{}
	}
	id := ""
	if c.Identifier != "" {
		id = "C" + c.Identifier + "-" + f.roid
	}
	a.field("Registry "+role+" ID", id)
	a.field(role+" Name", c.Name)
	a.field(role+" Organization", c.Organization)
	for _, street := range c.Street {
		a.field(role+" Street", street)
	}
	a.field(role+" City", c.City)
	a.field(role+" State/Province", c.Province)
	a.field(role+" Postal Code", c.PostalCode)
	a.field(role+" Country", c.Country)
	a.field(role+" Phone", c.Phone)
	a.field(role+" Fax", c.Fax)
	a.field(role+" Email", c.Email)
}

func (f formatter) nameserver(h *Host, now time.Time) string {
	var a answer
	a.field("Server Name", h.Name)
	if r := h.Registrar; r != nil {
		a.field("Registrar Name", r.Name)
		a.field("Registrar WHOIS Server", r.WHOISServer)
		a.field("Registrar URL", r.URL)
		a.field("Registrar IANA ID", r.IANAID)
		a.field("Registrar Abuse Contact Email", r.AbuseEmail)
		a.field("Registrar Abuse Contact Phone", r.AbusePhone)
	}
	f.footer(&a, "", now)
	return a.b.String()
}

func (f formatter) registrar(r *Registrar, now time.Time) string {
	var a answer
	a.field("Registrar", r.Name)
	a.field("Registrar WHOIS Server", r.WHOISServer)
	a.field("Registrar URL", r.URL)
	a.field("Registrar IANA ID", r.IANAID)
	a.field("Registrar Abuse Contact Email", r.AbuseEmail)
	a.field("Registrar Abuse Contact Phone", r.AbusePhone)
	if c := r.Contact; c != nil {
		a.field("Street", c.Street)
		a.field("City", c.City)
		a.field("Postal Code", c.PostalCode)
		a.field("Country", c.Country)
		a.field("Phone", c.Phone)
		a.field("Fax", c.Fax)
		a.field("Public Email", c.Email)
	}
	f.footer(&a, "", now)
	return a.b.String()
}

// footer closes every found answer. zone is empty or the zone followed by
// a space, as it appears in the disclaimer's first line.
func (f formatter) footer(a *answer, zone string, now time.Time) {
	a.field("URL of the ICANN Whois Inaccuracy Complaint Form", complaintURL)
	a.b.WriteString("\n>>> Last update of WHOIS database: " + formatDate(now) + " <<<\n")
	a.b.WriteString("\nFor more information on Whois status codes, please visit https://icann.org/epp\n\n")
	a.b.WriteString(f.disclaimer(zone))
}

func (f formatter) disclaimer(zone string) string {
	r := f.registryName
	return "Access to " + zone + "WHOIS information is provided to assist persons in" +
		"\ndetermining the contents of a domain name registration record in the" +
		"\n" + r + " registry database. The data in this record is provided by" +
		"\n" + r + " for informational purposes only, and " + r + " does not" +
		"\nguarantee its accuracy.  This service is intended only for query-based" +
		"\naccess. You agree that you will use this data only for lawful purposes" +
		"\nand that, under no circumstances will you use this data to: (a) allow," +
		"\nenable, or otherwise support the transmission by e-mail, telephone, or" +
		"\nfacsimile of mass unsolicited, commercial advertising or solicitations" +
		"\nto entities other than the data recipient's own existing customers; or" +
		"\n(b) enable high volume, automated, electronic processes that send" +
		"\nqueries or data to the systems of Registry Operator, a Registrar, or" +
		"\nNIC except as reasonably necessary to register domain names or" +
		"\nmodify existing registrations. All rights reserved. " + r + " reserves" +
		"\nthe right to modify these terms at any time. By submitting this query," +
		"\nyou agree to abide by this policy." +
		"\n"
}
