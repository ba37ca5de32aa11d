package accesslist

import (
	"net/netip"
	"regexp"
	"strings"
)

var (
	v4FirstOctet = regexp.MustCompile(`^0+(\d)`)
	v4Octets     = regexp.MustCompile(`\.0+(\d)`)

	v6FirstWord   = regexp.MustCompile(`^0+([\dA-F])`)
	v6Words       = regexp.MustCompile(`:0+([\dA-F])`)
	v6ZeroPair    = regexp.MustCompile(`:0:0:`)
	v6LeadingZero = regexp.MustCompile(`^0+::`)
	v6ZerosBefore = regexp.MustCompile(`(:0)+::`)
	v6ZerosAfter  = regexp.MustCompile(`:(:0)+`)
)

// NormalizeIPv4 strips leading zeros from each octet.
func NormalizeIPv4(v4 string) string {
	v4 = v4FirstOctet.ReplaceAllString(v4, "${1}")
	return v4Octets.ReplaceAllString(v4, ".${1}")
}

// NormalizeIPv6 uppercases, strips leading zeros from each word and folds
// zero words into "::". Whitelist rows were written in this form.
func NormalizeIPv6(v6 string) string {
	v6 = strings.ToUpper(v6)
	v6 = v6FirstWord.ReplaceAllString(v6, "${1}")
	v6 = v6Words.ReplaceAllString(v6, ":${1}")
	if !strings.Contains(v6, "::") {
		v6 = v6ZeroPair.ReplaceAllString(v6, "::")
	}
	v6 = v6LeadingZero.ReplaceAllString(v6, "::")
	v6 = v6ZerosBefore.ReplaceAllString(v6, "::")
	return v6ZerosAfter.ReplaceAllString(v6, ":")
}

// Key is the lookup form of an address. Parseable addresses use the
// canonical netip text in uppercase with IPv4-mapped IPv6 unmapped, so
// "2001:0db8:0:0:0:0:0:1" and "2001:db8::1" share a key. Anything else
// falls back to the textual normalization.
func Key(raw string) string {
	raw = strings.TrimSpace(raw)
	text := NormalizeIPv4(raw)
	if strings.Contains(raw, ":") {
		text = NormalizeIPv6(raw)
	}
	for _, candidate := range []string{raw, text} {
		if addr, err := netip.ParseAddr(candidate); err == nil {
			return strings.ToUpper(addr.Unmap().WithZone("").String())
		}
	}
	return text
}
