package label

import (
	"strings"

	"golang.org/x/net/publicsuffix"

	platformstrings "regcore/pkg/platform/strings"
)

// Splitter separates a host name into the registrable part and its zone.
// Configured test zones win over the public suffix list so non-production
// zones resolve.
type Splitter struct {
	testZones []string
}

func NewSplitter(testZones []string) *Splitter {
	zones := platformstrings.DedupeAndTrimLower(testZones)
	for i, z := range zones {
		if !strings.HasPrefix(z, ".") {
			zones[i] = "." + z
		}
	}
	return &Splitter{testZones: platformstrings.LongestFirst(zones)}
}

// Split returns everything left of the zone and the zone with a leading dot.
// ok is false when host is a bare zone or no zone can be determined.
func (s *Splitter) Split(host string) (name, zone string, ok bool) {
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	for _, tz := range s.testZones {
		if len(host) > len(tz) && strings.HasSuffix(host, tz) {
			return host[:len(host)-len(tz)], tz, true
		}
	}

	suffix, _ := publicsuffix.PublicSuffix(host)
	if suffix == "" || suffix == host || !strings.HasSuffix(host, "."+suffix) {
		return "", "", false
	}
	return host[:len(host)-len(suffix)-1], "." + suffix, true
}
