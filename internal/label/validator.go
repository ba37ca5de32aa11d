package label

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"golang.org/x/net/idna"

	"regcore/pkg/platform/sentinel"
)

var hyphenPlacement = regexp.MustCompile(`(^-|^\.|-\.|\.-|--|\.\.|-$|\.$)`)

var aceProfile = idna.New(idna.MapForLookup(), idna.Transitional(false))

const acePrefix = "xn--"

// Name is an accepted domain name split at its zone.
type Name struct {
	// Label is everything left of the zone, lowercase, as submitted.
	Label string
	// Unicode is Label with ACE labels decoded.
	Unicode string
	Zone    string
	Policy  *ZonePolicy
}

func (n Name) String() string { return n.Label + n.Zone }

// Validator checks candidate domain names against per-zone policy.
type Validator struct {
	policies PolicyLookup
	splitter *Splitter
	patterns *PatternCache
	logger   *slog.Logger
}

type Option func(*Validator)

func WithLogger(logger *slog.Logger) Option {
	return func(v *Validator) {
		v.logger = logger
	}
}

// WithTestZones registers non-production zones matched before the public
// suffix list.
func WithTestZones(zones []string) Option {
	return func(v *Validator) {
		v.splitter = NewSplitter(zones)
	}
}

// WithPatternTimeout bounds a single character-class match.
func WithPatternTimeout(d time.Duration) Option {
	return func(v *Validator) {
		v.patterns = NewPatternCache(d)
	}
}

func NewValidator(policies PolicyLookup, opts ...Option) *Validator {
	v := &Validator{
		policies: policies,
		splitter: NewSplitter(nil),
		patterns: NewPatternCache(100 * time.Millisecond),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Validate accepts or rejects candidate. Rejections are *Error values;
// any other error is a policy lookup failure.
func (v *Validator) Validate(ctx context.Context, candidate string) (Name, error) {
	if candidate == "" {
		return Name{}, reject(KindEmpty, candidate)
	}
	if len(candidate) > 63 {
		return Name{}, reject(KindTooLong, candidate)
	}
	if len(candidate) < 2 {
		return Name{}, reject(KindTooShort, candidate)
	}
	if !WellPlaced(candidate) {
		return Name{}, reject(KindHyphenPlacement, candidate)
	}

	name, zone, ok := v.splitter.Split(candidate)
	if !ok {
		return Name{}, reject(KindUnsupportedZone, candidate)
	}

	policy, err := v.policies.ZonePolicy(ctx, zone)
	if errors.Is(err, sentinel.ErrNotFound) {
		return Name{}, reject(KindUnsupportedZone, candidate)
	}
	if err != nil {
		return Name{}, fmt.Errorf("lookup zone policy %s: %w", zone, err)
	}
	if !policy.Supported {
		return Name{}, reject(KindUnsupportedZone, candidate)
	}
	if policy.IDNTable == "" {
		return Name{}, reject(KindPolicyMissing, candidate)
	}

	unicode := name
	if hasACE(name) {
		decoded, err := aceProfile.ToUnicode(name)
		if err != nil {
			return Name{}, reject(KindInvalidFormat, candidate)
		}
		unicode = decoded
	}

	ok, err = v.patterns.Match(policy.IDNTable, unicode)
	if err != nil {
		v.logger.WarnContext(ctx, "idn table unusable", "zone", zone, "error", err)
		return Name{}, reject(KindInvalidFormat, candidate)
	}
	if !ok {
		return Name{}, reject(KindInvalidFormat, candidate)
	}

	return Name{Label: name, Unicode: unicode, Zone: zone, Policy: policy}, nil
}

// WellPlaced reports whether s is free of leading, trailing and doubled
// hyphens and dots. ACE prefixes are ignored.
func WellPlaced(s string) bool {
	return !hyphenPlacement.MatchString(stripACE(s))
}

// MatchesPolicy runs s against the zone's character-class table.
func (v *Validator) MatchesPolicy(policy *ZonePolicy, s string) (bool, error) {
	return v.patterns.Match(policy.IDNTable, s)
}

// Split exposes the zone split used by Validate.
func (v *Validator) Split(host string) (name, zone string, ok bool) {
	return v.splitter.Split(host)
}

// stripACE removes the xn-- prefix from each dot-separated label.
func stripACE(s string) string {
	if !hasACE(s) {
		return s
	}
	parts := strings.Split(s, ".")
	for i, p := range parts {
		if len(p) >= len(acePrefix) && strings.EqualFold(p[:len(acePrefix)], acePrefix) {
			parts[i] = p[len(acePrefix):]
		}
	}
	return strings.Join(parts, ".")
}

func hasACE(s string) bool {
	return strings.Contains(strings.ToLower(s), acePrefix)
}
