// Package dnssec derives DS records from DNSKEY material submitted by
// registrars (RFC 4034 section 5, RFC 5910).
package dnssec

import (
	"crypto/sha1"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/miekg/dns"
)

// Digest types emitted for every key.
const (
	DigestSHA1   = 1
	DigestSHA256 = 2
)

var (
	ErrInvalidOwner     = errors.New("unsupported owner")
	ErrInvalidFlags     = errors.New("unsupported flags")
	ErrInvalidProtocol  = errors.New("unsupported protocol")
	ErrInvalidAlgorithm = errors.New("unsupported algorithm")
	ErrInvalidPublicKey = errors.New("unsupported public key")
)

// maxOwnerLength keeps the wire form of the owner within 255 octets.
const maxOwnerLength = 254

var (
	ownerPattern     = regexp.MustCompile(`^([a-z0-9-]{1,63}\.)+[a-z]{1,63}\.$`)
	publicKeyPattern = regexp.MustCompile(`^(?:[A-Za-z0-9+/]{4})*(?:[A-Za-z0-9+/]{2}==|[A-Za-z0-9+/]{3}=|[A-Za-z0-9+/]{4})$`)
)

// DefaultAlgorithms are the DNSKEY algorithms accepted unless configured otherwise.
func DefaultAlgorithms() []int {
	return []int{2, 3, 5, 6, 7, 8, 10, 13, 14, 15, 16}
}

// Key is DNSKEY input as a registrar submits it.
type Key struct {
	Owner     string // canonical, lowercase, trailing dot
	Flags     int
	Protocol  int
	Algorithm int
	PublicKey string // base64, no whitespace
}

type Digest struct {
	Type int
	Hash string // uppercase hex
}

// DSRecord is derived on demand and never stored.
type DSRecord struct {
	Owner     string
	KeyTag    uint16
	Algorithm int
	Digests   []Digest
}

// Converter turns DNSKEY input into DS records.
type Converter struct {
	algorithms []int
}

// NewConverter accepts keys using one of algorithms; an empty list selects
// DefaultAlgorithms.
func NewConverter(algorithms []int) *Converter {
	if len(algorithms) == 0 {
		algorithms = DefaultAlgorithms()
	}
	return &Converter{algorithms: slices.Clone(algorithms)}
}

// ComputeDS validates key and returns its keytag with SHA-1 and SHA-256
// digests. Checks run in order owner, flags, protocol, algorithm, public key;
// the first failure is returned.
func (c *Converter) ComputeDS(key Key) (*DSRecord, error) {
	if len(key.Owner) > maxOwnerLength || !ownerPattern.MatchString(key.Owner) {
		return nil, ErrInvalidOwner
	}
	if key.Flags != 256 && key.Flags != 257 {
		return nil, ErrInvalidFlags
	}
	if key.Protocol != 3 {
		return nil, ErrInvalidProtocol
	}
	if !slices.Contains(c.algorithms, key.Algorithm) {
		return nil, ErrInvalidAlgorithm
	}
	if !publicKeyPattern.MatchString(key.PublicKey) {
		return nil, ErrInvalidPublicKey
	}
	raw, err := base64.StdEncoding.DecodeString(key.PublicKey)
	if err != nil {
		return nil, ErrInvalidPublicKey
	}

	rdata := make([]byte, 4, 4+len(raw))
	binary.BigEndian.PutUint16(rdata, uint16(key.Flags))
	rdata[2] = byte(key.Protocol)
	rdata[3] = byte(key.Algorithm)
	rdata = append(rdata, raw...)

	input := append(wireName(key.Owner), rdata...)
	sum1 := sha1.Sum(input)
	sum256 := sha256.Sum256(input)

	return &DSRecord{
		Owner:     key.Owner,
		KeyTag:    KeyTag(rdata),
		Algorithm: key.Algorithm,
		Digests: []Digest{
			{Type: DigestSHA1, Hash: strings.ToUpper(hex.EncodeToString(sum1[:]))},
			{Type: DigestSHA256, Hash: strings.ToUpper(hex.EncodeToString(sum256[:]))},
		},
	}, nil
}

// KeyTag is the RFC 4034 Appendix B checksum over DNSKEY RDATA.
func KeyTag(rdata []byte) uint16 {
	var sum uint32
	for i, b := range rdata {
		if i&1 == 1 {
			sum += uint32(b)
		} else {
			sum += uint32(b) << 8
		}
	}
	return uint16((sum + (sum >> 16)) & 0xFFFF)
}

// wireName encodes a fully qualified name as length-prefixed labels ending
// with the root label.
func wireName(owner string) []byte {
	owner = strings.TrimSuffix(owner, ".")
	out := make([]byte, 0, len(owner)+2)
	for _, label := range strings.Split(owner, ".") {
		out = append(out, byte(len(label)))
		out = append(out, label...)
	}
	return append(out, 0)
}

// ParseDNSKEY reads a DNSKEY in zone file presentation format, e.g.
// "example.test. 3600 IN DNSKEY 257 3 13 <base64>".
func ParseDNSKEY(rr string) (Key, error) {
	parsed, err := dns.NewRR(rr)
	if err != nil {
		return Key{}, fmt.Errorf("parse dnskey: %w", err)
	}
	dnskey, ok := parsed.(*dns.DNSKEY)
	if !ok || parsed == nil {
		return Key{}, fmt.Errorf("parse dnskey: record is not a DNSKEY")
	}
	return Key{
		Owner:     strings.ToLower(dns.Fqdn(dnskey.Hdr.Name)),
		Flags:     int(dnskey.Flags),
		Protocol:  int(dnskey.Protocol),
		Algorithm: int(dnskey.Algorithm),
		PublicKey: dnskey.PublicKey,
	}, nil
}
