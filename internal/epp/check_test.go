package epp_test

import (
	"context"
	"encoding/xml"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	"regcore/internal/epp"
	eppstore "regcore/internal/epp/store"
	"regcore/internal/label"
	labelstore "regcore/internal/label/store"
	"regcore/internal/ledger"
	ledgerstore "regcore/internal/ledger/store"
	"regcore/internal/registrar"
	registrarstore "regcore/internal/registrar/store"
	"regcore/internal/tariff"
	tariffstore "regcore/internal/tariff/store"
)

const latinTable = `/^(?!-)[a-z0-9\x{00E0}-\x{00FF}-]{1,63}(?<!-)$/iu`

type chkData struct {
	Items []struct {
		Name struct {
			Avail int    `xml:"avail,attr"`
			Value string `xml:",chardata"`
		} `xml:"name"`
		Reason string `xml:"reason"`
	} `xml:"cd"`
}

type feeData struct {
	Currency string `xml:"currency"`
	Items    []struct {
		Avail    int    `xml:"avail,attr"`
		ObjID    string `xml:"objID"`
		Class    string `xml:"class"`
		Reason   string `xml:"reason"`
		Commands []struct {
			Name   string `xml:"name,attr"`
			Period struct {
				Unit  string `xml:"unit,attr"`
				Value int    `xml:",chardata"`
			} `xml:"period"`
			Fee string `xml:"fee"`
		} `xml:"command"`
	} `xml:"cd"`
}

type CheckSuite struct {
	suite.Suite
	ledger  *ledgerstore.InMemoryStore
	labels  *labelstore.InMemoryStore
	prices  *tariffstore.InMemoryStore
	domains *eppstore.InMemoryStore
	engine  *epp.Engine
	sess    *epp.Session
}

func TestCheckSuite(t *testing.T) {
	suite.Run(t, new(CheckSuite))
}

func (s *CheckSuite) SetupTest() {
	s.ledger = ledgerstore.NewInMemory()
	s.labels = labelstore.NewInMemory()
	s.labels.PutZone(label.ZonePolicy{ID: 1, TLD: ".test", IDNTable: latinTable, Supported: true})
	s.labels.PutZone(label.ZonePolicy{ID: 2, TLD: ".frozen", IDNTable: latinTable, Supported: false})
	s.labels.Reserve("reserved")

	s.prices = tariffstore.NewInMemory()
	s.prices.SetRegular(1, "create", 12, decimal.RequireFromString("10"))
	s.prices.SetRegular(1, "renew", 24, decimal.RequireFromString("19.5"))
	s.prices.SetPremium("gold", 1, decimal.RequireFromString("500"))

	s.domains = eppstore.NewInMemory("taken.test")
	s.build()
}

func (s *CheckSuite) build(opts ...epp.CheckOption) {
	validator := label.NewValidator(s.labels, label.WithTestZones([]string{".test", ".frozen"}))
	opts = append([]epp.CheckOption{epp.WithPricer(tariff.New(s.prices), "USD")}, opts...)

	s.engine = epp.New(testConfig(), ledger.New(s.ledger), registrar.New(registrarstore.NewInMemory()),
		epp.WithHandler("domain:check", epp.NewDomainCheck(validator, s.labels, s.domains, opts...)),
	)
	s.sess = &epp.Session{ID: uuid.New(), RegistrarID: 7, CLID: "example"}
}

func (s *CheckSuite) check(ext string, names ...string) result {
	body := `<check><domain:check xmlns:domain="urn:ietf:params:xml:ns:domain-1.0">`
	for _, n := range names {
		body += `<domain:name>` + n + `</domain:name>`
	}
	body += `</domain:check></check>`
	if ext != "" {
		body += `<extension>` + ext + `</extension>`
	}
	out, _ := s.engine.Handle(context.Background(), s.sess, command(body+`<clTRID>CHK-1</clTRID>`))
	return decodeResult(s.T(), out)
}

func (s *CheckSuite) chkData(r result) chkData {
	var d chkData
	s.Require().NoError(xml.Unmarshal([]byte(r.Response.ResData.Inner), &d))
	return d
}

func (s *CheckSuite) feeData(r result) feeData {
	var d feeData
	s.Require().NoError(xml.Unmarshal([]byte(r.Response.Extension.Inner), &d))
	return d
}

// =============================================================================
// Availability
// =============================================================================

func (s *CheckSuite) TestAvailability() {
	r := s.check("", "Available.TEST", "reserved.test", "taken.test", "-bad.test", "name.frozen")
	s.Require().Equal(epp.CodeSuccess, r.Response.Result.Code)

	d := s.chkData(r)
	s.Require().Len(d.Items, 5)

	expected := []struct {
		name   string
		avail  int
		reason string
	}{
		{"available.test", 1, ""},
		{"reserved.test", 0, "Reserved"},
		{"taken.test", 0, "In use"},
		{"-bad.test", 0, label.ErrHyphenPlacement.Error()},
		{"name.frozen", 0, label.ErrUnsupportedZone.Error()},
	}
	for i, e := range expected {
		s.Equal(e.name, d.Items[i].Name.Value)
		s.Equal(e.avail, d.Items[i].Name.Avail, e.name)
		s.Equal(e.reason, d.Items[i].Reason, e.name)
	}
	s.Empty(r.Response.Extension.Inner, "no fee extension unless asked")

	rows := s.ledger.All()
	s.Require().Len(rows, 1)
	s.Equal("check", rows[0].Command)
	s.Equal("domain", rows[0].ObjectType)
	s.Equal("available.test", rows[0].ObjectID)
}

func (s *CheckSuite) TestNameCount() {
	s.Run("no names", func() {
		r := s.check("")
		s.Equal(epp.CodeRequiredMissing, r.Response.Result.Code)
	})

	s.Run("too many names", func() {
		s.build(epp.WithMaxNames(2))
		r := s.check("", "a1.test", "a2.test", "a3.test")
		s.Equal(epp.CodeValueRange, r.Response.Result.Code)
		s.Equal("At most 2 names per check", r.Response.Result.Msg)
	})
}

// =============================================================================
// Fee extension
// =============================================================================

const feeNS = `xmlns:fee="urn:ietf:params:xml:ns:epp:fee-1.0"`

func (s *CheckSuite) TestFeeDefaultsToOneYearCreate() {
	r := s.check(`<fee:check `+feeNS+`/>`, "plain.test", "gold.test", "-bad.test")
	s.Require().Equal(epp.CodeSuccess, r.Response.Result.Code)

	d := s.feeData(r)
	s.Equal("USD", d.Currency)
	s.Require().Len(d.Items, 3)

	plain := d.Items[0]
	s.Equal(1, plain.Avail)
	s.Equal("plain.test", plain.ObjID)
	s.Equal("standard", plain.Class)
	s.Require().Len(plain.Commands, 1)
	s.Equal("create", plain.Commands[0].Name)
	s.Equal("y", plain.Commands[0].Period.Unit)
	s.Equal(1, plain.Commands[0].Period.Value)
	s.Equal("10.00", plain.Commands[0].Fee)

	gold := d.Items[1]
	s.Equal("premium", gold.Class)
	s.Equal("500.00", gold.Commands[0].Fee)

	bad := d.Items[2]
	s.Equal(0, bad.Avail)
	s.Equal("Invalid domain name", bad.Reason)
	s.Empty(bad.Commands)
}

func (s *CheckSuite) TestFeeCommands() {
	ext := `<fee:check ` + feeNS + `><fee:currency>usd</fee:currency>` +
		`<fee:command name="renew"><fee:period unit="m">24</fee:period></fee:command>` +
		`</fee:check>`
	d := s.feeData(s.check(ext, "plain.test"))
	s.Require().Len(d.Items, 1)
	s.Require().Len(d.Items[0].Commands, 1)
	s.Equal("renew", d.Items[0].Commands[0].Name)
	s.Equal("m", d.Items[0].Commands[0].Period.Unit)
	s.Equal(24, d.Items[0].Commands[0].Period.Value)
	s.Equal("19.50", d.Items[0].Commands[0].Fee)
}

func (s *CheckSuite) TestFeeReasons() {
	tests := []struct {
		name   string
		ext    string
		reason string
	}{
		{
			name:   "unsupported period",
			ext:    `<fee:check ` + feeNS + `><fee:command name="create"><fee:period unit="y">13</fee:period></fee:command></fee:check>`,
			reason: "Period not supported",
		},
		{
			name:   "no price configured",
			ext:    `<fee:check ` + feeNS + `><fee:command name="transfer"/></fee:check>`,
			reason: "Price not available",
		},
		{
			name:   "other currency",
			ext:    `<fee:check ` + feeNS + `><fee:currency>EUR</fee:currency></fee:check>`,
			reason: "Currency not supported",
		},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			r := s.check(tt.ext, "plain.test")
			s.Require().Equal(epp.CodeSuccess, r.Response.Result.Code)

			d := s.feeData(r)
			s.Require().Len(d.Items, 1)
			s.Equal(0, d.Items[0].Avail)
			s.Equal(tt.reason, d.Items[0].Reason)
			s.Empty(d.Items[0].Commands)
		})
	}
}

func (s *CheckSuite) TestFeeRejectsMalformedPeriod() {
	tests := []struct {
		name string
		ext  string
		code int
	}{
		{"unknown unit", `<fee:check ` + feeNS + `><fee:command name="create"><fee:period unit="d">30</fee:period></fee:command></fee:check>`, epp.CodeValueSyntax},
		{"non-numeric", `<fee:check ` + feeNS + `><fee:command name="create"><fee:period unit="y">one</fee:period></fee:command></fee:check>`, epp.CodeValueSyntax},
		{"unnamed command", `<fee:check ` + feeNS + `><fee:command/></fee:check>`, epp.CodeRequiredMissing},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			s.Equal(tt.code, s.check(tt.ext, "plain.test").Response.Result.Code)
		})
	}
}
