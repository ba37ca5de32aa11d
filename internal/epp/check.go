package epp

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"regcore/internal/label"
	"regcore/internal/tariff"
)

const defaultMaxCheckNames = 50

// DomainIndex reports whether a name is already registered.
type DomainIndex interface {
	DomainExists(ctx context.Context, name string) (bool, error)
}

type NameValidator interface {
	Validate(ctx context.Context, candidate string) (label.Name, error)
}

type Pricer interface {
	Quote(ctx context.Context, label string, zoneID int64, months int, command string) (tariff.Quote, error)
}

// DomainCheck serves <domain:check>, with fee-1.0 pricing when the client
// asks for it.
type DomainCheck struct {
	validator NameValidator
	reserved  label.ReservedLookup
	domains   DomainIndex
	pricer    Pricer
	currency  string
	maxNames  int
}

type CheckOption func(*DomainCheck)

// WithPricer enables fee extension answers in currency.
func WithPricer(p Pricer, currency string) CheckOption {
	return func(c *DomainCheck) {
		c.pricer = p
		c.currency = currency
	}
}

func WithMaxNames(n int) CheckOption {
	return func(c *DomainCheck) {
		if n > 0 {
			c.maxNames = n
		}
	}
}

func NewDomainCheck(v NameValidator, reserved label.ReservedLookup, domains DomainIndex, opts ...CheckOption) *DomainCheck {
	c := &DomainCheck{
		validator: v,
		reserved:  reserved,
		domains:   domains,
		maxNames:  defaultMaxCheckNames,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type domainChkData struct {
	XMLName xml.Name   `xml:"domain:chkData"`
	XMLNS   string     `xml:"xmlns:domain,attr"`
	Items   []domainCD `xml:"domain:cd"`
}

type domainCD struct {
	Name struct {
		Avail int    `xml:"avail,attr"`
		Value string `xml:",chardata"`
	} `xml:"domain:name"`
	Reason string `xml:"domain:reason,omitempty"`
}

type feeChkData struct {
	XMLName  xml.Name `xml:"fee:chkData"`
	XMLNS    string   `xml:"xmlns:fee,attr"`
	Currency string   `xml:"fee:currency"`
	Items    []feeCD  `xml:"fee:cd"`
}

type feeCD struct {
	Avail    int          `xml:"avail,attr"`
	ObjID    string       `xml:"fee:objID"`
	Class    string       `xml:"fee:class,omitempty"`
	Commands []feeCommand `xml:"fee:command"`
	Reason   string       `xml:"fee:reason,omitempty"`
}

type feeCommand struct {
	Name   string `xml:"name,attr"`
	Period struct {
		Unit  string `xml:"unit,attr"`
		Value int    `xml:",chardata"`
	} `xml:"fee:period"`
	Fee string `xml:"fee:fee"`
}

// feeRequest is one <fee:command> from the client, normalized to months.
type feeRequest struct {
	command string
	unit    string
	value   int
	months  int
}

type checked struct {
	raw   string
	name  label.Name
	avail bool
}

func (c *DomainCheck) Handle(ctx context.Context, _ *Session, req *Request) (*Response, error) {
	nodes := req.Body.All("name")
	if len(nodes) == 0 {
		return nil, NewError(CodeRequiredMissing, "")
	}
	if len(nodes) > c.maxNames {
		return nil, NewError(CodeValueRange, fmt.Sprintf("At most %d names per check", c.maxNames))
	}

	data := domainChkData{XMLNS: NamespaceDomain}
	results := make([]checked, 0, len(nodes))
	for _, n := range nodes {
		raw := strings.ToLower(n.Text())
		name, reason, err := c.check(ctx, raw)
		if err != nil {
			return nil, err
		}
		var cd domainCD
		cd.Name.Value = raw
		cd.Reason = reason
		if reason == "" {
			cd.Name.Avail = 1
		}
		data.Items = append(data.Items, cd)
		results = append(results, checked{raw: raw, name: name, avail: reason == ""})
	}

	resp := &Response{ResData: data, ObjectID: results[0].raw}

	if ext := req.Extension(NamespaceFee, "check"); ext != nil && c.pricer != nil {
		fee, err := c.fees(ctx, ext, results)
		if err != nil {
			return nil, err
		}
		resp.Extensions = append(resp.Extensions, fee)
	}
	return resp, nil
}

// check returns a non-empty reason when raw cannot be registered.
func (c *DomainCheck) check(ctx context.Context, raw string) (label.Name, string, error) {
	name, err := c.validator.Validate(ctx, raw)
	if err != nil {
		var lerr *label.Error
		if errors.As(err, &lerr) {
			return label.Name{}, lerr.Error(), nil
		}
		return label.Name{}, "", fmt.Errorf("validate %s: %w", raw, err)
	}

	reserved, err := c.reserved.IsReserved(ctx, name.Label)
	if err != nil {
		return label.Name{}, "", fmt.Errorf("check reserved %s: %w", raw, err)
	}
	if reserved {
		return name, "Reserved", nil
	}

	exists, err := c.domains.DomainExists(ctx, name.String())
	if err != nil {
		return label.Name{}, "", fmt.Errorf("check registration %s: %w", raw, err)
	}
	if exists {
		return name, "In use", nil
	}
	return name, "", nil
}

func (c *DomainCheck) fees(ctx context.Context, ext *Node, results []checked) (feeChkData, error) {
	data := feeChkData{XMLNS: NamespaceFee, Currency: c.currency}

	if cur := ext.Child("currency").Text(); cur != "" && !strings.EqualFold(cur, c.currency) {
		for _, r := range results {
			data.Items = append(data.Items, feeCD{ObjID: r.raw, Reason: "Currency not supported"})
		}
		return data, nil
	}

	requests, err := parseFeeCommands(ext)
	if err != nil {
		return data, err
	}

	for _, r := range results {
		if r.name.Policy == nil {
			data.Items = append(data.Items, feeCD{ObjID: r.raw, Reason: "Invalid domain name"})
			continue
		}
		cd := feeCD{Avail: 1, ObjID: r.raw, Class: "standard"}
		for _, fr := range requests {
			quote, err := c.pricer.Quote(ctx, r.name.Label, r.name.Policy.ID, fr.months, fr.command)
			if errors.Is(err, tariff.ErrInvalidPeriod) {
				cd = feeCD{ObjID: r.raw, Reason: "Period not supported"}
				break
			}
			if err != nil {
				return data, fmt.Errorf("price %s: %w", r.raw, err)
			}
			if quote.Type == tariff.TypeNotFound {
				cd = feeCD{ObjID: r.raw, Reason: "Price not available"}
				break
			}
			if quote.Type == tariff.TypePremium {
				cd.Class = "premium"
			}
			fc := feeCommand{Name: fr.command, Fee: quote.Price}
			fc.Period.Unit = fr.unit
			fc.Period.Value = fr.value
			cd.Commands = append(cd.Commands, fc)
		}
		data.Items = append(data.Items, cd)
	}
	return data, nil
}

func parseFeeCommands(ext *Node) ([]feeRequest, error) {
	cmds := ext.All("command")
	if len(cmds) == 0 {
		return []feeRequest{{command: "create", unit: "y", value: 1, months: 12}}, nil
	}

	out := make([]feeRequest, 0, len(cmds))
	for _, cmd := range cmds {
		fr := feeRequest{command: cmd.Attr("name"), unit: "y", value: 1}
		if fr.command == "" {
			return nil, NewError(CodeRequiredMissing, "fee:command requires a name")
		}
		if p := cmd.Child("period"); p != nil {
			v, err := strconv.Atoi(p.Text())
			if err != nil || v < 0 {
				return nil, NewError(CodeValueSyntax, "Invalid fee:period")
			}
			fr.value = v
			if u := p.Attr("unit"); u != "" {
				fr.unit = u
			}
		}
		switch fr.unit {
		case "y":
			fr.months = fr.value * 12
		case "m":
			fr.months = fr.value
		default:
			return nil, NewError(CodeValueSyntax, "Invalid fee:period unit")
		}
		out = append(out, fr)
	}
	return out, nil
}
