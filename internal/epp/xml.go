package epp

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"strings"
)

const (
	NamespaceEPP     = "urn:ietf:params:xml:ns:epp-1.0"
	NamespaceDomain  = "urn:ietf:params:xml:ns:domain-1.0"
	NamespaceContact = "urn:ietf:params:xml:ns:contact-1.0"
	NamespaceHost    = "urn:ietf:params:xml:ns:host-1.0"
	NamespaceFee     = "urn:ietf:params:xml:ns:epp:fee-1.0"
)

// ObjectURIs are announced in the greeting.
var ObjectURIs = []string{NamespaceDomain, NamespaceContact, NamespaceHost}

// ExtensionURIs are announced in the greeting. The list is versioned with
// the server; clients select from it at login.
var ExtensionURIs = []string{
	"https://namingo.org/epp/funds-1.0",
	"https://namingo.org/epp/identica-1.0",
	"urn:ietf:params:xml:ns:secDNS-1.1",
	"urn:ietf:params:xml:ns:rgp-1.0",
	"urn:ietf:params:xml:ns:launch-1.0",
	"urn:ietf:params:xml:ns:idn-1.0",
	NamespaceFee,
	"urn:ar:params:xml:ns:price-1.1",
}

var objectNames = map[string]string{
	NamespaceDomain:  "domain",
	NamespaceContact: "contact",
	NamespaceHost:    "host",
}

// DateFormat is the timestamp layout used on the wire.
const DateFormat = "2006-01-02T15:04:05.000Z"

var errNoCommand = errors.New("document has neither hello nor command")

// Node is a generic XML element used for command bodies and extensions.
type Node struct {
	XMLName  xml.Name
	Attrs    []xml.Attr `xml:",any,attr"`
	Content  string     `xml:",chardata"`
	Children []Node     `xml:",any"`
}

// Child returns the first child with local name, or nil.
func (n *Node) Child(local string) *Node {
	if n == nil {
		return nil
	}
	for i := range n.Children {
		if n.Children[i].XMLName.Local == local {
			return &n.Children[i]
		}
	}
	return nil
}

// All returns every child with local name.
func (n *Node) All(local string) []Node {
	if n == nil {
		return nil
	}
	var out []Node
	for _, c := range n.Children {
		if c.XMLName.Local == local {
			out = append(out, c)
		}
	}
	return out
}

func (n *Node) Text() string {
	if n == nil {
		return ""
	}
	return strings.TrimSpace(n.Content)
}

func (n *Node) Attr(local string) string {
	if n == nil {
		return ""
	}
	for _, a := range n.Attrs {
		if a.Name.Local == local {
			return a.Value
		}
	}
	return ""
}

// Login carries the credentials of a <login> command.
type Login struct {
	ClID     string   `xml:"clID"`
	Password string   `xml:"pw"`
	NewPW    string   `xml:"newPW"`
	Version  string   `xml:"options>version"`
	Lang     string   `xml:"options>lang"`
	ObjURIs  []string `xml:"svcs>objURI"`
	ExtURIs  []string `xml:"svcs>svcExtension>extURI"`
}

type envelope struct {
	XMLName xml.Name  `xml:"epp"`
	Hello   *struct{} `xml:"hello"`
	Command *struct {
		Login     *Login `xml:"login"`
		Extension *Node  `xml:"extension"`
		ClTRID    string `xml:"clTRID"`
		Other     []Node `xml:",any"`
	} `xml:"command"`
}

// Request is one parsed client document.
type Request struct {
	Hello bool
	// Command is the element under <command>, e.g. "check" or "login".
	Command string
	// Object is derived from the command body namespace: domain, contact
	// or host. Empty for session commands.
	Object string
	ClTRID string
	Frame  []byte
	// Body is the object element, e.g. <domain:check>.
	Body       *Node
	Extensions []Node
	Login      *Login
}

// Key is the handler registry key: "login", "domain:check".
func (r *Request) Key() string {
	if r.Object == "" {
		return r.Command
	}
	return r.Object + ":" + r.Command
}

// Extension returns the extension element in namespace ns with local name.
func (r *Request) Extension(ns, local string) *Node {
	for i := range r.Extensions {
		e := &r.Extensions[i]
		if e.XMLName.Space == ns && e.XMLName.Local == local {
			return e
		}
	}
	return nil
}

// ParseRequest decodes a frame. On error the returned request still
// carries the frame so the failure can be recorded.
func ParseRequest(frame []byte) (*Request, error) {
	req := &Request{Frame: frame}

	var env envelope
	dec := xml.NewDecoder(bytes.NewReader(frame))
	dec.Strict = true
	if err := dec.Decode(&env); err != nil {
		return req, fmt.Errorf("decode epp document: %w", err)
	}

	switch {
	case env.Hello != nil:
		req.Hello = true
		return req, nil
	case env.Command == nil:
		return req, errNoCommand
	}

	cmd := env.Command
	req.ClTRID = strings.TrimSpace(cmd.ClTRID)
	if cmd.Extension != nil {
		req.Extensions = cmd.Extension.Children
	}

	if cmd.Login != nil {
		req.Command = "login"
		req.Login = cmd.Login
		return req, nil
	}
	if len(cmd.Other) == 0 {
		return req, errNoCommand
	}

	verb := cmd.Other[0]
	req.Command = verb.XMLName.Local
	if len(verb.Children) > 0 {
		body := verb.Children[0]
		req.Body = &body
		req.Object = objectNames[body.XMLName.Space]
		if req.Object == "" {
			req.Object = body.XMLName.Local
		}
	}
	return req, nil
}

// =============================================================================
// Outbound documents
// =============================================================================

type empty struct{}

type greetingDoc struct {
	XMLName  xml.Name `xml:"epp"`
	XMLNS    string   `xml:"xmlns,attr"`
	Greeting struct {
		SvID    string `xml:"svID"`
		SvDate  string `xml:"svDate"`
		SvcMenu struct {
			Version string   `xml:"version"`
			Lang    string   `xml:"lang"`
			ObjURIs []string `xml:"objURI"`
			ExtURIs []string `xml:"svcExtension>extURI"`
		} `xml:"svcMenu"`
		DCP struct {
			Access struct {
				All empty `xml:"all"`
			} `xml:"access"`
			Statement struct {
				Purpose struct {
					Admin empty `xml:"admin"`
					Prov  empty `xml:"prov"`
				} `xml:"purpose"`
				Recipient struct {
					Ours empty `xml:"ours"`
				} `xml:"recipient"`
				Retention struct {
					Stated empty `xml:"stated"`
				} `xml:"retention"`
			} `xml:"statement"`
		} `xml:"dcp"`
	} `xml:"greeting"`
}

func marshalGreeting(serverID, svDate string) ([]byte, error) {
	var doc greetingDoc
	doc.XMLNS = NamespaceEPP
	doc.Greeting.SvID = serverID
	doc.Greeting.SvDate = svDate
	doc.Greeting.SvcMenu.Version = "1.0"
	doc.Greeting.SvcMenu.Lang = "en"
	doc.Greeting.SvcMenu.ObjURIs = ObjectURIs
	doc.Greeting.SvcMenu.ExtURIs = ExtensionURIs
	return marshalDoc(doc)
}

type responseDoc struct {
	XMLName  xml.Name `xml:"epp"`
	XMLNS    string   `xml:"xmlns,attr"`
	Response struct {
		Result struct {
			Code int    `xml:"code,attr"`
			Msg  string `xml:"msg"`
		} `xml:"result"`
		ResData *struct {
			Data any
		} `xml:"resData,omitempty"`
		Extension *struct {
			Data []any
		} `xml:"extension,omitempty"`
		TrID struct {
			ClTRID string `xml:"clTRID,omitempty"`
			SvTRID string `xml:"svTRID"`
		} `xml:"trID"`
	} `xml:"response"`
}

func marshalResponse(code int, msg string, resData any, extensions []any, clTRID, svTRID string) ([]byte, error) {
	var doc responseDoc
	doc.XMLNS = NamespaceEPP
	doc.Response.Result.Code = code
	doc.Response.Result.Msg = msg
	if resData != nil {
		doc.Response.ResData = &struct{ Data any }{Data: resData}
	}
	if len(extensions) > 0 {
		doc.Response.Extension = &struct{ Data []any }{Data: extensions}
	}
	doc.Response.TrID.ClTRID = clTRID
	doc.Response.TrID.SvTRID = svTRID
	return marshalDoc(doc)
}

func marshalDoc(v any) ([]byte, error) {
	body, err := xml.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal epp document: %w", err)
	}
	out := make([]byte, 0, len(xml.Header)+len(body))
	out = append(out, xml.Header...)
	return append(out, body...), nil
}
