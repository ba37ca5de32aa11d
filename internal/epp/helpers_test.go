package epp_test

import (
	"encoding/xml"
	"testing"

	"github.com/stretchr/testify/require"
)

// command wraps inner in an EPP <command> envelope.
func command(inner string) []byte {
	return []byte(`<?xml version="1.0" encoding="UTF-8"?>` +
		`<epp xmlns="urn:ietf:params:xml:ns:epp-1.0"><command>` + inner + `</command></epp>`)
}

func loginCommand(clID, pw string) []byte {
	return command(`<login><clID>` + clID + `</clID><pw>` + pw + `</pw>` +
		`<options><version>1.0</version><lang>en</lang></options>` +
		`<svcs><objURI>urn:ietf:params:xml:ns:domain-1.0</objURI></svcs></login>` +
		`<clTRID>LOGIN-1</clTRID>`)
}

type result struct {
	Response struct {
		Result struct {
			Code int    `xml:"code,attr"`
			Msg  string `xml:"msg"`
		} `xml:"result"`
		ResData struct {
			Inner string `xml:",innerxml"`
		} `xml:"resData"`
		Extension struct {
			Inner string `xml:",innerxml"`
		} `xml:"extension"`
		TrID struct {
			ClTRID string `xml:"clTRID"`
			SvTRID string `xml:"svTRID"`
		} `xml:"trID"`
	} `xml:"response"`
}

func decodeResult(t *testing.T, raw []byte) result {
	t.Helper()
	var r result
	require.NoError(t, xml.Unmarshal(raw, &r), "response must be well-formed: %s", raw)
	return r
}
