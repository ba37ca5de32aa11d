package epp

import "fmt"

// Result codes used by the core.
const (
	CodeSuccess             = 1000
	CodeSuccessEndSession   = 1500
	CodeSyntaxError         = 2001
	CodeUseError            = 2002
	CodeRequiredMissing     = 2003
	CodeValueRange          = 2004
	CodeValueSyntax         = 2005
	CodeUnimplementedVer    = 2100
	CodeUnimplementedCmd    = 2101
	CodeUnimplementedOption = 2102
	CodeAuthentication      = 2200
	CodeCommandFailed       = 2400
	CodeCommandFailedClose  = 2500
)

var resultMessages = map[int]string{
	CodeSuccess:             "Command completed successfully",
	CodeSuccessEndSession:   "Command completed successfully; ending session",
	CodeSyntaxError:         "Command syntax error",
	CodeUseError:            "Command use error",
	CodeRequiredMissing:     "Required parameter missing",
	CodeValueRange:          "Parameter value range error",
	CodeValueSyntax:         "Parameter value syntax error",
	CodeUnimplementedVer:    "Unimplemented protocol version",
	CodeUnimplementedCmd:    "Unimplemented command",
	CodeUnimplementedOption: "Unimplemented option",
	CodeAuthentication:      "Authentication error",
	CodeCommandFailed:       "Command failed",
	CodeCommandFailedClose:  "Command failed; server closing connection",
}

// Message returns the standard text for code.
func Message(code int) string {
	if msg, ok := resultMessages[code]; ok {
		return msg
	}
	return "Command failed"
}

// Error is a command failure with an EPP result code. Handlers return it
// for conditions the client should see verbatim.
type Error struct {
	Code int
	Msg  string
}

func NewError(code int, msg string) *Error {
	if msg == "" {
		msg = Message(code)
	}
	return &Error{Code: code, Msg: msg}
}

func (e *Error) Error() string {
	return fmt.Sprintf("epp %d: %s", e.Code, e.Msg)
}

// closes reports whether the server ends the session after this code.
func closes(code int) bool {
	return code == CodeSuccessEndSession || code >= CodeCommandFailedClose
}
