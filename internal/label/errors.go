package label

// Kind enumerates the ways a label or identifier can be rejected.
type Kind int

const (
	KindEmpty Kind = iota + 1
	KindTooLong
	KindTooShort
	KindHyphenPlacement
	KindUnsupportedZone
	KindPolicyMissing
	KindInvalidFormat
	KindIdentifierEmpty
	KindIdentifierLength
	KindIdentifierFormat
)

var messages = map[Kind]string{
	KindEmpty:            "You must enter a domain name",
	KindTooLong:          "Total length of your domain must be less then 63 characters",
	KindTooShort:         "Total length of your domain must be greater then 2 characters",
	KindHyphenPlacement:  "Invalid domain name format, cannot begin or end with a hyphen (-)",
	KindUnsupportedZone:  "Zone is not supported",
	KindPolicyMissing:    "Failed to fetch domain IDN table",
	KindInvalidFormat:    "Invalid domain name format, please review registry policy about accepted labels",
	KindIdentifierEmpty:  "Please provide a contact ID",
	KindIdentifierLength: "Identifier type minLength value=3, maxLength value=16",
	KindIdentifierFormat: "The ID of the contact must contain letters (A-Z) (ASCII), hyphen (-), and digits (0-9).",
}

func (k Kind) String() string {
	if msg, ok := messages[k]; ok {
		return msg
	}
	return "unknown label error"
}

// Error is a validation failure. Its message is the text shown to
// registrars; match on it with errors.Is against the exported sentinels.
type Error struct {
	Kind  Kind
	Input string
}

func (e *Error) Error() string { return e.Kind.String() }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

func reject(kind Kind, input string) *Error {
	return &Error{Kind: kind, Input: input}
}

var (
	ErrEmpty            = &Error{Kind: KindEmpty}
	ErrTooLong          = &Error{Kind: KindTooLong}
	ErrTooShort         = &Error{Kind: KindTooShort}
	ErrHyphenPlacement  = &Error{Kind: KindHyphenPlacement}
	ErrUnsupportedZone  = &Error{Kind: KindUnsupportedZone}
	ErrPolicyMissing    = &Error{Kind: KindPolicyMissing}
	ErrInvalidFormat    = &Error{Kind: KindInvalidFormat}
	ErrIdentifierEmpty  = &Error{Kind: KindIdentifierEmpty}
	ErrIdentifierLength = &Error{Kind: KindIdentifierLength}
	ErrIdentifierFormat = &Error{Kind: KindIdentifierFormat}
)
