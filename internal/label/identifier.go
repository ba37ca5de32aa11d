package label

import "regexp"

var (
	identifierPrefixed = regexp.MustCompile(`^[A-Z]+-[0-9]+$`)
	identifierAlnum    = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9]*$`)
)

// ValidateIdentifier checks a contact identifier: 3 to 16 characters,
// either LETTERS-DIGITS or alphanumeric starting with a letter.
func ValidateIdentifier(id string) error {
	if id == "" {
		return reject(KindIdentifierEmpty, id)
	}
	if len(id) < 3 || len(id) > 16 {
		return reject(KindIdentifierLength, id)
	}
	if !identifierPrefixed.MatchString(id) && !identifierAlnum.MatchString(id) {
		return reject(KindIdentifierFormat, id)
	}
	return nil
}
