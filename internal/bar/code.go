package bar

import "strings"

// CodeLength is the number of characters in a bar code.
const CodeLength = 6

// Code is a normalized, shareable bar identifier: six upper-case
// alphanumerics without vowels.
type Code string

func (c Code) String() string { return string(c) }

// NormalizeCode trims and upper-cases raw and checks it is a valid code.
func NormalizeCode(raw string) (Code, error) {
	s := strings.ToUpper(strings.TrimSpace(raw))
	if s == "" {
		return "", violation(ErrInvalidCode, "bar code is required")
	}
	if len(s) != CodeLength {
		return "", violation(ErrInvalidCode, "bar code must be %d characters", CodeLength)
	}
	for _, r := range s {
		switch {
		case r == 'A' || r == 'E' || r == 'I' || r == 'O' || r == 'U':
			return "", violation(ErrInvalidCode, "bar code must not contain vowels")
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		default:
			return "", violation(ErrInvalidCode, "bar code must be alphanumeric")
		}
	}
	return Code(s), nil
}
