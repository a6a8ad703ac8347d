package types

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// NormalizeIdentity folds operator input into the on-card identity form:
// compatibility normalized, upper case, 8 printable ASCII characters.
func NormalizeIdentity(s string) (string, error) {
	s = norm.NFKC.String(strings.TrimSpace(s))
	s = cases.Upper(language.Und).String(s)
	if err := ValidateIdentity(s); err != nil {
		return "", err
	}

	return s, nil
}

// ValidateIdentity checks that s is exactly 8 printable ASCII characters.
func ValidateIdentity(s string) error {
	if len(s) != IdentityLength {
		return ErrInvalidIdentity
	}

	for i := 0; i < len(s); i++ {
		if s[i] < 0x20 || s[i] > 0x7E {
			return ErrInvalidIdentity
		}
	}

	return nil
}
