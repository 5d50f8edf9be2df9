package classify

import (
	"strings"
	"unicode"
)

// Tokens lowercases s and splits it on any rune that is not a letter or
// digit. Punctuation and whitespace are equivalent separators.
func Tokens(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func isDigits(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return s != ""
}
