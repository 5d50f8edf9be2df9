package rfp

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

// ParseAmount reads a dollar figure such as "$1,250,000.00" or a JSON number.
// Zero, negative and unparseable values yield nil.
func ParseAmount(raw any) *float64 {
	var s string
	switch v := raw.(type) {
	case nil:
		return nil
	case float64:
		s = strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		s = strconv.Itoa(v)
	case string:
		s = v
	default:
		s = fmt.Sprint(v)
	}
	s = strings.NewReplacer("$", "", ",", "", " ", "").Replace(strings.TrimSpace(s))
	if s == "" {
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f <= 0 {
		return nil
	}
	return &f
}

// Truncate cuts s to at most n runes.
func Truncate(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
