// Package phone normalizes phone numbers to E.164.
package phone

import (
	"regexp"
	"strings"
)

var e164 = regexp.MustCompile(`^\+[1-9]\d{6,14}$`)

var separators = strings.NewReplacer(" ", "", "-", "", "(", "", ")", "", ".", "", "\t", "")

// Normalize strips separators and prefixes "+" when missing. It does not
// validate; use Valid on the result.
func Normalize(raw string) string {
	n := separators.Replace(strings.TrimSpace(raw))
	if n == "" {
		return ""
	}
	if !strings.HasPrefix(n, "+") {
		n = "+" + n
	}
	return n
}

func Valid(normalized string) bool {
	return e164.MatchString(normalized)
}

// Digits returns the number without the leading "+".
func Digits(normalized string) string {
	return strings.TrimPrefix(normalized, "+")
}

// TrailingDigits returns the last n digits, or all of them when shorter.
func TrailingDigits(normalized string, n int) string {
	d := Digits(normalized)
	if len(d) <= n {
		return d
	}
	return d[len(d)-n:]
}

// Mask hides all but the last four digits, for logs and diagnostics.
func Mask(normalized string) string {
	d := Digits(normalized)
	if len(d) <= 4 {
		return "+" + d
	}
	return "+" + strings.Repeat("*", len(d)-4) + d[len(d)-4:]
}
