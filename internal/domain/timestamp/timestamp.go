// Package timestamp parses human timestamps such as "0:20", "1:08.37" or "20" into seconds.
package timestamp

import (
	"fmt"
	"strconv"
	"strings"
)

// FormatError reports a string that is not a [[HH:]MM:]SS[.fff] timestamp.
type FormatError struct {
	Input  string
	Reason string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("unrecognised timestamp %q: %s", e.Input, e.Reason)
}

const maxFracDigits = 3

// ToSeconds converts ts to seconds. A bare number is seconds; with colons the
// components are hours, minutes and seconds, and every component after the
// first is one or two digits.
func ToSeconds(ts string) (float64, error) {
	s := strings.TrimSpace(ts)
	if s == "" {
		return 0, &FormatError{Input: ts, Reason: "empty"}
	}

	whole, frac, hasFrac := strings.Cut(s, ".")
	if hasFrac {
		if frac == "" || len(frac) > maxFracDigits || !digits(frac) {
			return 0, &FormatError{Input: ts, Reason: "fraction must be 1-3 digits"}
		}
	}

	parts := strings.Split(whole, ":")
	if len(parts) > 3 {
		return 0, &FormatError{Input: ts, Reason: "too many components"}
	}

	var total int64
	for i, p := range parts {
		if p == "" || !digits(p) {
			return 0, &FormatError{Input: ts, Reason: "components must be ASCII digits"}
		}
		if i > 0 && len(p) > 2 {
			return 0, &FormatError{Input: ts, Reason: "minutes and seconds are at most two digits"}
		}
		n, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return 0, &FormatError{Input: ts, Reason: err.Error()}
		}
		total = total*60 + n
	}

	if !hasFrac {
		return float64(total), nil
	}
	// Parse integer and fraction together so "1:08.37" is exactly 68.37.
	sec, err := strconv.ParseFloat(strconv.FormatInt(total, 10)+"."+frac, 64)
	if err != nil {
		return 0, &FormatError{Input: ts, Reason: err.Error()}
	}
	return sec, nil
}

// Format renders seconds as M:SS.ss for reasons and logs.
func Format(sec float64) string {
	if sec < 0 {
		sec = 0
	}
	m := int(sec) / 60
	return fmt.Sprintf("%d:%05.2f", m, sec-float64(m*60))
}

func digits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
