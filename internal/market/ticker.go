package market

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrInvalidTicker is returned when a string cannot be a ticker symbol.
var ErrInvalidTicker = errors.New("invalid ticker symbol")

var tickerPattern = regexp.MustCompile(`^[A-Z0-9][A-Z0-9.\-=^]{0,11}$`)

// NormalizeTicker turns loose input such as " $aapl" or "NASDAQ:AAPL" into a
// bare upper-case symbol and rejects anything that is not symbol-shaped.
func NormalizeTicker(raw string) (string, error) {
	s := strings.ToUpper(strings.TrimSpace(raw))
	s = strings.TrimPrefix(s, "$")
	if i := strings.LastIndex(s, ":"); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimSpace(s)
	if !tickerPattern.MatchString(s) {
		return "", fmt.Errorf("%w: %q", ErrInvalidTicker, raw)
	}
	return s, nil
}
