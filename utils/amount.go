// Package utils
package utils

import (
	"fmt"
	"regexp"

	"github.com/shopspring/decimal"
)

var amountRe = regexp.MustCompile(`^[0-9]+(\.[0-9]+)?$`)

// ParseAmount parses a native-asset amount given as a decimal string.
// Comparison against spending caps must be exact, so amounts never pass
// through floats.
func ParseAmount(s string) (decimal.Decimal, error) {
	if !amountRe.MatchString(s) {
		return decimal.Zero, fmt.Errorf("malformed amount %q", s)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, err
	}
	return d, nil
}

func IsValidAddress(v string) bool {
	re := regexp.MustCompile("^0x[0-9a-fA-F]{40}$")
	return re.MatchString(v)
}
