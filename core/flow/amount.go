package flow

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// maxAmount keeps values inside the NUMERIC(24,2) balance column.
var maxAmount = decimal.New(1, 15)

// amountPattern admits plain decimals only. Exponent forms are rejected before
// parsing since comparing them rescales the value digit by digit.
var amountPattern = regexp.MustCompile(`^\d{1,16}(\.\d{1,2})?$`)

// ParseAmount accepts a positive decimal with at most two fractional digits.
func ParseAmount(s string) (decimal.Decimal, bool) {
	s = strings.TrimSpace(s)
	if !amountPattern.MatchString(s) {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	if !d.IsPositive() || d.GreaterThanOrEqual(maxAmount) {
		return decimal.Zero, false
	}
	return d, true
}
