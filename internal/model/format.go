package model

import (
	"fmt"
	"strconv"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

const (
	currencySymbol          = "$"
	maxLocaleFractionDigits = 3
)

var localePrinter = message.NewPrinter(language.AmericanEnglish)

// FormatLocaleCurrency renders an amount as "$" plus a grouped locale number,
// e.g. $12,345.5. Zero renders as $0.
func FormatLocaleCurrency(amount Amount) string {
	return currencySymbol + localePrinter.Sprintf("%v", number.Decimal(amount.Float64(), number.MaxFractionDigits(maxLocaleFractionDigits)))
}

// FormatCurrency renders an amount with two fixed decimals, e.g. $150.00.
func FormatCurrency(amount Amount) string {
	return fmt.Sprintf("%s%.2f", currencySymbol, amount.Float64())
}

// FormatCount renders a counter without trailing decimals.
func FormatCount(amount Amount) string {
	return strconv.FormatFloat(amount.Float64(), 'f', -1, 64)
}
