// Package money holds ticket values in minor units and renders them for display.
package money

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// Amount is a monetary value in minor units (cents).
type Amount int64

// Zero is the aggregate of a lane or contact with no valued tickets.
const Zero Amount = 0

// MaxAmount is the largest value a ticket column (NUMERIC(14,2)) can hold.
const MaxAmount Amount = 99_999_999_999_999

var ErrInvalidAmount = errors.New("amount must be a finite non-negative number within range")

// symbols covers the currencies agencies bill in; anything else renders with its ISO code.
var symbols = map[string]string{
	"USD": "$",
	"CAD": "CA$",
	"AUD": "A$",
	"EUR": "€",
	"GBP": "£",
	"JPY": "¥",
	"INR": "₹",
}

// FromFloat converts a major-unit value such as 12.5 into an Amount.
func FromFloat(value float64) (Amount, error) {
	if math.IsNaN(value) || math.IsInf(value, 0) || value < 0 {
		return 0, ErrInvalidAmount
	}
	cents := math.Round(value * 100)
	if cents > float64(MaxAmount) {
		return 0, ErrInvalidAmount
	}
	return Amount(cents), nil
}

// Float returns the value in major units.
func (a Amount) Float() float64 {
	return float64(a) / 100
}

// IsActive reports whether an aggregate counts as activity. Zero is equivalent to no tickets at all.
func (a Amount) IsActive() bool {
	return a != 0
}

// Sum adds optional values, treating nil as zero.
func Sum(values ...*float64) Amount {
	var total Amount
	for _, value := range values {
		if value == nil {
			continue
		}
		amount, err := FromFloat(*value)
		if err != nil {
			continue
		}
		total += amount
	}
	return total
}

// Format renders the amount in the given ISO currency, e.g. "$1,250.00".
func Format(a Amount, currencyCode string) (string, error) {
	unit, err := currency.ParseISO(strings.ToUpper(strings.TrimSpace(currencyCode)))
	if err != nil {
		return "", fmt.Errorf("parse currency %q: %w", currencyCode, err)
	}
	scale, _ := currency.Standard.Rounding(unit)

	printer := message.NewPrinter(language.AmericanEnglish)
	digits := printer.Sprint(number.Decimal(math.Abs(a.Float()), number.Scale(scale)))

	symbol, ok := symbols[unit.String()]
	if !ok {
		symbol = unit.String() + " "
	}
	if a < 0 {
		return "-" + symbol + digits, nil
	}
	return symbol + digits, nil
}

// MustFormat is Format for currency codes already validated at startup.
func MustFormat(a Amount, currencyCode string) string {
	formatted, err := Format(a, currencyCode)
	if err != nil {
		panic(err)
	}
	return formatted
}

// Validate checks that a currency code is a known ISO 4217 code.
func Validate(currencyCode string) error {
	if _, err := currency.ParseISO(strings.ToUpper(strings.TrimSpace(currencyCode))); err != nil {
		return fmt.Errorf("parse currency %q: %w", currencyCode, err)
	}
	return nil
}
