// Package utils provides display formatting and market-clock helpers for stockdash.
package utils

import (
	"strings"

	"github.com/shopspring/decimal"
)

var (
	thousand  = decimal.New(1, 3)
	lakh      = decimal.New(1, 5)
	crore     = decimal.New(1, 7)
	lakhCrore = decimal.New(1, 12)
)

// FormatINR formats an amount in Indian Rupee format (₹12,34,567.89).
// Uses the Indian numbering system: last 3 digits, then groups of 2.
func FormatINR(amount decimal.Decimal) string {
	prefix := "₹"
	if amount.IsNegative() {
		prefix = "-₹"
	}
	return prefix + groupFixed(amount.Abs(), 2)
}

// FormatINRCompact formats an amount in compact Indian notation.
// e.g., 1927345 → "₹19.27 L", 192734500000 → "₹19273.45 Cr"
func FormatINRCompact(amount decimal.Decimal) string {
	prefix := "₹"
	if amount.IsNegative() {
		prefix = "-₹"
	}
	amount = amount.Abs()

	switch {
	case amount.GreaterThanOrEqual(lakhCrore):
		return prefix + trimDecimals(amount.Div(lakhCrore)) + " L Cr"
	case amount.GreaterThanOrEqual(crore):
		return prefix + trimDecimals(amount.Div(crore)) + " Cr"
	case amount.GreaterThanOrEqual(lakh):
		return prefix + trimDecimals(amount.Div(lakh)) + " L"
	case amount.GreaterThanOrEqual(thousand):
		return prefix + trimDecimals(amount.Div(thousand)) + " K"
	default:
		return prefix + amount.StringFixed(2)
	}
}

// FormatSigned formats a value with an explicit sign and two decimals.
// e.g., 12.5 → "+12.50", -1.2 → "-1.20"
func FormatSigned(v decimal.Decimal) string {
	if v.IsNegative() {
		return v.StringFixed(2)
	}
	return "+" + v.StringFixed(2)
}

// FormatPct formats a percentage value with sign and suffix.
// e.g., 2.45 → "+2.45%", -1.23 → "-1.23%"
func FormatPct(pct decimal.Decimal) string {
	return FormatSigned(pct) + "%"
}

// FormatVolume formats a share count in human-readable Indian format.
// e.g., 1500000 → "15.00 L", 25000000 → "2.50 Cr"
func FormatVolume(volume decimal.Decimal) string {
	switch {
	case volume.GreaterThanOrEqual(crore):
		return volume.Div(crore).StringFixed(2) + " Cr"
	case volume.GreaterThanOrEqual(lakh):
		return volume.Div(lakh).StringFixed(2) + " L"
	case volume.GreaterThanOrEqual(thousand):
		return volume.Div(thousand).StringFixed(2) + " K"
	default:
		return volume.Truncate(0).String()
	}
}

// groupFixed renders a non-negative value with the given number of decimals
// and Indian digit grouping on the integer part.
func groupFixed(v decimal.Decimal, places int32) string {
	s := v.StringFixed(places)
	intPart, frac, _ := strings.Cut(s, ".")
	out := groupIndian(intPart)
	if frac != "" {
		out += "." + frac
	}
	return out
}

// groupIndian groups a digit string Indian style (last 3, then 2s).
func groupIndian(s string) string {
	if len(s) <= 3 {
		return s
	}

	result := s[len(s)-3:]
	remaining := s[:len(s)-3]
	for len(remaining) > 2 {
		result = remaining[len(remaining)-2:] + "," + result
		remaining = remaining[:len(remaining)-2]
	}
	if remaining != "" {
		result = remaining + "," + result
	}
	return result
}

// trimDecimals renders up to 2 decimal places, removing trailing zeros.
func trimDecimals(n decimal.Decimal) string {
	s := n.StringFixed(2)
	s = strings.TrimRight(s, "0")
	return strings.TrimRight(s, ".")
}
