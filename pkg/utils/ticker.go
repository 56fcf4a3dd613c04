package utils

import (
	"strings"
)

// Common ticker aliases seen in feed configuration.
var tickerAliases = map[string]string{
	"BITCOIN":  "BTC",
	"XBT":      "BTC",
	"ETHEREUM": "ETH",
	"S&P500":   "SPX",
	"S&P 500":  "SPX",
	"SP500":    "SPX",
	"DOW":      "DJI",
	"NASDAQ":   "IXIC",
}

// NormalizeTicker normalizes a configured or user-supplied ticker.
// It handles aliases, uppercasing, whitespace and a leading "$".
func NormalizeTicker(ticker string) string {
	ticker = strings.TrimSpace(strings.ToUpper(ticker))
	ticker = strings.TrimPrefix(ticker, "$")

	if canonical, ok := tickerAliases[ticker]; ok {
		return canonical
	}
	return ticker
}

// ValidTicker reports whether t is usable as a storage key after normalization.
func ValidTicker(t string) bool {
	t = NormalizeTicker(t)
	if t == "" || len(t) > 32 {
		return false
	}
	for _, r := range t {
		switch {
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '.', r == '-', r == '_', r == '&', r == '^':
		default:
			return false
		}
	}
	return true
}
