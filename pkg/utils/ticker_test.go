package utils

import "testing"

func TestNormalizeTicker(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"MARKET", "MARKET"},
		{"market", "MARKET"},
		{" btc ", "BTC"},
		{"$AAPL", "AAPL"},
		{"bitcoin", "BTC"},
		{"S&P 500", "SPX"},
		{"UNKNOWN", "UNKNOWN"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := NormalizeTicker(tt.input)
			if result != tt.expected {
				t.Errorf("NormalizeTicker(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestValidTicker(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"MARKET", true},
		{"brk.b", true},
		{"^GSPC", true},
		{"", false},
		{"   ", false},
		{"BAD TICKER", false},
		{"DROP;TABLE", false},
	}
	for _, tt := range tests {
		if got := ValidTicker(tt.input); got != tt.want {
			t.Errorf("ValidTicker(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}
