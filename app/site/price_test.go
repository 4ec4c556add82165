package site

import "testing"

func TestParsePrice(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		want  float64
		found bool
	}{
		{"euro with thousands", "€1,250,000", 1250000, true},
		{"dollar with decimals", "$1,234.56 / month", 1234.56, true},
		{"continental format", "1.250.000,50 €", 1250000.5, true},
		{"decimal comma", "12,50 €", 12.5, true},
		{"plain integer", "Rent: 950 pcm", 950, true},
		{"dotted thousands", "CHF 2.500.000", 2500000, true},
		{"trailing separator", "From 300.", 300, true},
		{"dot thousands after amount", "250.000 €", 250000, true},
		{"single dot thousands", "€1.250", 1250, true},
		{"single comma thousands", "€1,250", 1250, true},
		{"decimal dot", "£3.5k", 3.5, true},
		{"two decimal places", "$19.99", 19.99, true},
		{"no digits", "Contact for price", 0, false},
		{"empty", "", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, found := ParsePrice(tt.text)
			if found != tt.found {
				t.Fatalf("Expected found=%v for %q, got %v", tt.found, tt.text, found)
			}
			if got != tt.want {
				t.Errorf("Expected %v for %q, got %v", tt.want, tt.text, got)
			}
		})
	}
}
