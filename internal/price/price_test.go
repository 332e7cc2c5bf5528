// Zipalim - Apartment Complex Listing Monitor
// Copyright 2026 Zipalim Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/zipalim/zipalim

package price

import "testing"

func TestParseWon(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  int64
	}{
		{"eok and man", "3억 5,000", 350000000},
		{"eok only", "1억", 100000000},
		{"bare man with comma", "5,000", 50000000},
		{"bare man", "500", 5000000},
		{"large eok", "12억 3,400", 1234000000},
		{"no spaces", "3억5,000", 350000000},
		{"dash", "-", 0},
		{"empty", "", 0},
		{"garbage", "문의", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseWon(tt.input); got != tt.want {
				t.Errorf("ParseWon(%q) = %d, want %d", tt.input, got, tt.want)
			}
		})
	}
}

func TestFormatWon(t *testing.T) {
	tests := []struct {
		name string
		won  int64
		want string
	}{
		{"eok and man", 350000000, "3억 5,000"},
		{"eok only", 100000000, "1억"},
		{"man only", 50000000, "5,000"},
		{"small man", 5000000, "500"},
		{"zero", 0, "-"},
		{"large", 1234000000, "12억 3,400"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatWon(tt.won); got != tt.want {
				t.Errorf("FormatWon(%d) = %q, want %q", tt.won, got, tt.want)
			}
		})
	}
}

func TestFormatWonLong(t *testing.T) {
	tests := []struct {
		won  int64
		want string
	}{
		{325000000, "3억 2,500만원"},
		{100000000, "1억원"},
		{50000000, "5,000만원"},
	}
	for _, tt := range tests {
		if got := FormatWonLong(tt.won); got != tt.want {
			t.Errorf("FormatWonLong(%d) = %q, want %q", tt.won, got, tt.want)
		}
	}
}

func TestParseFormatRoundTrip(t *testing.T) {
	inputs := []string{"3억 5,000", "1억", "5,000", "12억 3,400"}
	for _, in := range inputs {
		if got := FormatWon(ParseWon(in)); got != in {
			t.Errorf("round trip %q -> %q", in, got)
		}
	}
}

func TestCalculate(t *testing.T) {
	t.Run("basic", func(t *testing.T) {
		stats := Calculate([]string{"1억", "3억", "2억"})
		if stats == nil {
			t.Fatal("expected stats, got nil")
		}
		if stats.Avg != 200000000 {
			t.Errorf("Avg = %d, want 200000000", stats.Avg)
		}
		if stats.Min != 100000000 || stats.Max != 300000000 {
			t.Errorf("Min/Max = %d/%d, want 100000000/300000000", stats.Min, stats.Max)
		}
		if stats.AvgFormatted != "2억" {
			t.Errorf("AvgFormatted = %q, want %q", stats.AvgFormatted, "2억")
		}
	})

	t.Run("zero prices excluded", func(t *testing.T) {
		stats := Calculate([]string{"-", "", "1억"})
		if stats == nil {
			t.Fatal("expected stats, got nil")
		}
		if stats.Avg != 100000000 {
			t.Errorf("Avg = %d, want 100000000", stats.Avg)
		}
	})

	t.Run("all unparseable", func(t *testing.T) {
		if stats := Calculate([]string{"-", ""}); stats != nil {
			t.Errorf("expected nil, got %+v", stats)
		}
	})

	t.Run("empty input", func(t *testing.T) {
		if stats := Calculate(nil); stats != nil {
			t.Errorf("expected nil, got %+v", stats)
		}
	})
}

func TestPercentChange(t *testing.T) {
	tests := []struct {
		name string
		cur  *Stats
		prev *Stats
		want float64
	}{
		{"up 10 percent", &Stats{Avg: 110}, &Stats{Avg: 100}, 10.0},
		{"down 5 percent", &Stats{Avg: 95}, &Stats{Avg: 100}, -5.0},
		{"rounded one decimal", &Stats{Avg: 10125}, &Stats{Avg: 10000}, 1.3},
		{"nil current", nil, &Stats{Avg: 100}, 0},
		{"nil previous", &Stats{Avg: 100}, nil, 0},
		{"zero previous avg", &Stats{Avg: 100}, &Stats{Avg: 0}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PercentChange(tt.cur, tt.prev); got != tt.want {
				t.Errorf("PercentChange = %v, want %v", got, tt.want)
			}
		})
	}
}
