// Zipalim - Apartment Complex Listing Monitor
// Copyright 2026 Zipalim Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/zipalim/zipalim

// Package price parses and formats Korean real-estate price strings and
// computes aggregate statistics. All comparisons in the pipeline use the
// canonical integer won value, never the display string.
package price

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	eokPattern  = regexp.MustCompile(`(\d+)억`)
	manPattern  = regexp.MustCompile(`억([\d,]+)`)
	barePattern = regexp.MustCompile(`^([\d,]+)$`)
)

// ParseWon converts a published price string to integer won.
//
//	"3억 5,000" -> 350000000
//	"1억"       -> 100000000
//	"5,000"     -> 50000000  (bare numbers are 만원 units)
//	"-" / ""    -> 0
//
// Unparseable input yields 0; the pipeline treats 0 as "no price".
func ParseWon(s string) int64 {
	if s == "" || s == "-" {
		return 0
	}
	clean := strings.ReplaceAll(s, " ", "")

	var total int64
	eok := eokPattern.FindStringSubmatch(clean)
	if eok != nil {
		n, _ := strconv.ParseInt(eok[1], 10, 64)
		total += n * 100_000_000
	}
	if man := manPattern.FindStringSubmatch(clean); man != nil {
		n, _ := strconv.ParseInt(strings.ReplaceAll(man[1], ",", ""), 10, 64)
		total += n * 10_000
	} else if eok == nil {
		if bare := barePattern.FindStringSubmatch(clean); bare != nil {
			n, _ := strconv.ParseInt(strings.ReplaceAll(bare[1], ",", ""), 10, 64)
			total = n * 10_000
		}
	}
	return total
}

// FormatWon renders integer won back to the compact display form used by the
// upstream portal: 350000000 -> "3억 5,000". Zero renders as "-".
func FormatWon(won int64) string {
	if won == 0 {
		return "-"
	}
	eok := won / 100_000_000
	man := (won % 100_000_000) / 10_000

	switch {
	case eok > 0 && man > 0:
		return strconv.FormatInt(eok, 10) + "억 " + groupDigits(man)
	case eok > 0:
		return strconv.FormatInt(eok, 10) + "억"
	default:
		return groupDigits(man)
	}
}

// FormatWonLong renders the long display form with unit suffixes:
// 325000000 -> "3억 2,500만원".
func FormatWonLong(won int64) string {
	eok := won / 100_000_000
	man := (won % 100_000_000) / 10_000

	switch {
	case eok > 0 && man > 0:
		return strconv.FormatInt(eok, 10) + "억 " + groupDigits(man) + "만원"
	case eok > 0:
		return strconv.FormatInt(eok, 10) + "억원"
	default:
		return groupDigits(man) + "만원"
	}
}

func groupDigits(n int64) string {
	s := strconv.FormatInt(n, 10)
	if len(s) <= 3 {
		return s
	}
	var b strings.Builder
	lead := len(s) % 3
	if lead > 0 {
		b.WriteString(s[:lead])
	}
	for i := lead; i < len(s); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}
	return b.String()
}

// Stats summarizes a set of prices in won. Formatted fields use the compact
// display form.
type Stats struct {
	Avg          int64  `json:"avg"`
	Min          int64  `json:"min"`
	Max          int64  `json:"max"`
	AvgFormatted string `json:"avg_formatted"`
	MinFormatted string `json:"min_formatted"`
	MaxFormatted string `json:"max_formatted"`
}

// Calculate computes statistics over published price strings. Entries that
// parse to zero are excluded. Returns nil when nothing remains.
func Calculate(prices []string) *Stats {
	var won []int64
	for _, p := range prices {
		if v := ParseWon(p); v > 0 {
			won = append(won, v)
		}
	}
	if len(won) == 0 {
		return nil
	}

	var sum int64
	min, max := won[0], won[0]
	for _, v := range won {
		sum += v
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	avg := sum / int64(len(won))
	return &Stats{
		Avg:          avg,
		Min:          min,
		Max:          max,
		AvgFormatted: FormatWon(avg),
		MinFormatted: FormatWon(min),
		MaxFormatted: FormatWon(max),
	}
}

// PercentChange returns the average-price change from prev to cur as a
// percentage rounded to one decimal place. Either side missing yields 0.
func PercentChange(cur, prev *Stats) float64 {
	if cur == nil || prev == nil || prev.Avg == 0 {
		return 0
	}
	change := float64(cur.Avg-prev.Avg) / float64(prev.Avg) * 100
	return float64(int64(change*10+sign(change)*0.5)) / 10
}

func sign(f float64) float64 {
	if f < 0 {
		return -1
	}
	return 1
}
