// Zipalim - Apartment Complex Listing Monitor
// Copyright 2026 Zipalim Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/zipalim/zipalim

package notify

import (
	"fmt"
	"strings"

	"github.com/zipalim/zipalim/internal/alerting"
	"github.com/zipalim/zipalim/internal/models"
	"github.com/zipalim/zipalim/internal/price"
)

// maxBodyLines caps the per-listing detail lines in a composed message;
// anything beyond is folded into a trailing count.
const maxBodyLines = 20

// Message is a composed notification, rendered once per match and handed to
// every enabled channel.
type Message struct {
	Title   string
	Summary string
	Body    string
	// Match carries the structured changes for channels with structured
	// payloads (webhook, Discord).
	Match alerting.Match
}

// Compose renders the notification for one alert match. The title names the
// alert, the summary counts changes by kind, and the body lists individual
// listings with display-formatted prices.
func Compose(m alerting.Match) Message {
	var parts []string
	if n := len(m.NewListings); n > 0 {
		parts = append(parts, fmt.Sprintf("신규 %d건", n))
	}
	if n := len(m.RemovedListings); n > 0 {
		parts = append(parts, fmt.Sprintf("삭제 %d건", n))
	}
	if n := len(m.PriceChanged); n > 0 {
		parts = append(parts, fmt.Sprintf("가격변동 %d건", n))
	}
	summary := strings.Join(parts, " · ")

	var lines []string
	for _, l := range m.NewListings {
		lines = append(lines, "[신규] "+listingLine(l))
	}
	for _, l := range m.RemovedListings {
		lines = append(lines, "[삭제] "+listingLine(l))
	}
	for _, pc := range m.PriceChanged {
		lines = append(lines, "[가격] "+priceChangeLine(pc))
	}
	if len(lines) > maxBodyLines {
		folded := len(lines) - maxBodyLines
		lines = append(lines[:maxBodyLines], fmt.Sprintf("외 %d건", folded))
	}

	return Message{
		Title:   fmt.Sprintf("%s: %s", m.Alert.Name, summary),
		Summary: summary,
		Body:    strings.Join(lines, "\n"),
		Match:   m,
	}
}

// listingLine renders one listing as a single display line.
func listingLine(l models.Listing) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s %s", l.ListingNo, tradeLabel(l.TradeType), displayPrice(l))
	if l.Area > 0 {
		fmt.Fprintf(&b, " · %.1f㎡", l.Area)
	}
	if l.FloorInfo != "" {
		fmt.Fprintf(&b, " %s층", strings.TrimSuffix(l.FloorInfo, "층"))
	}
	return b.String()
}

// priceChangeLine renders an old-to-new price move with a percentage.
func priceChangeLine(pc models.PriceChange) string {
	oldWon, newWon := pc.Old.PriceWon(), pc.New.PriceWon()
	line := fmt.Sprintf("%s %s %s → %s",
		pc.New.ListingNo, tradeLabel(pc.New.TradeType),
		displayPrice(pc.Old), displayPrice(pc.New))
	if oldWon > 0 && newWon != oldWon {
		pct := float64(newWon-oldWon) / float64(oldWon) * 100
		line += fmt.Sprintf(" (%+.1f%%)", pct)
	}
	return line
}

// displayPrice formats the canonical won value, with the monthly rent
// portion appended as deposit/rent when present.
func displayPrice(l models.Listing) string {
	s := price.FormatWon(l.PriceWon())
	if rent := l.RentWon(); rent > 0 {
		s += "/" + price.FormatWon(rent)
	}
	return s
}

func tradeLabel(t models.TradeType) string {
	switch t {
	case models.TradeTypeSale:
		return "매매"
	case models.TradeTypeLease:
		return "전세"
	case models.TradeTypeMonthly:
		return "월세"
	default:
		return string(t)
	}
}
