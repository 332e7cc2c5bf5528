// Zipalim - Apartment Complex Listing Monitor
// Copyright 2026 Zipalim Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/zipalim/zipalim

// Package models defines the core domain types shared across the pipeline.
package models

import (
	"time"

	"github.com/zipalim/zipalim/internal/price"
)

// TradeType categorizes how a listing is offered.
type TradeType string

const (
	TradeTypeSale    TradeType = "sale"    // 매매
	TradeTypeLease   TradeType = "lease"   // 전세
	TradeTypeMonthly TradeType = "monthly" // 월세
)

// Complex is a tracked apartment complex, identified by the upstream
// portal's stable complex number.
type Complex struct {
	ComplexNo string    `json:"complex_no"`
	Name      string    `json:"name"`
	Address   string    `json:"address,omitempty"`
	UserID    string    `json:"user_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Listing is one offer observed within a complex during a crawl.
// A listing is never mutated in place: a price change is represented by a
// new record superseding the old one under the same ListingNo.
type Listing struct {
	ListingNo  string    `json:"listing_no"`
	ComplexNo  string    `json:"complex_no"`
	TradeType  TradeType `json:"trade_type"`
	Price      string    `json:"price"`                // as published, e.g. "3억 5,000"
	RentPrice  string    `json:"rent_price,omitempty"` // monthly rent portion, if any
	Area       float64   `json:"area"`                 // exclusive area in m²
	FloorInfo  string    `json:"floor_info,omitempty"`
	Direction  string    `json:"direction,omitempty"`
	LastSeenAt time.Time `json:"last_seen_at"`
}

// PriceWon returns the canonical integer won amount for the listing's
// published price string. Comparison of listings always goes through this
// normalization, never through the display string.
func (l Listing) PriceWon() int64 {
	return price.ParseWon(l.Price)
}

// RentWon returns the canonical integer won amount of the monthly rent
// portion, zero when the listing has none.
func (l Listing) RentWon() int64 {
	return price.ParseWon(l.RentPrice)
}

// Snapshot is the complete set of listings observed for one complex in one
// crawl cycle. It is produced by the external crawler and consumed once.
type Snapshot struct {
	ComplexNo  string    `json:"complex_no"`
	Listings   []Listing `json:"listings"`
	CapturedAt time.Time `json:"captured_at"`
}

// PriceChange pairs the previously persisted listing with the newly
// observed one for the same ListingNo.
type PriceChange struct {
	Old Listing `json:"old"`
	New Listing `json:"new"`
}

// ChangeSet is the result of diffing a fresh snapshot against the persisted
// listings of a complex. Derived, immutable once computed, never persisted.
type ChangeSet struct {
	ComplexNo       string        `json:"complex_no"`
	NewListings     []Listing     `json:"new_listings"`
	RemovedListings []Listing     `json:"removed_listings"`
	PriceChanged    []PriceChange `json:"price_changed"`
	UnchangedCount  int           `json:"unchanged_count"`
}

// Empty reports whether the change set carries no changes at all.
func (c *ChangeSet) Empty() bool {
	return len(c.NewListings) == 0 && len(c.RemovedListings) == 0 && len(c.PriceChanged) == 0
}
