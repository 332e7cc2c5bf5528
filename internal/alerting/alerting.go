// Zipalim - Apartment Complex Listing Monitor
// Copyright 2026 Zipalim Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/zipalim/zipalim

// Package alerting matches change sets against user alert definitions.
package alerting

import (
	"context"
	"fmt"

	"github.com/zipalim/zipalim/internal/models"
	"github.com/zipalim/zipalim/internal/storage"
)

// Match is the per-alert slice of a change set: only the changes the alert's
// filter admits. At least one of the three lists is non-empty.
type Match struct {
	Alert           models.AlertDefinition
	NewListings     []models.Listing
	RemovedListings []models.Listing
	PriceChanged    []models.PriceChange
}

// ChangeCount returns the total number of changes in the match.
func (m *Match) ChangeCount() int {
	return len(m.NewListings) + len(m.RemovedListings) + len(m.PriceChanged)
}

// Matcher filters change sets through active alert definitions.
type Matcher struct {
	store storage.AlertStore
}

// NewMatcher returns a Matcher reading alert definitions from store.
func NewMatcher(store storage.AlertStore) *Matcher {
	return &Matcher{store: store}
}

// MatchAlerts evaluates every active alert targeting the complex against the
// change set. Alerts with no admitted changes are omitted. For price
// changes the filter is applied to the new listing.
func (m *Matcher) MatchAlerts(ctx context.Context, complexNo string, cs models.ChangeSet) ([]Match, error) {
	alerts, err := m.store.ActiveAlertsForComplex(ctx, complexNo)
	if err != nil {
		return nil, fmt.Errorf("alerting: load alerts for %s: %w", complexNo, err)
	}

	var out []Match
	for _, alert := range alerts {
		match := Match{Alert: alert}
		for _, l := range cs.NewListings {
			if Matches(l, alert) {
				match.NewListings = append(match.NewListings, l)
			}
		}
		for _, l := range cs.RemovedListings {
			if Matches(l, alert) {
				match.RemovedListings = append(match.RemovedListings, l)
			}
		}
		for _, pc := range cs.PriceChanged {
			if Matches(pc.New, alert) {
				match.PriceChanged = append(match.PriceChanged, pc)
			}
		}
		if match.ChangeCount() > 0 {
			out = append(out, match)
		}
	}
	return out, nil
}

// Matches reports whether the listing passes the alert's filter. It is a
// pure predicate: trade type, price bounds, and area bounds, where a nil
// bound is not applied. Prices compare through the canonical won value.
func Matches(l models.Listing, alert models.AlertDefinition) bool {
	if !alert.WantsTradeType(l.TradeType) {
		return false
	}

	won := l.PriceWon()
	if alert.MinPrice != nil && won < *alert.MinPrice {
		return false
	}
	if alert.MaxPrice != nil && won > *alert.MaxPrice {
		return false
	}

	if alert.MinArea != nil && l.Area < *alert.MinArea {
		return false
	}
	if alert.MaxArea != nil && l.Area > *alert.MaxArea {
		return false
	}

	return true
}
