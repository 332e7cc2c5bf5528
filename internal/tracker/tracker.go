// Zipalim - Apartment Complex Listing Monitor
// Copyright 2026 Zipalim Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/zipalim/zipalim

// Package tracker diffs fresh crawl snapshots against the persisted listing
// state of a complex.
package tracker

import (
	"context"
	"fmt"

	"github.com/zipalim/zipalim/internal/models"
	"github.com/zipalim/zipalim/internal/storage"
)

// Detector computes change sets. It only reads from the store; committing
// the snapshot as the new persisted state is the caller's job, so the caller
// controls the serialization of diff-and-persist per complex.
type Detector struct {
	store storage.ListingStore
}

// NewDetector returns a Detector reading previous state from store.
func NewDetector(store storage.ListingStore) *Detector {
	return &Detector{store: store}
}

// DetectChanges compares the snapshot against the persisted listings of the
// complex. Listings are keyed by ListingNo; prices are compared through
// their canonical won value, never through the display string. A first crawl
// (no persisted state) reports every listing as new.
func (d *Detector) DetectChanges(ctx context.Context, complexNo string, snap models.Snapshot) (models.ChangeSet, error) {
	previous, err := d.store.ListingsByComplex(ctx, complexNo)
	if err != nil {
		return models.ChangeSet{}, fmt.Errorf("tracker: load previous listings for %s: %w", complexNo, err)
	}

	previousMap := make(map[string]models.Listing, len(previous))
	for _, l := range previous {
		previousMap[l.ListingNo] = l
	}
	currentMap := make(map[string]struct{}, len(snap.Listings))
	for _, l := range snap.Listings {
		currentMap[l.ListingNo] = struct{}{}
	}

	cs := models.ChangeSet{ComplexNo: complexNo}

	for _, cur := range snap.Listings {
		prev, ok := previousMap[cur.ListingNo]
		if !ok {
			cs.NewListings = append(cs.NewListings, cur)
			continue
		}
		if priceDiffers(prev, cur) {
			cs.PriceChanged = append(cs.PriceChanged, models.PriceChange{Old: prev, New: cur})
		} else {
			cs.UnchangedCount++
		}
	}

	for _, prev := range previous {
		if _, ok := currentMap[prev.ListingNo]; !ok {
			cs.RemovedListings = append(cs.RemovedListings, prev)
		}
	}

	return cs, nil
}

// priceDiffers compares the canonical won values of the main price and, for
// monthly listings, the rent portion.
func priceDiffers(prev, cur models.Listing) bool {
	if prev.PriceWon() != cur.PriceWon() {
		return true
	}
	return prev.RentWon() != cur.RentWon()
}
