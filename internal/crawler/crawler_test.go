// Zipalim - Apartment Complex Listing Monitor
// Copyright 2026 Zipalim Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/zipalim/zipalim

package crawler

import (
	"context"
	"errors"
	"runtime"
	"testing"
	"time"

	"github.com/zipalim/zipalim/internal/models"
	"github.com/zipalim/zipalim/internal/storage"
)

func TestExecParsesSnapshotDocument(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("test crawler uses sh")
	}
	doc := `{"snapshots":[{"complex_no":"1001","listings":[` +
		`{"listing_no":"a1","complex_no":"1001","trade_type":"sale","price":"3억 5,000","area":84.9}]}]}`

	e := &Exec{Command: "sh", Args: []string{"-c", "echo '" + doc + "' #"}}
	snaps, err := e.Crawl(context.Background(), []string{"1001"})
	if err != nil {
		t.Fatalf("Crawl: %v", err)
	}
	if len(snaps) != 1 || snaps[0].ComplexNo != "1001" {
		t.Fatalf("snapshots = %+v", snaps)
	}
	if len(snaps[0].Listings) != 1 || snaps[0].Listings[0].PriceWon() != 350000000 {
		t.Errorf("listings = %+v", snaps[0].Listings)
	}
	if snaps[0].CapturedAt.IsZero() {
		t.Error("CapturedAt not defaulted")
	}
}

func TestExecNonZeroExit(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("test crawler uses sh")
	}
	e := &Exec{Command: "sh", Args: []string{"-c", "exit 3 #"}}
	_, err := e.Crawl(context.Background(), []string{"1001"})
	if !errors.Is(err, ErrCrawlFailed) {
		t.Errorf("err = %v, want ErrCrawlFailed", err)
	}
}

func TestExecTimeout(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("test crawler uses sh")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	e := &Exec{Command: "sh", Args: []string{"-c", "sleep 10 #"}, GraceOnKill: 100 * time.Millisecond}
	start := time.Now()
	_, err := e.Crawl(ctx, []string{"1001"})
	if !errors.Is(err, ErrCrawlTimeout) {
		t.Fatalf("err = %v, want ErrCrawlTimeout", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("kill took %v, hard timeout not enforced", elapsed)
	}
}

func TestExecEmptyTargets(t *testing.T) {
	e := &Exec{Command: "false"}
	snaps, err := e.Crawl(context.Background(), nil)
	if err != nil || snaps != nil {
		t.Errorf("empty targets = %v, %v, want nil, nil", snaps, err)
	}
}

func TestStaticTimeout(t *testing.T) {
	cfg := TimeoutConfig{Base: 2 * time.Minute, PerComplex: 30 * time.Second, Max: 30 * time.Minute}
	tests := []struct {
		count int
		want  time.Duration
	}{
		{0, 2 * time.Minute},
		{4, 4 * time.Minute},
		{1000, 30 * time.Minute}, // clamped to ceiling
	}
	for _, tt := range tests {
		if got := StaticTimeout(cfg, tt.count); got != tt.want {
			t.Errorf("StaticTimeout(%d) = %v, want %v", tt.count, got, tt.want)
		}
	}
}

func TestDynamicTimeout(t *testing.T) {
	ctx := context.Background()
	cfg := TimeoutConfig{Base: 2 * time.Minute, PerComplex: 30 * time.Second, Max: 30 * time.Minute}

	t.Run("no history falls back to static", func(t *testing.T) {
		store := storage.NewMemoryStore()
		if got := DynamicTimeout(ctx, store, cfg, 4); got != StaticTimeout(cfg, 4) {
			t.Errorf("got %v, want static fallback", got)
		}
	})

	t.Run("history drives estimate", func(t *testing.T) {
		store := storage.NewMemoryStore()
		// 2 complexes in 60s: 30s per complex observed
		if err := store.CreateCrawlHistory(ctx, models.CrawlHistory{
			ID: "h1", ComplexNos: []string{"1001", "1002"},
			Status: models.CrawlStatusSuccess, DurationSec: 60,
			StartedAt: time.Now().UTC(),
		}); err != nil {
			t.Fatal(err)
		}
		// 4 complexes * 30s * 1.5 + 2m base = 5m
		if got := DynamicTimeout(ctx, store, cfg, 4); got != 5*time.Minute {
			t.Errorf("got %v, want 5m", got)
		}
	})

	t.Run("failed cycles excluded", func(t *testing.T) {
		store := storage.NewMemoryStore()
		if err := store.CreateCrawlHistory(ctx, models.CrawlHistory{
			ID: "h1", ComplexNos: []string{"1001"},
			Status: models.CrawlStatusFailed, DurationSec: 9999,
			StartedAt: time.Now().UTC(),
		}); err != nil {
			t.Fatal(err)
		}
		if got := DynamicTimeout(ctx, store, cfg, 2); got != StaticTimeout(cfg, 2) {
			t.Errorf("got %v, want static fallback", got)
		}
	})
}
