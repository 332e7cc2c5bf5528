// Zipalim - Apartment Complex Listing Monitor
// Copyright 2026 Zipalim Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/zipalim/zipalim

// Package crawler runs the external listing crawler and parses its output.
// The crawler itself (portal access, scraping, throttling) is a separate
// program; this package only executes it and consumes its snapshot document.
package crawler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"github.com/zipalim/zipalim/internal/logging"
	"github.com/zipalim/zipalim/internal/models"
)

var (
	// ErrCrawlTimeout marks a cycle killed by its deadline.
	ErrCrawlTimeout = errors.New("crawler: timed out")
	// ErrCrawlFailed marks a crawler process that exited non-zero or
	// produced an unreadable document.
	ErrCrawlFailed = errors.New("crawler: failed")
)

// Crawler produces one snapshot per requested complex. Implementations must
// honor ctx cancellation.
type Crawler interface {
	Crawl(ctx context.Context, complexNos []string) ([]models.Snapshot, error)
}

// snapshotDoc is the JSON document the crawler writes to stdout.
type snapshotDoc struct {
	Snapshots []models.Snapshot `json:"snapshots"`
}

// Exec runs the crawler as a subprocess. The complex numbers are passed as a
// single comma-joined argument; the process writes the snapshot document to
// stdout and diagnostics to stderr.
type Exec struct {
	Command string
	Args    []string
	// GraceOnKill is how long the process gets after SIGTERM before it is
	// killed. Zero means 10 seconds.
	GraceOnKill time.Duration
}

var _ Crawler = (*Exec)(nil)

// Crawl executes the crawler and parses its output. Deadline or cancellation
// of ctx terminates the process (SIGTERM, then kill after the grace period).
func (e *Exec) Crawl(ctx context.Context, complexNos []string) ([]models.Snapshot, error) {
	if len(complexNos) == 0 {
		return nil, nil
	}

	grace := e.GraceOnKill
	if grace <= 0 {
		grace = 10 * time.Second
	}

	args := append(append([]string{}, e.Args...), strings.Join(complexNos, ","))
	cmd := exec.CommandContext(ctx, e.Command, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.Cancel = func() error {
		return cmd.Process.Signal(termSignal)
	}
	cmd.WaitDelay = grace

	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start)

	if err != nil {
		if ctx.Err() != nil {
			logging.Warn().Dur("elapsed", elapsed).
				Int("complexes", len(complexNos)).
				Msg("crawler killed by deadline")
			return nil, fmt.Errorf("%w after %s: %v", ErrCrawlTimeout, elapsed.Round(time.Second), ctx.Err())
		}
		logging.Error().Err(err).
			Str("stderr", tail(stderr.String(), 2048)).
			Msg("crawler process failed")
		return nil, fmt.Errorf("%w: %v", ErrCrawlFailed, err)
	}

	var doc snapshotDoc
	if err := json.Unmarshal(stdout.Bytes(), &doc); err != nil {
		return nil, fmt.Errorf("%w: decode snapshot document: %v", ErrCrawlFailed, err)
	}

	now := time.Now().UTC()
	for i := range doc.Snapshots {
		if doc.Snapshots[i].CapturedAt.IsZero() {
			doc.Snapshots[i].CapturedAt = now
		}
	}

	logging.Info().Int("complexes", len(complexNos)).
		Int("snapshots", len(doc.Snapshots)).
		Dur("elapsed", elapsed).
		Msg("crawl finished")
	return doc.Snapshots, nil
}

// tail returns at most n trailing bytes of s.
func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
