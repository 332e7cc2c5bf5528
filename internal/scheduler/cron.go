// Zipalim - Apartment Complex Listing Monitor
// Copyright 2026 Zipalim Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/zipalim/zipalim

// Package scheduler owns cron-timed crawl jobs: a registry of per-schedule
// timers and the pipeline one fire runs through.
package scheduler

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidCron marks a malformed cron expression. Expressions are rejected
// at registration time, never coerced.
var ErrInvalidCron = errors.New("scheduler: invalid cron expression")

// CronExpr is a parsed standard 5-field cron expression:
// minute hour day-of-month month day-of-week.
type CronExpr struct {
	minutes     []int // 0-59
	hours       []int // 0-23
	daysOfMonth []int // 1-31
	months      []int // 1-12
	daysOfWeek  []int // 0-6, Sunday is 0
}

// ParseCron parses a 5-field cron expression. Supported per field: "*",
// single values, ranges "n-m", lists "a,b,c", and steps "*/n" or "n-m/s".
// Day-of-week 7 is normalized to Sunday.
func ParseCron(expr string) (*CronExpr, error) {
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return nil, fmt.Errorf("%w: %q has %d fields, want 5", ErrInvalidCron, expr, len(fields))
	}

	minutes, err := parseField(fields[0], 0, 59)
	if err != nil {
		return nil, fmt.Errorf("%w: minute: %v", ErrInvalidCron, err)
	}
	hours, err := parseField(fields[1], 0, 23)
	if err != nil {
		return nil, fmt.Errorf("%w: hour: %v", ErrInvalidCron, err)
	}
	daysOfMonth, err := parseField(fields[2], 1, 31)
	if err != nil {
		return nil, fmt.Errorf("%w: day-of-month: %v", ErrInvalidCron, err)
	}
	months, err := parseField(fields[3], 1, 12)
	if err != nil {
		return nil, fmt.Errorf("%w: month: %v", ErrInvalidCron, err)
	}
	daysOfWeek, err := parseField(fields[4], 0, 7)
	if err != nil {
		return nil, fmt.Errorf("%w: day-of-week: %v", ErrInvalidCron, err)
	}
	for i, d := range daysOfWeek {
		if d == 7 {
			daysOfWeek[i] = 0
		}
	}

	return &CronExpr{
		minutes:     minutes,
		hours:       hours,
		daysOfMonth: daysOfMonth,
		months:      months,
		daysOfWeek:  uniqueSorted(daysOfWeek),
	}, nil
}

// Next returns the first matching time strictly after t, evaluated in loc
// (UTC when nil). The scan is bounded at four years; with any valid
// expression it terminates long before that.
func (c *CronExpr) Next(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	t = t.In(loc).Add(time.Minute)
	t = time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), 0, 0, loc)

	limit := 4 * 366 * 24 * 60
	for i := 0; i < limit; i++ {
		if c.matches(t) {
			return t
		}
		t = t.Add(time.Minute)
	}
	return time.Time{}
}

func (c *CronExpr) matches(t time.Time) bool {
	if !contains(c.minutes, t.Minute()) ||
		!contains(c.hours, t.Hour()) ||
		!contains(c.months, int(t.Month())) {
		return false
	}

	// Standard cron: when both day fields are restricted, either may match.
	domAll := len(c.daysOfMonth) == 31
	dowAll := len(c.daysOfWeek) == 7
	domMatch := contains(c.daysOfMonth, t.Day())
	dowMatch := contains(c.daysOfWeek, int(t.Weekday()))

	switch {
	case domAll && dowAll:
		return true
	case domAll:
		return dowMatch
	case dowAll:
		return domMatch
	default:
		return domMatch || dowMatch
	}
}

func parseField(field string, lo, hi int) ([]int, error) {
	if field == "*" {
		return spanInts(lo, hi), nil
	}
	if strings.Contains(field, ",") {
		var out []int
		for _, part := range strings.Split(field, ",") {
			vals, err := parseFieldPart(part, lo, hi)
			if err != nil {
				return nil, err
			}
			out = append(out, vals...)
		}
		return uniqueSorted(out), nil
	}
	return parseFieldPart(field, lo, hi)
}

func parseFieldPart(part string, lo, hi int) ([]int, error) {
	if base, stepStr, hasStep := strings.Cut(part, "/"); hasStep {
		step, err := strconv.Atoi(stepStr)
		if err != nil || step <= 0 {
			return nil, fmt.Errorf("bad step %q", stepStr)
		}

		start, end := lo, hi
		switch {
		case base == "*":
		case strings.Contains(base, "-"):
			if start, end, err = parseRange(base, lo, hi); err != nil {
				return nil, err
			}
		default:
			if start, err = strconv.Atoi(base); err != nil {
				return nil, fmt.Errorf("bad value %q", base)
			}
		}

		var out []int
		for v := start; v <= end; v += step {
			if v >= lo && v <= hi {
				out = append(out, v)
			}
		}
		if len(out) == 0 {
			return nil, fmt.Errorf("step %q selects nothing", part)
		}
		return out, nil
	}

	if strings.Contains(part, "-") {
		start, end, err := parseRange(part, lo, hi)
		if err != nil {
			return nil, err
		}
		return spanInts(start, end), nil
	}

	v, err := strconv.Atoi(part)
	if err != nil {
		return nil, fmt.Errorf("bad value %q", part)
	}
	if v < lo || v > hi {
		return nil, fmt.Errorf("value %d out of range %d-%d", v, lo, hi)
	}
	return []int{v}, nil
}

func parseRange(s string, lo, hi int) (int, int, error) {
	startStr, endStr, _ := strings.Cut(s, "-")
	start, err := strconv.Atoi(startStr)
	if err != nil {
		return 0, 0, fmt.Errorf("bad range start %q", startStr)
	}
	end, err := strconv.Atoi(endStr)
	if err != nil {
		return 0, 0, fmt.Errorf("bad range end %q", endStr)
	}
	if start > end || start < lo || end > hi {
		return 0, 0, fmt.Errorf("range %d-%d out of bounds %d-%d", start, end, lo, hi)
	}
	return start, end, nil
}

func spanInts(lo, hi int) []int {
	out := make([]int, hi-lo+1)
	for i := range out {
		out[i] = lo + i
	}
	return out
}

func contains(vals []int, v int) bool {
	for _, x := range vals {
		if x == v {
			return true
		}
	}
	return false
}

func uniqueSorted(vals []int) []int {
	seen := make(map[int]struct{}, len(vals))
	out := vals[:0]
	for _, v := range vals {
		if _, ok := seen[v]; !ok {
			seen[v] = struct{}{}
			out = append(out, v)
		}
	}
	sort.Ints(out)
	return out
}
