// Zipalim - Apartment Complex Listing Monitor
// Copyright 2026 Zipalim Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/zipalim/zipalim

//go:build unix

package crawler

import "syscall"

var termSignal = syscall.SIGTERM
