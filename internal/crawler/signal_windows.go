// Zipalim - Apartment Complex Listing Monitor
// Copyright 2026 Zipalim Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/zipalim/zipalim

//go:build windows

package crawler

import "os"

// Windows has no SIGTERM; Kill is the only portable termination.
var termSignal = os.Kill
