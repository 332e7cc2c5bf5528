// Zipalim - Apartment Complex Listing Monitor
// Copyright 2026 Zipalim Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/zipalim/zipalim

package storage

// schema is applied on open. List-valued columns (complex_nos, channels,
// trade_types) hold JSON arrays.
const schema = `
CREATE TABLE IF NOT EXISTS complexes (
    complex_no TEXT PRIMARY KEY,
    name       TEXT NOT NULL,
    address    TEXT NOT NULL DEFAULT '',
    user_id    TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS listings (
    listing_no   TEXT NOT NULL,
    complex_no   TEXT NOT NULL,
    trade_type   TEXT NOT NULL,
    price        TEXT NOT NULL,
    rent_price   TEXT NOT NULL DEFAULT '',
    area         REAL NOT NULL DEFAULT 0,
    floor_info   TEXT NOT NULL DEFAULT '',
    direction    TEXT NOT NULL DEFAULT '',
    last_seen_at TIMESTAMP NOT NULL,
    PRIMARY KEY (complex_no, listing_no)
);
CREATE INDEX IF NOT EXISTS idx_listings_complex ON listings(complex_no);

CREATE TABLE IF NOT EXISTS alerts (
    id                  TEXT PRIMARY KEY,
    user_id             TEXT NOT NULL DEFAULT '',
    name                TEXT NOT NULL,
    complex_nos         TEXT NOT NULL,
    trade_types         TEXT NOT NULL DEFAULT '[]',
    min_price           INTEGER,
    max_price           INTEGER,
    min_area            REAL,
    max_area            REAL,
    channels            TEXT NOT NULL,
    email               TEXT NOT NULL DEFAULT '',
    webhook_url         TEXT NOT NULL DEFAULT '',
    discord_webhook_url TEXT NOT NULL DEFAULT '',
    is_active           INTEGER NOT NULL DEFAULT 1,
    created_at          TIMESTAMP NOT NULL,
    updated_at          TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS notification_logs (
    id         TEXT PRIMARY KEY,
    alert_id   TEXT NOT NULL,
    channel    TEXT NOT NULL,
    status     TEXT NOT NULL,
    message    TEXT NOT NULL,
    listing_no TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_notification_logs_alert ON notification_logs(alert_id, created_at);

CREATE TABLE IF NOT EXISTS schedules (
    id            TEXT PRIMARY KEY,
    name          TEXT NOT NULL,
    cron_expr     TEXT NOT NULL,
    complex_nos   TEXT NOT NULL DEFAULT '[]',
    use_favorites INTEGER NOT NULL DEFAULT 0,
    user_id       TEXT NOT NULL DEFAULT '',
    is_active     INTEGER NOT NULL DEFAULT 1,
    last_run_at   TIMESTAMP,
    next_run_at   TIMESTAMP,
    created_at    TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS schedule_logs (
    id             INTEGER PRIMARY KEY AUTOINCREMENT,
    schedule_id    TEXT NOT NULL,
    status         TEXT NOT NULL,
    duration_sec   INTEGER NOT NULL DEFAULT 0,
    listings_count INTEGER NOT NULL DEFAULT 0,
    error_message  TEXT NOT NULL DEFAULT '',
    created_at     TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_schedule_logs_schedule ON schedule_logs(schedule_id, created_at);

CREATE TABLE IF NOT EXISTS crawl_history (
    id             TEXT PRIMARY KEY,
    complex_nos    TEXT NOT NULL DEFAULT '[]',
    status         TEXT NOT NULL,
    current_step   TEXT NOT NULL DEFAULT '',
    success_count  INTEGER NOT NULL DEFAULT 0,
    error_count    INTEGER NOT NULL DEFAULT 0,
    total_listings INTEGER NOT NULL DEFAULT 0,
    duration_sec   INTEGER NOT NULL DEFAULT 0,
    error_message  TEXT NOT NULL DEFAULT '',
    schedule_id    TEXT NOT NULL DEFAULT '',
    started_at     TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_crawl_history_started ON crawl_history(started_at);
`
