// Zipalim - Apartment Complex Listing Monitor
// Copyright 2026 Zipalim Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/zipalim/zipalim

package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/zipalim/zipalim/internal/models"
)

// SQLiteStore implements Store on SQLite via the pure-Go modernc driver.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// OpenSQLite opens (creating if needed) the database at path, applies the
// production pragmas, and ensures the schema.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("storage: mkdir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage: open: %w", err)
	}
	if path == ":memory:" {
		// Each connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 10000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("storage: %s: %w", p, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: apply schema: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: ping: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Ping verifies the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// UpsertComplex inserts or updates a tracked complex.
func (s *SQLiteStore) UpsertComplex(ctx context.Context, c models.Complex) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO complexes (complex_no, name, address, user_id, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(complex_no) DO UPDATE SET
			name = excluded.name,
			address = excluded.address,
			user_id = excluded.user_id`,
		c.ComplexNo, c.Name, c.Address, c.UserID, c.CreatedAt)
	if err != nil {
		return fmt.Errorf("storage: upsert complex %s: %w", c.ComplexNo, err)
	}
	return nil
}

// GetComplex returns one complex or ErrNotFound.
func (s *SQLiteStore) GetComplex(ctx context.Context, complexNo string) (models.Complex, error) {
	var c models.Complex
	err := s.db.QueryRowContext(ctx, `
		SELECT complex_no, name, address, user_id, created_at
		FROM complexes WHERE complex_no = ?`, complexNo).
		Scan(&c.ComplexNo, &c.Name, &c.Address, &c.UserID, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return models.Complex{}, ErrNotFound
	}
	if err != nil {
		return models.Complex{}, fmt.Errorf("storage: get complex %s: %w", complexNo, err)
	}
	return c, nil
}

// ListComplexes returns all tracked complexes ordered by name.
func (s *SQLiteStore) ListComplexes(ctx context.Context) ([]models.Complex, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT complex_no, name, address, user_id, created_at
		FROM complexes ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("storage: list complexes: %w", err)
	}
	defer rows.Close()

	var out []models.Complex
	for rows.Next() {
		var c models.Complex
		if err := rows.Scan(&c.ComplexNo, &c.Name, &c.Address, &c.UserID, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("storage: scan complex: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// DeleteComplex removes a complex and its persisted listings.
func (s *SQLiteStore) DeleteComplex(ctx context.Context, complexNo string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage: begin: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM complexes WHERE complex_no = ?`, complexNo)
	if err != nil {
		return fmt.Errorf("storage: delete complex %s: %w", complexNo, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM listings WHERE complex_no = ?`, complexNo); err != nil {
		return fmt.Errorf("storage: delete listings for %s: %w", complexNo, err)
	}
	return tx.Commit()
}

// ListingsByComplex returns the persisted listings for one complex.
func (s *SQLiteStore) ListingsByComplex(ctx context.Context, complexNo string) ([]models.Listing, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT listing_no, complex_no, trade_type, price, rent_price, area,
		       floor_info, direction, last_seen_at
		FROM listings WHERE complex_no = ?`, complexNo)
	if err != nil {
		return nil, fmt.Errorf("storage: listings for %s: %w", complexNo, err)
	}
	defer rows.Close()

	var out []models.Listing
	for rows.Next() {
		var l models.Listing
		if err := rows.Scan(&l.ListingNo, &l.ComplexNo, &l.TradeType, &l.Price, &l.RentPrice,
			&l.Area, &l.FloorInfo, &l.Direction, &l.LastSeenAt); err != nil {
			return nil, fmt.Errorf("storage: scan listing: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// ReplaceListings atomically replaces the persisted listing state of a
// complex with the given snapshot contents.
func (s *SQLiteStore) ReplaceListings(ctx context.Context, complexNo string, listings []models.Listing) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage: begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM listings WHERE complex_no = ?`, complexNo); err != nil {
		return fmt.Errorf("storage: clear listings for %s: %w", complexNo, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO listings (listing_no, complex_no, trade_type, price, rent_price,
		                      area, floor_info, direction, last_seen_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("storage: prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, l := range listings {
		if _, err := stmt.ExecContext(ctx, l.ListingNo, complexNo, l.TradeType, l.Price,
			l.RentPrice, l.Area, l.FloorInfo, l.Direction, l.LastSeenAt); err != nil {
			return fmt.Errorf("storage: insert listing %s: %w", l.ListingNo, err)
		}
	}
	return tx.Commit()
}
