// Package state manages the SQLite database that keeps an offline snapshot
// of the collection, the wishlist and the exclusion side-table.
//
// Only this package may open or query the database. All other packages receive
// a [*Store] and call its methods.
package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/njoerd114/bdcollect/internal/catalog"
	"github.com/njoerd114/bdcollect/internal/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS albums (
    list         TEXT    NOT NULL,
    position     INTEGER NOT NULL,
    work_id      INTEGER NOT NULL,
    edition_id   INTEGER NOT NULL,
    title        TEXT    NOT NULL DEFAULT '',
    series_id    INTEGER NOT NULL DEFAULT 0,
    tome         INTEGER,
    cover        TEXT    NOT NULL DEFAULT '',
    rating       REAL,
    flags        TEXT    NOT NULL DEFAULT '',
    content_hash TEXT    NOT NULL DEFAULT '',
    PRIMARY KEY (list, work_id, edition_id)
);

CREATE INDEX IF NOT EXISTS idx_albums_position ON albums (list, position);

CREATE TABLE IF NOT EXISTS exclusions (
    work_id    INTEGER NOT NULL,
    edition_id INTEGER NOT NULL,
    PRIMARY KEY (work_id, edition_id)
);

CREATE TABLE IF NOT EXISTS meta (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
`

const metaLastRefresh = "last_refresh"

// Store is the SQLite-backed offline cache.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the SQLite database at path, applies the schema, and
// configures WAL mode for better concurrent read performance.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening database %q: %w", path, err)
	}

	// Single writer to avoid SQLITE_BUSY under WAL.
	db.SetMaxOpenConns(1)

	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(schema)
	return err
}

// --- Lists -------------------------------------------------------------------

// SaveList replaces the snapshot of one list. Order is kept via the position
// column so a warm start restores the server's order.
func (s *Store) SaveList(ctx context.Context, kind catalog.Kind, items []model.Album) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM albums WHERE list = ?`, string(kind)); err != nil {
			return fmt.Errorf("clearing %s: %w", kind, err)
		}
		stmt, err := tx.PrepareContext(ctx, `
			INSERT OR REPLACE INTO albums
			    (list, position, work_id, edition_id, title, series_id,
			     tome, cover, rating, flags, content_hash)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("preparing insert: %w", err)
		}
		defer func() { _ = stmt.Close() }()

		for i := range items {
			a := &items[i]
			var tome sql.NullInt64
			if a.Tome != nil {
				tome = sql.NullInt64{Int64: int64(*a.Tome), Valid: true}
			}
			var rating sql.NullFloat64
			if a.Rating != nil {
				rating = sql.NullFloat64{Float64: *a.Rating, Valid: true}
			}
			if _, err := stmt.ExecContext(ctx,
				string(kind), i, a.ID.WorkID, a.ID.EditionID, a.Title, a.SeriesID,
				tome, a.Cover, rating, encodeFlags(a.Flags), a.ContentHash(),
			); err != nil {
				return fmt.Errorf("saving album %s: %w", a.ID, err)
			}
		}
		return nil
	})
}

// LoadList returns the snapshot of one list in saved order.
func (s *Store) LoadList(ctx context.Context, kind catalog.Kind) ([]model.Album, error) {
	const q = `
		SELECT work_id, edition_id, title, series_id, tome, cover, rating, flags
		FROM albums WHERE list = ? ORDER BY position`
	rows, err := s.db.QueryContext(ctx, q, string(kind))
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", kind, err)
	}
	defer func() { _ = rows.Close() }()

	var items []model.Album
	for rows.Next() {
		a, err := scanAlbum(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, a)
	}
	return items, rows.Err()
}

// --- Exclusions --------------------------------------------------------------

// SaveExclusions replaces the exclusion side-table snapshot.
func (s *Store) SaveExclusions(ctx context.Context, ids []model.Identity) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM exclusions`); err != nil {
			return fmt.Errorf("clearing exclusions: %w", err)
		}
		for _, id := range ids {
			if _, err := tx.ExecContext(ctx,
				`INSERT OR IGNORE INTO exclusions (work_id, edition_id) VALUES (?, ?)`,
				id.WorkID, id.EditionID,
			); err != nil {
				return fmt.Errorf("saving exclusion %s: %w", id, err)
			}
		}
		return nil
	})
}

// LoadExclusions returns every excluded identity.
func (s *Store) LoadExclusions(ctx context.Context) ([]model.Identity, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT work_id, edition_id FROM exclusions ORDER BY work_id, edition_id`)
	if err != nil {
		return nil, fmt.Errorf("querying exclusions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []model.Identity
	for rows.Next() {
		var id model.Identity
		if err := rows.Scan(&id.WorkID, &id.EditionID); err != nil {
			return nil, fmt.Errorf("scanning exclusion row: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// --- Meta --------------------------------------------------------------------

// SetLastRefresh records the time of the last successful refresh.
func (s *Store) SetLastRefresh(ctx context.Context, t time.Time) error {
	const q = `
		INSERT INTO meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`
	if _, err := s.db.ExecContext(ctx, q, metaLastRefresh, formatTime(t)); err != nil {
		return fmt.Errorf("recording last refresh: %w", err)
	}
	return nil
}

// LastRefresh returns the time of the last successful refresh, or the zero
// time if there never was one.
func (s *Store) LastRefresh(ctx context.Context) (time.Time, error) {
	var v string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = ?`, metaLastRefresh).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("reading last refresh: %w", err)
	}
	return parseTime(v)
}

// Clear wipes every table. Used on logout.
func (s *Store) Clear(ctx context.Context) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		for _, table := range []string{"albums", "exclusions", "meta"} {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
				return fmt.Errorf("clearing %s: %w", table, err)
			}
		}
		return nil
	})
}

// IsEmpty reports whether no list has been cached yet.
func (s *Store) IsEmpty(ctx context.Context) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM albums`).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("checking if cache is empty: %w", err)
	}
	return count == 0, nil
}

// --- helpers -----------------------------------------------------------------

func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// scanner matches both *sql.Row and *sql.Rows so scanAlbum can be reused.
type scanner interface {
	Scan(dest ...any) error
}

func scanAlbum(s scanner) (model.Album, error) {
	var (
		a      model.Album
		tome   sql.NullInt64
		rating sql.NullFloat64
		flags  string
	)
	err := s.Scan(
		&a.ID.WorkID,
		&a.ID.EditionID,
		&a.Title,
		&a.SeriesID,
		&tome,
		&a.Cover,
		&rating,
		&flags,
	)
	if err != nil {
		return model.Album{}, fmt.Errorf("scanning album row: %w", err)
	}
	if tome.Valid {
		t := int(tome.Int64)
		a.Tome = &t
	}
	if rating.Valid {
		r := rating.Float64
		a.Rating = &r
	}
	a.Flags = decodeFlags(flags)
	return a, nil
}

// encodeFlags stores one character per flag in [model.AllFlags] order:
// the wire letter, or '-' when absent.
func encodeFlags(fs model.FlagSet) string {
	var b strings.Builder
	for _, f := range model.AllFlags() {
		w := fs.State(f).Wire()
		if w == "" {
			w = "-"
		}
		b.WriteString(w)
	}
	return b.String()
}

func decodeFlags(s string) model.FlagSet {
	var fs model.FlagSet
	for i, f := range model.AllFlags() {
		if i >= len(s) {
			break
		}
		fs = fs.WithState(f, model.ParseTriState(s[i:i+1]))
	}
	return fs
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}
