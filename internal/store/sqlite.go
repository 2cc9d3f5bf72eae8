package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.

	"github.com/f-sync/followdiff/internal/connections"
)

const (
	driverName                 = "sqlite"
	errMessageUnknownDirection = "unknown connection direction"
	errMessageOpenDatabase     = "store: open database"
	errMessageEnableWAL        = "store: enable WAL mode"
	errMessageBusyTimeout      = "store: set busy timeout"
	errMessageCreateSchema     = "store: create schema"
	errFormatLoadSequence      = "store: load %s"
	errFormatReplaceSequence   = "store: replace %s"
	errMessageBeginReplace     = "store: begin replace"
	errMessageCommitReplace    = "store: commit replace"
	errFormatRemoveUsername    = "store: remove %s from %s"
	errMessageClear            = "store: clear"
)

// ErrUnknownDirection is returned for a direction other than following or followers.
var ErrUnknownDirection = errors.New(errMessageUnknownDirection)

// schema is executed on every open; IF NOT EXISTS keeps it idempotent.
const schema = `
CREATE TABLE IF NOT EXISTS connections (
    direction   TEXT    NOT NULL,
    position    INTEGER NOT NULL,
    username    TEXT    NOT NULL,
    profile_url TEXT    NOT NULL,
    observed_at INTEGER NOT NULL,
    PRIMARY KEY (direction, username)
);

CREATE INDEX IF NOT EXISTS connections_direction_position ON connections (direction, position);
`

// Store persists the two named connection sequences.
type Store interface {
	Load(ctx context.Context, direction connections.Direction) ([]connections.Record, error)
	Replace(ctx context.Context, direction connections.Direction, records []connections.Record) error
	ReplaceAll(ctx context.Context, sequences map[connections.Direction][]connections.Record) error
	Remove(ctx context.Context, direction connections.Direction, username string) (bool, error)
	Clear(ctx context.Context) error
}

// SQLiteStore implements Store on a local SQLite database in WAL mode.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// Open opens (or creates) the database at path and prepares the schema.
func Open(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sql.Open(driverName, path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errMessageOpenDatabase, err)
	}

	// SQLite has a single writer; one pooled connection keeps the PRAGMAs in effect.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("%s: %w", errMessageEnableWAL, err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("%s: %w", errMessageBusyTimeout, err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("%s: %w", errMessageCreateSchema, err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close releases the database handle.
func (store *SQLiteStore) Close() error {
	return store.db.Close()
}

// Load returns the stored sequence for direction in its saved order.
func (store *SQLiteStore) Load(ctx context.Context, direction connections.Direction) ([]connections.Record, error) {
	if err := validateDirection(direction); err != nil {
		return nil, err
	}
	const query = `
		SELECT username, profile_url, observed_at
		FROM connections
		WHERE direction = ?
		ORDER BY position`
	rows, err := store.db.QueryContext(ctx, query, string(direction))
	if err != nil {
		return nil, fmt.Errorf(errFormatLoadSequence+": %w", direction, err)
	}
	defer rows.Close()

	records := []connections.Record{}
	for rows.Next() {
		var record connections.Record
		if err := rows.Scan(&record.Username, &record.ProfileURL, &record.ObservedAt); err != nil {
			return nil, fmt.Errorf(errFormatLoadSequence+": %w", direction, err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf(errFormatLoadSequence+": %w", direction, err)
	}
	return records, nil
}

// Replace swaps the stored sequence for direction with records in a single transaction.
// Records are expected to be canonical; a repeated username keeps its latest data.
func (store *SQLiteStore) Replace(ctx context.Context, direction connections.Direction, records []connections.Record) error {
	return store.ReplaceAll(ctx, map[connections.Direction][]connections.Record{direction: records})
}

// ReplaceAll swaps every sequence named in sequences within one transaction, so either all of
// them are written or none is. Directions absent from sequences are left untouched.
func (store *SQLiteStore) ReplaceAll(ctx context.Context, sequences map[connections.Direction][]connections.Record) error {
	for direction := range sequences {
		if err := validateDirection(direction); err != nil {
			return err
		}
	}
	tx, err := store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%s: %w", errMessageBeginReplace, err)
	}
	defer tx.Rollback() //nolint:errcheck

	for _, direction := range connections.Directions() {
		records, requested := sequences[direction]
		if !requested {
			continue
		}
		if err := replaceWithin(ctx, tx, direction, records); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%s: %w", errMessageCommitReplace, err)
	}
	return nil
}

func replaceWithin(ctx context.Context, tx *sql.Tx, direction connections.Direction, records []connections.Record) error {
	if _, err := tx.ExecContext(ctx, "DELETE FROM connections WHERE direction = ?", string(direction)); err != nil {
		return fmt.Errorf(errFormatReplaceSequence+": %w", direction, err)
	}

	const insert = `
		INSERT INTO connections (direction, position, username, profile_url, observed_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(direction, username) DO UPDATE SET
			profile_url = excluded.profile_url,
			observed_at = excluded.observed_at`
	statement, err := tx.PrepareContext(ctx, insert)
	if err != nil {
		return fmt.Errorf(errFormatReplaceSequence+": %w", direction, err)
	}
	defer statement.Close()

	for position, record := range records {
		if _, err := statement.ExecContext(ctx, string(direction), position, record.Username, record.ProfileURL, record.ObservedAt); err != nil {
			return fmt.Errorf(errFormatReplaceSequence+": %w", direction, err)
		}
	}
	return nil
}

// Remove deletes username from the sequence for direction and reports whether it was present.
func (store *SQLiteStore) Remove(ctx context.Context, direction connections.Direction, username string) (bool, error) {
	if err := validateDirection(direction); err != nil {
		return false, err
	}
	result, err := store.db.ExecContext(ctx, "DELETE FROM connections WHERE direction = ? AND username = ?", string(direction), username)
	if err != nil {
		return false, fmt.Errorf(errFormatRemoveUsername+": %w", username, direction, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf(errFormatRemoveUsername+": %w", username, direction, err)
	}
	return affected > 0, nil
}

// Clear empties both sequences.
func (store *SQLiteStore) Clear(ctx context.Context) error {
	if _, err := store.db.ExecContext(ctx, "DELETE FROM connections"); err != nil {
		return fmt.Errorf("%s: %w", errMessageClear, err)
	}
	return nil
}

func validateDirection(direction connections.Direction) error {
	switch direction {
	case connections.DirectionFollowing, connections.DirectionFollowers:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownDirection, direction)
	}
}
