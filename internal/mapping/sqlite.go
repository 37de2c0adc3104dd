package mapping

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/aprskalo1/UMS/internal/sqliteutil"
)

const sqliteSchema = `CREATE TABLE IF NOT EXISTS mappings (
    ordinal_id INTEGER PRIMARY KEY,
    external_key TEXT NOT NULL UNIQUE,
    inserted_at TEXT NOT NULL
)`

// SQLiteStore keeps one row per ordinal id and per external key.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// OpenSQLite opens the mapping database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sqliteutil.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open mapping database: %w", err)
	}
	return &SQLiteStore{db: db, path: path}, nil
}

// Name identifies the backend.
func (s *SQLiteStore) Name() string { return "sqlite" }

// Initialize creates the mappings table.
func (s *SQLiteStore) Initialize(ctx context.Context) error {
	if err := sqliteutil.RetryOnBusy(ctx, func() error {
		_, err := s.db.ExecContext(ctx, sqliteSchema)
		return err
	}); err != nil {
		return writeErr("sqlite", "initialize", err)
	}
	return nil
}

// Add inserts the record. When the ordinal id already exists its key is
// replaced; when only the key exists that row moves to the new ordinal id.
func (s *SQLiteStore) Add(ctx context.Context, ordinalID int64, key string, at time.Time) error {
	if err := validate(ordinalID, key); err != nil {
		return err
	}
	ts := sqliteutil.FormatTime(stamp(at))
	err := sqliteutil.RetryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		_, err = tx.ExecContext(ctx,
			`INSERT INTO mappings (ordinal_id, external_key, inserted_at) VALUES (?, ?, ?)`,
			ordinalID, key, ts)
		if err != nil {
			if !sqliteutil.IsConstraint(err) {
				return err
			}
			res, err := tx.ExecContext(ctx,
				`UPDATE mappings SET external_key = ?, inserted_at = ? WHERE ordinal_id = ?`,
				key, ts, ordinalID)
			if err != nil {
				return err
			}
			if n, err := res.RowsAffected(); err != nil {
				return err
			} else if n == 0 {
				// The key is held by another ordinal; move it and leave that ordinal unmapped.
				if _, err := tx.ExecContext(ctx,
					`UPDATE mappings SET ordinal_id = ?, inserted_at = ? WHERE external_key = ?`,
					ordinalID, ts, key); err != nil {
					return err
				}
			}
		}
		return tx.Commit()
	})
	if err != nil {
		return writeErr("sqlite", "add", err)
	}
	return nil
}

// Load returns every record.
func (s *SQLiteStore) Load(ctx context.Context) (map[int64]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT ordinal_id, external_key FROM mappings`)
	if err != nil {
		return nil, fmt.Errorf("load sqlite mappings: %w", err)
	}
	defer rows.Close()
	out := make(map[int64]string)
	for rows.Next() {
		var (
			id  int64
			key string
		)
		if err := rows.Scan(&id, &key); err != nil {
			return nil, fmt.Errorf("scan sqlite mapping: %w", err)
		}
		out[id] = key
	}
	return out, rows.Err()
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
