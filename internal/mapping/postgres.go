package mapping

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	uniqueViolation = "23505"

	postgresSchema = `CREATE TABLE IF NOT EXISTS mappings (
    ordinal_id BIGINT PRIMARY KEY,
    external_key TEXT NOT NULL UNIQUE,
    inserted_at TIMESTAMPTZ NOT NULL
)`
)

// PostgresStore has the same upsert semantics as SQLiteStore.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects to dsn.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	poolConf, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse mapping dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolConf)
	if err != nil {
		return nil, fmt.Errorf("connect mapping database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping mapping database: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// Name identifies the backend.
func (s *PostgresStore) Name() string { return "postgres" }

// Initialize creates the mappings table.
func (s *PostgresStore) Initialize(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, postgresSchema); err != nil {
		return writeErr("postgres", "initialize", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// Add inserts the record, falling back to the same updates as SQLiteStore on
// a unique violation.
func (s *PostgresStore) Add(ctx context.Context, ordinalID int64, key string, at time.Time) error {
	if err := validate(ordinalID, key); err != nil {
		return err
	}
	ts := stamp(at)
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		// The savepoint keeps the outer transaction usable after a violation.
		err := pgx.BeginFunc(ctx, tx, func(sp pgx.Tx) error {
			_, err := sp.Exec(ctx,
				`INSERT INTO mappings (ordinal_id, external_key, inserted_at) VALUES ($1, $2, $3)`,
				ordinalID, key, ts)
			return err
		})
		if err == nil {
			return nil
		}
		if !isUniqueViolation(err) {
			return err
		}
		tag, err := tx.Exec(ctx,
			`UPDATE mappings SET external_key = $1, inserted_at = $2 WHERE ordinal_id = $3`,
			key, ts, ordinalID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() > 0 {
			return nil
		}
		// The key is held by another ordinal; move it and leave that ordinal unmapped.
		_, err = tx.Exec(ctx,
			`UPDATE mappings SET ordinal_id = $1, inserted_at = $2 WHERE external_key = $3`,
			ordinalID, ts, key)
		return err
	})
	if err != nil {
		return writeErr("postgres", "add", err)
	}
	return nil
}

// Load returns every record.
func (s *PostgresStore) Load(ctx context.Context) (map[int64]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT ordinal_id, external_key FROM mappings`)
	if err != nil {
		return nil, fmt.Errorf("load postgres mappings: %w", err)
	}
	records, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Record, error) {
		var rec Record
		err := row.Scan(&rec.OrdinalID, &rec.ExternalKey)
		return rec, err
	})
	if err != nil {
		return nil, fmt.Errorf("load postgres mappings: %w", err)
	}
	out := make(map[int64]string, len(records))
	for _, rec := range records {
		out[rec.OrdinalID] = rec.ExternalKey
	}
	return out, nil
}

// Close releases the pool.
func (s *PostgresStore) Close() error {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
	return nil
}
