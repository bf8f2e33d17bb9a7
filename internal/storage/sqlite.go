package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/keshon/kokoroflow/internal/mind"
)

// schemaVersion is the latest schema version. Bump it when adding migrations.
const schemaVersion = 1

// SQLiteStore keeps one row per session holding the JSON-encoded record.
// Indexed columns duplicate the fields the CLI lists by.
type SQLiteStore struct {
	db  *sql.DB
	log zerolog.Logger
}

func OpenSQLite(path string, log zerolog.Logger) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create directory: %w", err)
	}
	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	s := &SQLiteStore{
		db:  db,
		log: log.With().Str("component", "storage").Str("driver", DriverSQLite).Logger(),
	}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	var version int
	if err := s.db.QueryRow("PRAGMA user_version;").Scan(&version); err != nil {
		return fmt.Errorf("read user_version: %w", err)
	}

	if version < 1 {
		schema := `
		CREATE TABLE IF NOT EXISTS sessions (
		  id               TEXT PRIMARY KEY,
		  state            TEXT NOT NULL,
		  last_activity_at INTEGER NOT NULL,
		  updated_at       INTEGER NOT NULL,
		  record           TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_sessions_state ON sessions(state);
		`
		if _, err := s.db.Exec(schema); err != nil {
			return fmt.Errorf("migration 1: %w", err)
		}
	}

	if version < schemaVersion {
		if _, err := s.db.Exec(fmt.Sprintf("PRAGMA user_version=%d", schemaVersion)); err != nil {
			return fmt.Errorf("set user_version: %w", err)
		}
		s.log.Info().Int("from", version).Int("to", schemaVersion).Msg("schema migrated")
	}
	return nil
}

func (s *SQLiteStore) Save(ctx context.Context, rec mind.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	blob, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode %s: %w", rec.ID, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sessions (id, state, last_activity_at, updated_at, record)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
		  state = excluded.state,
		  last_activity_at = excluded.last_activity_at,
		  updated_at = excluded.updated_at,
		  record = excluded.record`,
		rec.ID, string(rec.State), unixOrZero(rec.LastActivityAt), time.Now().Unix(), string(blob))
	if err != nil {
		return fmt.Errorf("upsert %s: %w", rec.ID, err)
	}
	return tx.Commit()
}

func (s *SQLiteStore) Load(ctx context.Context, id string) (mind.Record, bool, error) {
	var blob string
	err := s.db.QueryRowContext(ctx, `SELECT record FROM sessions WHERE id = ?`, id).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return mind.Record{}, false, nil
	}
	if err != nil {
		return mind.Record{}, false, fmt.Errorf("select %s: %w", id, err)
	}
	var rec mind.Record
	if err := json.Unmarshal([]byte(blob), &rec); err != nil {
		return mind.Record{}, false, fmt.Errorf("decode %s: %w", id, err)
	}
	return rec, true, nil
}

func (s *SQLiteStore) List(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM sessions ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func unixOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}
