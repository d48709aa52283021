package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/miradorstack/mirador-heal/internal/models"
)

// ResourceName is the resource key under which the record database is
// registered for reconnect corrections.
const ResourceName = "heal-sqlite"

// SQLitePersister writes records through to a SQLite database.
type SQLitePersister struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at path and ensures the schema.
func OpenSQLite(path string) (*SQLitePersister, error) {
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// modernc sqlite serialises writers; a single connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	p, err := NewSQLitePersister(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return p, nil
}

// NewSQLitePersister wraps an existing handle and ensures the schema.
func NewSQLitePersister(db *sql.DB) (*SQLitePersister, error) {
	if db == nil {
		return nil, errors.New("db is nil")
	}
	if err := ensureSchema(db); err != nil {
		return nil, err
	}
	return &SQLitePersister{db: db}, nil
}

func ensureSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS error_records (
			id          TEXT PRIMARY KEY,
			ts_unix_ns  INTEGER NOT NULL,
			type        TEXT NOT NULL,
			severity    TEXT NOT NULL,
			fingerprint TEXT NOT NULL,
			resolved    INTEGER NOT NULL DEFAULT 0,
			payload     TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_error_records_ts ON error_records (ts_unix_ns);
		CREATE INDEX IF NOT EXISTS idx_error_records_fingerprint ON error_records (fingerprint);
	`)
	if err != nil {
		return fmt.Errorf("ensure error_records schema: %w", err)
	}
	return nil
}

// SaveRecords upserts records in a single transaction.
func (p *SQLitePersister) SaveRecords(ctx context.Context, records []models.ErrorRecord) error {
	if len(records) == 0 {
		return nil
	}
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO error_records (id, ts_unix_ns, type, severity, fingerprint, resolved, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			ts_unix_ns = excluded.ts_unix_ns,
			type = excluded.type,
			severity = excluded.severity,
			fingerprint = excluded.fingerprint,
			resolved = excluded.resolved,
			payload = excluded.payload
	`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, rec := range records {
		payload, err := json.Marshal(rec)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("encode record %s: %w", rec.ID, err)
		}
		resolved := 0
		if rec.Resolved {
			resolved = 1
		}
		if _, err := stmt.ExecContext(ctx,
			rec.ID,
			rec.Timestamp.UnixNano(),
			string(rec.Type),
			string(rec.Severity),
			rec.Fingerprint,
			resolved,
			string(payload),
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("upsert record %s: %w", rec.ID, err)
		}
	}
	return tx.Commit()
}

// DeleteRecords removes records by id.
func (p *SQLitePersister) DeleteRecords(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	_, err := p.db.ExecContext(ctx, "DELETE FROM error_records WHERE id IN ("+placeholders+")", args...)
	return err
}

// LoadRecords returns every persisted record, oldest first.
func (p *SQLitePersister) LoadRecords(ctx context.Context) ([]models.ErrorRecord, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT payload FROM error_records ORDER BY ts_unix_ns ASC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []models.ErrorRecord
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var rec models.ErrorRecord
		if err := decodeJSON([]byte(payload), &rec); err != nil {
			return nil, fmt.Errorf("decode persisted record: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// PingContext checks the database connection. It lets the persister back the
// database-reconnect correction for ResourceName.
func (p *SQLitePersister) PingContext(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// Close releases the database handle.
func (p *SQLitePersister) Close() error {
	return p.db.Close()
}
