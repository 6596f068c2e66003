package runlog

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	corerunlog "github.com/kilianp07/cpflow/core/runlog"
)

// SQLiteStore persists run log entries to a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens or creates the database at path and ensures schema.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	schema := `CREATE TABLE IF NOT EXISTS run_logs (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        ts INTEGER,
        source TEXT,
        message TEXT
    );`
	if _, err := db.Exec(schema); err != nil {
		if cerr := db.Close(); cerr != nil {
			return nil, fmt.Errorf("close db: %v (schema err: %w)", cerr, err)
		}
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Append(ctx context.Context, rec corerunlog.Record) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO run_logs (ts, source, message) VALUES (?, ?, ?)`,
		rec.Timestamp.UnixNano(), string(rec.Source), rec.Message)
	return err
}

func (s *SQLiteStore) Query(ctx context.Context, q corerunlog.Query) ([]corerunlog.Record, error) {
	query := `SELECT ts, source, message FROM run_logs WHERE 1=1`
	var args []any
	if !q.Start.IsZero() {
		query += ` AND ts >= ?`
		args = append(args, q.Start.UnixNano())
	}
	if !q.End.IsZero() {
		query += ` AND ts <= ?`
		args = append(args, q.End.UnixNano())
	}
	if q.Source != "" {
		query += ` AND source = ?`
		args = append(args, string(q.Source))
	}
	query += ` ORDER BY id`
	if q.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, q.Limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var res []corerunlog.Record
	for rows.Next() {
		var ts int64
		var src, msg string
		if err := rows.Scan(&ts, &src, &msg); err != nil {
			return nil, err
		}
		res = append(res, corerunlog.Record{
			Timestamp: time.Unix(0, ts).UTC(),
			Source:    corerunlog.Source(src),
			Message:   msg,
		})
	}
	return res, rows.Err()
}

func (s *SQLiteStore) Close() error { return s.db.Close() }
