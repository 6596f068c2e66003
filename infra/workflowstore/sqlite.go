// Package workflowstore persists workflow definitions in SQLite.
package workflowstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/kilianp07/cpflow/core/workflow"
)

// SQLiteStore implements workflow.Store on a SQLite database. One workflow
// per event: the event column carries a unique index and Save replaces the
// previous binding.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens or creates the database at path and ensures schema.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	schema := `CREATE TABLE IF NOT EXISTS workflows (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        name TEXT NOT NULL,
        event TEXT NOT NULL UNIQUE,
        graph TEXT NOT NULL
    );`
	if _, err := db.Exec(schema); err != nil {
		if cerr := db.Close(); cerr != nil {
			return nil, fmt.Errorf("close db: %v (schema err: %w)", cerr, err)
		}
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

// Save inserts or replaces the workflow bound to def.Event and returns the
// stored definition with its row id.
func (s *SQLiteStore) Save(ctx context.Context, def workflow.Definition) (workflow.Definition, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO workflows (name, event, graph) VALUES (?, ?, ?)
         ON CONFLICT(event) DO UPDATE SET name = excluded.name, graph = excluded.graph`,
		def.Name, def.Event, def.Graph)
	if err != nil {
		return workflow.Definition{}, err
	}
	id, err := res.LastInsertId()
	if err != nil || id == 0 {
		row := s.db.QueryRowContext(ctx, `SELECT id FROM workflows WHERE event = ?`, def.Event)
		if scanErr := row.Scan(&id); scanErr != nil {
			return workflow.Definition{}, scanErr
		}
	}
	def.ID = id
	return def, nil
}

func (s *SQLiteStore) LookupByEvent(ctx context.Context, event string) (*workflow.Definition, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, event, graph FROM workflows WHERE event = ?`, event)
	var def workflow.Definition
	if err := row.Scan(&def.ID, &def.Name, &def.Event, &def.Graph); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &def, nil
}

// List returns all stored workflows ordered by id.
func (s *SQLiteStore) List(ctx context.Context) ([]workflow.Definition, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, event, graph FROM workflows ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var defs []workflow.Definition
	for rows.Next() {
		var def workflow.Definition
		if err := rows.Scan(&def.ID, &def.Name, &def.Event, &def.Graph); err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	return defs, rows.Err()
}

// Delete removes the workflow bound to the event. Missing bindings are not an
// error.
func (s *SQLiteStore) Delete(ctx context.Context, event string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM workflows WHERE event = ?`, event)
	return err
}

func (s *SQLiteStore) Close() error { return s.db.Close() }
