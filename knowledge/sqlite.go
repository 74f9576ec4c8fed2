//  Copyright (c) 2023 Uber Technologies, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package knowledge

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3" // registers the sqlite3 driver
	"go.uber.org/nullinfer/nullability"
)

// SQLStore is a corpus stored in a SQLite database, typically generated from SDK headers or
// documentation by an external process. Several sources may share one database.
type SQLStore struct {
	db *sql.DB
}

// OpenSQLStore opens (creating if needed) the SQLite database at path.
func OpenSQLStore(path string) (*SQLStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open knowledge database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, errors.Join(fmt.Errorf("open knowledge database: %w", err), db.Close())
	}

	s := &SQLStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, errors.Join(fmt.Errorf("init knowledge schema: %w", err), db.Close())
	}
	return s, nil
}

func (s *SQLStore) initSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS facts (
			symbol TEXT NOT NULL,
			path TEXT NOT NULL,
			state TEXT NOT NULL,
			source TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (symbol, path, source)
		);`,
	}
	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the database.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// Save inserts or replaces facts. Each fact is stored once per source.
func (s *SQLStore) Save(ctx context.Context, facts ...Fact) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			err = errors.Join(err, tx.Rollback())
		}
	}()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO facts (symbol, path, state, source)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(symbol, path, source) DO UPDATE SET state=excluded.state
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, f := range facts {
		sources := f.Sources
		if len(sources) == 0 {
			sources = []string{""}
		}
		for _, src := range sources {
			if _, err := stmt.ExecContext(ctx, string(f.Symbol), string(f.Path), f.State.String(), src); err != nil {
				return fmt.Errorf("save fact %s@%s: %w", f.Symbol, f.Path, err)
			}
		}
	}
	return tx.Commit()
}

// Lookup implements Oracle. Rows of different sources disagreeing on a slot produce a
// Conflicting fact.
func (s *SQLStore) Lookup(ctx context.Context, symbol nullability.SymbolID, path nullability.Path) (Fact, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT state, source FROM facts WHERE symbol = ? AND path = ? ORDER BY source`,
		string(symbol), string(path))
	if err != nil {
		return Fact{}, fmt.Errorf("query %s@%s: %w", symbol, path, err)
	}
	defer rows.Close()

	var facts []Fact
	for rows.Next() {
		var rawState, source string
		if err := rows.Scan(&rawState, &source); err != nil {
			return Fact{}, err
		}
		state, err := nullability.ParseState(rawState)
		if err != nil {
			return Fact{}, fmt.Errorf("fact %s@%s from %q: %w", symbol, path, source, err)
		}
		f := Fact{Symbol: symbol, Path: path, State: state}
		if source != "" {
			f.Sources = []string{source}
		}
		facts = append(facts, f)
	}
	if err := rows.Err(); err != nil {
		return Fact{}, err
	}
	return combine(symbol, path, facts), nil
}
