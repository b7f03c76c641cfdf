// Copyright (c) 2026 John Earle
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

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/bcem/triage/internal/models"
)

// SQLiteStore keeps ticket snapshots in a local SQLite file.
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLiteStore opens (or creates) the database at path and applies
// pending migrations. ":memory:" gives a throwaway database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}
	// One connection: an in-memory database is per connection, and the
	// console writes from one goroutine at a time anyway.
	db.SetMaxOpenConns(1)

	if path != ":memory:" {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enabling WAL mode: %w", err)
		}
	}

	s := &SQLiteStore{db: db}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	slog.Info("ticket store initialised", "backend", "sqlite", "path", path)
	return s, nil
}

func (s *SQLiteStore) runMigrations() error {
	current := 0

	var tables int
	err := s.db.Get(&tables,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'")
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}
	if tables > 0 {
		if err := s.db.Get(&current, "SELECT COALESCE(MAX(version), 0) FROM schema_version"); err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}
	return nil
}

// Save upserts a snapshot. The original insertion order is kept on update.
func (s *SQLiteStore) Save(ctx context.Context, t models.Ticket) error {
	data, err := encode(t)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO ticket_snapshots
			(ingestion_key, email_id, ticket_status, review_status, assigned_agent, data, seq)
		VALUES (?, ?, ?, ?, ?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM ticket_snapshots))
		ON CONFLICT (ingestion_key) DO UPDATE SET
			ticket_status  = excluded.ticket_status,
			review_status  = excluded.review_status,
			assigned_agent = excluded.assigned_agent,
			data           = excluded.data,
			updated_at     = CURRENT_TIMESTAMP`,
		t.IngestionKey, t.ID, string(t.TicketStatus), string(t.Status), t.AssignedAgent, string(data),
	)
	if err != nil {
		return fmt.Errorf("saving ticket %s: %w", t.IngestionKey, err)
	}
	return nil
}

// Get returns one snapshot, or nil if none exists.
func (s *SQLiteStore) Get(ctx context.Context, ingestionKey string) (*models.Ticket, error) {
	var data string
	err := s.db.GetContext(ctx, &data,
		"SELECT data FROM ticket_snapshots WHERE ingestion_key = ?", ingestionKey)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting ticket %s: %w", ingestionKey, err)
	}
	t, err := decode([]byte(data))
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// List returns every snapshot in insertion order.
func (s *SQLiteStore) List(ctx context.Context) ([]models.Ticket, error) {
	var rows []string
	if err := s.db.SelectContext(ctx, &rows, "SELECT data FROM ticket_snapshots ORDER BY seq"); err != nil {
		return nil, fmt.Errorf("listing tickets: %w", err)
	}

	tickets := make([]models.Ticket, 0, len(rows))
	for _, data := range rows {
		t, err := decode([]byte(data))
		if err != nil {
			return nil, err
		}
		tickets = append(tickets, t)
	}
	return tickets, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
