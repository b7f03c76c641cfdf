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
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bcem/triage/internal/models"
)

// PostgresStore keeps ticket snapshots in Postgres.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to Postgres and ensures the snapshot table exists.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create Postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connect to PostgreSQL: %w", err)
	}

	s := &PostgresStore{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure ticket schema: %w", err)
	}
	slog.Info("ticket store initialised", "backend", "postgres")
	return s, nil
}

func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS ticket_snapshots (
			ingestion_key  TEXT PRIMARY KEY,
			email_id       TEXT NOT NULL,
			ticket_status  TEXT NOT NULL DEFAULT 'new',
			review_status  TEXT NOT NULL DEFAULT 'awaiting_review',
			assigned_agent TEXT NOT NULL DEFAULT '',
			data           JSONB NOT NULL,
			created_at     TIMESTAMPTZ DEFAULT NOW(),
			updated_at     TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_snapshots_email ON ticket_snapshots(email_id);
		CREATE INDEX IF NOT EXISTS idx_snapshots_agent ON ticket_snapshots(assigned_agent);
	`)
	return err
}

// Save upserts a snapshot keyed on ingestion_key.
func (s *PostgresStore) Save(ctx context.Context, t models.Ticket) error {
	data, err := encode(t)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO ticket_snapshots
			(ingestion_key, email_id, ticket_status, review_status, assigned_agent, data)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (ingestion_key) DO UPDATE SET
			ticket_status  = EXCLUDED.ticket_status,
			review_status  = EXCLUDED.review_status,
			assigned_agent = EXCLUDED.assigned_agent,
			data           = EXCLUDED.data,
			updated_at     = NOW()
	`, t.IngestionKey, t.ID, string(t.TicketStatus), string(t.Status), t.AssignedAgent, data)
	if err != nil {
		return fmt.Errorf("save ticket %s: %w", t.IngestionKey, err)
	}
	return nil
}

// Get returns one snapshot, or nil if none exists.
func (s *PostgresStore) Get(ctx context.Context, ingestionKey string) (*models.Ticket, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT data FROM ticket_snapshots WHERE ingestion_key = $1
	`, ingestionKey)
	return scanSnapshot(row)
}

// List returns every snapshot in creation order.
func (s *PostgresStore) List(ctx context.Context) ([]models.Ticket, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT data FROM ticket_snapshots ORDER BY created_at, ingestion_key
	`)
	if err != nil {
		return nil, fmt.Errorf("list tickets: %w", err)
	}
	defer rows.Close()
	return collectSnapshots(rows)
}

// Close releases the pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func scanSnapshot(row pgx.Row) (*models.Ticket, error) {
	var data []byte
	err := row.Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	t, err := decode(data)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func collectSnapshots(rows pgx.Rows) ([]models.Ticket, error) {
	var tickets []models.Ticket
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		t, err := decode(data)
		if err != nil {
			return nil, err
		}
		tickets = append(tickets, t)
	}
	return tickets, rows.Err()
}
