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

// Package store persists ticket snapshots so that drafts, thread entries and
// review status survive a restart of the console.
//
// Two backends are provided: Postgres for shared deployments and SQLite for
// a single analyst's machine. Both store the full ticket as JSON next to a
// few indexed columns.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/bcem/triage/internal/models"
)

// Store saves and restores ticket snapshots keyed by ingestion key.
type Store interface {
	Save(ctx context.Context, t models.Ticket) error
	Get(ctx context.Context, ingestionKey string) (*models.Ticket, error)
	List(ctx context.Context) ([]models.Ticket, error)
	Close() error
}

// Open selects a backend from the DSN scheme: postgres:// or postgresql://
// for Postgres, sqlite:// (or sqlite::memory:) for SQLite. An empty DSN
// returns a nil Store and no error.
func Open(ctx context.Context, dsn string) (Store, error) {
	switch {
	case dsn == "":
		return nil, nil
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		s, err := NewPostgresStore(ctx, dsn)
		if err != nil {
			return nil, err
		}
		return s, nil
	case strings.HasPrefix(dsn, "sqlite:"):
		path := strings.TrimPrefix(strings.TrimPrefix(dsn, "sqlite:"), "//")
		s, err := NewSQLiteStore(path)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unsupported store DSN %q", dsn)
	}
}

func encode(t models.Ticket) ([]byte, error) {
	data, err := json.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("marshal ticket %s: %w", t.IngestionKey, err)
	}
	return data, nil
}

func decode(data []byte) (models.Ticket, error) {
	var t models.Ticket
	if err := json.Unmarshal(data, &t); err != nil {
		return models.Ticket{}, fmt.Errorf("unmarshal ticket: %w", err)
	}
	return t, nil
}
