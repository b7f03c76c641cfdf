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

// Package intake pulls the inbox from the backend: it optionally triggers
// mailbox ingestion and categorization, lists emails in every processing
// state, and loads them into the lifecycle controller.
package intake

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bcem/triage/internal/backend"
	"github.com/bcem/triage/internal/models"
	"github.com/bcem/triage/internal/synth"
)

// Statuses are the processing states listed on every run, in load order.
var Statuses = []string{backend.StatusNew, backend.StatusCategorized}

// Backend is the subset of the backend API the runner calls.
type Backend interface {
	Ingest(ctx context.Context) (backend.Result, error)
	Categorize(ctx context.Context) (backend.Result, error)
	ListEmails(ctx context.Context, status string) ([]models.Email, error)
}

// Loader receives listed emails. *lifecycle.Controller implements it.
type Loader interface {
	Load(emails []models.Email) int
}

// Deduper reports whether an ingestion key was seen before.
// *dedup.Filter implements it.
type Deduper interface {
	IsNew(ctx context.Context, ingestionKey string) (bool, error)
}

// Request selects the optional trigger steps of a run.
type Request struct {
	Ingest     bool
	Categorize bool
}

// Result summarises a completed run.
type Result struct {
	Ingested    backend.Result
	Categorized backend.Result
	Listed      int
	New         int // ingestion keys never seen before
	Seen        int // ingestion keys seen on an earlier run
	Created     int // tickets synthesized by this run
	Errors      int
	Elapsed     time.Duration
}

// Runner performs intake runs.
type Runner struct {
	backend Backend
	loader  Loader
	dedup   Deduper
}

// RunnerConfig holds dependencies for the runner. Dedup is optional.
type RunnerConfig struct {
	Backend Backend
	Loader  Loader
	Dedup   Deduper
}

// NewRunner creates an intake runner.
func NewRunner(cfg RunnerConfig) *Runner {
	return &Runner{
		backend: cfg.Backend,
		loader:  cfg.Loader,
		dedup:   cfg.Dedup,
	}
}

// Run triggers the requested steps, lists every processing state and loads
// the result. Trigger failures are logged and counted; the list still runs.
// A list failure aborts the run before anything is loaded.
func (r *Runner) Run(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	result := &Result{}

	if req.Ingest {
		res, err := r.backend.Ingest(ctx)
		if err != nil {
			slog.Error("inbox ingestion failed", "error", err)
			result.Errors++
		} else {
			result.Ingested = res
			slog.Info("inbox ingestion triggered", "result", res)
		}
	}

	if req.Categorize {
		res, err := r.backend.Categorize(ctx)
		if err != nil {
			slog.Error("categorization failed", "error", err)
			result.Errors++
		} else {
			result.Categorized = res
			slog.Info("categorization triggered", "result", res)
		}
	}

	emails, err := r.list(ctx)
	if err != nil {
		return result, err
	}
	result.Listed = len(emails)

	for _, e := range emails {
		if r.dedup == nil {
			continue
		}
		isNew, err := r.dedup.IsNew(ctx, synth.Key(e))
		if err != nil {
			slog.Warn("dedup check failed", "email_id", e.ID, "error", err)
			continue
		}
		if isNew {
			result.New++
		} else {
			result.Seen++
		}
	}

	if r.loader != nil {
		result.Created = r.loader.Load(emails)
	}
	result.Elapsed = time.Since(start)

	slog.Info("intake run complete",
		"listed", result.Listed,
		"new", result.New,
		"seen", result.Seen,
		"created", result.Created,
		"errors", result.Errors,
		"elapsed", result.Elapsed,
	)

	return result, nil
}

// list fetches every processing state. An email listed under more than one
// state keeps its first position and its last content.
func (r *Runner) list(ctx context.Context) ([]models.Email, error) {
	var out []models.Email
	index := make(map[string]int)

	for _, status := range Statuses {
		emails, err := r.backend.ListEmails(ctx, status)
		if err != nil {
			return nil, fmt.Errorf("list %s emails: %w", status, err)
		}

		slog.Debug("emails listed", "status", status, "count", len(emails))

		for _, e := range emails {
			if i, ok := index[e.ID]; ok {
				out[i] = e
				continue
			}
			index[e.ID] = len(out)
			out = append(out, e)
		}
	}

	return out, nil
}
