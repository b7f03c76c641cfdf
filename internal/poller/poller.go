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

// Package poller runs a background loop that periodically refreshes the
// inbox from the backend.
package poller

import (
	"context"
	"log/slog"
	"time"

	"github.com/bcem/triage/internal/intake"
)

// Runner performs one refresh. *intake.Runner implements it.
type Runner interface {
	Run(ctx context.Context, req intake.Request) (*intake.Result, error)
}

// Poller periodically runs an intake refresh.
type Poller struct {
	runner   Runner
	interval time.Duration
	req      intake.Request
}

// New creates a poller that refreshes at the given interval.
func New(runner Runner, interval time.Duration, req intake.Request) *Poller {
	return &Poller{
		runner:   runner,
		interval: interval,
		req:      req,
	}
}

// Run starts the polling loop. It blocks until the context is cancelled.
func (p *Poller) Run(ctx context.Context) {
	slog.Info("inbox poller starting",
		"interval", p.interval,
		"ingest", p.req.Ingest,
		"categorize", p.req.Categorize,
	)

	// Do an initial poll immediately
	p.poll(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("inbox poller stopping")
			return
		case <-ticker.C:
			p.poll(ctx)
		}
	}
}

func (p *Poller) poll(ctx context.Context) {
	res, err := p.runner.Run(ctx, p.req)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		slog.Error("inbox refresh failed", "error", err)
		return
	}
	if res.Created > 0 {
		slog.Info("new tickets", "count", res.Created)
	}
}
