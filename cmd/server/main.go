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

// Claims Triage Console
//
// Entry point for the triage console service. It:
//  1. Loads configuration from .env, config.yaml and the environment
//  2. Builds the backend client (function key and/or OAuth client credentials)
//  3. Connects to Redis (optional) for first-seen tracking and the event feed
//  4. Opens the ticket snapshot store (optional) and restores saved tickets
//  5. Loads seed emails (optional) and starts the inbox poller
//  6. Serves the console API and attachment proxy
//  7. Handles graceful shutdown on SIGTERM/SIGINT
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/bcem/triage/internal/api"
	"github.com/bcem/triage/internal/backend"
	"github.com/bcem/triage/internal/config"
	"github.com/bcem/triage/internal/dedup"
	"github.com/bcem/triage/internal/intake"
	"github.com/bcem/triage/internal/lifecycle"
	"github.com/bcem/triage/internal/poller"
	"github.com/bcem/triage/internal/queue"
	"github.com/bcem/triage/internal/seed"
	"github.com/bcem/triage/internal/store"
)

func main() {
	// --- Load Configuration ---
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Structured JSON logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	slog.SetDefault(logger)

	slog.Info("starting claims triage console",
		"backend", cfg.BackendURL,
		"agents", len(cfg.Agents),
		"poll_interval", cfg.PollInterval,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	// --- Backend Client ---
	httpClient := backend.NewHTTPClient(ctx, backend.AuthConfig{
		FunctionKey:  cfg.FunctionKey,
		TokenURL:     cfg.OAuth.TokenURL,
		ClientID:     cfg.OAuth.ClientID,
		ClientSecret: cfg.OAuth.ClientSecret,
		Scopes:       cfg.OAuth.Scopes,
		Timeout:      cfg.BackendTimeout,
	})
	client := backend.NewClient(httpClient, cfg.BackendURL)

	// --- Connect to Redis (optional) ---
	var (
		events  lifecycle.Events
		deduper intake.Deduper
	)
	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			slog.Error("invalid REDIS_URL", "error", err)
			os.Exit(1)
		}
		rdb := redis.NewClient(opt)
		defer rdb.Close()

		publisher := queue.NewPublisher(rdb, cfg.EventsQueue)
		if err := publisher.Ping(ctx); err != nil {
			slog.Error("failed to connect to Redis", "error", err)
			os.Exit(1)
		}
		slog.Info("connected to Redis", "events_queue", cfg.EventsQueue)

		events = publisher
		deduper = dedup.NewFilter(rdb, dedup.DefaultTTL)
	}

	// --- Ticket Snapshot Store (optional) ---
	snapshots, err := store.Open(ctx, cfg.StoreDSN)
	if err != nil {
		slog.Error("failed to open ticket store", "error", err)
		os.Exit(1)
	}
	if snapshots != nil {
		defer snapshots.Close()
	}

	// --- Lifecycle Controller ---
	ctrl := lifecycle.New(lifecycle.Config{
		Backend:   client,
		Events:    events,
		Snapshots: snapshots,
		Agents:    cfg.Agents,
	})

	if snapshots != nil {
		saved, err := snapshots.List(ctx)
		if err != nil {
			slog.Error("failed to restore tickets", "error", err)
			os.Exit(1)
		}
		slog.Info("tickets restored", "count", ctrl.Restore(saved))
	}

	if cfg.SeedPath != "" {
		emails, err := seed.Load(cfg.SeedPath)
		if err != nil {
			slog.Error("failed to load seed emails", "path", cfg.SeedPath, "error", err)
			os.Exit(1)
		}
		slog.Info("seed emails loaded", "tickets", ctrl.Load(emails))
	}

	// --- Inbox Poller ---
	runner := intake.NewRunner(intake.RunnerConfig{
		Backend: client,
		Loader:  ctrl,
		Dedup:   deduper,
	})
	if cfg.PollInterval > 0 {
		p := poller.New(runner, cfg.PollInterval, intake.Request{
			Ingest:     cfg.AutoIngest,
			Categorize: cfg.AutoCategorize,
		})
		go p.Run(ctx)
	}

	// --- Console API ---
	handler := api.NewHandler(ctrl, client, runner)
	ready, done, err := api.Serve(ctx, cfg.Port, handler)
	if err != nil {
		slog.Error("failed to start console server", "error", err)
		os.Exit(1)
	}
	<-ready

	// --- Graceful Shutdown ---
	<-ctx.Done()
	slog.Info("received shutdown signal")
	<-done

	// Let queued status updates and snapshot saves finish before the
	// store and Redis connections close.
	ctrl.Wait()
	ctrl.Close()

	slog.Info("claims triage console stopped")
}
