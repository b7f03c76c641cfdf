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

package lifecycle

import (
	"context"
	"log/slog"

	"github.com/bcem/triage/internal/models"
	"github.com/bcem/triage/internal/synth"
)

// enqueue runs job in the background after every job previously queued for
// the same key. Jobs for different keys run independently. Caller holds c.mu.
func (c *Controller) enqueue(key string, job func(ctx context.Context)) {
	prev := c.tails[key]
	done := make(chan struct{})
	c.tails[key] = done

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer func() {
			close(done)
			c.mu.Lock()
			if c.tails[key] == done {
				delete(c.tails, key)
			}
			c.mu.Unlock()
		}()

		if prev != nil {
			select {
			case <-prev:
			case <-c.ctx.Done():
				return
			}
		}
		if c.ctx.Err() != nil {
			return
		}
		job(c.ctx)
	}()
}

// pushStatus sends the ticket's optimistic status to the backend. On success
// the confirmed status and the inbox entry move; on failure only the error
// flag is set. Caller holds c.mu.
func (c *Controller) pushStatus(t *models.Ticket, event models.EventType) {
	key, emailID, status := t.IngestionKey, t.ID, t.TicketStatus
	c.inflight[key]++
	t.Sync.Pending = true

	c.persist(t)
	c.emit(key, event, "")

	c.enqueue(key, func(ctx context.Context) {
		doc, err := c.backend.UpdateTicket(ctx, emailID, status)

		c.mu.Lock()
		defer c.mu.Unlock()

		if c.inflight[key]--; c.inflight[key] <= 0 {
			delete(c.inflight, key)
		}
		t, ok := c.synth.Get(key)
		if !ok {
			return
		}
		t.Sync.Pending = c.inflight[key] > 0

		if err != nil {
			slog.Warn("ticket status update failed",
				"email_id", emailID,
				"ticket", status,
				"error", err,
			)
			t.Sync.Err = err.Error()
			c.persist(t)
			c.emit(key, models.EventSyncFailed, err.Error())
			return
		}

		confirmed := doc.Email.TicketStatus
		if !confirmed.Valid() {
			confirmed = status
		}
		t.Sync.Confirmed = confirmed
		t.Sync.Err = ""
		if !t.Sync.Pending {
			t.TicketStatus = confirmed
		}

		if i, ok := c.index[emailID]; ok {
			c.inbox[i].TicketStatus = confirmed
		}
		c.persist(t)
		slog.Info("ticket status confirmed", "email_id", emailID, "ticket", confirmed)
	})
}

// backfill fetches the full document in the background and applies it.
// A draft edited after the fetch started is kept. Caller holds c.mu.
func (c *Controller) backfill(key, emailID string) {
	rev := -1
	if t, ok := c.synth.Get(key); ok {
		rev = t.Draft.Rev
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		doc, err := c.backend.Fetch(c.ctx, emailID)
		if err != nil {
			slog.Warn("document back-fill failed", "email_id", emailID, "error", err)
			return
		}

		c.mu.Lock()
		defer c.mu.Unlock()
		t, ok := c.synth.Get(key)
		if !ok {
			return
		}
		if t.Status == models.ReviewSent || t.Draft.Rev != rev {
			// The draft is frozen or newer than the document.
			draft := t.Draft
			synth.Apply(t, doc)
			t.Draft = draft
		} else {
			synth.Apply(t, doc)
		}
		c.persist(t)
	}()
}

// persist queues a snapshot save. Caller holds c.mu.
func (c *Controller) persist(t *models.Ticket) {
	if c.snapshots == nil {
		return
	}
	snap := t.Clone()
	c.enqueue(snap.IngestionKey, func(ctx context.Context) {
		if err := c.snapshots.Save(ctx, snap); err != nil {
			slog.Warn("failed to save ticket snapshot",
				"ingestion_key", snap.IngestionKey,
				"error", err,
			)
		}
	})
}

// emit queues a lifecycle event. Caller holds c.mu.
func (c *Controller) emit(key string, typ models.EventType, detail string) {
	if c.events == nil {
		return
	}
	t, ok := c.synth.Get(key)
	if !ok {
		return
	}
	event := models.TicketEvent{
		Type:         typ,
		EmailID:      t.ID,
		IngestionKey: key,
		TicketStatus: t.TicketStatus,
		ReviewStatus: t.Status,
		Agent:        t.AssignedAgent,
		Detail:       detail,
		At:           c.now(),
	}
	c.enqueue(key, func(ctx context.Context) {
		if err := c.events.Publish(ctx, event); err != nil {
			slog.Warn("failed to publish ticket event",
				"type", event.Type,
				"email_id", event.EmailID,
				"error", err,
			)
		}
	})
}
