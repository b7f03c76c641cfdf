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

// Package lifecycle owns the inbox and the ticket collection and applies
// every state transition to them.
//
// Ticket state machine:
//
//	new ──open──▶ open ──send──▶ closed ──reply──▶ open
//
// Transitions are applied locally first (optimistic) and pushed to the
// backend in the background. The inbox list only moves once the backend
// confirms; a failed update leaves the inbox as it was and flags the ticket.
package lifecycle

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bcem/triage/internal/backend"
	"github.com/bcem/triage/internal/models"
	"github.com/bcem/triage/internal/partition"
	"github.com/bcem/triage/internal/synth"
)

var (
	// ErrUnknownEmail is returned when an email ID is not in the inbox.
	ErrUnknownEmail = errors.New("unknown email")
	// ErrUnknownTicket is returned when no ticket exists for an email yet.
	ErrUnknownTicket = errors.New("unknown ticket")
	// ErrTicketSent is returned for edits to a ticket whose reply was sent.
	ErrTicketSent = errors.New("ticket already sent")
)

// DefaultReplyBody is used by SimulateReply when no body is given.
const DefaultReplyBody = "Customer replied to this ticket."

// Backend is the subset of the backend API the controller calls.
type Backend interface {
	Fetch(ctx context.Context, emailID string) (models.Document, error)
	SaveEdits(ctx context.Context, req backend.SaveRequest) (models.Document, error)
	UpdateTicket(ctx context.Context, emailID string, status models.TicketStatus) (models.Document, error)
	RunOCR(ctx context.Context, emailID string) (backend.Result, error)
	GenerateDraft(ctx context.Context, emailID string) (backend.Result, error)
}

// Events receives lifecycle events. Optional.
type Events interface {
	Publish(ctx context.Context, event models.TicketEvent) error
}

// Snapshots persists tickets. Optional.
type Snapshots interface {
	Save(ctx context.Context, t models.Ticket) error
}

// Config holds the dependencies for a Controller.
type Config struct {
	Backend   Backend
	Events    Events
	Snapshots Snapshots
	Agents    models.Roster

	// Now and NewID default to time.Now and uuid.NewString.
	Now   func() time.Time
	NewID func() string
}

// Controller serializes all state changes behind one mutex. Backend calls
// are never made while holding it.
type Controller struct {
	backend   Backend
	events    Events
	snapshots Snapshots
	agents    models.Roster
	now       func() time.Time
	newID     func() string

	mu     sync.Mutex
	synth  *synth.Synthesizer
	inbox  []models.Email
	index  map[string]int
	active string

	// tails holds, per ingestion key, the completion channel of the last
	// queued background job, so jobs for one ticket run in order.
	tails map[string]chan struct{}
	// inflight counts unacknowledged status updates per ingestion key.
	inflight map[string]int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Controller with an empty inbox.
func New(cfg Config) *Controller {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		backend:   cfg.Backend,
		events:    cfg.Events,
		snapshots: cfg.Snapshots,
		agents:    cfg.Agents,
		now:       cfg.Now,
		newID:     cfg.NewID,
		synth:     synth.New(),
		index:     make(map[string]int),
		tails:     make(map[string]chan struct{}),
		inflight:  make(map[string]int),
		ctx:       ctx,
		cancel:    cancel,
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.newID == nil {
		c.newID = uuid.NewString
	}
	if c.agents == nil {
		c.agents = models.DefaultRoster()
	}
	return c
}

// Wait blocks until all queued background work has finished.
func (c *Controller) Wait() {
	c.wg.Wait()
}

// Close cancels background work and waits for it to stop.
func (c *Controller) Close() {
	c.cancel()
	c.wg.Wait()
}

// --- Inbox ---

// Load merges emails into the inbox and synthesizes their tickets. Known
// emails are replaced in place; new ones are appended. Nothing is removed.
// It returns the number of tickets created.
func (c *Controller) Load(emails []models.Email) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	created := 0
	for _, e := range emails {
		if i, ok := c.index[e.ID]; ok {
			c.inbox[i] = e
		} else {
			c.index[e.ID] = len(c.inbox)
			c.inbox = append(c.inbox, e)
		}

		t, isNew := c.synth.Synthesize(e)
		if isNew {
			created++
			continue
		}
		c.reconcile(t, e)
	}
	return created
}

// reconcile adopts a refreshed backend status for an existing ticket, unless
// a local change is still in flight or was rejected.
func (c *Controller) reconcile(t *models.Ticket, e models.Email) {
	if t.Sync.Pending || t.Sync.Err != "" || e.TicketStatus == "" {
		return
	}
	t.TicketStatus = e.TicketStatus
	t.Sync.Confirmed = e.TicketStatus
	if e.AssignedAgent != "" {
		t.AssignedAgent = e.AssignedAgent
		t.Labels = e.Labels
	}
}

// Restore adds persisted tickets. Tickets already in memory win.
func (c *Controller) Restore(tickets []models.Ticket) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for _, t := range tickets {
		if !c.synth.Restore(t) {
			continue
		}
		n++

		// An update that was in flight when the snapshot was taken never
		// got an answer; send it again.
		if t.Sync.Pending {
			rt, _ := c.synth.Get(t.IngestionKey)
			rt.Sync.Pending = false
			if rt.TicketStatus.Valid() && rt.TicketStatus != rt.Sync.Confirmed {
				c.pushStatus(rt, models.EventResent)
			}
		}
	}
	return n
}

// Inbox returns a copy of the source email list.
func (c *Controller) Inbox() []models.Email {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]models.Email(nil), c.inbox...)
}

// Tickets returns copies of all tickets in creation order.
func (c *Controller) Tickets() []models.Ticket {
	c.mu.Lock()
	defer c.mu.Unlock()

	all := c.synth.Tickets()
	out := make([]models.Ticket, len(all))
	for i, t := range all {
		out[i] = t.Clone()
	}
	return out
}

// Board is the per-agent board over the inbox, by confirmed ticket status.
func (c *Controller) Board(agentID string) partition.StatusBoard[models.Email] {
	return partition.AgentStatusBoard(c.Inbox(), agentID)
}

// StatusBoard partitions the whole inbox by confirmed ticket status.
func (c *Controller) StatusBoard() partition.StatusBoard[models.Email] {
	return partition.ByStatus(c.Inbox())
}

// Triage is the triage board: the inbox by assigned agent.
func (c *Controller) Triage() partition.AgentBoard[models.Email] {
	return partition.ByAgent(c.Inbox(), c.agents.IDs())
}

// Agents returns the roster.
func (c *Controller) Agents() models.Roster {
	return c.agents
}

// Ticket returns the ticket for an email.
func (c *Controller) Ticket(emailID string) (models.Ticket, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	t, ok := c.synth.ByEmailID(emailID)
	if !ok {
		return models.Ticket{}, ErrUnknownTicket
	}
	return t.Clone(), nil
}

// Active returns the ticket shown in the detail pane, if any.
func (c *Controller) Active() (models.Ticket, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active == "" {
		return models.Ticket{}, false
	}
	t, ok := c.synth.Get(c.active)
	if !ok {
		return models.Ticket{}, false
	}
	return t.Clone(), true
}

// --- Intent operations ---

// OpenTicket makes the email's ticket active and returns it immediately from
// local data. A new ticket moves to open locally and the backend is told in
// the background. The full document is fetched in the background and
// back-filled into the ticket when it arrives.
func (c *Controller) OpenTicket(emailID string) (models.Ticket, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	i, ok := c.index[emailID]
	if !ok {
		return models.Ticket{}, ErrUnknownEmail
	}

	t, _ := c.synth.Synthesize(c.inbox[i])
	c.active = t.IngestionKey

	if t.TicketStatus == models.TicketNew {
		t.TicketStatus = models.TicketOpen
		c.pushStatus(t, models.EventOpened)
	}
	c.backfill(t.IngestionKey, emailID)

	return t.Clone(), nil
}

// SaveDraft stores the draft body locally, then on the backend. On success
// the document is re-fetched and the ticket's attachments refreshed. On
// failure the local body is kept and the error returned with the ticket.
func (c *Controller) SaveDraft(ctx context.Context, emailID, body string) (models.Ticket, error) {
	c.mu.Lock()
	t, err := c.editable(emailID)
	if err != nil {
		c.mu.Unlock()
		return models.Ticket{}, err
	}
	t.Draft.Body = body
	t.Draft.Rev++
	key, rev := t.IngestionKey, t.Draft.Rev
	c.persist(t)
	c.mu.Unlock()

	_, err = c.backend.SaveEdits(ctx, backend.SaveRequest{ID: emailID, DraftBody: &body})
	if err != nil {
		slog.Warn("failed to save draft", "email_id", emailID, "error", err)
		return c.snapshot(key), err
	}

	c.mu.Lock()
	if t, ok := c.synth.Get(key); ok && t.Draft.SavedRev < rev {
		t.Draft.SavedRev = rev
		c.persist(t)
	}
	c.mu.Unlock()

	c.refresh(ctx, key, emailID, func(t *models.Ticket, doc models.Document) {
		if doc.Email.Attachments != nil {
			t.Attachments = append([]models.Attachment(nil), doc.Email.Attachments...)
		}
	})
	c.mu.Lock()
	c.emit(key, models.EventSaved, "draft")
	c.mu.Unlock()
	return c.snapshot(key), nil
}

// SaveExtracted stores edited receipt fields. Nil fields are left unchanged.
// Filename selects the attachment whose OCR result is updated; empty means
// all of them.
func (c *Controller) SaveExtracted(ctx context.Context, emailID, filename string, fields models.Extracted) (models.Ticket, error) {
	c.mu.Lock()
	t, err := c.editable(emailID)
	if err != nil {
		c.mu.Unlock()
		return models.Ticket{}, err
	}
	mergeExtracted(&t.Extracted, fields)
	key := t.IngestionKey
	c.persist(t)
	c.mu.Unlock()

	_, err = c.backend.SaveEdits(ctx, backend.SaveRequest{
		ID:          emailID,
		Filename:    filename,
		Merchant:    fields.Merchant,
		Date:        fields.Date,
		Total:       fields.Total,
		Model:       fields.Model,
		StoreNumber: fields.StoreNumber,
	})
	if err != nil {
		slog.Warn("failed to save extracted fields", "email_id", emailID, "error", err)
		return c.snapshot(key), err
	}

	c.refresh(ctx, key, emailID, func(t *models.Ticket, doc models.Document) {
		// Keep the just-saved draft and scores; only OCR-derived fields move.
		draft, scores := t.Draft, t.Scores
		synth.Apply(t, doc)
		t.Draft, t.Scores = draft, scores
	})
	c.mu.Lock()
	c.emit(key, models.EventSaved, "extracted")
	c.mu.Unlock()
	return c.snapshot(key), nil
}

// SendTicket marks the reply as sent and closes the ticket. Empty drafts are
// allowed. The detail pane is cleared if it showed this ticket.
func (c *Controller) SendTicket(emailID string) (models.Ticket, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	t, err := c.editable(emailID)
	if err != nil {
		return models.Ticket{}, err
	}

	t.Status = models.ReviewSent
	t.TicketStatus = models.TicketClosed
	t.Thread = append(t.Thread, models.ThreadEntry{
		ID:        c.newID(),
		Direction: models.DirectionOut,
		Body:      t.Draft.Body,
		At:        c.now(),
	})
	if c.active == t.IngestionKey {
		c.active = ""
	}

	c.pushStatus(t, models.EventSent)
	return t.Clone(), nil
}

// SimulateReply appends an inbound message and reopens the ticket for review.
func (c *Controller) SimulateReply(emailID, body string) (models.Ticket, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	t, ok := c.synth.ByEmailID(emailID)
	if !ok {
		return models.Ticket{}, ErrUnknownTicket
	}
	if body == "" {
		body = DefaultReplyBody
	}

	t.Thread = append(t.Thread, models.ThreadEntry{
		ID:        c.newID(),
		Direction: models.DirectionIn,
		Body:      body,
		At:        c.now(),
	})
	t.Status = models.ReviewAwaiting
	t.TicketStatus = models.TicketOpen

	c.pushStatus(t, models.EventReply)
	return t.Clone(), nil
}

// RunOCR asks the backend to OCR the email's attachments, then back-fills
// the ticket from the updated document.
func (c *Controller) RunOCR(ctx context.Context, emailID string) (models.Ticket, error) {
	key, err := c.keyFor(emailID)
	if err != nil {
		return models.Ticket{}, err
	}
	if _, err := c.backend.RunOCR(ctx, emailID); err != nil {
		return c.snapshot(key), err
	}
	if err := c.refresh(ctx, key, emailID, synth.Apply); err != nil {
		return c.snapshot(key), err
	}
	return c.snapshot(key), nil
}

// GenerateDraft asks the backend for a draft reply and loads it into the
// ticket. Not allowed once the reply was sent.
func (c *Controller) GenerateDraft(ctx context.Context, emailID string) (models.Ticket, error) {
	c.mu.Lock()
	t, err := c.editable(emailID)
	if err != nil {
		c.mu.Unlock()
		return models.Ticket{}, err
	}
	key := t.IngestionKey
	c.mu.Unlock()

	if _, err := c.backend.GenerateDraft(ctx, emailID); err != nil {
		return c.snapshot(key), err
	}
	// A generated draft replaces any unsaved local edit.
	err = c.refresh(ctx, key, emailID, func(t *models.Ticket, doc models.Document) {
		t.Draft.SavedRev = t.Draft.Rev
		synth.Apply(t, doc)
	})
	if err != nil {
		return c.snapshot(key), err
	}
	return c.snapshot(key), nil
}

// --- internals (callers hold c.mu unless noted) ---

func (c *Controller) editable(emailID string) (*models.Ticket, error) {
	t, ok := c.synth.ByEmailID(emailID)
	if !ok {
		return nil, ErrUnknownTicket
	}
	if t.Status == models.ReviewSent {
		return nil, ErrTicketSent
	}
	return t, nil
}

// keyFor locks c.mu itself.
func (c *Controller) keyFor(emailID string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	t, ok := c.synth.ByEmailID(emailID)
	if !ok {
		return "", ErrUnknownTicket
	}
	return t.IngestionKey, nil
}

// snapshot locks c.mu itself.
func (c *Controller) snapshot(key string) models.Ticket {
	c.mu.Lock()
	defer c.mu.Unlock()

	t, ok := c.synth.Get(key)
	if !ok {
		return models.Ticket{}
	}
	return t.Clone()
}

// refresh fetches the document and applies it with fn. It locks c.mu itself,
// and only around fn.
func (c *Controller) refresh(ctx context.Context, key, emailID string, fn func(*models.Ticket, models.Document)) error {
	doc, err := c.backend.Fetch(ctx, emailID)
	if err != nil {
		slog.Warn("failed to refresh document", "email_id", emailID, "error", err)
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if t, ok := c.synth.Get(key); ok {
		fn(t, doc)
		c.persist(t)
	}
	return nil
}

func mergeExtracted(dst *models.Extracted, src models.Extracted) {
	if src.Merchant != nil {
		dst.Merchant = src.Merchant
	}
	if src.Date != nil {
		dst.Date = src.Date
	}
	if src.Total != nil {
		dst.Total = src.Total
	}
	if src.Model != nil {
		dst.Model = src.Model
	}
	if src.StoreNumber != nil {
		dst.StoreNumber = src.StoreNumber
	}
}
