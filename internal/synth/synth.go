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

// Package synth turns normalized emails into review tickets.
//
// A ticket is created at most once per ingestion key. Until the backend has
// produced real OCR output and scores, a ticket carries heuristic defaults
// derived from the email text; Apply replaces them with the backend's values.
package synth

import (
	"strings"

	"github.com/bcem/triage/internal/models"
)

// Key returns the ingestion key for an email: the message ID followed by the
// identity of every attachment, in order, joined by "|".
func Key(email models.Email) string {
	parts := make([]string, 0, len(email.Attachments)+1)
	parts = append(parts, email.ID)
	for _, a := range email.Attachments {
		parts = append(parts, a.Identity())
	}
	if len(parts) == 1 {
		return email.ID + "|"
	}
	return strings.Join(parts, "|")
}

// Synthesizer owns the ticket collection keyed by ingestion key.
//
// A Synthesizer is not safe for concurrent use; callers serialize access
// (the lifecycle controller holds its mutex around every call).
type Synthesizer struct {
	tickets map[string]*models.Ticket
	order   []string
}

// New creates an empty Synthesizer.
func New() *Synthesizer {
	return &Synthesizer{tickets: make(map[string]*models.Ticket)}
}

// Synthesize returns the ticket for email, creating it on first sight.
// The boolean reports whether a new ticket was created. Calling it again
// with the same email and attachment list returns the same pointer.
func (s *Synthesizer) Synthesize(email models.Email) (*models.Ticket, bool) {
	key := Key(email)
	if t, ok := s.tickets[key]; ok {
		return t, false
	}

	t := newTicket(key, email)
	s.tickets[key] = t
	s.order = append(s.order, key)
	return t, true
}

// Restore inserts a previously persisted ticket. An existing ticket with the
// same key wins, so restoring never discards in-session edits.
func (s *Synthesizer) Restore(t models.Ticket) bool {
	if t.IngestionKey == "" {
		return false
	}
	if _, ok := s.tickets[t.IngestionKey]; ok {
		return false
	}
	c := t.Clone()
	s.tickets[t.IngestionKey] = &c
	s.order = append(s.order, t.IngestionKey)
	return true
}

// Get returns the ticket with the given ingestion key.
func (s *Synthesizer) Get(key string) (*models.Ticket, bool) {
	t, ok := s.tickets[key]
	return t, ok
}

// ByEmailID returns the most recently created ticket for a message ID.
func (s *Synthesizer) ByEmailID(id string) (*models.Ticket, bool) {
	for i := len(s.order) - 1; i >= 0; i-- {
		t := s.tickets[s.order[i]]
		if t.ID == id {
			return t, true
		}
	}
	return nil, false
}

// Tickets returns all tickets in creation order.
func (s *Synthesizer) Tickets() []*models.Ticket {
	out := make([]*models.Ticket, 0, len(s.order))
	for _, k := range s.order {
		out = append(out, s.tickets[k])
	}
	return out
}

// Len returns the number of tickets.
func (s *Synthesizer) Len() int {
	return len(s.order)
}

func newTicket(key string, email models.Email) *models.Ticket {
	t := &models.Ticket{
		Email:        email,
		IngestionKey: key,
		Status:       models.ReviewAwaiting,
		Thread:       []models.ThreadEntry{},
	}

	// Copy slices so later back-fills never alias the source email.
	t.Attachments = append([]models.Attachment(nil), email.Attachments...)
	t.Tags = append([]string(nil), email.Tags...)

	if t.TicketStatus == "" {
		t.TicketStatus = models.TicketNew
	}
	t.Sync.Confirmed = t.TicketStatus

	guess := guessFrom(email)
	t.Extracted = guess.extracted()
	t.Scores = guess.scores()
	t.Draft = guess.draft(email.From)

	return t
}
