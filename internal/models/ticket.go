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

package models

import "time"

// ReviewStatus tracks whether the analyst has sent the reply.
type ReviewStatus string

const (
	ReviewAwaiting ReviewStatus = "awaiting_review"
	ReviewSent     ReviewStatus = "sent"
)

// Direction of a thread entry relative to the analyst.
type Direction string

const (
	DirectionIn  Direction = "in"
	DirectionOut Direction = "out"
)

// Extracted holds the receipt fields. A nil field means the value is not
// known (null on the wire).
type Extracted struct {
	Merchant    *string `json:"merchant"`
	Date        *string `json:"date"`
	Total       *string `json:"total"`
	Model       *string `json:"model"`
	StoreNumber *string `json:"store_number"`
}

// Scores are percentages in [0,100]. Nil means the backend gave no usable value.
type Scores struct {
	Confidence  *float64 `json:"confidence"`
	Duplication *float64 `json:"duplication"`
	Fraud       *float64 `json:"fraud"`
}

// DraftReply is the analyst's editable reply. Rev counts local edits and
// SavedRev is the last edit the backend acknowledged.
type DraftReply struct {
	Template string `json:"template"`
	Body     string `json:"body"`
	Rev      int    `json:"rev"`
	SavedRev int    `json:"saved_rev"`
}

// Dirty reports whether the body holds a local edit the backend has not
// acknowledged. A dirty draft is never replaced by a backend document.
func (d DraftReply) Dirty() bool {
	return d.Rev > d.SavedRev
}

// ThreadEntry is one message in a ticket's conversation.
type ThreadEntry struct {
	ID        string    `json:"id"`
	Direction Direction `json:"direction"`
	Body      string    `json:"body"`
	At        time.Time `json:"at"`
}

// SyncState is the confirmed half of the ticket's two-phase status.
// Ticket.TicketStatus holds the optimistic local value; Confirmed holds what
// the backend last acknowledged. Err is set when the latest background
// update failed, and cleared on the next success.
type SyncState struct {
	Confirmed TicketStatus `json:"confirmed,omitempty"`
	Pending   bool         `json:"pending"`
	Err       string       `json:"error,omitempty"`
}

// Ticket is the mutable review record derived from an Email.
type Ticket struct {
	Email

	IngestionKey string        `json:"ingestion_key"`
	Status       ReviewStatus  `json:"status"`
	Extracted    Extracted     `json:"extracted"`
	Scores       Scores        `json:"scores"`
	Draft        DraftReply    `json:"draft_reply"`
	Thread       []ThreadEntry `json:"thread"`
	Sync         SyncState     `json:"sync"`

	// Backfilled is true once a backend document has been applied.
	Backfilled bool `json:"backfilled"`
}

// Clone returns a deep copy safe to hand to callers outside the controller.
func (t *Ticket) Clone() Ticket {
	c := *t
	c.Attachments = cloneAttachments(t.Attachments)
	c.Tags = append([]string(nil), t.Tags...)
	c.Thread = append([]ThreadEntry(nil), t.Thread...)
	c.Extracted = Extracted{
		Merchant:    cloneString(t.Extracted.Merchant),
		Date:        cloneString(t.Extracted.Date),
		Total:       cloneString(t.Extracted.Total),
		Model:       cloneString(t.Extracted.Model),
		StoreNumber: cloneString(t.Extracted.StoreNumber),
	}
	c.Scores = Scores{
		Confidence:  cloneFloat(t.Scores.Confidence),
		Duplication: cloneFloat(t.Scores.Duplication),
		Fraud:       cloneFloat(t.Scores.Fraud),
	}
	return c
}

func cloneAttachments(in []Attachment) []Attachment {
	if in == nil {
		return nil
	}
	out := make([]Attachment, len(in))
	for i, a := range in {
		out[i] = a
		if a.OCR != nil {
			ocr := *a.OCR
			out[i].OCR = &ocr
		}
	}
	return out
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}
