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

package synth

import (
	"encoding/json"
	"math"
	"strings"
	"testing"

	"github.com/bcem/triage/internal/models"
)

func sampleEmail() models.Email {
	return models.Email{
		ID:      "msg-1",
		Subject: "Receipt for my hx-2000",
		From:    models.Sender{Name: "Nina Davis", Email: "nina.davis@example.com"},
		Body:    "Bought it at Store #4521 last week.",
		Attachments: []models.Attachment{
			{Name: "receipt.jpg", BlobPath: "attachments/msg-1/receipt.jpg"},
			{Name: "box.png"},
		},
	}
}

func TestKey(t *testing.T) {
	tests := []struct {
		name  string
		email models.Email
		want  string
	}{
		{
			name:  "no attachments",
			email: models.Email{ID: "a"},
			want:  "a|",
		},
		{
			name:  "blob path preferred over name",
			email: sampleEmail(),
			want:  "msg-1|attachments/msg-1/receipt.jpg|box.png",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Key(tt.email); got != tt.want {
				t.Errorf("Key = %q, want %q", got, tt.want)
			}
		})
	}
}

// TestSynthesize_Idempotent verifies that the same email and attachments
// always resolve to the same ticket.
func TestSynthesize_Idempotent(t *testing.T) {
	s := New()

	first, created := s.Synthesize(sampleEmail())
	if !created {
		t.Fatal("expected first synthesis to create a ticket")
	}
	first.Draft.Body = "edited"

	second, created := s.Synthesize(sampleEmail())
	if created {
		t.Error("expected second synthesis to reuse the ticket")
	}
	if first != second {
		t.Error("expected the same ticket pointer")
	}
	if second.Draft.Body != "edited" {
		t.Errorf("draft = %q, edits were lost", second.Draft.Body)
	}
	if s.Len() != 1 {
		t.Errorf("Len = %d, want 1", s.Len())
	}

	// A different attachment list is a different ticket.
	other := sampleEmail()
	other.Attachments = other.Attachments[:1]
	if _, created := s.Synthesize(other); !created {
		t.Error("expected a new ticket for a different attachment list")
	}
	if s.Len() != 2 {
		t.Errorf("Len = %d, want 2", s.Len())
	}
}

func TestSynthesize_Defaults(t *testing.T) {
	s := New()
	tk, _ := s.Synthesize(sampleEmail())

	if tk.Status != models.ReviewAwaiting {
		t.Errorf("Status = %q", tk.Status)
	}
	if tk.TicketStatus != models.TicketNew {
		t.Errorf("TicketStatus = %q, want new", tk.TicketStatus)
	}
	if tk.Sync.Confirmed != models.TicketNew {
		t.Errorf("Sync.Confirmed = %q, want new", tk.Sync.Confirmed)
	}
	if *tk.Extracted.Model != "HX-2000" {
		t.Errorf("Model = %q", *tk.Extracted.Model)
	}
	if *tk.Extracted.StoreNumber != "4521" {
		t.Errorf("StoreNumber = %q", *tk.Extracted.StoreNumber)
	}
	if *tk.Extracted.Merchant != Unknown || *tk.Extracted.Total != Placeholder {
		t.Errorf("Extracted = merchant %q total %q", *tk.Extracted.Merchant, *tk.Extracted.Total)
	}
	if *tk.Scores.Confidence != 92 || *tk.Scores.Fraud != 6 {
		t.Errorf("Scores = %v/%v, want matched preset", *tk.Scores.Confidence, *tk.Scores.Fraud)
	}
	if !strings.Contains(tk.Draft.Body, "Nina Davis") || !strings.Contains(tk.Draft.Body, "HX-2000") {
		t.Errorf("Draft = %q", tk.Draft.Body)
	}
	if tk.Draft.Template != DefaultTemplate {
		t.Errorf("Template = %q", tk.Draft.Template)
	}
	if tk.Thread == nil || len(tk.Thread) != 0 {
		t.Errorf("Thread = %#v, want empty", tk.Thread)
	}
}

func TestSynthesize_NoMatch(t *testing.T) {
	s := New()
	tk, _ := s.Synthesize(models.Email{ID: "x", Subject: "Question", From: models.Sender{Name: "Omar"}})

	if *tk.Extracted.Model != Unknown {
		t.Errorf("Model = %q", *tk.Extracted.Model)
	}
	if *tk.Extracted.StoreNumber != Placeholder {
		t.Errorf("StoreNumber = %q", *tk.Extracted.StoreNumber)
	}
	if *tk.Scores.Confidence != 61 {
		t.Errorf("Confidence = %v, want unmatched preset", *tk.Scores.Confidence)
	}
	if !strings.Contains(tk.Draft.Body, "your purchase") {
		t.Errorf("Draft = %q", tk.Draft.Body)
	}
}

func TestSynthesize_KeepsBackendStatus(t *testing.T) {
	s := New()
	email := sampleEmail()
	email.TicketStatus = models.TicketClosed

	tk, _ := s.Synthesize(email)
	if tk.TicketStatus != models.TicketClosed || tk.Sync.Confirmed != models.TicketClosed {
		t.Errorf("TicketStatus = %q confirmed %q", tk.TicketStatus, tk.Sync.Confirmed)
	}
}

func TestRestore(t *testing.T) {
	s := New()
	tk, _ := s.Synthesize(sampleEmail())
	tk.Draft.Body = "live edit"

	stale := tk.Clone()
	stale.Draft.Body = "stale"
	if s.Restore(stale) {
		t.Error("restore should not overwrite an existing ticket")
	}
	if tk.Draft.Body != "live edit" {
		t.Errorf("Draft = %q", tk.Draft.Body)
	}

	restored := models.Ticket{IngestionKey: "old|", Email: models.Email{ID: "old"}}
	if !s.Restore(restored) {
		t.Fatal("expected restore of a new key")
	}
	if got, ok := s.ByEmailID("old"); !ok || got.IngestionKey != "old|" {
		t.Errorf("ByEmailID = %v, %v", got, ok)
	}
	if len(s.Tickets()) != 2 {
		t.Errorf("Tickets = %d, want 2", len(s.Tickets()))
	}
}

func TestFormatScore(t *testing.T) {
	f := func(v float64) *float64 { return &v }

	tests := []struct {
		name string
		in   *float64
		want string
	}{
		{"nil", nil, Placeholder},
		{"above range", f(140), "100%"},
		{"below range", f(-3), "0%"},
		{"rounds", f(87.6), "88%"},
		{"zero", f(0), "0%"},
		{"nan", f(math.NaN()), Placeholder},
		{"inf", f(math.Inf(1)), Placeholder},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatScore(tt.in); got != tt.want {
				t.Errorf("FormatScore = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFormatRaw(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{float64(101), "100%"},
		{json.Number("42"), "42%"},
		{"75", "75%"},
		{"n/a", Placeholder},
		{nil, Placeholder},
		{true, Placeholder},
	}

	for _, tt := range tests {
		if got := FormatRaw(tt.in); got != tt.want {
			t.Errorf("FormatRaw(%#v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestApply(t *testing.T) {
	s := New()
	tk, _ := s.Synthesize(sampleEmail())

	body := "Hello Nina, approved."
	doc := models.Document{
		Email: models.Email{
			ID: "msg-1",
			Attachments: []models.Attachment{{
				Name:     "receipt.jpg",
				BlobPath: "attachments/msg-1/receipt.jpg",
				OCR: &models.OCR{
					Status: OCRSuccess,
					Text:   `{"merchant":"Amici Conyers","date":"06/10/2018","total":33.75,"model":null,"store_number":"1805 Parker RD","confidence_score":90,"duplication_score":0}`,
				},
			}},
			Labels:        models.Labels{Industry: "consumer", Category: models.CategoryReceipt},
			AssignedAgent: "agent_003",
		},
		DraftBody:          &body,
		DraftTemplate:      "response",
		OverallConfidence:  float64(88),
		OverallDuplication: "garbage",
	}

	Apply(tk, doc)

	if !tk.Backfilled {
		t.Error("expected Backfilled")
	}
	if len(tk.Attachments) != 1 {
		t.Errorf("Attachments = %d, want refreshed list of 1", len(tk.Attachments))
	}
	if tk.Extracted.Merchant == nil || *tk.Extracted.Merchant != "Amici Conyers" {
		t.Errorf("Merchant = %v", tk.Extracted.Merchant)
	}
	if tk.Extracted.Total == nil || *tk.Extracted.Total != "33.75" {
		t.Errorf("Total = %v", tk.Extracted.Total)
	}
	if tk.Extracted.Model != nil {
		t.Errorf("Model = %v, want nil", *tk.Extracted.Model)
	}
	if *tk.Scores.Confidence != 88 {
		t.Errorf("Confidence = %v, want document score", *tk.Scores.Confidence)
	}
	if tk.Scores.Duplication != nil {
		t.Errorf("Duplication = %v, want nil for garbage value", *tk.Scores.Duplication)
	}
	if *tk.Scores.Fraud != 6 {
		t.Errorf("Fraud = %v, want preset kept", *tk.Scores.Fraud)
	}
	if tk.Draft.Body != body {
		t.Errorf("Draft = %q", tk.Draft.Body)
	}
	if tk.AssignedAgent != "agent_003" {
		t.Errorf("AssignedAgent = %q", tk.AssignedAgent)
	}
}

// TestApply_BadOCR verifies a parse failure falls back to all-null fields.
func TestApply_BadOCR(t *testing.T) {
	s := New()
	tk, _ := s.Synthesize(sampleEmail())

	doc := models.Document{Email: models.Email{
		Attachments: []models.Attachment{{
			Name: "receipt.jpg",
			OCR:  &models.OCR{Status: OCRSuccess, Text: "Merchant: ACME"},
		}},
	}}

	Apply(tk, doc)

	e := tk.Extracted
	if e.Merchant != nil || e.Date != nil || e.Total != nil || e.Model != nil || e.StoreNumber != nil {
		t.Errorf("Extracted = %+v, want all nil", e)
	}
	if *tk.Scores.Confidence != 92 {
		t.Errorf("Confidence = %v, want preset kept", *tk.Scores.Confidence)
	}
}

// TestApply_NoOCR verifies pending OCR leaves the heuristic extraction.
func TestApply_NoOCR(t *testing.T) {
	s := New()
	tk, _ := s.Synthesize(sampleEmail())

	doc := models.Document{Email: models.Email{
		Attachments: []models.Attachment{{Name: "receipt.jpg", OCR: &models.OCR{Status: "pending"}}},
	}}

	Apply(tk, doc)

	if tk.Extracted.Model == nil || *tk.Extracted.Model != "HX-2000" {
		t.Errorf("Model = %v, want heuristic kept", tk.Extracted.Model)
	}
}
