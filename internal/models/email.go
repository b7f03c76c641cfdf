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

// Package models defines the data structures shared across the triage console.
package models

// Defaults applied by the normalizer when a backend record is missing or
// malformed.
const (
	DefaultSubject     = "No Subject"
	DefaultSenderName  = "Unknown"
	DefaultSenderEmail = "unknown@example.com"
)

// Category is the backend's email classification label.
type Category string

const (
	CategoryAppetite     Category = "appetite"
	CategoryBilling      Category = "billing"
	CategoryDocRequest   Category = "docRequest"
	CategoryEndorsement  Category = "endorsement"
	CategoryUnderwriting Category = "underwriting"
	CategoryReceipt      Category = "receipt"
)

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	switch c {
	case CategoryAppetite, CategoryBilling, CategoryDocRequest,
		CategoryEndorsement, CategoryUnderwriting, CategoryReceipt:
		return true
	}
	return false
}

// TicketStatus is the ticket lifecycle state stored on the backend under the
// "ticket" field.
type TicketStatus string

const (
	TicketNew    TicketStatus = "new"
	TicketOpen   TicketStatus = "open"
	TicketClosed TicketStatus = "closed"
)

// Valid reports whether s is one of the known ticket states.
func (s TicketStatus) Valid() bool {
	return s == TicketNew || s == TicketOpen || s == TicketClosed
}

// Sender is the normalized "from" of an email.
type Sender struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// OCR holds the per-attachment extraction state written by the backend.
// Text is the raw JSON string produced by the OCR function.
type OCR struct {
	Status string `json:"status,omitempty"`
	Text   string `json:"text,omitempty"`
	Engine string `json:"engine,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Attachment is a file reference on an email. Content lives in blob storage
// and is fetched through the attachment proxy using BlobPath.
type Attachment struct {
	Name        string `json:"name"`
	ContentType string `json:"content_type,omitempty"`
	BlobPath    string `json:"blob_path,omitempty"`
	OCR         *OCR   `json:"ocr,omitempty"`
}

// Identity returns the value used to identify the attachment inside an
// ingestion key: the blob path when known, the file name otherwise.
func (a Attachment) Identity() string {
	if a.BlobPath != "" {
		return a.BlobPath
	}
	return a.Name
}

// Labels are the categorizer's output.
type Labels struct {
	Industry string   `json:"industry,omitempty"`
	Category Category `json:"category,omitempty"`
}

// Email is a normalized backend email. It is never mutated after the
// normalizer returns it; lifecycle changes are applied to copies.
type Email struct {
	ID            string       `json:"id"`
	Subject       string       `json:"subject"`
	From          Sender       `json:"from"`
	Body          string       `json:"body"`
	ReceivedAt    string       `json:"received_at,omitempty"`
	Attachments   []Attachment `json:"attachments"`
	Tags          []string     `json:"tags"`
	Labels        Labels       `json:"labels"`
	AssignedAgent string       `json:"assigned_agent,omitempty"`
	TicketStatus  TicketStatus `json:"ticket_status,omitempty"`

	// ProcessingStatus is the backend pipeline stage ("new" or "categorized").
	ProcessingStatus string `json:"processing_status,omitempty"`
}

// BoardStatus returns the ticket status used for board placement. A record
// the backend never ticketed counts as new; unknown values are returned as-is
// so that they fall outside every status bucket.
func (e Email) BoardStatus() TicketStatus {
	if e.TicketStatus == "" {
		return TicketNew
	}
	return e.TicketStatus
}

// Assignee returns the ID of the agent the categorizer assigned.
func (e Email) Assignee() string {
	return e.AssignedAgent
}

// Document carries the fields of a full backend email document that only
// matter once a ticket exists: draft, scores and OCR results. It is produced
// by the normalizer alongside the Email.
type Document struct {
	Email Email

	DraftBody     *string
	DraftTemplate string

	// Raw score values as sent by the backend. They may be numbers,
	// numeric strings or garbage; the synthesizer coerces them.
	OverallConfidence  any
	OverallDuplication any
	FraudScore         any
}
