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

// Package normalize converts backend email records into the canonical
// models.Email shape.
//
// The backend stores whatever Microsoft Graph returned plus fields added by
// the categorizer, OCR and draft functions, so the same logical field shows
// up under different keys and types. Normalization never fails on a single
// record: unknown or malformed values resolve to the documented defaults.
package normalize

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/bcem/triage/internal/models"
)

// record is a backend email document decoded one level deep. Values are
// kept raw so that a wrong type in one field cannot spoil the others.
type record map[string]json.RawMessage

// listResponse is the envelope returned by GET /emails.
type listResponse struct {
	Emails []json.RawMessage `json:"emails"`
}

// Emails decodes a list response and normalizes every record in it.
// Only a broken envelope is an error.
func Emails(body io.Reader) ([]models.Email, error) {
	var resp listResponse
	if err := json.NewDecoder(body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("decode email list: %w", err)
	}

	emails := make([]models.Email, 0, len(resp.Emails))
	for _, raw := range resp.Emails {
		emails = append(emails, Email(raw))
	}
	return emails, nil
}

// Email normalizes a single backend record.
func Email(raw json.RawMessage) models.Email {
	return fromRecord(decodeRecord(raw))
}

// Document normalizes a full backend document, as returned by the fetch,
// save-edits and ticket endpoints.
func Document(raw json.RawMessage) models.Document {
	rec := decodeRecord(raw)

	// The ticket endpoint wraps the document: {"message": ..., "email": {...}}.
	if inner, ok := rec["email"]; ok && isObject(inner) {
		rec = decodeRecord(inner)
	}

	doc := models.Document{
		Email:              fromRecord(rec),
		OverallConfidence:  anyValue(rec.first("overall_confidence", "confidence_score")),
		OverallDuplication: anyValue(rec.first("overall_duplication", "duplication_score", "dup_score")),
		FraudScore:         anyValue(rec.first("fraud_score", "overall_fraud")),
	}

	if draft := decodeRecord(rec["draft_reply"]); draft != nil {
		doc.DraftTemplate = stringValue(draft["template"])
		if body, ok := draft["body"]; ok && !isNull(body) {
			s := stringValue(body)
			doc.DraftBody = &s
		}
	}

	return doc
}

func fromRecord(rec record) models.Email {
	email := models.Email{
		ID:               stringValue(rec["id"]),
		Subject:          strings.TrimSpace(stringValue(rec["subject"])),
		From:             Sender(rec.first("from", "sender")),
		Body:             body(rec),
		ReceivedAt:       stringValue(rec.first("receivedDateTime", "receivedAt", "received_at")),
		Attachments:      attachments(rec["attachments"]),
		Tags:             tags(rec),
		Labels:           labels(rec["labels"]),
		AssignedAgent:    stringValue(rec.first("assigned_agent", "assignedAgent")),
		TicketStatus:     ticketStatus(rec.first("ticket", "ticketStatus")),
		ProcessingStatus: stringValue(rec["status"]),
	}

	return Fill(email)
}

// Fill applies the record defaults to an email. Emails built outside this
// package, such as parsed .eml seeds, go through it too.
func Fill(e models.Email) models.Email {
	e.Subject = strings.TrimSpace(e.Subject)
	if e.Subject == "" {
		e.Subject = models.DefaultSubject
	}
	e.From = withDefaults(e.From.Name, e.From.Email)
	if e.Attachments == nil {
		e.Attachments = []models.Attachment{}
	}
	if e.Tags == nil {
		e.Tags = []string{}
	}
	return e
}

// body extracts the message text. Graph wraps it as {contentType, content};
// seeded records carry a bare string.
func body(rec record) string {
	raw := rec["body"]

	var wrapped struct {
		ContentType string `json:"contentType"`
		Content     string `json:"content"`
	}
	if isObject(raw) && json.Unmarshal(raw, &wrapped) == nil {
		if strings.EqualFold(wrapped.ContentType, "html") {
			return HTMLText(wrapped.Content)
		}
		if wrapped.Content != "" {
			return wrapped.Content
		}
	} else if s := stringValue(raw); s != "" {
		return s
	}

	return stringValue(rec["bodyPreview"])
}

func attachments(raw json.RawMessage) []models.Attachment {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return []models.Attachment{}
	}

	out := make([]models.Attachment, 0, len(items))
	for _, item := range items {
		rec := decodeRecord(item)
		if rec == nil {
			continue
		}

		att := models.Attachment{
			Name:        stringValue(rec.first("name", "filename")),
			ContentType: stringValue(rec.first("contentType", "content_type")),
			BlobPath:    stringValue(rec.first("blobPath", "blob_path")),
		}

		if ocr := decodeRecord(rec["ocr"]); ocr != nil {
			att.OCR = &models.OCR{
				Status: stringValue(ocr["status"]),
				Text:   stringValue(ocr["text"]),
				Engine: stringValue(ocr["engine"]),
				Error:  stringValue(ocr["error"]),
			}
		}

		out = append(out, att)
	}
	return out
}

// tags returns an ordered, de-duplicated tag list. Seeded records use
// "tags"; Graph records use "categories".
func tags(rec record) []string {
	var values []string
	for _, key := range []string{"tags", "categories"} {
		var list []any
		if err := json.Unmarshal(rec[key], &list); err != nil {
			continue
		}
		for _, v := range list {
			if s, ok := v.(string); ok {
				values = append(values, s)
			}
		}
	}

	seen := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}

func labels(raw json.RawMessage) models.Labels {
	rec := decodeRecord(raw)
	if rec == nil {
		return models.Labels{}
	}

	l := models.Labels{Industry: stringValue(rec["industry"])}
	if c := models.Category(stringValue(rec["category"])); c.Valid() {
		l.Category = c
	}
	return l
}

// ticketStatus keeps unrecognised values so that board views can leave them
// out of every status bucket without dropping the email itself.
func ticketStatus(raw json.RawMessage) models.TicketStatus {
	return models.TicketStatus(strings.ToLower(strings.TrimSpace(stringValue(raw))))
}

// --- raw value helpers ---

func decodeRecord(raw json.RawMessage) record {
	if !isObject(raw) {
		return nil
	}
	var rec record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil
	}
	return rec
}

// first returns the value of the first key present and non-null.
func (r record) first(keys ...string) json.RawMessage {
	for _, k := range keys {
		if v, ok := r[k]; ok && !isNull(v) {
			return v
		}
	}
	return nil
}

func stringValue(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	// Numeric IDs and similar scalars are kept in their literal form.
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

func anyValue(raw json.RawMessage) any {
	if raw == nil {
		return nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil
	}
	return v
}

func isObject(raw json.RawMessage) bool {
	trimmed := strings.TrimSpace(string(raw))
	return strings.HasPrefix(trimmed, "{")
}

func isNull(raw json.RawMessage) bool {
	trimmed := strings.TrimSpace(string(raw))
	return trimmed == "" || trimmed == "null"
}
