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
	"log/slog"
	"strconv"
	"strings"

	"github.com/bcem/triage/internal/models"
)

// OCRSuccess is the attachment OCR status written by the backend when
// extraction completed.
const OCRSuccess = "success"

// ocrPayload mirrors the JSON string the OCR function stores in
// attachments[].ocr.text. Values are decoded loosely because the model
// output is only partly schema-checked upstream.
type ocrPayload struct {
	Merchant         any `json:"merchant"`
	Date             any `json:"date"`
	Total            any `json:"total"`
	Model            any `json:"model"`
	StoreNumber      any `json:"store_number"`
	ConfidenceScore  any `json:"confidence_score"`
	DuplicationScore any `json:"duplication_score"`
}

// Apply back-fills a ticket from an authoritative backend document: the
// attachment list, OCR extraction, scores, labels and the draft body.
// Ticket status is not touched; the lifecycle controller reconciles it. A
// dirty local draft is kept.
func Apply(t *models.Ticket, doc models.Document) {
	src := doc.Email

	if src.Attachments != nil {
		t.Attachments = append([]models.Attachment(nil), src.Attachments...)
	}
	if src.Labels.Category != "" || src.Labels.Industry != "" {
		t.Labels = src.Labels
	}
	if src.AssignedAgent != "" {
		t.AssignedAgent = src.AssignedAgent
	}
	if src.ProcessingStatus != "" {
		t.ProcessingStatus = src.ProcessingStatus
	}

	payload, found := ocrFrom(t)
	if found {
		t.Extracted = payload.extracted()
	}

	t.Scores.Confidence = pickScore(t.Scores.Confidence, doc.OverallConfidence, payload.ConfidenceScore)
	t.Scores.Duplication = pickScore(t.Scores.Duplication, doc.OverallDuplication, payload.DuplicationScore)
	t.Scores.Fraud = pickScore(t.Scores.Fraud, doc.FraudScore, nil)

	if doc.DraftBody != nil && !t.Draft.Dirty() {
		t.Draft.Body = *doc.DraftBody
		if doc.DraftTemplate != "" {
			t.Draft.Template = doc.DraftTemplate
		}
	}

	t.Backfilled = true
}

// ocrFrom parses the OCR text of the first successful attachment. found is
// true when such an attachment exists, even if its text failed to parse, in
// which case the returned payload is empty and extraction becomes all-null.
func ocrFrom(t *models.Ticket) (ocrPayload, bool) {
	for _, a := range t.Attachments {
		if a.OCR == nil || a.OCR.Status != OCRSuccess || a.OCR.Text == "" {
			continue
		}

		var p ocrPayload
		if err := json.Unmarshal([]byte(a.OCR.Text), &p); err != nil {
			slog.Warn("failed to parse OCR result",
				"email_id", t.ID,
				"attachment", a.Name,
				"error", err,
			)
			return ocrPayload{}, true
		}
		return p, true
	}
	return ocrPayload{}, false
}

func (p ocrPayload) extracted() models.Extracted {
	return models.Extracted{
		Merchant:    field(p.Merchant),
		Date:        field(p.Date),
		Total:       field(p.Total),
		Model:       field(p.Model),
		StoreNumber: field(p.StoreNumber),
	}
}

// field converts a loosely typed OCR value into an optional string.
func field(v any) *string {
	switch x := v.(type) {
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return nil
		}
		return &s
	case float64:
		s := strconv.FormatFloat(x, 'f', -1, 64)
		return &s
	default:
		return nil
	}
}

// pickScore chooses the document-level score, then the OCR score. A key the
// backend sent with an unusable value clears the score so it renders as the
// placeholder; when neither is present the current value is kept.
func pickScore(current *float64, values ...any) *float64 {
	for _, v := range values {
		if v == nil {
			continue
		}
		if f, ok := Percent(v); ok {
			return &f
		}
		return nil
	}
	return current
}
