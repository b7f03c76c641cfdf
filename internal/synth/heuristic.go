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
	"fmt"
	"regexp"
	"strings"

	"github.com/bcem/triage/internal/models"
)

// Placeholders for fields the heuristic could not determine.
const (
	Unknown     = "Unknown"
	Placeholder = "—"
)

// DefaultTemplate is the draft template ID the backend also uses.
const DefaultTemplate = "response"

// KnownModels are the product model tokens recognised in subjects and bodies.
var KnownModels = []string{
	"HX-2000",
	"HX-3000",
	"AQ-500",
	"AQ-700",
	"ZR-90",
}

var storePattern = regexp.MustCompile(`(?i)\bstore\s*(?:#|no\.?|number)?\s*:?\s*#?\s*([A-Z]{0,2}-?\d{2,6})\b`)

type preset struct {
	confidence, duplication, fraud float64
}

var (
	modelMatchedPreset = preset{confidence: 92, duplication: 4, fraud: 6}
	noMatchPreset      = preset{confidence: 61, duplication: 12, fraud: 18}
)

// guess is the result of scanning an email for receipt details.
type guess struct {
	model       string
	storeNumber string
}

func guessFrom(email models.Email) guess {
	text := email.Subject + "\n" + email.Body
	upper := strings.ToUpper(text)

	var g guess
	for _, m := range KnownModels {
		if strings.Contains(upper, m) {
			g.model = m
			break
		}
	}
	if m := storePattern.FindStringSubmatch(text); m != nil {
		g.storeNumber = strings.ToUpper(m[1])
	}
	return g
}

func (g guess) extracted() models.Extracted {
	model := Unknown
	if g.model != "" {
		model = g.model
	}
	store := Placeholder
	if g.storeNumber != "" {
		store = g.storeNumber
	}
	return models.Extracted{
		Merchant:    strPtr(Unknown),
		Date:        strPtr(Placeholder),
		Total:       strPtr(Placeholder),
		Model:       strPtr(model),
		StoreNumber: strPtr(store),
	}
}

func (g guess) scores() models.Scores {
	p := noMatchPreset
	if g.model != "" {
		p = modelMatchedPreset
	}
	return models.Scores{
		Confidence:  floatPtr(p.confidence),
		Duplication: floatPtr(p.duplication),
		Fraud:       floatPtr(p.fraud),
	}
}

func (g guess) draft(from models.Sender) models.DraftReply {
	product := "your purchase"
	if g.model != "" {
		product = "your " + g.model
	}

	body := fmt.Sprintf("Hi %s,\n\n"+
		"Thank you for sending the receipt for %s. "+
		"We have received your claim and are reviewing the details now. "+
		"We will follow up if we need anything else.\n\n"+
		"Best regards,\nClaims Team", from.Name, product)

	return models.DraftReply{Template: DefaultTemplate, Body: body}
}

func strPtr(s string) *string { return &s }

func floatPtr(f float64) *float64 { return &f }
