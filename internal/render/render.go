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

// Package render turns draft replies into the HTML preview shown before a
// ticket is sent.
package render

import (
	"bytes"
	"fmt"
	"html"
	"strings"
	"sync"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	gmhtml "github.com/yuin/goldmark/renderer/html"

	"github.com/bcem/triage/internal/models"
)

// markdown is built once; goldmark instances are safe for concurrent use.
var (
	markdown     goldmark.Markdown
	markdownOnce sync.Once
)

func getMarkdown() goldmark.Markdown {
	markdownOnce.Do(func() {
		markdown = goldmark.New(
			goldmark.WithExtensions(extension.Linkify, extension.Strikethrough),
			// Agents type drafts like emails: a newline is a line break.
			goldmark.WithRendererOptions(gmhtml.WithHardWraps()),
		)
	})
	return markdown
}

// Preview is a rendered draft reply.
type Preview struct {
	EmailID string `json:"email_id"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	HTML    string `json:"html"`
	Text    string `json:"text"`
}

// Draft converts a draft body to HTML. Raw HTML in the body is not passed
// through.
func Draft(body string) (string, error) {
	var buf bytes.Buffer
	if err := getMarkdown().Convert([]byte(body), &buf); err != nil {
		return "", fmt.Errorf("render draft: %w", err)
	}
	return buf.String(), nil
}

// Ticket builds the send preview for a ticket. If the draft cannot be
// rendered the escaped text is used instead.
func Ticket(t models.Ticket) Preview {
	p := Preview{
		EmailID: t.ID,
		To:      t.From.Email,
		Subject: replySubject(t.Subject),
		Text:    t.Draft.Body,
	}

	out, err := Draft(t.Draft.Body)
	if err != nil {
		out = "<pre>" + html.EscapeString(t.Draft.Body) + "</pre>"
	}
	p.HTML = out
	return p
}

func replySubject(subject string) string {
	if subject == "" {
		return "Re: your claim"
	}
	if strings.HasPrefix(strings.ToLower(subject), "re:") {
		return subject
	}
	return "Re: " + subject
}
