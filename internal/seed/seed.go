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

// Package seed loads mock emails for demos and local development, either
// from a JSON file in the backend's record shape or from RFC 5322 .eml files.
package seed

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"

	"github.com/bcem/triage/internal/backend"
	"github.com/bcem/triage/internal/models"
	"github.com/bcem/triage/internal/normalize"
)

// Load reads seed emails from path. A directory is scanned for .json and
// .eml files in name order; a file is read according to its extension.
func Load(path string) ([]models.Email, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat seed path: %w", err)
	}
	if !info.IsDir() {
		return loadFile(path)
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("read seed directory: %w", err)
	}

	var out []models.Email
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".json", ".eml":
		default:
			continue
		}

		emails, err := loadFile(filepath.Join(path, entry.Name()))
		if err != nil {
			slog.Warn("skipping seed file", "file", entry.Name(), "error", err)
			continue
		}
		out = append(out, emails...)
	}

	slog.Info("seed emails loaded", "path", path, "count", len(out))
	return out, nil
}

func loadFile(path string) ([]models.Email, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open seed file: %w", err)
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return JSON(f)
	case ".eml":
		id := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		e, err := EML(f, id)
		if err != nil {
			return nil, err
		}
		return []models.Email{e}, nil
	default:
		return nil, fmt.Errorf("unsupported seed file %s", filepath.Base(path))
	}
}

// JSON decodes either a bare array of email records or the list envelope
// {"emails": [...]} returned by the backend.
func JSON(r io.Reader) ([]models.Email, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read seed JSON: %w", err)
	}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return normalize.Emails(bytes.NewReader(data))
	}

	var records []json.RawMessage
	if err := json.Unmarshal(trimmed, &records); err != nil {
		return nil, fmt.Errorf("decode seed JSON: %w", err)
	}
	emails := make([]models.Email, 0, len(records))
	for _, raw := range records {
		emails = append(emails, normalize.Email(raw))
	}
	return emails, nil
}

// EML parses one MIME message. fallbackID is used when the message carries
// no Message-Id header. Attachment content is not kept.
func EML(r io.Reader, fallbackID string) (models.Email, error) {
	mr, err := mail.CreateReader(r)
	if err != nil {
		return models.Email{}, fmt.Errorf("parse message: %w", err)
	}
	defer mr.Close()

	h := mr.Header
	e := models.Email{
		ID:               fallbackID,
		Attachments:      []models.Attachment{},
		Tags:             []string{},
		ProcessingStatus: backend.StatusNew,
	}

	if id, err := h.MessageID(); err == nil && id != "" {
		e.ID = id
	}
	if subject, err := h.Subject(); err == nil {
		e.Subject = subject
	}
	if from, err := h.AddressList("From"); err == nil && len(from) > 0 {
		e.From = models.Sender{Name: from[0].Name, Email: from[0].Address}
	}
	if date, err := h.Date(); err == nil && !date.IsZero() {
		e.ReceivedAt = date.UTC().Format(time.RFC3339)
	}

	var textBody, htmlBody string
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return models.Email{}, fmt.Errorf("read message part: %w", err)
		}

		switch ph := part.Header.(type) {
		case *mail.InlineHeader:
			contentType, _, _ := ph.ContentType()
			if contentType == "" {
				contentType = "text/plain"
			}
			body, err := io.ReadAll(part.Body)
			if err != nil {
				continue
			}
			switch {
			case strings.HasPrefix(contentType, "text/plain") && textBody == "":
				textBody = string(body)
			case strings.HasPrefix(contentType, "text/html") && htmlBody == "":
				htmlBody = string(body)
			}

		case *mail.AttachmentHeader:
			filename, _ := ph.Filename()
			contentType, _, _ := ph.ContentType()
			e.Attachments = append(e.Attachments, models.Attachment{
				Name:        filename,
				ContentType: contentType,
			})
		}
	}

	if strings.TrimSpace(textBody) != "" {
		e.Body = strings.TrimSpace(textBody)
	} else {
		e.Body = normalize.HTMLText(htmlBody)
	}

	return normalize.Fill(e), nil
}
