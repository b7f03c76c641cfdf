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

// Package backend implements a client for the email-processing REST API
// (the serverless functions that ingest, categorize, OCR and draft).
//
// All responses are normalized before they leave this package, so callers
// only ever see models.Email and models.Document values.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/bcem/triage/internal/models"
	"github.com/bcem/triage/internal/normalize"
)

// DefaultBaseURL is the local functions host.
const DefaultBaseURL = "http://localhost:7071/api"

// Processing states accepted by ListEmails.
const (
	StatusNew         = "new"
	StatusCategorized = "categorized"
)

// maxErrorBody caps how much of a failed response is kept on a StatusError.
const maxErrorBody = 4 << 10

// StatusError is returned for any non-2xx response.
type StatusError struct {
	Code   int
	Status string
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("backend returned %s: %s", e.Status, e.Body)
	}
	return fmt.Sprintf("backend returned %s", e.Status)
}

// IsNotFound reports whether err is a 404 from the backend.
func IsNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == http.StatusNotFound
}

// Result is an untyped status object, as returned by the trigger endpoints.
type Result map[string]any

// SaveRequest is the body of POST /emails/save-edits. Nil fields are omitted
// and left unchanged by the backend.
type SaveRequest struct {
	ID          string  `json:"id"`
	DraftBody   *string `json:"draft_body,omitempty"`
	Filename    string  `json:"filename,omitempty"`
	Merchant    *string `json:"merchant,omitempty"`
	Date        *string `json:"date,omitempty"`
	Total       *string `json:"total,omitempty"`
	Model       *string `json:"model,omitempty"`
	StoreNumber *string `json:"store_number,omitempty"`
}

// Blob is a streamed attachment. The caller must close Body.
type Blob struct {
	Body          io.ReadCloser
	ContentType   string
	ContentLength int64
}

// Client talks to the backend REST API.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// NewClient creates a backend client. The httpClient must already handle
// authentication (see NewHTTPClient).
func NewClient(httpClient *http.Client, baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
	}
}

// ListEmails returns emails in the given processing state.
func (c *Client) ListEmails(ctx context.Context, status string) ([]models.Email, error) {
	q := url.Values{}
	q.Set("status", status)
	return c.list(ctx, q)
}

// ListByAgent returns emails assigned to an agent.
func (c *Client) ListByAgent(ctx context.Context, agentID string) ([]models.Email, error) {
	q := url.Values{}
	q.Set("assigned_agent", agentID)
	return c.list(ctx, q)
}

func (c *Client) list(ctx context.Context, q url.Values) ([]models.Email, error) {
	resp, err := c.do(ctx, http.MethodGet, "/emails?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("list emails: %w", err)
	}
	defer resp.Body.Close()

	emails, err := normalize.Emails(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("list emails: %w", err)
	}
	return emails, nil
}

// Ingest triggers a pull of new messages from the mailbox.
func (c *Client) Ingest(ctx context.Context) (Result, error) {
	return c.trigger(ctx, "/emails/ingest", "ingest")
}

// Categorize triggers categorization and agent assignment of new emails.
func (c *Client) Categorize(ctx context.Context) (Result, error) {
	return c.trigger(ctx, "/emails/categorize", "categorize")
}

// RunOCR triggers OCR of every attachment on an email.
func (c *Client) RunOCR(ctx context.Context, emailID string) (Result, error) {
	return c.trigger(ctx, "/emails/"+url.PathEscape(emailID)+"/attachments/ocr", "run OCR")
}

// GenerateDraft asks the backend to write a draft reply.
func (c *Client) GenerateDraft(ctx context.Context, emailID string) (Result, error) {
	return c.trigger(ctx, "/emails/"+url.PathEscape(emailID)+"/draft", "generate draft")
}

// Fetch returns the full document for an email.
func (c *Client) Fetch(ctx context.Context, emailID string) (models.Document, error) {
	return c.document(ctx, http.MethodGet, "/emails/"+url.PathEscape(emailID)+"/fetch", nil, "fetch email")
}

// SaveEdits persists the draft body and/or extracted fields.
func (c *Client) SaveEdits(ctx context.Context, req SaveRequest) (models.Document, error) {
	return c.document(ctx, http.MethodPost, "/emails/save-edits", req, "save edits")
}

// UpdateTicket sets the backend ticket status of an email.
func (c *Client) UpdateTicket(ctx context.Context, emailID string, status models.TicketStatus) (models.Document, error) {
	body := map[string]models.TicketStatus{"ticket": status}
	return c.document(ctx, http.MethodPost, "/emails/"+url.PathEscape(emailID)+"/ticket", body, "update ticket")
}

// Attachment streams an attachment from blob storage.
func (c *Client) Attachment(ctx context.Context, container, blobPath string) (*Blob, error) {
	path := "/attachments/" + url.PathEscape(container) + "/" + escapePath(blobPath)
	resp, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch attachment: %w", err)
	}
	return &Blob{
		Body:          resp.Body,
		ContentType:   resp.Header.Get("Content-Type"),
		ContentLength: resp.ContentLength,
	}, nil
}

func (c *Client) trigger(ctx context.Context, path, op string) (Result, error) {
	resp, err := c.do(ctx, http.MethodPost, path, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: read response: %w", op, err)
	}

	result := Result{}
	if len(bytes.TrimSpace(raw)) == 0 {
		return result, nil
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		// Some functions answer with plain text; keep it rather than fail.
		slog.Debug("non-JSON backend response", "op", op, "error", err)
		result["message"] = strings.TrimSpace(string(raw))
	}
	return result, nil
}

func (c *Client) document(ctx context.Context, method, path string, body any, op string) (models.Document, error) {
	resp, err := c.do(ctx, method, path, body)
	if err != nil {
		return models.Document{}, fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return models.Document{}, fmt.Errorf("%s: read response: %w", op, err)
	}
	return normalize.Document(raw), nil
}

// do sends a request and returns the response if it was 2xx. Any other
// status is drained into a StatusError.
func (c *Client) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &StatusError{
			Code:   resp.StatusCode,
			Status: resp.Status,
			Body:   strings.TrimSpace(string(msg)),
		}
	}

	return resp, nil
}

func escapePath(p string) string {
	segments := strings.Split(strings.TrimLeft(p, "/"), "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.Join(segments, "/")
}
