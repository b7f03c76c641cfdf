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

package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/bcem/triage/internal/backend"
	"github.com/bcem/triage/internal/intake"
	"github.com/bcem/triage/internal/lifecycle"
	"github.com/bcem/triage/internal/models"
)

// --- Mock backend ---

type mockBackend struct {
	mu      sync.Mutex
	saveErr error
	blobs   map[string]string
}

func (m *mockBackend) Fetch(ctx context.Context, emailID string) (models.Document, error) {
	return models.Document{Email: models.Email{ID: emailID}}, nil
}

func (m *mockBackend) SaveEdits(ctx context.Context, req backend.SaveRequest) (models.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return models.Document{}, m.saveErr
	}
	return models.Document{Email: models.Email{ID: req.ID}}, nil
}

func (m *mockBackend) UpdateTicket(ctx context.Context, emailID string, status models.TicketStatus) (models.Document, error) {
	return models.Document{Email: models.Email{ID: emailID, TicketStatus: status}}, nil
}

func (m *mockBackend) RunOCR(ctx context.Context, emailID string) (backend.Result, error) {
	return backend.Result{}, nil
}

func (m *mockBackend) GenerateDraft(ctx context.Context, emailID string) (backend.Result, error) {
	return nil, &backend.StatusError{Code: 500, Status: "500 Internal Server Error", Body: "model unavailable"}
}

func (m *mockBackend) Attachment(ctx context.Context, container, blobPath string) (*backend.Blob, error) {
	body, ok := m.blobs[container+"/"+blobPath]
	if !ok {
		return nil, &backend.StatusError{Code: 404, Status: "404 Not Found"}
	}
	return &backend.Blob{
		Body:          io.NopCloser(strings.NewReader(body)),
		ContentType:   "image/jpeg",
		ContentLength: int64(len(body)),
	}, nil
}

// --- Mock refresher ---

type mockRefresher struct {
	got intake.Request
}

func (m *mockRefresher) Run(ctx context.Context, req intake.Request) (*intake.Result, error) {
	m.got = req
	return &intake.Result{Listed: 2, Created: 1}, nil
}

// --- Test helpers ---

func newTestServer(t *testing.T, b *mockBackend, refresh Refresher) (*httptest.Server, *lifecycle.Controller) {
	t.Helper()
	ctrl := lifecycle.New(lifecycle.Config{Backend: b})
	t.Cleanup(ctrl.Close)

	ctrl.Load([]models.Email{
		{
			ID:            "m1",
			Subject:       "Receipt for my HX-2000",
			From:          models.Sender{Name: "Nina Davis", Email: "nina.davis@example.com"},
			AssignedAgent: "agent_003",
		},
		{ID: "m2", Subject: "Question", TicketStatus: models.TicketClosed},
	})

	var blobs Attachments
	if b.blobs != nil {
		blobs = b
	}
	srv := httptest.NewServer(NewHandler(ctrl, blobs, refresh).Routes())
	t.Cleanup(srv.Close)
	return srv, ctrl
}

func do(t *testing.T, method, url, body string) (*http.Response, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()

	out := map[string]any{}
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			t.Fatalf("decode response: %v", err)
		}
	}
	return resp, out
}

// --- Tests ---

func TestHealthAndInbox(t *testing.T) {
	srv, _ := newTestServer(t, &mockBackend{}, nil)

	resp, body := do(t, http.MethodGet, srv.URL+"/health", "")
	if resp.StatusCode != http.StatusOK || body["status"] != "ok" {
		t.Errorf("health = %d %v", resp.StatusCode, body)
	}

	resp, body = do(t, http.MethodGet, srv.URL+"/api/inbox", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("inbox status = %d", resp.StatusCode)
	}
	if emails, _ := body["emails"].([]any); len(emails) != 2 {
		t.Errorf("emails = %v", body["emails"])
	}
}

func TestBoards(t *testing.T) {
	srv, _ := newTestServer(t, &mockBackend{}, nil)

	resp, body := do(t, http.MethodGet, srv.URL+"/api/board", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("board status = %d", resp.StatusCode)
	}
	if n := len(body["new"].([]any)); n != 1 {
		t.Errorf("new = %d, want 1", n)
	}
	if n := len(body["closed"].([]any)); n != 1 {
		t.Errorf("closed = %d, want 1", n)
	}

	resp, body = do(t, http.MethodGet, srv.URL+"/api/board/agent_003", "")
	if resp.StatusCode != http.StatusOK || len(body["new"].([]any)) != 1 {
		t.Errorf("agent board = %d %v", resp.StatusCode, body)
	}

	resp, _ = do(t, http.MethodGet, srv.URL+"/api/board/nobody", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown agent status = %d, want 404", resp.StatusCode)
	}

	resp, body = do(t, http.MethodGet, srv.URL+"/api/triage", "")
	if resp.StatusCode != http.StatusOK || len(body["unassigned"].([]any)) != 1 {
		t.Errorf("triage = %d %v", resp.StatusCode, body)
	}
}

// TestTicketFlow walks open, save, send and reply through the API.
func TestTicketFlow(t *testing.T) {
	srv, ctrl := newTestServer(t, &mockBackend{}, nil)

	resp, body := do(t, http.MethodPost, srv.URL+"/api/tickets/m1/open", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("open status = %d %v", resp.StatusCode, body)
	}
	if body["ticket_status"] != "open" || body["status"] != "awaiting_review" {
		t.Errorf("open ticket = %v", body)
	}
	display := body["display"].(map[string]any)
	if display["confidence"] != "92%" {
		t.Errorf("display = %v", display)
	}

	resp, body = do(t, http.MethodPost, srv.URL+"/api/tickets/m1/draft", `{"body":"Approved."}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("draft status = %d %v", resp.StatusCode, body)
	}
	if body["draft_reply"].(map[string]any)["body"] != "Approved." {
		t.Errorf("draft = %v", body["draft_reply"])
	}

	resp, body = do(t, http.MethodGet, srv.URL+"/api/tickets/m1/preview", "")
	if resp.StatusCode != http.StatusOK || !strings.Contains(body["html"].(string), "Approved.") {
		t.Errorf("preview = %d %v", resp.StatusCode, body)
	}

	resp, body = do(t, http.MethodPost, srv.URL+"/api/tickets/m1/send", "")
	if resp.StatusCode != http.StatusOK || body["status"] != "sent" || body["ticket_status"] != "closed" {
		t.Errorf("send = %d %v", resp.StatusCode, body)
	}

	_, body = do(t, http.MethodGet, srv.URL+"/api/active", "")
	if body["ticket"] != nil {
		t.Errorf("active after send = %v", body["ticket"])
	}

	resp, _ = do(t, http.MethodPost, srv.URL+"/api/tickets/m1/draft", `{"body":"again"}`)
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("draft after send = %d, want 409", resp.StatusCode)
	}

	resp, body = do(t, http.MethodPost, srv.URL+"/api/tickets/m1/reply", `{"body":"Any news?"}`)
	if resp.StatusCode != http.StatusOK || body["status"] != "awaiting_review" || body["ticket_status"] != "open" {
		t.Errorf("reply = %d %v", resp.StatusCode, body)
	}

	ctrl.Wait()
	for _, e := range ctrl.Inbox() {
		if e.ID == "m1" && e.TicketStatus != models.TicketOpen {
			t.Errorf("inbox status = %q, want open", e.TicketStatus)
		}
	}
}

func TestErrors(t *testing.T) {
	b := &mockBackend{saveErr: &backend.StatusError{Code: 503, Status: "503 Service Unavailable"}}
	srv, _ := newTestServer(t, b, nil)

	tests := []struct {
		name       string
		method     string
		path       string
		body       string
		wantStatus int
	}{
		{"unknown email open", http.MethodPost, "/api/tickets/zz/open", "", http.StatusNotFound},
		{"unknown ticket", http.MethodGet, "/api/tickets/zz", "", http.StatusNotFound},
		{"bad json", http.MethodPost, "/api/tickets/m1/draft", `{"body":`, http.StatusBadRequest},
		{"save fails", http.MethodPost, "/api/tickets/m1/draft", `{"body":"x"}`, http.StatusBadGateway},
		{"generate fails", http.MethodPost, "/api/tickets/m1/generate-draft", "", http.StatusBadGateway},
		{"refresh unconfigured", http.MethodPost, "/api/refresh", "", http.StatusServiceUnavailable},
		{"attachments unconfigured", http.MethodGet, "/attachments/c/a.jpg", "", http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := do(t, tt.method, srv.URL+tt.path, tt.body)
			if resp.StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d (%v)", resp.StatusCode, tt.wantStatus, body)
			}
			if _, ok := body["error"]; !ok {
				t.Errorf("missing error field: %v", body)
			}
		})
	}
}

// TestSaveDraftFailure_KeepsLocal verifies the ticket with the local draft is
// returned alongside the error.
func TestSaveDraftFailure_KeepsLocal(t *testing.T) {
	b := &mockBackend{saveErr: errors.New("connection refused")}
	srv, ctrl := newTestServer(t, b, nil)

	resp, body := do(t, http.MethodPost, srv.URL+"/api/tickets/m1/draft", `{"body":"local"}`)
	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	tk, ok := body["ticket"].(map[string]any)
	if !ok {
		t.Fatalf("no ticket in error body: %v", body)
	}
	if tk["draft_reply"].(map[string]any)["body"] != "local" {
		t.Errorf("draft = %v", tk["draft_reply"])
	}
	if got, _ := ctrl.Ticket("m1"); got.Draft.Body != "local" {
		t.Errorf("controller draft = %q", got.Draft.Body)
	}
}

func TestAttachmentProxy(t *testing.T) {
	b := &mockBackend{blobs: map[string]string{"attachments/m1/receipt.jpg": "JPEGDATA"}}
	srv, _ := newTestServer(t, b, nil)

	resp, err := http.Get(srv.URL + "/attachments/attachments/m1/receipt.jpg")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK || string(data) != "JPEGDATA" {
		t.Errorf("proxy = %d %q", resp.StatusCode, data)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "image/jpeg" {
		t.Errorf("Content-Type = %q", ct)
	}

	resp2, _ := do(t, http.MethodGet, srv.URL+"/attachments/attachments/missing.jpg", "")
	if resp2.StatusCode != http.StatusNotFound {
		t.Errorf("missing blob status = %d, want 404", resp2.StatusCode)
	}
}

func TestRefresh(t *testing.T) {
	r := &mockRefresher{}
	srv, _ := newTestServer(t, &mockBackend{}, r)

	resp, body := do(t, http.MethodPost, srv.URL+"/api/refresh", `{"ingest":true}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d %v", resp.StatusCode, body)
	}
	if !r.got.Ingest || r.got.Categorize {
		t.Errorf("request = %+v", r.got)
	}
	if body["created"] != float64(1) || body["listed"] != float64(2) {
		t.Errorf("body = %v", body)
	}
}
