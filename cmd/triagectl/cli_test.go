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

package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bcem/triage/internal/backend"
	"github.com/bcem/triage/internal/config"
	"github.com/bcem/triage/internal/models"
)

// fakeBackend serves the endpoints the CLI calls.
func fakeBackend(t *testing.T) (*httptest.Server, *[]string) {
	t.Helper()
	var ticketBodies []string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/emails":
			switch {
			case r.URL.Query().Get("status") == "new":
				io.WriteString(w, `{"emails":[{"id":"m1","subject":"Receipt HX-3000","from":"@{name=Nina Davis; address=nina.davis@example.com}"}]}`)
			case r.URL.Query().Get("status") == "categorized":
				io.WriteString(w, `{"emails":[{"id":"m2","subject":"Question","assigned_agent":"agent_001","ticket":"open"}]}`)
			case r.URL.Query().Get("assigned_agent") == "agent_001":
				io.WriteString(w, `{"emails":[{"id":"m2","assigned_agent":"agent_001"}]}`)
			default:
				io.WriteString(w, `{"emails":[]}`)
			}

		case r.Method == http.MethodPost && r.URL.Path == "/emails/ingest":
			io.WriteString(w, `{"ingested":3}`)

		case r.Method == http.MethodGet && r.URL.Path == "/emails/m1/fetch":
			io.WriteString(w, `{"id":"m1","subject":"Receipt HX-3000","from":{"name":"Nina Davis","email":"nina.davis@example.com"},`+
				`"draft_reply":{"template":"response","body":"Hi Nina, **approved**."},"overall_confidence":"130"}`)

		case r.Method == http.MethodPost && r.URL.Path == "/emails/m1/ticket":
			b, _ := io.ReadAll(r.Body)
			ticketBodies = append(ticketBodies, string(b))
			io.WriteString(w, `{"message":"ok","email":{"id":"m1","ticket":"closed"}}`)

		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &ticketBodies
}

func runCLI(t *testing.T, baseURL string, args ...string) (string, error) {
	t.Helper()
	client := backend.NewClient(http.DefaultClient, baseURL)
	cfg := &config.Config{Agents: models.DefaultRoster()}

	app := newCLIApp(client, cfg, nil)
	var out bytes.Buffer
	app.Writer = &out
	app.ErrWriter = io.Discard

	err := app.Run(append([]string{"triagectl"}, args...))
	return out.String(), err
}

func TestIngest(t *testing.T) {
	srv, _ := fakeBackend(t)
	out, err := runCLI(t, srv.URL, "ingest")
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if !strings.Contains(out, `"ingested": 3`) {
		t.Errorf("output = %s", out)
	}
}

func TestList(t *testing.T) {
	srv, _ := fakeBackend(t)

	out, err := runCLI(t, srv.URL, "list")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	var resp struct {
		Emails []models.Email `json:"emails"`
	}
	if err := json.Unmarshal([]byte(out), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Emails) != 1 || resp.Emails[0].From.Name != "Nina Davis" {
		t.Errorf("emails = %+v", resp.Emails)
	}

	out, err = runCLI(t, srv.URL, "list", "--agent", "agent_001")
	if err != nil {
		t.Fatalf("list --agent: %v", err)
	}
	if !strings.Contains(out, `"m2"`) {
		t.Errorf("output = %s", out)
	}
}

func TestBoard(t *testing.T) {
	srv, _ := fakeBackend(t)

	out, err := runCLI(t, srv.URL, "board", "--agent", "agent_001")
	if err != nil {
		t.Fatalf("board: %v", err)
	}
	var board struct {
		New  []models.Email `json:"new"`
		Open []models.Email `json:"open"`
	}
	if err := json.Unmarshal([]byte(out), &board); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(board.Open) != 1 || board.Open[0].ID != "m2" || len(board.New) != 0 {
		t.Errorf("board = %+v", board)
	}

	if _, err := runCLI(t, srv.URL, "board", "--agent", "agent_999"); err == nil {
		t.Error("expected error for unknown agent")
	}
}

func TestTicketShow(t *testing.T) {
	srv, _ := fakeBackend(t)

	out, err := runCLI(t, srv.URL, "ticket", "show", "m1")
	if err != nil {
		t.Fatalf("ticket show: %v", err)
	}
	var resp struct {
		Ticket  models.Ticket     `json:"ticket"`
		Display map[string]string `json:"display"`
	}
	if err := json.Unmarshal([]byte(out), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Display["confidence"] != "100%" {
		t.Errorf("confidence = %q, want clamped 100%%", resp.Display["confidence"])
	}
	if resp.Ticket.IngestionKey != "m1|" {
		t.Errorf("ingestion key = %q", resp.Ticket.IngestionKey)
	}
	if resp.Ticket.Extracted.Model == nil || *resp.Ticket.Extracted.Model != "HX-3000" {
		t.Errorf("model = %v", resp.Ticket.Extracted.Model)
	}
}

func TestTicketSet(t *testing.T) {
	srv, bodies := fakeBackend(t)

	out, err := runCLI(t, srv.URL, "ticket", "set", "m1", "closed")
	if err != nil {
		t.Fatalf("ticket set: %v", err)
	}
	if !strings.Contains(out, `"ticket_status": "closed"`) {
		t.Errorf("output = %s", out)
	}
	if len(*bodies) != 1 || !strings.Contains((*bodies)[0], `"ticket":"closed"`) {
		t.Errorf("request bodies = %v", *bodies)
	}

	if _, err := runCLI(t, srv.URL, "ticket", "set", "m1", "archived"); err == nil {
		t.Error("expected error for invalid status")
	}
}

func TestPreview(t *testing.T) {
	srv, _ := fakeBackend(t)

	out, err := runCLI(t, srv.URL, "preview", "--html", "m1")
	if err != nil {
		t.Fatalf("preview: %v", err)
	}
	if !strings.Contains(out, "<strong>approved</strong>") {
		t.Errorf("output = %s", out)
	}
}

func TestSeed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "emails.json")
	if err := os.WriteFile(path, []byte(`[{"id":"s1","subject":"Seeded"}]`), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	out, err := runCLI(t, "http://127.0.0.1:0", "seed", path)
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	if !strings.Contains(out, `"s1"`) {
		t.Errorf("output = %s", out)
	}
}
