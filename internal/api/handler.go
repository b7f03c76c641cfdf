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

// Package api serves the triage console: JSON views over the inbox and
// tickets, the intent operations of the lifecycle controller, and a proxy
// for attachment binaries held by the backend.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/bcem/triage/internal/backend"
	"github.com/bcem/triage/internal/intake"
	"github.com/bcem/triage/internal/lifecycle"
	"github.com/bcem/triage/internal/models"
	"github.com/bcem/triage/internal/render"
	"github.com/bcem/triage/internal/synth"
)

// maxRequestBody caps JSON request bodies.
const maxRequestBody = 1 << 20

// Attachments streams attachment binaries. *backend.Client implements it.
type Attachments interface {
	Attachment(ctx context.Context, container, blobPath string) (*backend.Blob, error)
}

// Refresher reloads the inbox on demand. *intake.Runner implements it.
type Refresher interface {
	Run(ctx context.Context, req intake.Request) (*intake.Result, error)
}

// Handler serves the console API.
type Handler struct {
	ctrl    *lifecycle.Controller
	blobs   Attachments
	refresh Refresher
}

// NewHandler creates the console API handler. blobs and refresh may be nil,
// in which case their routes answer 503.
func NewHandler(ctrl *lifecycle.Controller, blobs Attachments, refresh Refresher) *Handler {
	return &Handler{
		ctrl:    ctrl,
		blobs:   blobs,
		refresh: refresh,
	}
}

// Routes returns the console's request multiplexer.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", h.health)

	mux.HandleFunc("GET /api/inbox", h.inbox)
	mux.HandleFunc("GET /api/agents", h.agents)
	mux.HandleFunc("GET /api/board", h.statusBoard)
	mux.HandleFunc("GET /api/board/{agent}", h.agentBoard)
	mux.HandleFunc("GET /api/triage", h.triage)
	mux.HandleFunc("POST /api/refresh", h.refreshInbox)

	mux.HandleFunc("GET /api/tickets", h.tickets)
	mux.HandleFunc("GET /api/active", h.active)
	mux.HandleFunc("GET /api/tickets/{id}", h.ticket)
	mux.HandleFunc("GET /api/tickets/{id}/preview", h.preview)
	mux.HandleFunc("POST /api/tickets/{id}/open", h.open)
	mux.HandleFunc("POST /api/tickets/{id}/draft", h.saveDraft)
	mux.HandleFunc("POST /api/tickets/{id}/extracted", h.saveExtracted)
	mux.HandleFunc("POST /api/tickets/{id}/send", h.send)
	mux.HandleFunc("POST /api/tickets/{id}/reply", h.reply)
	mux.HandleFunc("POST /api/tickets/{id}/ocr", h.runOCR)
	mux.HandleFunc("POST /api/tickets/{id}/generate-draft", h.generateDraft)

	mux.HandleFunc("GET /attachments/{container}/{path...}", h.attachment)

	return logRequests(mux)
}

// --- Views ---

// ticketView adds display-ready scores to a ticket.
type ticketView struct {
	models.Ticket
	Display scoreLabels `json:"display"`
}

type scoreLabels struct {
	Confidence  string `json:"confidence"`
	Duplication string `json:"duplication"`
	Fraud       string `json:"fraud"`
}

func viewOf(t models.Ticket) ticketView {
	return ticketView{
		Ticket: t,
		Display: scoreLabels{
			Confidence:  synth.FormatScore(t.Scores.Confidence),
			Duplication: synth.FormatScore(t.Scores.Duplication),
			Fraud:       synth.FormatScore(t.Scores.Fraud),
		},
	}
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) inbox(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"emails": h.ctrl.Inbox()})
}

func (h *Handler) agents(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"agents": h.ctrl.Agents()})
}

func (h *Handler) statusBoard(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.ctrl.StatusBoard())
}

func (h *Handler) agentBoard(w http.ResponseWriter, r *http.Request) {
	agent := r.PathValue("agent")
	if _, ok := h.ctrl.Agents().Get(agent); !ok {
		writeError(w, http.StatusNotFound, "unknown agent "+agent)
		return
	}
	writeJSON(w, http.StatusOK, h.ctrl.Board(agent))
}

func (h *Handler) triage(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.ctrl.Triage())
}

func (h *Handler) refreshInbox(w http.ResponseWriter, r *http.Request) {
	if h.refresh == nil {
		writeError(w, http.StatusServiceUnavailable, "refresh is not configured")
		return
	}

	var req struct {
		Ingest     bool `json:"ingest"`
		Categorize bool `json:"categorize"`
	}
	if !decodeOptional(w, r, &req) {
		return
	}

	res, err := h.refresh.Run(r.Context(), intake.Request{Ingest: req.Ingest, Categorize: req.Categorize})
	if err != nil {
		h.fail(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"listed":  res.Listed,
		"new":     res.New,
		"seen":    res.Seen,
		"created": res.Created,
		"errors":  res.Errors,
	})
}

func (h *Handler) tickets(w http.ResponseWriter, r *http.Request) {
	all := h.ctrl.Tickets()
	views := make([]ticketView, len(all))
	for i, t := range all {
		views[i] = viewOf(t)
	}
	writeJSON(w, http.StatusOK, map[string]any{"tickets": views})
}

func (h *Handler) active(w http.ResponseWriter, r *http.Request) {
	t, ok := h.ctrl.Active()
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{"ticket": nil})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ticket": viewOf(t)})
}

func (h *Handler) ticket(w http.ResponseWriter, r *http.Request) {
	t, err := h.ctrl.Ticket(r.PathValue("id"))
	if err != nil {
		h.fail(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(t))
}

func (h *Handler) preview(w http.ResponseWriter, r *http.Request) {
	t, err := h.ctrl.Ticket(r.PathValue("id"))
	if err != nil {
		h.fail(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, render.Ticket(t))
}

// --- Intent operations ---

func (h *Handler) open(w http.ResponseWriter, r *http.Request) {
	t, err := h.ctrl.OpenTicket(r.PathValue("id"))
	h.respond(w, t, err)
}

func (h *Handler) saveDraft(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Body string `json:"body"`
	}
	if !decode(w, r, &req) {
		return
	}
	t, err := h.ctrl.SaveDraft(r.Context(), r.PathValue("id"), req.Body)
	h.respond(w, t, err)
}

func (h *Handler) saveExtracted(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Filename string `json:"filename"`
		models.Extracted
	}
	if !decode(w, r, &req) {
		return
	}
	t, err := h.ctrl.SaveExtracted(r.Context(), r.PathValue("id"), req.Filename, req.Extracted)
	h.respond(w, t, err)
}

func (h *Handler) send(w http.ResponseWriter, r *http.Request) {
	t, err := h.ctrl.SendTicket(r.PathValue("id"))
	h.respond(w, t, err)
}

func (h *Handler) reply(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Body string `json:"body"`
	}
	if !decodeOptional(w, r, &req) {
		return
	}
	t, err := h.ctrl.SimulateReply(r.PathValue("id"), req.Body)
	h.respond(w, t, err)
}

func (h *Handler) runOCR(w http.ResponseWriter, r *http.Request) {
	t, err := h.ctrl.RunOCR(r.Context(), r.PathValue("id"))
	h.respond(w, t, err)
}

func (h *Handler) generateDraft(w http.ResponseWriter, r *http.Request) {
	t, err := h.ctrl.GenerateDraft(r.Context(), r.PathValue("id"))
	h.respond(w, t, err)
}

// --- Attachment proxy ---

func (h *Handler) attachment(w http.ResponseWriter, r *http.Request) {
	if h.blobs == nil {
		writeError(w, http.StatusServiceUnavailable, "attachments are not configured")
		return
	}

	container, path := r.PathValue("container"), r.PathValue("path")
	blob, err := h.blobs.Attachment(r.Context(), container, path)
	if err != nil {
		slog.Warn("attachment fetch failed",
			"container", container,
			"path", path,
			"error", err,
		)
		h.fail(w, err, nil)
		return
	}
	defer blob.Body.Close()

	if blob.ContentType != "" {
		w.Header().Set("Content-Type", blob.ContentType)
	} else {
		w.Header().Set("Content-Type", "application/octet-stream")
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, blob.Body); err != nil {
		slog.Debug("attachment stream interrupted", "path", path, "error", err)
	}
}

// --- Helpers ---

// respond writes the ticket, or the error with the ticket alongside it when
// the operation failed after a local change.
func (h *Handler) respond(w http.ResponseWriter, t models.Ticket, err error) {
	if err != nil {
		var tk *models.Ticket
		if t.IngestionKey != "" {
			tk = &t
		}
		h.fail(w, err, tk)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(t))
}

// fail maps controller and backend errors to HTTP statuses.
func (h *Handler) fail(w http.ResponseWriter, err error, t *models.Ticket) {
	status := http.StatusBadGateway
	switch {
	case errors.Is(err, lifecycle.ErrUnknownEmail), errors.Is(err, lifecycle.ErrUnknownTicket):
		status = http.StatusNotFound
	case errors.Is(err, lifecycle.ErrTicketSent):
		status = http.StatusConflict
	case backend.IsNotFound(err):
		status = http.StatusNotFound
	}

	body := map[string]any{"error": err.Error()}
	var se *backend.StatusError
	if errors.As(err, &se) {
		body["backend_status"] = se.Code
	}
	if t != nil {
		body["ticket"] = viewOf(*t)
	}
	writeJSON(w, status, body)
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody)).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

// decodeOptional accepts an empty body.
func decodeOptional(w http.ResponseWriter, r *http.Request, v any) bool {
	err := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody)).Decode(v)
	if err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("failed to write response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
