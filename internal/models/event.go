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

package models

import "time"

// EventType names a ticket lifecycle transition.
type EventType string

const (
	EventOpened     EventType = "ticket.opened"
	EventSaved      EventType = "ticket.saved"
	EventSent       EventType = "ticket.sent"
	EventReply      EventType = "ticket.reply_received"
	EventSyncFailed EventType = "ticket.sync_failed"
	EventResent     EventType = "ticket.resent"
)

// TicketEvent is published to the event queue after each transition, for
// downstream reporting workers.
type TicketEvent struct {
	Type         EventType    `json:"type"`
	EmailID      string       `json:"email_id"`
	IngestionKey string       `json:"ingestion_key"`
	TicketStatus TicketStatus `json:"ticket_status"`
	ReviewStatus ReviewStatus `json:"review_status"`
	Agent        string       `json:"assigned_agent,omitempty"`
	Detail       string       `json:"detail,omitempty"`
	At           time.Time    `json:"at"`
}
