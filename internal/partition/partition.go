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

// Package partition splits inbox collections into board columns.
//
// Every function here is pure: the input slice is never reordered or
// modified, and each bucket preserves the input's relative order.
package partition

import "github.com/bcem/triage/internal/models"

// Unassigned is the triage-board column for items without an agent.
const Unassigned = "unassigned"

// Item is anything that can be placed on a board. models.Email satisfies it,
// and so does models.Ticket through embedding.
type Item interface {
	BoardStatus() models.TicketStatus
	Assignee() string
}

// Stable places each item into the bucket named by keyOf. Every name in
// names gets a bucket, possibly empty. Items whose key is not in names are
// left out of all buckets.
func Stable[T any](items []T, names []string, keyOf func(T) string) map[string][]T {
	buckets := make(map[string][]T, len(names))
	for _, n := range names {
		buckets[n] = []T{}
	}
	for _, item := range items {
		k := keyOf(item)
		if b, ok := buckets[k]; ok {
			buckets[k] = append(b, item)
		}
	}
	return buckets
}

// StatusBoard is the per-agent view: one column per ticket status.
type StatusBoard[T Item] struct {
	New    []T `json:"new"`
	Open   []T `json:"open"`
	Closed []T `json:"closed"`
}

// Len returns the number of items placed on the board.
func (b StatusBoard[T]) Len() int {
	return len(b.New) + len(b.Open) + len(b.Closed)
}

// ByStatus partitions items by ticket status.
func ByStatus[T Item](items []T) StatusBoard[T] {
	names := []string{string(models.TicketNew), string(models.TicketOpen), string(models.TicketClosed)}
	buckets := Stable(items, names, func(item T) string {
		return string(item.BoardStatus())
	})
	return StatusBoard[T]{
		New:    buckets[string(models.TicketNew)],
		Open:   buckets[string(models.TicketOpen)],
		Closed: buckets[string(models.TicketClosed)],
	}
}

// AgentBoard is the triage view: one column per known agent plus the
// unassigned column. Columns are listed in roster order.
type AgentBoard[T Item] struct {
	Agents     []string       `json:"agents"`
	Columns    map[string][]T `json:"columns"`
	Unassigned []T            `json:"unassigned"`
}

// ByAgent partitions items by assignee. Items assigned to an agent that is
// not in agents appear in no column.
func ByAgent[T Item](items []T, agents []string) AgentBoard[T] {
	names := make([]string, 0, len(agents)+1)
	names = append(names, agents...)
	names = append(names, "")

	buckets := Stable(items, names, func(item T) string {
		return item.Assignee()
	})

	unassigned := buckets[""]
	delete(buckets, "")

	return AgentBoard[T]{
		Agents:     append([]string(nil), agents...),
		Columns:    buckets,
		Unassigned: unassigned,
	}
}

// ForAgent returns the items assigned to agent, in order.
func ForAgent[T Item](items []T, agent string) []T {
	out := []T{}
	for _, item := range items {
		if item.Assignee() == agent {
			out = append(out, item)
		}
	}
	return out
}

// AgentStatusBoard is the per-agent board: the agent's items split by status.
func AgentStatusBoard[T Item](items []T, agent string) StatusBoard[T] {
	return ByStatus(ForAgent(items, agent))
}
