// Copyright (c) 2026 John Earle
//
// Licensed under the Business Source License 1.1 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://github.com/yourusername/bcem/blob/main/LICENSE
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package queue publishes ticket lifecycle events to Redis as
// Celery-compatible tasks for the Python reporting workers.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/bcem/triage/internal/models"
)

// TaskName is the Celery task that consumes ticket events.
const TaskName = "reporting.tasks.record_ticket_event"

// Publisher sends ticket events to Redis in Celery task format.
type Publisher struct {
	rdb       *redis.Client
	queueName string
}

// NewPublisher creates a new Redis publisher targeting the specified queue.
func NewPublisher(rdb *redis.Client, queueName string) *Publisher {
	return &Publisher{
		rdb:       rdb,
		queueName: queueName,
	}
}

// celeryTask is the task body Celery expects.
type celeryTask struct {
	ID      string  `json:"id"`
	Task    string  `json:"task"`
	Args    []any   `json:"args"`
	Kwargs  any     `json:"kwargs"`
	Retries int     `json:"retries"`
	ETA     *string `json:"eta"`
}

// celeryMessage wraps a task for Redis transport.
type celeryMessage struct {
	Body            string         `json:"body"`
	ContentEncoding string         `json:"content-encoding"`
	ContentType     string         `json:"content-type"`
	Headers         map[string]any `json:"headers"`
	Properties      map[string]any `json:"properties"`
}

// Publish serialises a ticket event and LPUSHes it onto the queue.
func (p *Publisher) Publish(ctx context.Context, event models.TicketEvent) error {
	taskID := uuid.New().String()

	msg, err := encode(taskID, p.queueName, event)
	if err != nil {
		return err
	}

	if err := p.rdb.LPush(ctx, p.queueName, msg).Err(); err != nil {
		return fmt.Errorf("redis LPUSH: %w", err)
	}

	slog.Debug("published ticket event",
		"task_id", taskID,
		"type", event.Type,
		"email_id", event.EmailID,
		"queue", p.queueName,
	)
	return nil
}

// encode builds the Celery message for one event. The event travels as a
// single JSON string argument.
func encode(taskID, queueName string, event models.TicketEvent) ([]byte, error) {
	eventJSON, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("marshal ticket event: %w", err)
	}

	taskBody, err := json.Marshal(celeryTask{
		ID:     taskID,
		Task:   TaskName,
		Args:   []any{string(eventJSON)},
		Kwargs: map[string]any{},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal celery task: %w", err)
	}

	delivery := map[string]string{"exchange": queueName, "routing_key": queueName}
	msg, err := json.Marshal(celeryMessage{
		Body:            string(taskBody),
		ContentEncoding: "utf-8",
		ContentType:     "application/json",
		Headers: map[string]any{
			"lang":    "py",
			"task":    TaskName,
			"id":      taskID,
			"retries": 0,
		},
		Properties: map[string]any{
			"correlation_id": taskID,
			"delivery_mode":  2,
			"delivery_tag":   taskID,
			"body_encoding":  "utf-8",
			"exchange":       queueName,
			"routing_key":    queueName,
			"delivery_info":  delivery,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal celery message: %w", err)
	}
	return msg, nil
}

// Ping checks the Redis connection.
func (p *Publisher) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return p.rdb.Ping(ctx).Err()
}
