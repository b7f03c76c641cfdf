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

package store

// migration is one SQLite schema step.
type migration struct {
	version int
	sql     string
}

// migrations must stay in ascending version order.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS ticket_snapshots (
	ingestion_key  TEXT PRIMARY KEY,
	email_id       TEXT NOT NULL,
	ticket_status  TEXT NOT NULL DEFAULT 'new',
	review_status  TEXT NOT NULL DEFAULT 'awaiting_review',
	assigned_agent TEXT NOT NULL DEFAULT '',
	data           TEXT NOT NULL,
	seq            INTEGER NOT NULL,
	created_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_snapshots_email ON ticket_snapshots(email_id);
CREATE INDEX IF NOT EXISTS idx_snapshots_agent ON ticket_snapshots(assigned_agent);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
}
