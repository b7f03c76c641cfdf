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

package poller

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bcem/triage/internal/intake"
)

// --- Mock runner ---

type mockRunner struct {
	calls atomic.Int32
	err   error
	got   chan intake.Request
}

func (m *mockRunner) Run(ctx context.Context, req intake.Request) (*intake.Result, error) {
	m.calls.Add(1)
	select {
	case m.got <- req:
	default:
	}
	if m.err != nil {
		return nil, m.err
	}
	return &intake.Result{Created: 1}, nil
}

// TestPoller_RunsUntilCancelled verifies the immediate first poll, further
// polls on the ticker and a clean stop.
func TestPoller_RunsUntilCancelled(t *testing.T) {
	r := &mockRunner{got: make(chan intake.Request, 1)}
	p := New(r, 10*time.Millisecond, intake.Request{Ingest: true})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	select {
	case req := <-r.got:
		if !req.Ingest || req.Categorize {
			t.Errorf("request = %+v", req)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no initial poll")
	}

	deadline := time.Now().Add(2 * time.Second)
	for r.calls.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if n := r.calls.Load(); n < 3 {
		t.Errorf("calls = %d, want at least 3", n)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("poller did not stop")
	}
}

// TestPoller_KeepsRunningOnError verifies a failed refresh does not stop the
// loop.
func TestPoller_KeepsRunningOnError(t *testing.T) {
	r := &mockRunner{got: make(chan intake.Request, 1), err: errors.New("backend down")}
	p := New(r, 10*time.Millisecond, intake.Request{})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	p.Run(ctx)

	if n := r.calls.Load(); n < 2 {
		t.Errorf("calls = %d, want at least 2", n)
	}
}
