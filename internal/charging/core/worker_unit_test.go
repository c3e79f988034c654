// Copyright 2026 Esteban Alvarez. All Rights Reserved.
//
// Created: June 2026
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

package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

// fakeJobQueue serves jobs from memory and records acks and dead-letters.
type fakeJobQueue struct {
	mu      sync.Mutex
	ready   []Job
	pending map[string]Job
	acked   []string
	dead    []Job
	reason  string
	nextID  int
}

func newFakeJobQueue() *fakeJobQueue {
	return &fakeJobQueue{pending: make(map[string]Job)}
}

func (q *fakeJobQueue) add(payloads ...string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, p := range payloads {
		q.nextID++
		q.ready = append(q.ready, Job{ID: fmt.Sprintf("job-%d", q.nextID), Payload: []byte(p)})
	}
}

func (q *fakeJobQueue) Enqueue(ctx context.Context, payload []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.nextID++
	q.ready = append(q.ready, Job{ID: fmt.Sprintf("job-%d", q.nextID), Payload: payload})
	return nil
}

func (q *fakeJobQueue) Dequeue(ctx context.Context, max int, wait time.Duration) ([]Job, error) {
	q.mu.Lock()
	n := len(q.ready)
	if n == 0 {
		q.mu.Unlock()
		time.Sleep(wait)
		return nil, nil
	}
	if n > max {
		n = max
	}
	jobs := make([]Job, n)
	copy(jobs, q.ready[:n])
	q.ready = q.ready[n:]
	for _, j := range jobs {
		q.pending[j.ID] = j
	}
	q.mu.Unlock()
	return jobs, nil
}

func (q *fakeJobQueue) Ack(ctx context.Context, ids ...string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, id := range ids {
		delete(q.pending, id)
		q.acked = append(q.acked, id)
	}
	return nil
}

func (q *fakeJobQueue) DeadLetter(ctx context.Context, jobs []Job, reason string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, j := range jobs {
		delete(q.pending, j.ID)
		q.dead = append(q.dead, j)
	}
	q.reason = reason
	return nil
}

func (q *fakeJobQueue) Depth(ctx context.Context) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return int64(len(q.ready) + len(q.pending)), nil
}

func (q *fakeJobQueue) readyCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ready)
}

func (q *fakeJobQueue) pendingCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

func (q *fakeJobQueue) ackedCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.acked)
}

func (q *fakeJobQueue) deadCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.dead)
}

// capturingFlusher records every batch and can fail the first failN attempts
// or fail forever.
type capturingFlusher struct {
	mu       sync.Mutex
	batches  [][]int // sizes per call, payload byte lengths unimportant
	attempts int
	failN    int
	failAll  bool
}

func (f *capturingFlusher) FlushBatch(ctx context.Context, payloads [][]byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts++
	if f.failAll || f.attempts <= f.failN {
		return errors.New("flush rejected")
	}
	sizes := make([]int, len(payloads))
	for i, p := range payloads {
		sizes[i] = len(p)
	}
	f.batches = append(f.batches, sizes)
	return nil
}

func (f *capturingFlusher) batchSizes() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]int, len(f.batches))
	for i, b := range f.batches {
		out[i] = len(b)
	}
	return out
}

func (f *capturingFlusher) attemptCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attempts
}

func waitFor(t *testing.T, timeout time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestWorkerConfig_Defaults(t *testing.T) {
	w := NewWorker(newFakeJobQueue(), &capturingFlusher{}, WorkerConfig{Stream: StreamMeter})
	if w.cfg.BatchSize != DefaultBatchSize {
		t.Fatalf("expected default batch size %d, got %d", DefaultBatchSize, w.cfg.BatchSize)
	}
	if w.cfg.FlushInterval != DefaultFlushInterval {
		t.Fatalf("expected default flush interval %s, got %s", DefaultFlushInterval, w.cfg.FlushInterval)
	}
	if w.cfg.MaxAttempts != DefaultMaxAttempts || len(w.cfg.Backoff) == 0 {
		t.Fatalf("retry defaults not applied: %+v", w.cfg)
	}
}

func TestWorker_SizeTrigger_FullBatches(t *testing.T) {
	q := newFakeJobQueue()
	for i := 0; i < 25; i++ {
		q.add("s")
	}
	f := &capturingFlusher{}
	w := NewWorker(q, f, WorkerConfig{
		Stream:        StreamMeter,
		BatchSize:     10,
		FlushInterval: time.Hour, // time trigger must not fire
		PollWait:      5 * time.Millisecond,
	})
	w.Start()

	waitFor(t, 2*time.Second, "two full batches", func() bool {
		return len(f.batchSizes()) >= 2 && q.readyCount() == 0
	})
	w.Stop() // drains the 5 buffered leftovers

	sizes := f.batchSizes()
	if len(sizes) != 3 || sizes[0] != 10 || sizes[1] != 10 || sizes[2] != 5 {
		t.Fatalf("expected batches [10 10 5], got %v", sizes)
	}
	if q.ackedCount() != 25 || q.pendingCount() != 0 {
		t.Fatalf("expected 25 acked and none pending, got %d/%d", q.ackedCount(), q.pendingCount())
	}
	if s := w.Stats(); s.Batches != 3 || s.Samples != 25 {
		t.Fatalf("stats mismatch: %+v", s)
	}
}

func TestWorker_TimeTrigger_FlushesPartialBatch(t *testing.T) {
	q := newFakeJobQueue()
	q.add("a", "b", "c", "d", "e")
	f := &capturingFlusher{}
	start := time.Now()
	w := NewWorker(q, f, WorkerConfig{
		Stream:        StreamMeter,
		BatchSize:     1000,
		FlushInterval: 150 * time.Millisecond,
		PollWait:      10 * time.Millisecond,
	})
	w.Start()
	defer w.Stop()

	waitFor(t, 2*time.Second, "time-triggered flush", func() bool {
		return len(f.batchSizes()) == 1
	})
	if elapsed := time.Since(start); elapsed < 100*time.Millisecond {
		t.Fatalf("flush fired before the time trigger: %s", elapsed)
	}
	if sizes := f.batchSizes(); sizes[0] != 5 {
		t.Fatalf("expected a partial batch of 5, got %v", sizes)
	}
	if q.ackedCount() != 5 {
		t.Fatalf("expected 5 acked, got %d", q.ackedCount())
	}
}

func TestWorker_RetriesThenCommits(t *testing.T) {
	q := newFakeJobQueue()
	q.add("a", "b", "c")
	f := &capturingFlusher{failN: 2}
	w := NewWorker(q, f, WorkerConfig{
		Stream:        StreamVehicle,
		BatchSize:     3,
		FlushInterval: time.Hour,
		PollWait:      5 * time.Millisecond,
		MaxAttempts:   5,
		Backoff:       []time.Duration{5 * time.Millisecond},
	})
	w.Start()
	defer w.Stop()

	waitFor(t, 2*time.Second, "batch to commit after retries", func() bool {
		return len(f.batchSizes()) == 1
	})
	if f.attemptCount() != 3 {
		t.Fatalf("expected 3 attempts (2 failures + success), got %d", f.attemptCount())
	}
	if q.ackedCount() != 3 || q.deadCount() != 0 {
		t.Fatalf("expected 3 acked and 0 dead, got %d/%d", q.ackedCount(), q.deadCount())
	}
	if s := w.Stats(); s.Retries != 2 {
		t.Fatalf("expected 2 recorded retries, got %d", s.Retries)
	}
}

func TestWorker_DeadLettersAfterMaxAttempts(t *testing.T) {
	q := newFakeJobQueue()
	q.add("a", "b")
	f := &capturingFlusher{failAll: true}
	w := NewWorker(q, f, WorkerConfig{
		Stream:        StreamMeter,
		BatchSize:     2,
		FlushInterval: time.Hour,
		PollWait:      5 * time.Millisecond,
		MaxAttempts:   2,
		Backoff:       []time.Duration{time.Millisecond},
	})
	w.Start()
	defer w.Stop()

	waitFor(t, 2*time.Second, "dead-lettered batch", func() bool {
		return q.deadCount() == 2
	})
	if f.attemptCount() != 2 {
		t.Fatalf("expected exactly MaxAttempts=2 attempts, got %d", f.attemptCount())
	}
	if q.ackedCount() != 0 {
		t.Fatalf("nothing should be acked, got %d", q.ackedCount())
	}
	if q.reason == "" {
		t.Fatalf("dead-letter reason missing")
	}
	if s := w.Stats(); s.DeadLettered != 2 {
		t.Fatalf("expected 2 dead-lettered in stats, got %d", s.DeadLettered)
	}
}

func TestWorker_StopDrainsCurrentBuffer(t *testing.T) {
	q := newFakeJobQueue()
	q.add("a", "b", "c", "d", "e", "f", "g")
	f := &capturingFlusher{}
	w := NewWorker(q, f, WorkerConfig{
		Stream:        StreamVehicle,
		BatchSize:     100,
		FlushInterval: time.Hour,
		PollWait:      5 * time.Millisecond,
	})
	w.Start()

	waitFor(t, 2*time.Second, "jobs pulled into the buffer", func() bool {
		return q.readyCount() == 0
	})
	w.Stop()

	if sizes := f.batchSizes(); len(sizes) != 1 || sizes[0] != 7 {
		t.Fatalf("expected a final batch of 7, got %v", sizes)
	}
	if q.ackedCount() != 7 {
		t.Fatalf("expected 7 acked, got %d", q.ackedCount())
	}
	// Stop again must be a no-op.
	w.Stop()
}

func TestWorker_StopDuringBackoffLeavesBatchPending(t *testing.T) {
	q := newFakeJobQueue()
	q.add("a", "b")
	f := &capturingFlusher{failAll: true}
	w := NewWorker(q, f, WorkerConfig{
		Stream:        StreamMeter,
		BatchSize:     2,
		FlushInterval: time.Hour,
		PollWait:      5 * time.Millisecond,
		MaxAttempts:   5,
		Backoff:       []time.Duration{time.Hour}, // stop must interrupt this wait
	})
	w.Start()

	waitFor(t, 2*time.Second, "first failed attempt", func() bool {
		return f.attemptCount() >= 1
	})
	done := make(chan struct{})
	go func() {
		w.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("Stop did not interrupt the backoff wait")
	}

	if q.deadCount() != 0 || q.ackedCount() != 0 {
		t.Fatalf("batch must stay pending, got dead=%d acked=%d", q.deadCount(), q.ackedCount())
	}
	if q.pendingCount() != 2 {
		t.Fatalf("expected 2 pending for next-start redelivery, got %d", q.pendingCount())
	}
}
