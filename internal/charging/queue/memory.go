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

package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"evtel/internal/charging/core"
)

// DeadJob is a parked job plus the reason it was parked.
type DeadJob struct {
	Job    core.Job
	Reason string
}

// MemoryQueue implements core.Queue with the same visibility semantics as
// RedisQueue: dequeued jobs stay invisible until acked or dead-lettered. It
// is durable only for the life of the process, which is fine for tests and
// single-process demo runs.
type MemoryQueue struct {
	mu      sync.Mutex
	name    string
	ready   []core.Job
	pending map[string]core.Job
	dead    []DeadJob
	nextID  int64
	notify  chan struct{}
}

// NewMemoryQueue returns an empty queue named for its stream.
func NewMemoryQueue(stream string) *MemoryQueue {
	return &MemoryQueue{
		name:    stream,
		pending: make(map[string]core.Job),
		notify:  make(chan struct{}, 1),
	}
}

// Enqueue appends one payload and wakes a blocked Dequeue.
func (q *MemoryQueue) Enqueue(ctx context.Context, payload []byte) error {
	q.mu.Lock()
	q.nextID++
	p := make([]byte, len(payload))
	copy(p, payload)
	q.ready = append(q.ready, core.Job{ID: fmt.Sprintf("mem-%s-%d", q.name, q.nextID), Payload: p})
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return nil
}

// Dequeue pops up to max jobs, blocking up to wait for the first one.
func (q *MemoryQueue) Dequeue(ctx context.Context, max int, wait time.Duration) ([]core.Job, error) {
	if jobs := q.take(max); len(jobs) > 0 {
		return jobs, nil
	}
	if wait <= 0 {
		return nil, nil
	}
	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case <-q.notify:
		return q.take(max), nil
	case <-t.C:
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (q *MemoryQueue) take(max int) []core.Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.ready)
	if n == 0 {
		return nil
	}
	if n > max {
		n = max
	}
	jobs := make([]core.Job, n)
	copy(jobs, q.ready[:n])
	q.ready = q.ready[n:]
	for _, j := range jobs {
		q.pending[j.ID] = j
	}
	return jobs
}

// Ack discards delivered jobs.
func (q *MemoryQueue) Ack(ctx context.Context, ids ...string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, id := range ids {
		delete(q.pending, id)
	}
	return nil
}

// DeadLetter parks delivered jobs with the failure reason.
func (q *MemoryQueue) DeadLetter(ctx context.Context, jobs []core.Job, reason string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, j := range jobs {
		delete(q.pending, j.ID)
		q.dead = append(q.dead, DeadJob{Job: j, Reason: reason})
	}
	return nil
}

// Depth counts waiting plus delivered-but-unacked jobs.
func (q *MemoryQueue) Depth(ctx context.Context) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return int64(len(q.ready) + len(q.pending)), nil
}

// DeadLetters returns a copy of the parked jobs.
func (q *MemoryQueue) DeadLetters() []DeadJob {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]DeadJob, len(q.dead))
	copy(out, q.dead)
	return out
}

// PendingCount reports delivered-but-unacked jobs.
func (q *MemoryQueue) PendingCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}
