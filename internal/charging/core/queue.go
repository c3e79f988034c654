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
	"time"
)

// Job is one unit of queued work: an opaque payload plus the queue-assigned
// id used to acknowledge it.
type Job struct {
	ID      string
	Payload []byte
}

// Queue is the durable, at-least-once job store a Worker drains. A dequeued
// job stays owned by the consumer until Ack discards it or DeadLetter parks
// it; jobs neither acked nor parked are redelivered when the consumer
// restarts. Implementations must not hand the same job to the consumer twice
// within one process lifetime.
type Queue interface {
	// Enqueue appends a payload. It must only return nil once the payload is
	// durable.
	Enqueue(ctx context.Context, payload []byte) error

	// Dequeue returns up to max jobs, waiting up to wait for at least one to
	// arrive. An empty result with a nil error means the wait elapsed.
	Dequeue(ctx context.Context, max int, wait time.Duration) ([]Job, error)

	// Ack discards delivered jobs permanently.
	Ack(ctx context.Context, ids ...string) error

	// DeadLetter parks jobs on the stream's dead-letter partition for
	// operator inspection and discards them from the live queue.
	DeadLetter(ctx context.Context, jobs []Job, reason string) error

	// Depth reports the number of jobs not yet discarded, including ones
	// delivered but not acked.
	Depth(ctx context.Context) (int64, error)
}

// BatchFlusher writes one assembled batch, typically as a single database
// transaction. A nil return means every payload is durable and the batch may
// be acked; on error the caller keeps ownership and retries.
type BatchFlusher interface {
	FlushBatch(ctx context.Context, payloads [][]byte) error
}
