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

// Package queue provides the durable job queues between the intake and the
// batch workers. The production implementation rides Redis Streams with one
// consumer group per stream; the memory implementation backs tests and
// single-process demo runs.
package queue

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"evtel/internal/charging/core"
)

const (
	// groupName is the single consumer group on each stream.
	groupName = "evtel-writer"
	// consumerName is deliberately stable: after a crash, the same consumer
	// re-reads its own pending entries before taking new ones, which is what
	// makes delivery at-least-once across restarts.
	consumerName = "writer-1"

	deadLetterSuffix = ":deadletter"
	deadLetterMaxLen = 10000
)

func streamKey(stream string) string {
	return "evtel:queue:" + stream
}

// DeadLetterStreamKey names the dead-letter partition of a stream. Inspection
// tooling reads it without holding a queue instance.
func DeadLetterStreamKey(stream string) string {
	return streamKey(stream) + deadLetterSuffix
}

// RedisQueue is a durable queue on one Redis stream. Entries delivered to the
// consumer group stay in its pending list until acked or dead-lettered, so a
// process crash never loses dequeued work.
type RedisQueue struct {
	client *redis.Client
	key    string
	log    *logrus.Entry

	// cursor starts at "0" so the first reads walk the pending backlog of a
	// previous process, then switches to ">" for new entries.
	cursor string
}

// NewRedisQueue ensures the stream and its consumer group exist.
func NewRedisQueue(ctx context.Context, client *redis.Client, stream string) (*RedisQueue, error) {
	key := streamKey(stream)
	err := client.XGroupCreateMkStream(ctx, key, groupName, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return nil, fmt.Errorf("create consumer group for %s: %w", key, err)
	}
	return &RedisQueue{
		client: client,
		key:    key,
		log:    logrus.WithFields(logrus.Fields{"component": "queue", "stream": stream}),
		cursor: "0",
	}, nil
}

// Enqueue appends one payload; nil only after Redis accepted the entry.
func (q *RedisQueue) Enqueue(ctx context.Context, payload []byte) error {
	err := q.client.XAdd(ctx, &redis.XAddArgs{
		Stream: q.key,
		Values: map[string]interface{}{"payload": payload},
	}).Err()
	if err != nil {
		return fmt.Errorf("enqueue on %s: %w", q.key, err)
	}
	return nil
}

// Dequeue reads up to max jobs for the writer consumer. While recovering a
// pending backlog it pages with explicit ids (a plain "0" re-read would hand
// back the same entries every call); once the backlog is exhausted it blocks
// up to wait on new entries.
func (q *RedisQueue) Dequeue(ctx context.Context, max int, wait time.Duration) ([]core.Job, error) {
	args := &redis.XReadGroupArgs{
		Group:    groupName,
		Consumer: consumerName,
		Streams:  []string{q.key, q.cursor},
		Count:    int64(max),
	}
	if q.cursor == ">" {
		args.Block = wait
	}
	streams, err := q.client.XReadGroup(ctx, args).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read group on %s: %w", q.key, err)
	}

	var jobs []core.Job
	var lastID string
	for _, s := range streams {
		for _, m := range s.Messages {
			lastID = m.ID
			payload, ok := m.Values["payload"].(string)
			if !ok {
				// An entry without a payload field cannot be processed; ack
				// it away so it cannot wedge the stream.
				q.log.WithField("id", m.ID).Warn("malformed queue entry dropped")
				q.discard(ctx, m.ID)
				continue
			}
			jobs = append(jobs, core.Job{ID: m.ID, Payload: []byte(payload)})
		}
	}

	if q.cursor != ">" {
		if lastID == "" {
			q.log.Debug("pending backlog recovered; reading new entries")
			q.cursor = ">"
		} else {
			q.cursor = lastID
		}
	}
	return jobs, nil
}

// Ack discards delivered jobs: removed from the pending list and deleted from
// the stream so Depth reflects outstanding work only.
func (q *RedisQueue) Ack(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	pipe := q.client.TxPipeline()
	pipe.XAck(ctx, q.key, groupName, ids...)
	pipe.XDel(ctx, q.key, ids...)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("ack %d jobs on %s: %w", len(ids), q.key, err)
	}
	return nil
}

// DeadLetter copies jobs onto the capped dead-letter stream with the failure
// reason, then discards them from the live queue. The park and the discard
// run in one pipeline so a half-parked batch cannot be acked.
func (q *RedisQueue) DeadLetter(ctx context.Context, jobs []core.Job, reason string) error {
	if len(jobs) == 0 {
		return nil
	}
	parkedAt := time.Now().UTC().Format(time.RFC3339)
	ids := make([]string, len(jobs))
	pipe := q.client.TxPipeline()
	for i, j := range jobs {
		ids[i] = j.ID
		pipe.XAdd(ctx, &redis.XAddArgs{
			Stream: q.key + deadLetterSuffix,
			MaxLen: deadLetterMaxLen,
			Approx: true,
			Values: map[string]interface{}{
				"payload":   j.Payload,
				"reason":    reason,
				"origin_id": j.ID,
				"parked_at": parkedAt,
			},
		})
	}
	pipe.XAck(ctx, q.key, groupName, ids...)
	pipe.XDel(ctx, q.key, ids...)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("dead-letter %d jobs on %s: %w", len(jobs), q.key, err)
	}
	return nil
}

// Depth counts live entries: waiting plus delivered-but-unacked.
func (q *RedisQueue) Depth(ctx context.Context) (int64, error) {
	n, err := q.client.XLen(ctx, q.key).Result()
	if err != nil {
		return 0, fmt.Errorf("depth of %s: %w", q.key, err)
	}
	return n, nil
}

// DeadLetterKey names the parked partition, for inspection tooling and tests.
func (q *RedisQueue) DeadLetterKey() string {
	return q.key + deadLetterSuffix
}

func (q *RedisQueue) discard(ctx context.Context, id string) {
	pipe := q.client.TxPipeline()
	pipe.XAck(ctx, q.key, groupName, id)
	pipe.XDel(ctx, q.key, id)
	if _, err := pipe.Exec(ctx); err != nil {
		q.log.WithError(err).WithField("id", id).Warn("discard of malformed entry failed")
	}
}
