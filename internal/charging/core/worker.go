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
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"evtel/internal/charging/telemetry/ingestmetrics"
)

// Worker defaults. BatchSize and FlushInterval are the documented size and
// time triggers; the rest bound retry behavior and shutdown latency.
const (
	DefaultBatchSize     = 1000
	DefaultFlushInterval = 10 * time.Second
	DefaultPollWait      = 250 * time.Millisecond
	DefaultFlushTimeout  = 30 * time.Second
	DefaultMaxAttempts   = 5
)

// defaultBackoff is the wait before attempts 2..N. The last step repeats when
// MaxAttempts exceeds its length.
var defaultBackoff = []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second}

// WorkerConfig tunes one stream's worker. Zero values take the defaults.
type WorkerConfig struct {
	// Stream labels logs and metrics; conventionally StreamMeter or
	// StreamVehicle.
	Stream string
	// BatchSize is the size trigger: a full buffer flushes immediately.
	BatchSize int
	// FlushInterval is the time trigger: a non-empty buffer flushes once this
	// much time has passed since the last completed batch.
	FlushInterval time.Duration
	// PollWait bounds one queue read; it also bounds how late a stop request
	// can be observed.
	PollWait time.Duration
	// FlushTimeout is the per-attempt transaction deadline.
	FlushTimeout time.Duration
	// MaxAttempts caps flush attempts per batch before dead-lettering.
	MaxAttempts int
	// Backoff holds the waits between attempts.
	Backoff []time.Duration
}

func (c *WorkerConfig) applyDefaults() {
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = DefaultFlushInterval
	}
	if c.PollWait <= 0 {
		c.PollWait = DefaultPollWait
	}
	if c.FlushTimeout <= 0 {
		c.FlushTimeout = DefaultFlushTimeout
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if len(c.Backoff) == 0 {
		c.Backoff = defaultBackoff
	}
}

// WorkerStats are cumulative totals since Start.
type WorkerStats struct {
	Batches      int64
	Samples      int64
	Retries      int64
	DeadLettered int64
}

// Worker drains one stream's durable queue into batches and hands them to a
// BatchFlusher, strictly one batch in flight at a time. That single-flight
// rule is what makes the writer's unconditional hot-state upsert safe, so a
// stream must never run two workers against the same queue group.
type Worker struct {
	queue   Queue
	flusher BatchFlusher
	cfg     WorkerConfig
	log     *logrus.Entry

	stopChan chan struct{}
	wg       sync.WaitGroup
	stopped  uint32

	batches      atomic.Int64
	samples      atomic.Int64
	retries      atomic.Int64
	deadLettered atomic.Int64
}

// NewWorker wires a worker to its queue and flusher. Call Start to run it.
func NewWorker(q Queue, f BatchFlusher, cfg WorkerConfig) *Worker {
	cfg.applyDefaults()
	return &Worker{
		queue:    q,
		flusher:  f,
		cfg:      cfg,
		log:      logrus.WithFields(logrus.Fields{"component": "worker", "stream": cfg.Stream}),
		stopChan: make(chan struct{}),
	}
}

// Start launches the drain loop.
func (w *Worker) Start() {
	w.wg.Add(1)
	go w.run()
	w.log.WithFields(logrus.Fields{
		"batch_size":     w.cfg.BatchSize,
		"flush_interval": w.cfg.FlushInterval,
	}).Info("worker started")
}

// Stop flushes the current buffer and waits for the loop to exit. Anything
// still queued, and anything a failed flush left pending, survives in the
// durable queue for the next startup. Stop is idempotent.
func (w *Worker) Stop() {
	if !atomic.CompareAndSwapUint32(&w.stopped, 0, 1) {
		return
	}
	close(w.stopChan)
	w.wg.Wait()
	s := w.Stats()
	w.log.WithFields(logrus.Fields{
		"batches":       s.Batches,
		"samples":       s.Samples,
		"retries":       s.Retries,
		"dead_lettered": s.DeadLettered,
	}).Info("worker stopped")
}

// Stats returns cumulative totals since Start.
func (w *Worker) Stats() WorkerStats {
	return WorkerStats{
		Batches:      w.batches.Load(),
		Samples:      w.samples.Load(),
		Retries:      w.retries.Load(),
		DeadLettered: w.deadLettered.Load(),
	}
}

func (w *Worker) run() {
	defer w.wg.Done()
	buf := make([]Job, 0, w.cfg.BatchSize)
	lastFlush := time.Now()
	for {
		select {
		case <-w.stopChan:
			if len(buf) > 0 {
				w.flush(buf)
			}
			return
		default:
		}

		if want := w.cfg.BatchSize - len(buf); want > 0 {
			ctx, cancel := context.WithTimeout(context.Background(), w.cfg.PollWait+time.Second)
			jobs, err := w.queue.Dequeue(ctx, want, w.cfg.PollWait)
			cancel()
			if err != nil {
				w.log.WithError(err).Warn("queue dequeue failed")
				time.Sleep(w.cfg.PollWait)
				continue
			}
			buf = append(buf, jobs...)
		}

		if len(buf) >= w.cfg.BatchSize {
			if !w.flush(buf) {
				return
			}
			buf = buf[:0]
			lastFlush = time.Now()
			continue
		}
		if len(buf) > 0 && time.Since(lastFlush) >= w.cfg.FlushInterval {
			if !w.flush(buf) {
				return
			}
			buf = buf[:0]
			lastFlush = time.Now()
		}
	}
}

// flush pushes one batch through the flusher, retrying with backoff and
// dead-lettering after MaxAttempts. It returns false only when a stop request
// interrupted the retry loop; the jobs then stay pending in the queue and are
// redelivered on the next startup.
func (w *Worker) flush(buf []Job) bool {
	payloads := make([][]byte, len(buf))
	ids := make([]string, len(buf))
	for i, j := range buf {
		payloads[i] = j.Payload
		ids[i] = j.ID
	}

	var lastErr error
	for attempt := 1; attempt <= w.cfg.MaxAttempts; attempt++ {
		if attempt > 1 && !w.waitRetry(attempt) {
			w.log.WithFields(logrus.Fields{"size": len(buf), "attempt": attempt}).
				Warn("stop requested during retry; leaving batch pending")
			return false
		}

		ctx, cancel := context.WithTimeout(context.Background(), w.cfg.FlushTimeout)
		start := time.Now()
		err := w.flusher.FlushBatch(ctx, payloads)
		elapsed := time.Since(start)
		cancel()
		if err == nil {
			w.ack(ids)
			w.batches.Add(1)
			w.samples.Add(int64(len(buf)))
			ingestmetrics.ObserveCommit(w.cfg.Stream, len(buf), elapsed)
			return true
		}

		lastErr = err
		w.retries.Add(1)
		ingestmetrics.RecordRetry(w.cfg.Stream)
		w.log.WithError(err).WithFields(logrus.Fields{
			"attempt": attempt,
			"size":    len(buf),
		}).Warn("batch flush failed")
	}

	dlCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	reason := fmt.Sprintf("after %d attempts: %v", w.cfg.MaxAttempts, lastErr)
	if err := w.queue.DeadLetter(dlCtx, buf, reason); err != nil {
		// The jobs stay pending and come back on the next startup.
		w.log.WithError(err).Error("dead-letter write failed; batch stays pending")
		return true
	}
	w.deadLettered.Add(int64(len(buf)))
	ingestmetrics.RecordDeadLettered(w.cfg.Stream, len(buf))
	w.log.WithError(lastErr).WithFields(logrus.Fields{"size": len(buf)}).
		Error("batch dead-lettered after exhausting retries")
	return true
}

func (w *Worker) ack(ids []string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := w.queue.Ack(ctx, ids...); err != nil {
		// The batch is committed; redelivery on restart re-applies the same
		// rows, which the upsert and append tolerate. At-least-once, not
		// exactly-once.
		w.log.WithError(err).Warn("ack failed; batch will be redelivered on next start")
	}
}

func (w *Worker) waitRetry(attempt int) bool {
	idx := attempt - 2
	if idx >= len(w.cfg.Backoff) {
		idx = len(w.cfg.Backoff) - 1
	}
	t := time.NewTimer(w.cfg.Backoff[idx])
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-w.stopChan:
		return false
	}
}
