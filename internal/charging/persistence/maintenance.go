// Copyright 2026 Esteban Alvarez. All Rights Reserved.
//
// Created: July 2026
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

package persistence

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	// DefaultMaintenanceInterval is how often partitions are checked.
	DefaultMaintenanceInterval = 24 * time.Hour
	// DefaultMonthsAhead is how many future monthly partitions to keep
	// pre-created.
	DefaultMonthsAhead = 3
)

// PartitionMaintainer periodically pre-creates upcoming history partitions
// and drops the ones past retention. One run happens immediately on Start
// so a fresh deployment has partitions before the first batch commits.
type PartitionMaintainer struct {
	store           *Store
	interval        time.Duration
	monthsAhead     int
	retentionMonths int
	log             *logrus.Entry

	stopChan chan struct{}
	wg       sync.WaitGroup
	stopped  uint32
}

// NewPartitionMaintainer uses DefaultMaintenanceInterval and
// DefaultMonthsAhead when interval or monthsAhead is zero.
func NewPartitionMaintainer(store *Store, interval time.Duration, monthsAhead, retentionMonths int) *PartitionMaintainer {
	if interval <= 0 {
		interval = DefaultMaintenanceInterval
	}
	if monthsAhead <= 0 {
		monthsAhead = DefaultMonthsAhead
	}
	return &PartitionMaintainer{
		store:           store,
		interval:        interval,
		monthsAhead:     monthsAhead,
		retentionMonths: retentionMonths,
		log:             logrus.WithField("component", "partition-maintainer"),
		stopChan:        make(chan struct{}),
	}
}

// Start launches the maintenance loop.
func (m *PartitionMaintainer) Start() {
	m.wg.Add(1)
	go m.run()
}

// Stop halts the loop and waits for an in-flight run to finish. Safe to
// call more than once.
func (m *PartitionMaintainer) Stop() {
	if !atomic.CompareAndSwapUint32(&m.stopped, 0, 1) {
		return
	}
	close(m.stopChan)
	m.wg.Wait()
}

func (m *PartitionMaintainer) run() {
	defer m.wg.Done()

	m.runOnce()
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stopChan:
			return
		case <-ticker.C:
			m.runOnce()
		}
	}
}

func (m *PartitionMaintainer) runOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), DefaultTxTimeout)
	defer cancel()

	now := time.Now().UTC()
	if err := m.store.EnsurePartitions(ctx, now, m.monthsAhead); err != nil {
		m.log.WithError(err).Warn("partition creation failed; will retry next interval")
		return
	}
	dropped, err := m.store.DropExpiredPartitions(ctx, now, m.retentionMonths)
	if err != nil {
		m.log.WithError(err).Warn("partition retention sweep failed; will retry next interval")
		return
	}
	if dropped > 0 {
		m.log.WithField("dropped", dropped).Info("retention sweep removed partitions")
	}
}
