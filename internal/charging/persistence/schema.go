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
	"fmt"
	"strings"
	"time"
)

// Hot-state rows are rewritten roughly once a minute per device, so the
// state tables reserve page space for HOT updates. History tables are
// append-only and range-partitioned by month; partitions are created ahead
// of time and dropped past retention by the PartitionMaintainer.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS meter_states (
		meter_id        UUID PRIMARY KEY,
		kwh_consumed_ac DOUBLE PRECISION NOT NULL,
		voltage         DOUBLE PRECISION NOT NULL,
		last_updated    TIMESTAMPTZ NOT NULL
	) WITH (fillfactor = 70)`,

	`CREATE TABLE IF NOT EXISTS vehicle_states (
		vehicle_id       UUID PRIMARY KEY,
		soc              DOUBLE PRECISION NOT NULL,
		kwh_delivered_dc DOUBLE PRECISION NOT NULL,
		battery_temp     DOUBLE PRECISION NOT NULL,
		last_updated     TIMESTAMPTZ NOT NULL
	) WITH (fillfactor = 70)`,

	`CREATE TABLE IF NOT EXISTS meter_history (
		id              BIGINT GENERATED ALWAYS AS IDENTITY,
		meter_id        UUID NOT NULL,
		kwh_consumed_ac DOUBLE PRECISION NOT NULL,
		voltage         DOUBLE PRECISION NOT NULL,
		recorded_at     TIMESTAMPTZ NOT NULL,
		ingested_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (id, recorded_at)
	) PARTITION BY RANGE (recorded_at)`,

	`CREATE INDEX IF NOT EXISTS idx_meter_history_device_time
		ON meter_history (meter_id, recorded_at DESC)`,

	`CREATE TABLE IF NOT EXISTS vehicle_history (
		id               BIGINT GENERATED ALWAYS AS IDENTITY,
		vehicle_id       UUID NOT NULL,
		soc              DOUBLE PRECISION NOT NULL,
		kwh_delivered_dc DOUBLE PRECISION NOT NULL,
		battery_temp     DOUBLE PRECISION NOT NULL,
		recorded_at      TIMESTAMPTZ NOT NULL,
		ingested_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (id, recorded_at)
	) PARTITION BY RANGE (recorded_at)`,

	`CREATE INDEX IF NOT EXISTS idx_vehicle_history_device_time
		ON vehicle_history (vehicle_id, recorded_at DESC)`,

	`CREATE TABLE IF NOT EXISTS charging_sessions (
		vehicle_id  UUID NOT NULL,
		meter_id    UUID NOT NULL,
		mapped_at   TIMESTAMPTZ NOT NULL,
		unmapped_at TIMESTAMPTZ,
		active      BOOLEAN NOT NULL DEFAULT TRUE,
		PRIMARY KEY (vehicle_id, meter_id, mapped_at)
	)`,

	`CREATE UNIQUE INDEX IF NOT EXISTS idx_sessions_one_active
		ON charging_sessions (vehicle_id) WHERE active`,

	`CREATE INDEX IF NOT EXISTS idx_sessions_active_meter
		ON charging_sessions (meter_id) WHERE active`,
}

// historyTables lists the partitioned parents the maintainer manages.
var historyTables = []string{"meter_history", "vehicle_history"}

// EnsureSchema creates every table and index if missing, then creates the
// partitions covering last month through monthsAhead months out so the
// writer never races partition creation.
func (s *Store) EnsureSchema(ctx context.Context, monthsAhead int) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	for _, stmt := range schemaStatements {
		if _, err := s.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return s.EnsurePartitions(ctx, time.Now().UTC(), monthsAhead)
}

// EnsurePartitions creates monthly partitions for both history tables from
// the month before now through monthsAhead months after it. Late samples
// from a clock-skewed charger land in the trailing month instead of
// failing the whole batch.
func (s *Store) EnsurePartitions(ctx context.Context, now time.Time, monthsAhead int) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	start := monthStart(now)
	for _, table := range historyTables {
		for i := -1; i <= monthsAhead; i++ {
			from := start.AddDate(0, i, 0)
			to := from.AddDate(0, 1, 0)
			stmt := fmt.Sprintf(
				`CREATE TABLE IF NOT EXISTS %s PARTITION OF %s FOR VALUES FROM ('%s') TO ('%s')`,
				partitionName(table, from), table,
				from.Format(time.RFC3339), to.Format(time.RFC3339),
			)
			if _, err := s.db.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("create partition %s: %w", partitionName(table, from), err)
			}
		}
	}
	return nil
}

// DropExpiredPartitions drops every partition that lies wholly before the
// retention window and reports how many were removed. A retention of 0
// disables dropping.
func (s *Store) DropExpiredPartitions(ctx context.Context, now time.Time, retentionMonths int) (int, error) {
	if retentionMonths <= 0 {
		return 0, nil
	}
	ctx, cancel := s.bound(ctx)
	defer cancel()

	cutoff := monthStart(now).AddDate(0, -retentionMonths, 0)
	dropped := 0
	for _, table := range historyTables {
		names, err := s.listPartitions(ctx, table)
		if err != nil {
			return dropped, err
		}
		for _, name := range names {
			from, ok := partitionMonth(table, name)
			if !ok {
				continue
			}
			if end := from.AddDate(0, 1, 0); end.After(cutoff) {
				continue
			}
			if _, err := s.db.Exec(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s`, name)); err != nil {
				return dropped, fmt.Errorf("drop partition %s: %w", name, err)
			}
			dropped++
			s.log.WithField("partition", name).Info("dropped expired history partition")
		}
	}
	return dropped, nil
}

func (s *Store) listPartitions(ctx context.Context, table string) ([]string, error) {
	rows, err := s.db.Query(ctx,
		`SELECT c.relname
		   FROM pg_inherits i
		   JOIN pg_class c ON c.oid = i.inhrelid
		   JOIN pg_class p ON p.oid = i.inhparent
		  WHERE p.relname = $1`, table)
	if err != nil {
		return nil, fmt.Errorf("list partitions of %s: %w", table, err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan partition name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// partitionName yields e.g. meter_history_202608 for August 2026.
func partitionName(table string, from time.Time) string {
	return fmt.Sprintf("%s_%s", table, from.Format("200601"))
}

// partitionMonth parses the month back out of a partition name. Tables
// under the parent that don't follow the naming scheme are left alone.
func partitionMonth(table, name string) (time.Time, bool) {
	suffix := strings.TrimPrefix(name, table+"_")
	if suffix == name {
		return time.Time{}, false
	}
	from, err := time.Parse("200601", suffix)
	if err != nil {
		return time.Time{}, false
	}
	return from, true
}

func monthStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}
