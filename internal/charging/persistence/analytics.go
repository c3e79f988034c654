// Copyright 2026 Esteban Alvarez. All Rights Reserved.
//
// Created: August 2026
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
	"time"

	"github.com/google/uuid"

	"evtel/internal/charging/core"
)

// PerformanceWindow is the trailing interval every performance report
// covers.
const PerformanceWindow = 24 * time.Hour

// The two CTEs aggregate independently. Meters feed the AC side only
// while their session overlaps the window: mapped before it closes and
// not unmapped before it opens. Counters are cumulative, so consumption
// and delivery are max minus min within the window. The final cross join
// is of two single-row aggregates.
const vehiclePerformanceSQL = `
	WITH dc AS (
		SELECT COALESCE(MAX(kwh_delivered_dc) - MIN(kwh_delivered_dc), 0) AS total,
		       COALESCE(AVG(battery_temp), 0) AS avg_temp,
		       COUNT(*) AS points
		  FROM vehicle_history
		 WHERE vehicle_id = $1
		   AND recorded_at BETWEEN $2 AND $3
	), ac AS (
		SELECT COALESCE(MAX(kwh_consumed_ac) - MIN(kwh_consumed_ac), 0) AS total
		  FROM meter_history
		 WHERE recorded_at BETWEEN $2 AND $3
		   AND meter_id IN (
		       SELECT meter_id
		         FROM charging_sessions
		        WHERE vehicle_id = $1
		          AND mapped_at <= $3
		          AND (unmapped_at IS NULL OR unmapped_at >= $2)
		   )
	)
	SELECT dc.total, dc.avg_temp, dc.points, ac.total FROM dc, ac`

const fleetSnapshotSQL = `
	SELECT v.vehicle_id, v.soc, v.kwh_delivered_dc, v.battery_temp, v.last_updated,
	       m.meter_id, m.kwh_consumed_ac, m.voltage, m.last_updated
	  FROM vehicle_states v
	  LEFT JOIN charging_sessions s ON s.vehicle_id = v.vehicle_id AND s.active
	  LEFT JOIN meter_states m ON m.meter_id = s.meter_id
	 ORDER BY v.last_updated DESC
	 LIMIT $1`

// VehiclePerformance reports charging efficiency over the trailing 24
// hours ending at windowEnd. A vehicle with no telemetry in the window
// yields core.ErrNoData. A vehicle that charged without any mapped meter
// reports zero AC consumption and a zero ratio.
func (s *Store) VehiclePerformance(ctx context.Context, vehicleID uuid.UUID, windowEnd time.Time) (core.PerformanceReport, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	windowEnd = windowEnd.UTC()
	windowStart := windowEnd.Add(-PerformanceWindow)

	var (
		dcTotal float64
		avgTemp float64
		points  int64
		acTotal float64
	)
	err := s.db.QueryRow(ctx, vehiclePerformanceSQL, vehicleID, windowStart, windowEnd).
		Scan(&dcTotal, &avgTemp, &points, &acTotal)
	if err != nil {
		return core.PerformanceReport{}, fmt.Errorf("vehicle performance: %w", err)
	}
	if points == 0 {
		return core.PerformanceReport{}, core.ErrNoData
	}

	ratio := 0.0
	if acTotal > 0 {
		ratio = dcTotal / acTotal
	}
	return core.PerformanceReport{
		VehicleID:          vehicleID,
		WindowStart:        windowStart,
		WindowEnd:          windowEnd,
		TotalAcConsumption: acTotal,
		TotalDcDelivery:    dcTotal,
		EfficiencyRatio:    ratio,
		AvgBatteryTemp:     avgTemp,
		DataPoints:         points,
	}, nil
}

// FleetSnapshot returns the limit most recently updated vehicles, each
// joined with the live state of the meter it is currently charging on, if
// any.
func (s *Store) FleetSnapshot(ctx context.Context, limit int) ([]core.VehicleSnapshot, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	rows, err := s.db.Query(ctx, fleetSnapshotSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("fleet snapshot: %w", err)
	}
	defer rows.Close()

	snapshots := make([]core.VehicleSnapshot, 0, limit)
	for rows.Next() {
		var (
			snap     core.VehicleSnapshot
			meterID  *uuid.UUID
			meterKwh *float64
			voltage  *float64
			updated  *time.Time
		)
		err := rows.Scan(
			&snap.VehicleID, &snap.Soc, &snap.KwhDeliveredDc, &snap.BatteryTemp, &snap.LastUpdated,
			&meterID, &meterKwh, &voltage, &updated,
		)
		if err != nil {
			return nil, fmt.Errorf("scan fleet snapshot: %w", err)
		}
		if meterID != nil {
			snap.Meter = &core.MeterState{
				MeterID:       *meterID,
				KwhConsumedAc: *meterKwh,
				Voltage:       *voltage,
				LastUpdated:   *updated,
			}
		}
		snapshots = append(snapshots, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("fleet snapshot rows: %w", err)
	}
	return snapshots, nil
}
