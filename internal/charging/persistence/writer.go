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

package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"evtel/internal/charging/core"
	"evtel/internal/charging/telemetry/ingestmetrics"
)

// Bulk statements pass one array per column so a whole batch travels in a
// single round trip regardless of size. The state upsert runs on the
// deduplicated batch; history keeps every raw sample.
const (
	upsertMeterStatesSQL = `
		INSERT INTO meter_states (meter_id, kwh_consumed_ac, voltage, last_updated)
		SELECT * FROM unnest($1::uuid[], $2::float8[], $3::float8[], $4::timestamptz[])
		ON CONFLICT (meter_id) DO UPDATE SET
			kwh_consumed_ac = EXCLUDED.kwh_consumed_ac,
			voltage         = EXCLUDED.voltage,
			last_updated    = EXCLUDED.last_updated`

	appendMeterHistorySQL = `
		INSERT INTO meter_history (meter_id, kwh_consumed_ac, voltage, recorded_at, ingested_at)
		SELECT * FROM unnest($1::uuid[], $2::float8[], $3::float8[], $4::timestamptz[], $5::timestamptz[])`

	upsertVehicleStatesSQL = `
		INSERT INTO vehicle_states (vehicle_id, soc, kwh_delivered_dc, battery_temp, last_updated)
		SELECT * FROM unnest($1::uuid[], $2::float8[], $3::float8[], $4::float8[], $5::timestamptz[])
		ON CONFLICT (vehicle_id) DO UPDATE SET
			soc              = EXCLUDED.soc,
			kwh_delivered_dc = EXCLUDED.kwh_delivered_dc,
			battery_temp     = EXCLUDED.battery_temp,
			last_updated     = EXCLUDED.last_updated`

	appendVehicleHistorySQL = `
		INSERT INTO vehicle_history (vehicle_id, soc, kwh_delivered_dc, battery_temp, recorded_at, ingested_at)
		SELECT * FROM unnest($1::uuid[], $2::float8[], $3::float8[], $4::float8[], $5::timestamptz[], $6::timestamptz[])`
)

// CommitMeterBatch writes one meter batch atomically: every sample is
// appended to history, then the per-meter latest samples are upserted into
// meter_states. The upsert overwrites unconditionally, which is safe only
// while a single writer per stream commits batches in arrival order.
func (s *Store) CommitMeterBatch(ctx context.Context, samples []core.MeterSample) error {
	if len(samples) == 0 {
		return nil
	}
	ctx, cancel := s.bound(ctx)
	defer cancel()

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin meter batch: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	ids := make([]uuid.UUID, len(samples))
	kwh := make([]float64, len(samples))
	volts := make([]float64, len(samples))
	recorded := make([]time.Time, len(samples))
	received := make([]time.Time, len(samples))
	for i, sm := range samples {
		ids[i] = sm.MeterID
		kwh[i] = sm.KwhConsumedAc
		volts[i] = sm.Voltage
		recorded[i] = sm.RecordedAt
		received[i] = sm.ReceivedAt
	}
	if _, err := tx.Exec(ctx, appendMeterHistorySQL, ids, kwh, volts, recorded, received); err != nil {
		return fmt.Errorf("append meter history: %w", err)
	}

	latest := core.DedupMeterSamples(samples)
	upIDs := make([]uuid.UUID, len(latest))
	upKwh := make([]float64, len(latest))
	upVolts := make([]float64, len(latest))
	upRecorded := make([]time.Time, len(latest))
	for i, sm := range latest {
		upIDs[i] = sm.MeterID
		upKwh[i] = sm.KwhConsumedAc
		upVolts[i] = sm.Voltage
		upRecorded[i] = sm.RecordedAt
	}
	if _, err := tx.Exec(ctx, upsertMeterStatesSQL, upIDs, upKwh, upVolts, upRecorded); err != nil {
		return fmt.Errorf("upsert meter states: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit meter batch: %w", err)
	}
	return nil
}

// CommitVehicleBatch is the vehicle-stream twin of CommitMeterBatch.
func (s *Store) CommitVehicleBatch(ctx context.Context, samples []core.VehicleSample) error {
	if len(samples) == 0 {
		return nil
	}
	ctx, cancel := s.bound(ctx)
	defer cancel()

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin vehicle batch: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	ids := make([]uuid.UUID, len(samples))
	soc := make([]float64, len(samples))
	kwh := make([]float64, len(samples))
	temp := make([]float64, len(samples))
	recorded := make([]time.Time, len(samples))
	received := make([]time.Time, len(samples))
	for i, sm := range samples {
		ids[i] = sm.VehicleID
		soc[i] = sm.Soc
		kwh[i] = sm.KwhDeliveredDc
		temp[i] = sm.BatteryTemp
		recorded[i] = sm.RecordedAt
		received[i] = sm.ReceivedAt
	}
	if _, err := tx.Exec(ctx, appendVehicleHistorySQL, ids, soc, kwh, temp, recorded, received); err != nil {
		return fmt.Errorf("append vehicle history: %w", err)
	}

	latest := core.DedupVehicleSamples(samples)
	upIDs := make([]uuid.UUID, len(latest))
	upSoc := make([]float64, len(latest))
	upKwh := make([]float64, len(latest))
	upTemp := make([]float64, len(latest))
	upRecorded := make([]time.Time, len(latest))
	for i, sm := range latest {
		upIDs[i] = sm.VehicleID
		upSoc[i] = sm.Soc
		upKwh[i] = sm.KwhDeliveredDc
		upTemp[i] = sm.BatteryTemp
		upRecorded[i] = sm.RecordedAt
	}
	if _, err := tx.Exec(ctx, upsertVehicleStatesSQL, upIDs, upSoc, upKwh, upTemp, upRecorded); err != nil {
		return fmt.Errorf("upsert vehicle states: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit vehicle batch: %w", err)
	}
	return nil
}

// MeterFlusher adapts queued payloads into a meter batch commit. Payloads
// that no longer decode are counted and skipped rather than poisoning the
// batch forever.
type MeterFlusher struct {
	store *Store
	log   *logrus.Entry
}

func NewMeterFlusher(store *Store) *MeterFlusher {
	return &MeterFlusher{
		store: store,
		log:   logrus.WithFields(logrus.Fields{"component": "flusher", "stream": core.StreamMeter}),
	}
}

// FlushBatch implements core.BatchFlusher.
func (f *MeterFlusher) FlushBatch(ctx context.Context, payloads [][]byte) error {
	samples := make([]core.MeterSample, 0, len(payloads))
	for _, p := range payloads {
		sm, err := core.DecodeMeterSample(p)
		if err != nil {
			ingestmetrics.RecordDropped(core.StreamMeter, "corrupt")
			f.log.WithError(err).Warn("dropping corrupt queued sample")
			continue
		}
		samples = append(samples, sm)
	}
	return f.store.CommitMeterBatch(ctx, samples)
}

// VehicleFlusher adapts queued payloads into a vehicle batch commit.
type VehicleFlusher struct {
	store *Store
	log   *logrus.Entry
}

func NewVehicleFlusher(store *Store) *VehicleFlusher {
	return &VehicleFlusher{
		store: store,
		log:   logrus.WithFields(logrus.Fields{"component": "flusher", "stream": core.StreamVehicle}),
	}
}

// FlushBatch implements core.BatchFlusher.
func (f *VehicleFlusher) FlushBatch(ctx context.Context, payloads [][]byte) error {
	samples := make([]core.VehicleSample, 0, len(payloads))
	for _, p := range payloads {
		sm, err := core.DecodeVehicleSample(p)
		if err != nil {
			ingestmetrics.RecordDropped(core.StreamVehicle, "corrupt")
			f.log.WithError(err).Warn("dropping corrupt queued sample")
			continue
		}
		samples = append(samples, sm)
	}
	return f.store.CommitVehicleBatch(ctx, samples)
}
