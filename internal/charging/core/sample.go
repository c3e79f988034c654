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

// Package core holds the domain model of the charging telemetry pipeline:
// validated samples, the batch worker that drains the durable queues, and the
// interfaces the storage and queue layers implement.
package core

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"evtel/pkg/wire"
)

// Stream names label the two independent pipelines end to end: queue names,
// worker logs, and metric series all use them.
const (
	StreamMeter   = "meter"
	StreamVehicle = "vehicle"
)

// MeterSample is a validated meter reading inside the pipeline. ReceivedAt is
// stamped by the intake when the reading is accepted; RecordedAt is the
// device's own clock and may lag or lead it.
type MeterSample struct {
	MeterID       uuid.UUID `json:"meterId"`
	KwhConsumedAc float64   `json:"kwhConsumedAc"`
	Voltage       float64   `json:"voltage"`
	RecordedAt    time.Time `json:"recordedAt"`
	ReceivedAt    time.Time `json:"receivedAt"`
}

// VehicleSample is a validated vehicle reading inside the pipeline.
type VehicleSample struct {
	VehicleID      uuid.UUID `json:"vehicleId"`
	Soc            float64   `json:"soc"`
	KwhDeliveredDc float64   `json:"kwhDeliveredDc"`
	BatteryTemp    float64   `json:"batteryTemp"`
	RecordedAt     time.Time `json:"recordedAt"`
	ReceivedAt     time.Time `json:"receivedAt"`
}

// MeterSampleFromReading stamps an accepted broker reading for the pipeline.
func MeterSampleFromReading(r wire.MeterReading, receivedAt time.Time) MeterSample {
	return MeterSample{
		MeterID:       r.MeterID,
		KwhConsumedAc: r.KwhConsumedAc,
		Voltage:       r.Voltage,
		RecordedAt:    r.Timestamp,
		ReceivedAt:    receivedAt,
	}
}

// VehicleSampleFromReading stamps an accepted broker reading for the pipeline.
func VehicleSampleFromReading(r wire.VehicleReading, receivedAt time.Time) VehicleSample {
	return VehicleSample{
		VehicleID:      r.VehicleID,
		Soc:            r.Soc,
		KwhDeliveredDc: r.KwhDeliveredDc,
		BatteryTemp:    r.BatteryTemp,
		RecordedAt:     r.Timestamp,
		ReceivedAt:     receivedAt,
	}
}

// EncodeMeterSample serializes a sample as a queue payload.
func EncodeMeterSample(s MeterSample) ([]byte, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode meter sample: %w", err)
	}
	return b, nil
}

// DecodeMeterSample is the inverse of EncodeMeterSample.
func DecodeMeterSample(payload []byte) (MeterSample, error) {
	var s MeterSample
	if err := json.Unmarshal(payload, &s); err != nil {
		return MeterSample{}, fmt.Errorf("decode meter sample: %w", err)
	}
	return s, nil
}

// EncodeVehicleSample serializes a sample as a queue payload.
func EncodeVehicleSample(s VehicleSample) ([]byte, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode vehicle sample: %w", err)
	}
	return b, nil
}

// DecodeVehicleSample is the inverse of EncodeVehicleSample.
func DecodeVehicleSample(payload []byte) (VehicleSample, error) {
	var s VehicleSample
	if err := json.Unmarshal(payload, &s); err != nil {
		return VehicleSample{}, fmt.Errorf("decode vehicle sample: %w", err)
	}
	return s, nil
}
