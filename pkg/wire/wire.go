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

// Package wire defines the broker-facing telemetry contract shared by the
// ingest service and device-side publishers: topic layout, payload schemas,
// and the range checks a sample must pass before entering the pipeline.
//
// Payloads are UTF-8 JSON; timestamps are ISO-8601 with a timezone offset.
// Every field is required. Readings that fail to parse or fall outside the
// documented ranges are rejected at the intake boundary and never reach
// storage, so the checks here are the single source of truth for what a
// valid sample is.
package wire

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Topic filters the intake subscribes to. The trailing segment is the device
// id; `+` matches exactly one level.
const (
	MeterTopicFilter   = "telemetry/meter/+"
	VehicleTopicFilter = "telemetry/vehicle/+"
)

// MeterTopic returns the publish topic for a single meter.
func MeterTopic(meterID uuid.UUID) string {
	return "telemetry/meter/" + meterID.String()
}

// VehicleTopic returns the publish topic for a single vehicle.
func VehicleTopic(vehicleID uuid.UUID) string {
	return "telemetry/vehicle/" + vehicleID.String()
}

// Accepted value ranges. Cumulative energy counters must be non-negative.
const (
	MinSoc         = 0.0
	MaxSoc         = 100.0
	MinVoltage     = 0.0
	MaxVoltage     = 500.0
	MinBatteryTemp = -40.0
	MaxBatteryTemp = 80.0
)

// MeterReading is the payload published on telemetry/meter/<meterId>.
// KwhConsumedAc is the meter's cumulative grid-side energy counter.
type MeterReading struct {
	MeterID       uuid.UUID `json:"meterId"`
	KwhConsumedAc float64   `json:"kwhConsumedAc"`
	Voltage       float64   `json:"voltage"`
	Timestamp     time.Time `json:"timestamp"`
}

// VehicleReading is the payload published on telemetry/vehicle/<vehicleId>.
// KwhDeliveredDc is the cumulative battery-side energy counter.
type VehicleReading struct {
	VehicleID      uuid.UUID `json:"vehicleId"`
	Soc            float64   `json:"soc"`
	KwhDeliveredDc float64   `json:"kwhDeliveredDc"`
	BatteryTemp    float64   `json:"batteryTemp"`
	Timestamp      time.Time `json:"timestamp"`
}

// Validate reports the first reason the reading is unacceptable, or nil.
func (r *MeterReading) Validate() error {
	if r.MeterID == uuid.Nil {
		return fmt.Errorf("meterId must not be the nil UUID")
	}
	if r.Timestamp.IsZero() {
		return fmt.Errorf("timestamp must be set")
	}
	if r.KwhConsumedAc < 0 {
		return fmt.Errorf("kwhConsumedAc %.3f is negative", r.KwhConsumedAc)
	}
	if r.Voltage < MinVoltage || r.Voltage > MaxVoltage {
		return fmt.Errorf("voltage %.2f outside [%.0f, %.0f]", r.Voltage, MinVoltage, MaxVoltage)
	}
	return nil
}

// Validate reports the first reason the reading is unacceptable, or nil.
func (r *VehicleReading) Validate() error {
	if r.VehicleID == uuid.Nil {
		return fmt.Errorf("vehicleId must not be the nil UUID")
	}
	if r.Timestamp.IsZero() {
		return fmt.Errorf("timestamp must be set")
	}
	if r.Soc < MinSoc || r.Soc > MaxSoc {
		return fmt.Errorf("soc %.2f outside [%.0f, %.0f]", r.Soc, MinSoc, MaxSoc)
	}
	if r.KwhDeliveredDc < 0 {
		return fmt.Errorf("kwhDeliveredDc %.3f is negative", r.KwhDeliveredDc)
	}
	if r.BatteryTemp < MinBatteryTemp || r.BatteryTemp > MaxBatteryTemp {
		return fmt.Errorf("batteryTemp %.2f outside [%.0f, %.0f]", r.BatteryTemp, MinBatteryTemp, MaxBatteryTemp)
	}
	return nil
}

// ParseMeterReading decodes and validates one broker payload. A field that is
// absent from the JSON is an error even when its zero value would pass the
// range checks, so a silent publisher bug cannot zero out a counter.
func ParseMeterReading(payload []byte) (MeterReading, error) {
	var raw struct {
		MeterID       *uuid.UUID `json:"meterId"`
		KwhConsumedAc *float64   `json:"kwhConsumedAc"`
		Voltage       *float64   `json:"voltage"`
		Timestamp     *time.Time `json:"timestamp"`
	}
	if err := json.Unmarshal(payload, &raw); err != nil {
		return MeterReading{}, fmt.Errorf("decode meter payload: %w", err)
	}
	var missing []string
	if raw.MeterID == nil {
		missing = append(missing, "meterId")
	}
	if raw.KwhConsumedAc == nil {
		missing = append(missing, "kwhConsumedAc")
	}
	if raw.Voltage == nil {
		missing = append(missing, "voltage")
	}
	if raw.Timestamp == nil {
		missing = append(missing, "timestamp")
	}
	if len(missing) > 0 {
		return MeterReading{}, fmt.Errorf("meter payload missing %s", strings.Join(missing, ", "))
	}
	r := MeterReading{
		MeterID:       *raw.MeterID,
		KwhConsumedAc: *raw.KwhConsumedAc,
		Voltage:       *raw.Voltage,
		Timestamp:     *raw.Timestamp,
	}
	if err := r.Validate(); err != nil {
		return MeterReading{}, err
	}
	return r, nil
}

// ParseVehicleReading decodes and validates one broker payload with the same
// strict-presence rules as ParseMeterReading.
func ParseVehicleReading(payload []byte) (VehicleReading, error) {
	var raw struct {
		VehicleID      *uuid.UUID `json:"vehicleId"`
		Soc            *float64   `json:"soc"`
		KwhDeliveredDc *float64   `json:"kwhDeliveredDc"`
		BatteryTemp    *float64   `json:"batteryTemp"`
		Timestamp      *time.Time `json:"timestamp"`
	}
	if err := json.Unmarshal(payload, &raw); err != nil {
		return VehicleReading{}, fmt.Errorf("decode vehicle payload: %w", err)
	}
	var missing []string
	if raw.VehicleID == nil {
		missing = append(missing, "vehicleId")
	}
	if raw.Soc == nil {
		missing = append(missing, "soc")
	}
	if raw.KwhDeliveredDc == nil {
		missing = append(missing, "kwhDeliveredDc")
	}
	if raw.BatteryTemp == nil {
		missing = append(missing, "batteryTemp")
	}
	if raw.Timestamp == nil {
		missing = append(missing, "timestamp")
	}
	if len(missing) > 0 {
		return VehicleReading{}, fmt.Errorf("vehicle payload missing %s", strings.Join(missing, ", "))
	}
	r := VehicleReading{
		VehicleID:      *raw.VehicleID,
		Soc:            *raw.Soc,
		KwhDeliveredDc: *raw.KwhDeliveredDc,
		BatteryTemp:    *raw.BatteryTemp,
		Timestamp:      *raw.Timestamp,
	}
	if err := r.Validate(); err != nil {
		return VehicleReading{}, err
	}
	return r, nil
}
