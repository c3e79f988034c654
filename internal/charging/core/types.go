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
	"time"

	"github.com/google/uuid"
)

// Session is one vehicle↔meter association interval. UnmappedAt is nil while
// the session is active; Active mirrors that for cheap filtering.
type Session struct {
	VehicleID  uuid.UUID  `json:"vehicleId"`
	MeterID    uuid.UUID  `json:"meterId"`
	MappedAt   time.Time  `json:"mappedAt"`
	UnmappedAt *time.Time `json:"unmappedAt,omitempty"`
	Active     bool       `json:"active"`
}

// SessionPair identifies one vehicle↔meter association to open in bulk.
type SessionPair struct {
	VehicleID uuid.UUID `json:"vehicleId"`
	MeterID   uuid.UUID `json:"meterId"`
}

// PerformanceReport correlates a vehicle's AC and DC streams over a window.
// TotalAcConsumption covers only meters whose session with the vehicle
// overlapped the window; when no such AC data exists it is zero and
// EfficiencyRatio is zero, never a division error.
type PerformanceReport struct {
	VehicleID          uuid.UUID `json:"vehicleId"`
	WindowStart        time.Time `json:"windowStart"`
	WindowEnd          time.Time `json:"windowEnd"`
	TotalAcConsumption float64   `json:"totalAcConsumption"`
	TotalDcDelivery    float64   `json:"totalDcDelivery"`
	EfficiencyRatio    float64   `json:"efficiencyRatio"`
	AvgBatteryTemp     float64   `json:"avgBatteryTemp"`
	DataPoints         int64     `json:"dataPoints"`
}

// MeterState is the latest-known record for one meter.
type MeterState struct {
	MeterID       uuid.UUID `json:"meterId"`
	KwhConsumedAc float64   `json:"kwhConsumedAc"`
	Voltage       float64   `json:"voltage"`
	LastUpdated   time.Time `json:"lastUpdated"`
}

// VehicleSnapshot is one row of the fleet view: the latest vehicle state plus
// the state of the meter it is currently plugged into, if any.
type VehicleSnapshot struct {
	VehicleID      uuid.UUID   `json:"vehicleId"`
	Soc            float64     `json:"soc"`
	KwhDeliveredDc float64     `json:"kwhDeliveredDc"`
	BatteryTemp    float64     `json:"batteryTemp"`
	LastUpdated    time.Time   `json:"lastUpdated"`
	Meter          *MeterState `json:"meter,omitempty"`
}
