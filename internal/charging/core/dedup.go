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

import "github.com/google/uuid"

// DedupMeterSamples reduces a batch to one sample per meter, keeping the
// largest recorded timestamp. Ties go to the later position in the batch, so
// for equal timestamps the last sample seen wins deterministically. Device
// order follows first appearance in the input; the input is not modified.
//
// The upsert built from this result overwrites hot-state rows
// unconditionally, which is only safe while a single worker flushes the
// stream (one batch in flight at a time).
func DedupMeterSamples(in []MeterSample) []MeterSample {
	if len(in) <= 1 {
		return in
	}
	idx := make(map[uuid.UUID]int, len(in))
	out := make([]MeterSample, 0, len(in))
	for _, s := range in {
		i, seen := idx[s.MeterID]
		if !seen {
			idx[s.MeterID] = len(out)
			out = append(out, s)
			continue
		}
		if !s.RecordedAt.Before(out[i].RecordedAt) {
			out[i] = s
		}
	}
	return out
}

// DedupVehicleSamples is DedupMeterSamples for the vehicle stream.
func DedupVehicleSamples(in []VehicleSample) []VehicleSample {
	if len(in) <= 1 {
		return in
	}
	idx := make(map[uuid.UUID]int, len(in))
	out := make([]VehicleSample, 0, len(in))
	for _, s := range in {
		i, seen := idx[s.VehicleID]
		if !seen {
			idx[s.VehicleID] = len(out)
			out = append(out, s)
			continue
		}
		if !s.RecordedAt.Before(out[i].RecordedAt) {
			out[i] = s
		}
	}
	return out
}
