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

import "errors"

// Sentinel errors surfaced across the storage and HTTP boundaries. Callers
// match them with errors.Is; everything else is an internal error.
var (
	// ErrSessionConflict: the vehicle already has an active session.
	ErrSessionConflict = errors.New("vehicle already has an active session")

	// ErrSessionNotFound: the vehicle has no active session to end or read.
	ErrSessionNotFound = errors.New("no active session for vehicle")

	// ErrNoData: the analytics window holds no DC samples for the vehicle.
	ErrNoData = errors.New("no samples for vehicle in window")
)
