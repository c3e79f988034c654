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
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"evtel/internal/charging/core"
)

// Postgres unique_violation. Raised by the partial unique index on
// (vehicle_id) WHERE active, which is what enforces one active session
// per vehicle.
const uniqueViolationCode = "23505"

const (
	startSessionSQL = `
		INSERT INTO charging_sessions (vehicle_id, meter_id, mapped_at, active)
		VALUES ($1, $2, $3, TRUE)
		RETURNING vehicle_id, meter_id, mapped_at, unmapped_at, active`

	endSessionSQL = `
		UPDATE charging_sessions
		   SET active = FALSE, unmapped_at = $2
		 WHERE vehicle_id = $1 AND active
		RETURNING vehicle_id, meter_id, mapped_at, unmapped_at, active`

	activeSessionSQL = `
		SELECT vehicle_id, meter_id, mapped_at, unmapped_at, active
		  FROM charging_sessions
		 WHERE vehicle_id = $1 AND active`

	startSessionsSQL = `
		INSERT INTO charging_sessions (vehicle_id, meter_id, mapped_at, active)
		SELECT v, m, $3, TRUE FROM unnest($1::uuid[], $2::uuid[]) AS t(v, m)`

	endSessionsSQL = `
		UPDATE charging_sessions
		   SET active = FALSE, unmapped_at = $2
		 WHERE vehicle_id = ANY($1::uuid[]) AND active`
)

// StartSession maps a vehicle onto a meter at the given instant. Returns
// core.ErrSessionConflict when the vehicle already has an active session.
func (s *Store) StartSession(ctx context.Context, vehicleID, meterID uuid.UUID, at time.Time) (core.Session, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	var sess core.Session
	err := s.db.QueryRow(ctx, startSessionSQL, vehicleID, meterID, at).
		Scan(&sess.VehicleID, &sess.MeterID, &sess.MappedAt, &sess.UnmappedAt, &sess.Active)
	if err != nil {
		if isUniqueViolation(err) {
			return core.Session{}, core.ErrSessionConflict
		}
		return core.Session{}, fmt.Errorf("start session: %w", err)
	}
	return sess, nil
}

// EndSession closes the vehicle's active session. Returns
// core.ErrSessionNotFound when there is none.
func (s *Store) EndSession(ctx context.Context, vehicleID uuid.UUID, at time.Time) (core.Session, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	var sess core.Session
	err := s.db.QueryRow(ctx, endSessionSQL, vehicleID, at).
		Scan(&sess.VehicleID, &sess.MeterID, &sess.MappedAt, &sess.UnmappedAt, &sess.Active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return core.Session{}, core.ErrSessionNotFound
		}
		return core.Session{}, fmt.Errorf("end session: %w", err)
	}
	return sess, nil
}

// ActiveSession returns the vehicle's current session, or
// core.ErrSessionNotFound.
func (s *Store) ActiveSession(ctx context.Context, vehicleID uuid.UUID) (core.Session, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	var sess core.Session
	err := s.db.QueryRow(ctx, activeSessionSQL, vehicleID).
		Scan(&sess.VehicleID, &sess.MeterID, &sess.MappedAt, &sess.UnmappedAt, &sess.Active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return core.Session{}, core.ErrSessionNotFound
		}
		return core.Session{}, fmt.Errorf("lookup active session: %w", err)
	}
	return sess, nil
}

// StartSessions maps every pair in one statement. The whole call fails
// with core.ErrSessionConflict if any vehicle in the batch already has an
// active session; on success it returns the number of sessions created.
func (s *Store) StartSessions(ctx context.Context, pairs []core.SessionPair, at time.Time) (int, error) {
	if len(pairs) == 0 {
		return 0, nil
	}
	ctx, cancel := s.bound(ctx)
	defer cancel()

	vehicles := make([]uuid.UUID, len(pairs))
	meters := make([]uuid.UUID, len(pairs))
	for i, p := range pairs {
		vehicles[i] = p.VehicleID
		meters[i] = p.MeterID
	}
	tag, err := s.db.Exec(ctx, startSessionsSQL, vehicles, meters, at)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, core.ErrSessionConflict
		}
		return 0, fmt.Errorf("start sessions: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// EndSessions closes the active sessions of the given vehicles and returns
// how many were actually closed. Vehicles without an active session are
// skipped, not errors.
func (s *Store) EndSessions(ctx context.Context, vehicleIDs []uuid.UUID, at time.Time) (int, error) {
	if len(vehicleIDs) == 0 {
		return 0, nil
	}
	ctx, cancel := s.bound(ctx)
	defer cancel()

	tag, err := s.db.Exec(ctx, endSessionsSQL, vehicleIDs, at)
	if err != nil {
		return 0, fmt.Errorf("end sessions: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode
}
