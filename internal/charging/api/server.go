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

// Package api implements the HTTP surface of the telemetry service: the
// correlated analytics reads, the session lifecycle endpoints, health, and
// the Prometheus scrape handler.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"evtel/internal/charging/core"
)

const (
	defaultSnapshotLimit = 100
	maxSnapshotLimit     = 1000

	maxBodyBytes = 1 << 20
)

// AnalyticsProvider serves the read-side queries.
type AnalyticsProvider interface {
	VehiclePerformance(ctx context.Context, vehicleID uuid.UUID, windowEnd time.Time) (core.PerformanceReport, error)
	FleetSnapshot(ctx context.Context, limit int) ([]core.VehicleSnapshot, error)
}

// SessionService manages vehicle-to-meter associations.
type SessionService interface {
	StartSession(ctx context.Context, vehicleID, meterID uuid.UUID, at time.Time) (core.Session, error)
	EndSession(ctx context.Context, vehicleID uuid.UUID, at time.Time) (core.Session, error)
	ActiveSession(ctx context.Context, vehicleID uuid.UUID) (core.Session, error)
	StartSessions(ctx context.Context, pairs []core.SessionPair, at time.Time) (int, error)
	EndSessions(ctx context.Context, vehicleIDs []uuid.UUID, at time.Time) (int, error)
}

// Server handles the HTTP requests for the telemetry service.
type Server struct {
	analytics  AnalyticsProvider
	sessions   SessionService
	log        *logrus.Entry
	httpServer *http.Server

	// now is swappable in tests.
	now func() time.Time
}

// NewServer creates and configures the API server on addr.
func NewServer(analytics AnalyticsProvider, sessions SessionService, addr string) *Server {
	s := &Server{
		analytics: analytics,
		sessions:  sessions,
		log:       logrus.WithField("component", "api"),
		now:       func() time.Time { return time.Now().UTC() },
	}
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	return s
}

// RegisterRoutes sets up the HTTP routes on the given ServeMux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /analytics/performance/{vehicleId}", s.handlePerformance)
	mux.HandleFunc("GET /analytics/vehicles/states", s.handleFleetStates)
	mux.HandleFunc("POST /sessions/start", s.handleStartSession)
	mux.HandleFunc("POST /sessions/end", s.handleEndSession)
	mux.HandleFunc("GET /sessions/active/{vehicleId}", s.handleActiveSession)
	mux.HandleFunc("POST /sessions/bulk/start", s.handleBulkStart)
	mux.HandleFunc("POST /sessions/bulk/end", s.handleBulkEnd)
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.Handle("GET /metrics", promhttp.Handler())
}

// ListenAndServe blocks serving requests until Shutdown. A clean shutdown
// returns nil.
func (s *Server) ListenAndServe() error {
	s.log.WithField("addr", s.httpServer.Addr).Info("api listening")
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops accepting connections and drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handlePerformance(w http.ResponseWriter, r *http.Request) {
	vehicleID, err := uuid.Parse(r.PathValue("vehicleId"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "vehicleId must be a UUID")
		return
	}
	report, err := s.analytics.VehiclePerformance(r.Context(), vehicleID, s.now())
	if err != nil {
		s.mapError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleFleetStates(w http.ResponseWriter, r *http.Request) {
	limit := defaultSnapshotLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			s.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxSnapshotLimit)
	}
	snaps, err := s.analytics.FleetSnapshot(r.Context(), limit)
	if err != nil {
		s.mapError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, snaps)
}

type startSessionRequest struct {
	VehicleID uuid.UUID `json:"vehicleId"`
	MeterID   uuid.UUID `json:"meterId"`
}

func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	var req startSessionRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	if req.VehicleID == uuid.Nil || req.MeterID == uuid.Nil {
		s.writeError(w, http.StatusBadRequest, "vehicleId and meterId are required")
		return
	}
	sess, err := s.sessions.StartSession(r.Context(), req.VehicleID, req.MeterID, s.now())
	if err != nil {
		s.mapError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, sess)
}

type endSessionRequest struct {
	VehicleID uuid.UUID `json:"vehicleId"`
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	var req endSessionRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	if req.VehicleID == uuid.Nil {
		s.writeError(w, http.StatusBadRequest, "vehicleId is required")
		return
	}
	sess, err := s.sessions.EndSession(r.Context(), req.VehicleID, s.now())
	if err != nil {
		s.mapError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleActiveSession(w http.ResponseWriter, r *http.Request) {
	vehicleID, err := uuid.Parse(r.PathValue("vehicleId"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "vehicleId must be a UUID")
		return
	}
	sess, err := s.sessions.ActiveSession(r.Context(), vehicleID)
	if err != nil {
		s.mapError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, sess)
}

type bulkStartRequest struct {
	Sessions []core.SessionPair `json:"sessions"`
}

type bulkStartResponse struct {
	Started int `json:"started"`
}

func (s *Server) handleBulkStart(w http.ResponseWriter, r *http.Request) {
	var req bulkStartRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	for _, p := range req.Sessions {
		if p.VehicleID == uuid.Nil || p.MeterID == uuid.Nil {
			s.writeError(w, http.StatusBadRequest, "every session needs vehicleId and meterId")
			return
		}
	}
	n, err := s.sessions.StartSessions(r.Context(), req.Sessions, s.now())
	if err != nil {
		s.mapError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, bulkStartResponse{Started: n})
}

type bulkEndRequest struct {
	VehicleIDs []uuid.UUID `json:"vehicleIds"`
}

type bulkEndResponse struct {
	Ended int `json:"ended"`
}

func (s *Server) handleBulkEnd(w http.ResponseWriter, r *http.Request) {
	var req bulkEndRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	n, err := s.sessions.EndSessions(r.Context(), req.VehicleIDs, s.now())
	if err != nil {
		s.mapError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, bulkEndResponse{Ended: n})
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type errorResponse struct {
	Error string `json:"error"`
}

// mapError translates the store's sentinel errors into statuses; anything
// unrecognized is a 500 with the detail kept server-side.
func (s *Server) mapError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, core.ErrSessionConflict):
		s.writeError(w, http.StatusConflict, "vehicle already has an active session")
	case errors.Is(err, core.ErrSessionNotFound):
		s.writeError(w, http.StatusNotFound, "no active session for vehicle")
	case errors.Is(err, core.ErrNoData):
		s.writeError(w, http.StatusNotFound, "no telemetry for vehicle in window")
	default:
		s.log.WithError(err).Error("request failed")
		s.writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		s.writeError(w, http.StatusBadRequest, "malformed request body")
		return false
	}
	return true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.WithError(err).Warn("write response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, errorResponse{Error: msg})
}
