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

// Package persistence owns the Postgres side of the pipeline: hot state
// tables, append-only history partitions, charging sessions, and the
// correlated analytics queries that join them.
package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
)

// DefaultTxTimeout bounds any store call whose context carries no deadline.
const DefaultTxTimeout = 30 * time.Second

// Querier is the slice of pgxpool.Pool the store needs. Tests swap in a
// fake; production hands over the real pool unchanged.
type Querier interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store executes all reads and writes against a single Querier.
type Store struct {
	db        Querier
	txTimeout time.Duration
	log       *logrus.Entry
}

// NewStore wraps db. Calls without a context deadline are bounded by
// DefaultTxTimeout.
func NewStore(db Querier) *Store {
	return &Store{
		db:        db,
		txTimeout: DefaultTxTimeout,
		log:       logrus.WithField("component", "store"),
	}
}

// Connect builds a pgx pool with the given size and verifies connectivity
// before returning it.
func Connect(ctx context.Context, dsn string, poolSize int32) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if poolSize > 0 {
		cfg.MaxConns = poolSize
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return pool, nil
}

// bound adds the default timeout when the caller didn't set a deadline.
func (s *Store) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); !ok && s.txTimeout > 0 {
		return context.WithTimeout(ctx, s.txTimeout)
	}
	return ctx, func() {}
}
