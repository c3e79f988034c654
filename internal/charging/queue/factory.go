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

package queue

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"evtel/internal/charging/core"
)

// Build constructs the queue for one stream under the named adapter.
//
//   - "redis":  durable Redis Streams queue; client must be non-nil. One
//     shared client serves both stream queues.
//   - "memory": process-local queue for demos and tests; loses its backlog
//     on exit, so crash-safety claims do not apply.
func Build(ctx context.Context, adapter string, client *redis.Client, stream string) (core.Queue, error) {
	switch adapter {
	case "redis":
		if client == nil {
			return nil, fmt.Errorf("redis queue adapter requires a client")
		}
		return NewRedisQueue(ctx, client, stream)
	case "memory":
		return NewMemoryQueue(stream), nil
	default:
		return nil, fmt.Errorf("unknown queue adapter %q (want redis|memory)", adapter)
	}
}
