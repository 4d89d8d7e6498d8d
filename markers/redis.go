// Copyright 2026 The LUCI Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package markers

import (
	"context"

	"github.com/gomodule/redigo/redis"

	"go.chromium.org/luci/common/errors"
	"go.chromium.org/luci/common/retry"
	"go.chromium.org/luci/common/retry/transient"
)

// Redis is a marker sequence stored as a Redis list of numbers.
//
// The producer preallocates the list with RPUSH of zeros and fills it with LSET
// as records complete. The list length is the declared capacity.
type Redis struct {
	pool *redis.Pool
	addr string
	key  string

	markers []float64
}

var _ Sequence = (*Redis)(nil)

// NewRedis returns a view over the Redis list key. addr only identifies the
// store; connections come from pool.
func NewRedis(pool *redis.Pool, addr, key string) *Redis {
	return &Redis{pool: pool, addr: addr, key: key}
}

// Refresh implements Sequence.
//
// Connection failures are retried with the default backoff policy.
func (r *Redis) Refresh(ctx context.Context) error {
	var values []float64
	err := retry.Retry(ctx, transient.Only(retry.Default), func() error {
		var err error
		values, err = r.read(ctx)
		return err
	}, retry.LogCallback(ctx, "markers.Redis.Refresh"))
	if err != nil {
		return errors.Fmt("refreshing markers %q: %w", r.key, err)
	}
	if len(values) < len(r.markers) {
		return errors.Fmt("marker list %q shrank from %d to %d markers", r.key, len(r.markers), len(values))
	}
	r.markers = values
	return nil
}

func (r *Redis) read(ctx context.Context) ([]float64, error) {
	conn, err := r.pool.GetContext(ctx)
	if err != nil {
		return nil, transient.Tag.Apply(errors.Fmt("connecting: %w", err))
	}
	defer conn.Close()

	values, err := redis.Float64s(conn.Do("LRANGE", r.key, 0, -1))
	if err != nil {
		if _, ok := err.(redis.Error); !ok {
			err = transient.Tag.Apply(err)
		}
		return nil, err
	}
	return values, nil
}

// Markers implements Sequence.
func (r *Redis) Markers() []float64 { return r.markers }

// Capacity implements Sequence.
func (r *Redis) Capacity() int { return len(r.markers) }

// Store implements Sequence.
func (r *Redis) Store() string { return "redis://" + r.addr }
