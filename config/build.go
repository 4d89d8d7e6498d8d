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

package config

import (
	"context"
	"time"

	"github.com/gomodule/redigo/redis"

	"go.chromium.org/luci/common/errors"

	"go.chromium.org/livescan/chunkload"
	"go.chromium.org/livescan/group"
	"go.chromium.org/livescan/markers"
	"go.chromium.org/livescan/tracker"
)

// Pools hands out Redis connection pools by address.
//
// The zero value is ready to use. Pools is not goroutine-safe.
type Pools struct {
	pools map[string]*redis.Pool
}

// Get returns the pool for addr, creating it on first use.
func (p *Pools) Get(addr string) *redis.Pool {
	if pool, ok := p.pools[addr]; ok {
		return pool
	}
	pool := &redis.Pool{
		DialContext: func(ctx context.Context) (redis.Conn, error) {
			return redis.DialContext(ctx, "tcp", addr)
		},
		MaxIdle:     4,
		IdleTimeout: 5 * time.Minute,
	}
	if p.pools == nil {
		p.pools = map[string]*redis.Pool{}
	}
	p.pools[addr] = pool
	return pool
}

// Close closes every pool handed out.
func (p *Pools) Close() error {
	var errs errors.MultiError
	for _, pool := range p.pools {
		errs.MaybeAdd(pool.Close())
	}
	p.pools = nil
	return errs.AsError()
}

// Sequences returns a view over every marker sequence of the scan.
func (c *Config) Sequences(pools *Pools) []markers.Sequence {
	store := c.store()
	var out []markers.Sequence
	for _, s := range c.AllStreams() {
		switch store.scheme {
		case "file":
			out = append(out, markers.NewFile(store.loc, s.Key))
		case "redis":
			out = append(out, markers.NewRedis(pools.Get(store.loc), store.loc, s.Key))
		}
	}
	return out
}

// Lock makes this process the leader of the scan's store.
//
// File stores hold an exclusive lock file; a second leader gets an ErrInvalid
// error. Other stores need no lock. The returned function releases the lock.
func (c *Config) Lock() (unlock func() error, err error) {
	store := c.store()
	if store.scheme != "file" {
		return func() error { return nil }, nil
	}
	unlock, err = markers.LockStore(store.loc)
	if errors.Is(err, markers.ErrLeaderExists) {
		return nil, errors.Fmt("%w: %w", ErrInvalid, err)
	}
	return unlock, err
}

// Tracker returns a tracker over seqs using the configured timeout.
func (c *Config) Tracker(ctx context.Context, name string, seqs []markers.Sequence) (*tracker.Tracker, error) {
	return tracker.New(ctx, tracker.Options{
		Name:      name,
		Sequences: seqs,
		Timeout:   c.Timeout,
	})
}

// Groups returns the group members run by this process.
//
// A local group runs every member here; a Redis group runs the configured
// rank only.
func (c *Config) Groups(pools *Pools) ([]group.Group, error) {
	g := c.Group
	switch g.Backend {
	case BackendLocal:
		return group.NewLocal(g.Size), nil
	case BackendRedis:
		m, err := group.NewRedis(group.RedisOptions{
			Pool:      pools.Get(g.Addr),
			Namespace: g.Namespace,
			Rank:      g.Rank,
			Size:      g.Size,
		})
		if err != nil {
			return nil, errors.Fmt("%w: %w", ErrInvalid, err)
		}
		return []group.Group{m}, nil
	default:
		return []group.Group{group.Single{}}, nil
	}
}

// Coordinator returns the coordinator of member g. tr is only needed on the
// leader and must be an untyped nil elsewhere.
func (c *Config) Coordinator(name string, tr chunkload.Tracker, g group.Group) (*chunkload.Coordinator, error) {
	o := chunkload.Options{
		Name:        name,
		Tracker:     tr,
		Group:       g,
		Checkpoints: c.Checkpoints,
		MinChunk:    c.MinChunk,
		MaxFrames:   c.MaxFrames,
	}
	if c.Total > 0 {
		o.Total = c.Total
	}
	if store := c.store(); store.scheme == "file" {
		o.Finished = func(context.Context) bool { return markers.Done(store.loc) }
	}
	co, err := chunkload.New(o)
	if err != nil {
		return nil, errors.Fmt("%w: %w", ErrInvalid, err)
	}
	return co, nil
}
