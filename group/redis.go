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

package group

import (
	"context"
	"fmt"
	"time"

	"github.com/gomodule/redigo/redis"

	"go.chromium.org/luci/common/clock"
	"go.chromium.org/luci/common/errors"
	"go.chromium.org/luci/common/logging"
)

const (
	// DefaultTTL is the default RedisOptions.TTL value.
	DefaultTTL = time.Hour

	// DefaultPollInterval is the default RedisOptions.PollInterval value.
	DefaultPollInterval = 50 * time.Millisecond
)

// RedisOptions is the set of configuration parameters for a Redis group
// member.
type RedisOptions struct {
	// Pool provides connections to the Redis server shared by the group.
	Pool *redis.Pool

	// Namespace prefixes every key used by the group. It must be unique to one
	// scan session: members of different sessions sharing a namespace would
	// consume each other's broadcasts.
	Namespace string

	// Rank is this member's rank and Size the number of members.
	Rank int
	Size int

	// TTL is the expiration of barrier and broadcast keys.
	//
	// If zero, DefaultTTL is used.
	TTL time.Duration

	// PollInterval is how often a member waiting on a barrier checks whether
	// the rest of the group arrived.
	//
	// If zero, DefaultPollInterval is used.
	PollInterval time.Duration
}

// Redis is a group member that synchronizes with its peers through a Redis
// server. It suits members running as separate processes or hosts.
//
// A Redis member is not goroutine-safe.
type Redis struct {
	o RedisOptions

	barriers   uint64
	broadcasts uint64
}

var _ Group = (*Redis)(nil)

// NewRedis returns a Redis-backed group member.
func NewRedis(o RedisOptions) (*Redis, error) {
	switch {
	case o.Pool == nil:
		return nil, errors.New("a Redis pool is required")
	case o.Namespace == "":
		return nil, errors.New("a namespace is required")
	case o.Size < 1:
		return nil, errors.Fmt("group size must be positive, got %d", o.Size)
	case o.Rank < 0 || o.Rank >= o.Size:
		return nil, errors.Fmt("rank %d is outside of a group of %d", o.Rank, o.Size)
	}
	if o.TTL <= 0 {
		o.TTL = DefaultTTL
	}
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	return &Redis{o: o}, nil
}

// Rank implements Group.
func (r *Redis) Rank() int { return r.o.Rank }

// Size implements Group.
func (r *Redis) Size() int { return r.o.Size }

func (r *Redis) key(kind string, n uint64) string {
	return fmt.Sprintf("%s:%s:%d", r.o.Namespace, kind, n)
}

func (r *Redis) ttlSeconds() int64 {
	return max(1, int64(r.o.TTL/time.Second))
}

// Barrier implements Group.
//
// Every member increments a per-barrier counter, then waits for it to reach
// the group size.
func (r *Redis) Barrier(ctx context.Context) error {
	r.barriers++
	key := r.key("barrier", r.barriers)

	conn, err := r.o.Pool.GetContext(ctx)
	if err != nil {
		return errors.Fmt("barrier: connecting: %w", err)
	}
	defer conn.Close()

	if err := conn.Send("INCR", key); err != nil {
		return errors.Fmt("barrier: %w", err)
	}
	if _, err := conn.Do("EXPIRE", key, r.ttlSeconds()); err != nil {
		return errors.Fmt("barrier: %w", err)
	}

	for {
		arrived, err := redis.Int(conn.Do("GET", key))
		if err != nil {
			return errors.Fmt("barrier: reading %q: %w", key, err)
		}
		if arrived >= r.o.Size {
			return nil
		}
		if res := clock.Sleep(ctx, r.o.PollInterval); res.Err != nil {
			return errors.Fmt("barrier: waiting on %d/%d members: %w", arrived, r.o.Size, res.Err)
		}
	}
}

// Broadcast implements Group.
//
// The leader pushes one copy of the payload per follower onto a
// per-broadcast list; every follower pops one.
func (r *Redis) Broadcast(ctx context.Context, payload []byte) ([]byte, error) {
	r.broadcasts++
	key := r.key("bcast", r.broadcasts)

	conn, err := r.o.Pool.GetContext(ctx)
	if err != nil {
		return nil, errors.Fmt("broadcast: connecting: %w", err)
	}
	defer conn.Close()

	if r.o.Rank == LeaderRank {
		if r.o.Size == 1 {
			return payload, nil
		}
		args := redis.Args{key}
		for i := 1; i < r.o.Size; i++ {
			args = args.Add(payload)
		}
		if err := conn.Send("RPUSH", args...); err != nil {
			return nil, errors.Fmt("broadcast: %w", err)
		}
		if _, err := conn.Do("EXPIRE", key, r.ttlSeconds()); err != nil {
			return nil, errors.Fmt("broadcast: %w", err)
		}
		return payload, nil
	}

	for {
		reply, err := redis.ByteSlices(conn.Do("BLPOP", key, 1))
		switch {
		case err == redis.ErrNil:
			if err := ctx.Err(); err != nil {
				return nil, errors.Fmt("broadcast: waiting for the leader: %w", err)
			}
			logging.Debugf(ctx, "Still waiting for broadcast %d from the leader.", r.broadcasts)
		case err != nil:
			return nil, errors.Fmt("broadcast: popping %q: %w", key, err)
		case len(reply) != 2:
			return nil, errors.Fmt("broadcast: unexpected BLPOP reply of %d elements", len(reply))
		default:
			return reply[1], nil
		}
	}
}
