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
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gomodule/redigo/redis"
	"golang.org/x/sync/errgroup"

	"go.chromium.org/luci/common/testing/ftt"
	"go.chromium.org/luci/common/testing/truth/assert"
	"go.chromium.org/luci/common/testing/truth/should"
)

// exercise runs rounds of barrier + broadcast on every member concurrently
// and returns what each member received, indexed by rank then round.
func exercise(ctx context.Context, members []Group, rounds int) ([][]string, error) {
	got := make([][]string, len(members))
	eg, ctx := errgroup.WithContext(ctx)
	for _, m := range members {
		eg.Go(func() error {
			for i := 0; i < rounds; i++ {
				if err := m.Barrier(ctx); err != nil {
					return err
				}
				var payload []byte
				if IsLeader(m) {
					payload = []byte(fmt.Sprintf("round %d", i))
				}
				p, err := m.Broadcast(ctx, payload)
				if err != nil {
					return err
				}
				got[m.Rank()] = append(got[m.Rank()], string(p))
			}
			return nil
		})
	}
	return got, eg.Wait()
}

func expected(members, rounds int) [][]string {
	out := make([][]string, members)
	for r := range out {
		for i := 0; i < rounds; i++ {
			out[r] = append(out[r], fmt.Sprintf("round %d", i))
		}
	}
	return out
}

func TestSingle(t *testing.T) {
	t.Parallel()

	ftt.Run(`Single`, t, func(t *ftt.Test) {
		got, err := exercise(context.Background(), []Group{Single{}}, 3)
		assert.Loosely(t, err, should.BeNil)
		assert.Loosely(t, got, should.Match(expected(1, 3)))
	})
}

func TestLocal(t *testing.T) {
	t.Parallel()

	ftt.Run(`Local`, t, func(t *ftt.Test) {
		ctx := context.Background()

		t.Run(`every member sees every broadcast`, func(t *ftt.Test) {
			members := NewLocal(4)
			for r, m := range members {
				assert.Loosely(t, m.Rank(), should.Equal(r))
				assert.Loosely(t, m.Size(), should.Equal(4))
			}
			got, err := exercise(ctx, members, 20)
			assert.Loosely(t, err, should.BeNil)
			assert.Loosely(t, got, should.Match(expected(4, 20)))
		})

		t.Run(`barrier holds members until everyone arrives`, func(t *ftt.Test) {
			members := NewLocal(2)

			var mu sync.Mutex
			var order []string
			note := func(s string) {
				mu.Lock()
				defer mu.Unlock()
				order = append(order, s)
			}

			done := make(chan error)
			go func() {
				err := members[1].Barrier(ctx)
				note("follower released")
				done <- err
			}()
			time.Sleep(10 * time.Millisecond)
			note("leader arrives")
			assert.Loosely(t, members[0].Barrier(ctx), should.BeNil)
			assert.Loosely(t, <-done, should.BeNil)
			assert.Loosely(t, order, should.Match([]string{"leader arrives", "follower released"}))
		})

		t.Run(`abandoned calls return the context error`, func(t *ftt.Test) {
			members := NewLocal(2)
			cctx, cancel := context.WithCancel(ctx)
			cancel()

			assert.Loosely(t, members[1].Barrier(cctx), should.ErrLike(context.Canceled))
			_, err := members[1].Broadcast(cctx, nil)
			assert.Loosely(t, err, should.ErrLike(context.Canceled))
		})

		t.Run(`rejects empty groups`, func(t *ftt.Test) {
			assert.Loosely(t, func() { NewLocal(0) }, should.PanicLikeString("must be positive"))
		})
	})
}

func TestRedis(t *testing.T) {
	t.Parallel()

	ftt.Run(`Redis`, t, func(t *ftt.Test) {
		ctx := context.Background()
		s, err := miniredis.Run()
		assert.Loosely(t, err, should.BeNil)
		defer s.Close()

		pool := &redis.Pool{
			Dial: func() (redis.Conn, error) {
				return redis.Dial("tcp", s.Addr())
			},
		}
		defer pool.Close()

		newGroup := func(size int) []Group {
			members := make([]Group, size)
			for r := range members {
				m, err := NewRedis(RedisOptions{
					Pool:         pool,
					Namespace:    "scan42",
					Rank:         r,
					Size:         size,
					PollInterval: time.Millisecond,
				})
				assert.Loosely(t, err, should.BeNil)
				members[r] = m
			}
			return members
		}

		t.Run(`validates options`, func(t *ftt.Test) {
			_, err := NewRedis(RedisOptions{Namespace: "x", Size: 1})
			assert.Loosely(t, err, should.ErrLike("pool is required"))
			_, err = NewRedis(RedisOptions{Pool: pool, Size: 1})
			assert.Loosely(t, err, should.ErrLike("namespace is required"))
			_, err = NewRedis(RedisOptions{Pool: pool, Namespace: "x", Size: 2, Rank: 2})
			assert.Loosely(t, err, should.ErrLike("outside of a group of 2"))
		})

		t.Run(`every member sees every broadcast`, func(t *ftt.Test) {
			got, err := exercise(ctx, newGroup(3), 5)
			assert.Loosely(t, err, should.BeNil)
			assert.Loosely(t, got, should.Match(expected(3, 5)))
		})

		t.Run(`keys expire`, func(t *ftt.Test) {
			_, err := exercise(ctx, newGroup(2), 1)
			assert.Loosely(t, err, should.BeNil)
			assert.Loosely(t, s.TTL("scan42:barrier:1"), should.Equal(DefaultTTL))
			s.FastForward(DefaultTTL + time.Second)
			assert.Loosely(t, s.Exists("scan42:barrier:1"), should.BeFalse)
		})

		t.Run(`single member group`, func(t *ftt.Test) {
			got, err := exercise(ctx, newGroup(1), 2)
			assert.Loosely(t, err, should.BeNil)
			assert.Loosely(t, got, should.Match(expected(1, 2)))
		})
	})
}
