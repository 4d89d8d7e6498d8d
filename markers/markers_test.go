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
	"os"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/gomodule/redigo/redis"

	"go.chromium.org/luci/common/testing/ftt"
	"go.chromium.org/luci/common/testing/truth/assert"
	"go.chromium.org/luci/common/testing/truth/should"
)

func TestMemory(t *testing.T) {
	t.Parallel()

	ftt.Run(`Memory`, t, func(t *ftt.Test) {
		ctx := context.Background()
		m := NewMemory("intensities", 4, 1, 1)

		t.Run(`nothing is visible before Refresh`, func(t *ftt.Test) {
			assert.Loosely(t, m.Capacity(), should.BeZero)
			assert.Loosely(t, m.Markers(), should.BeEmpty)
		})

		t.Run(`Refresh snapshots producer writes`, func(t *ftt.Test) {
			assert.Loosely(t, m.Refresh(ctx), should.BeNil)
			assert.Loosely(t, m.Markers(), should.Match([]float64{1, 1, 0, 0}))

			m.Set(2, 1)
			assert.Loosely(t, m.Markers(), should.Match([]float64{1, 1, 0, 0}))
			assert.Loosely(t, m.Refresh(ctx), should.BeNil)
			assert.Loosely(t, m.Markers(), should.Match([]float64{1, 1, 1, 0}))
		})

		t.Run(`writes past capacity grow it`, func(t *ftt.Test) {
			m.Set(5, 1)
			assert.Loosely(t, m.Refresh(ctx), should.BeNil)
			assert.Loosely(t, m.Capacity(), should.Equal(6))
			assert.Loosely(t, m.Markers(), should.Match([]float64{1, 1, 0, 0, 0, 1}))
		})

		t.Run(`Grow never shrinks`, func(t *ftt.Test) {
			m.Grow(8)
			m.Grow(2)
			assert.Loosely(t, m.Refresh(ctx), should.BeNil)
			assert.Loosely(t, m.Capacity(), should.Equal(8))
		})
	})
}

func TestFile(t *testing.T) {
	t.Parallel()

	ftt.Run(`File`, t, func(t *ftt.Test) {
		ctx := context.Background()
		dir := t.TempDir()
		seq := NewFile(dir, "fast")

		t.Run(`missing file reads as empty`, func(t *ftt.Test) {
			assert.Loosely(t, seq.Refresh(ctx), should.BeNil)
			assert.Loosely(t, seq.Capacity(), should.BeZero)
		})

		t.Run(`follows the producer`, func(t *ftt.Test) {
			w, err := CreateFile(dir, "fast", 3)
			assert.Loosely(t, err, should.BeNil)
			defer w.Close()

			assert.Loosely(t, seq.Refresh(ctx), should.BeNil)
			assert.Loosely(t, seq.Markers(), should.Match([]float64{0, 0, 0}))

			assert.Loosely(t, w.Mark(0, 1), should.BeNil)
			assert.Loosely(t, w.Mark(2, 7.5), should.BeNil)
			assert.Loosely(t, seq.Refresh(ctx), should.BeNil)
			assert.Loosely(t, seq.Markers(), should.Match([]float64{1, 0, 7.5}))

			assert.Loosely(t, w.Mark(4, 1), should.BeNil)
			assert.Loosely(t, seq.Refresh(ctx), should.BeNil)
			assert.Loosely(t, seq.Markers(), should.Match([]float64{1, 0, 7.5, 0, 1}))
		})

		t.Run(`partial trailing marker is ignored`, func(t *ftt.Test) {
			w, err := CreateFile(dir, "fast", 2)
			assert.Loosely(t, err, should.BeNil)
			assert.Loosely(t, w.Close(), should.BeNil)

			f, err := os.OpenFile(FilePath(dir, "fast"), os.O_APPEND|os.O_WRONLY, 0)
			assert.Loosely(t, err, should.BeNil)
			_, err = f.Write([]byte{1, 2, 3})
			assert.Loosely(t, err, should.BeNil)
			assert.Loosely(t, f.Close(), should.BeNil)

			assert.Loosely(t, seq.Refresh(ctx), should.BeNil)
			assert.Loosely(t, seq.Capacity(), should.Equal(2))
		})

		t.Run(`shrinking is an error`, func(t *ftt.Test) {
			w, err := CreateFile(dir, "fast", 4)
			assert.Loosely(t, err, should.BeNil)
			assert.Loosely(t, w.Close(), should.BeNil)
			assert.Loosely(t, seq.Refresh(ctx), should.BeNil)

			w, err = CreateFile(dir, "fast", 1)
			assert.Loosely(t, err, should.BeNil)
			assert.Loosely(t, w.Close(), should.BeNil)
			assert.Loosely(t, seq.Refresh(ctx), should.ErrLike("shrank"))
		})

		t.Run(`store identity`, func(t *ftt.Test) {
			assert.Loosely(t, seq.Store(), should.Equal(NewFile(dir+"/", "slow").Store()))
		})
	})
}

func TestLockStore(t *testing.T) {
	t.Parallel()

	ftt.Run(`LockStore`, t, func(t *ftt.Test) {
		dir := t.TempDir()

		unlock, err := LockStore(dir)
		assert.Loosely(t, err, should.BeNil)

		_, err = LockStore(dir)
		assert.Loosely(t, err, should.ErrLike(ErrLeaderExists))

		assert.Loosely(t, unlock(), should.BeNil)
		unlock, err = LockStore(dir)
		assert.Loosely(t, err, should.BeNil)
		assert.Loosely(t, unlock(), should.BeNil)
	})
}

func TestDone(t *testing.T) {
	t.Parallel()

	ftt.Run(`Done`, t, func(t *ftt.Test) {
		dir := t.TempDir()
		assert.Loosely(t, Done(dir), should.BeFalse)
		assert.Loosely(t, MarkDone(dir), should.BeNil)
		assert.Loosely(t, Done(dir), should.BeTrue)
		assert.Loosely(t, MarkDone(dir), should.BeNil)
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
		do := func(cmd string, args ...any) {
			conn := pool.Get()
			defer conn.Close()
			_, err := conn.Do(cmd, args...)
			assert.Loosely(t, err, should.BeNil)
		}

		seq := NewRedis(pool, s.Addr(), "scan:slow")

		t.Run(`missing key reads as empty`, func(t *ftt.Test) {
			assert.Loosely(t, seq.Refresh(ctx), should.BeNil)
			assert.Loosely(t, seq.Capacity(), should.BeZero)
		})

		t.Run(`follows the producer`, func(t *ftt.Test) {
			do("RPUSH", "scan:slow", 0, 0, 0)
			assert.Loosely(t, seq.Refresh(ctx), should.BeNil)
			assert.Loosely(t, seq.Markers(), should.Match([]float64{0, 0, 0}))

			do("LSET", "scan:slow", 1, 2.5)
			do("RPUSH", "scan:slow", 1)
			assert.Loosely(t, seq.Refresh(ctx), should.BeNil)
			assert.Loosely(t, seq.Markers(), should.Match([]float64{0, 2.5, 0, 1}))
		})

		t.Run(`store identity`, func(t *ftt.Test) {
			assert.Loosely(t, seq.Store(), should.Equal("redis://"+s.Addr()))
		})
	})
}
