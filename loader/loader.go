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

// Package loader pulls the records of a still-growing scan in chunks, as they
// become available.
package loader

import (
	"context"
	"io"
	"time"

	"go.chromium.org/luci/common/clock"
	"go.chromium.org/luci/common/errors"
	"go.chromium.org/luci/common/logging"

	"go.chromium.org/livescan/chunkload"
)

// DefaultDelay is the default Delay value.
const DefaultDelay = time.Second

// Fetcher reads records from the producer's storage.
//
// The Fetcher is responsible for handling retries of transient errors. An
// error from the Fetcher stops the Loader.
type Fetcher[R any] interface {
	// Fetch returns one record per index, in order.
	Fetch(ctx context.Context, indices []int) ([]R, error)
}

// FetcherFunc adapts a function to a Fetcher.
type FetcherFunc[R any] func(ctx context.Context, indices []int) ([]R, error)

// Fetch implements Fetcher.
func (f FetcherFunc[R]) Fetch(ctx context.Context, indices []int) ([]R, error) {
	return f(ctx, indices)
}

// Options is the set of configuration parameters for a Loader.
type Options[R any] struct {
	// Coordinator decides the chunks. Required.
	Coordinator *chunkload.Coordinator

	// Fetcher reads the records. Required.
	Fetcher Fetcher[R]

	// Layout maps usable records to raw indices. If nil, Sequential is used.
	Layout Layout

	// ChunkSize is the number of records requested per poll. Required.
	ChunkSize int

	// Shard, if true, makes each member of the group fetch only its share of a
	// chunk: the indices whose position in the chunk equals the member's rank
	// modulo the group size.
	Shard bool

	// Delay is the amount of time to wait in between polls that yielded no
	// records.
	//
	// If zero, DefaultDelay is used.
	Delay time.Duration
}

// Chunk is a window of records returned by a Loader.
type Chunk[R any] struct {
	// Start and Count delimit the window in the usable record space. They are
	// the same on every member.
	Start int
	Count int

	// Indices are the raw record indices fetched by this member, and Records
	// the matching records.
	Indices []int
	Records []R

	// Checkpoint is set on the empty chunk that follows a checkpoint.
	Checkpoint bool
}

// Loader returns the chunks of a scan, one at a time.
//
// Every member of the coordinator's group must drive its own Loader with the
// same options, in lockstep. A Loader is not goroutine-safe.
type Loader[R any] struct {
	o Options[R]

	cur     chunkload.Cursor
	started bool
}

// New instantiates a new Loader.
func New[R any](o Options[R]) (*Loader[R], error) {
	switch {
	case o.Coordinator == nil:
		return nil, errors.New("a coordinator is required")
	case o.Fetcher == nil:
		return nil, errors.New("a fetcher is required")
	case o.ChunkSize < 1:
		return nil, errors.Fmt("chunk size must be positive, got %d", o.ChunkSize)
	}
	if o.Layout == nil {
		o.Layout = Sequential{}
	}
	if o.Delay <= 0 {
		o.Delay = DefaultDelay
	}
	return &Loader[R]{o: o}, nil
}

// Cursor returns the current scan position.
func (l *Loader[R]) Cursor() chunkload.Cursor { return l.cur }

// Next blocks until the next chunk is available and returns it.
//
// At the end of the scan, Next returns io.EOF. If ctx is cancelled while
// waiting for records, its error is returned.
func (l *Loader[R]) Next(ctx context.Context) (*Chunk[R], error) {
	if !l.started {
		cur, err := l.o.Coordinator.Begin(ctx)
		if err != nil {
			return nil, errors.Fmt("starting scan: %w", err)
		}
		l.cur, l.started = cur, true
	}

	for {
		d, cur, err := l.o.Coordinator.Poll(ctx, l.cur, l.o.ChunkSize, nil)
		if err != nil {
			return nil, err
		}
		l.cur = cur

		switch d.Action {
		case chunkload.EndOfScan:
			return nil, io.EOF

		case chunkload.Load:
			return l.load(ctx, d)

		case chunkload.Wait:
			if d.Checkpoint {
				return &Chunk[R]{Start: d.Start, Checkpoint: true}, nil
			}
			logging.Debugf(ctx, "No records at #%d yet; sleeping for %s.", d.Start, l.o.Delay)
			if tr := clock.Sleep(ctx, l.o.Delay); tr.Err != nil {
				return nil, tr.Err
			}
		}
	}
}

func (l *Loader[R]) load(ctx context.Context, d chunkload.Decision) (*Chunk[R], error) {
	indices, err := l.o.Layout.Window(l.cur, d.Start, d.Count)
	if err != nil {
		return nil, err
	}
	if l.o.Shard {
		indices = share(indices, l.o.Coordinator.Group().Rank(), l.o.Coordinator.Group().Size())
	}

	var records []R
	if len(indices) > 0 {
		if records, err = l.o.Fetcher.Fetch(ctx, indices); err != nil {
			return nil, errors.Fmt("fetching %d record(s) at #%d: %w", len(indices), indices[0], err)
		}
		if len(records) != len(indices) {
			return nil, errors.Fmt("fetcher returned %d record(s) for %d indices", len(records), len(indices))
		}
	}
	return &Chunk[R]{
		Start:   d.Start,
		Count:   d.Count,
		Indices: indices,
		Records: records,
	}, nil
}

// Run calls cb with every chunk until the end of the scan.
func (l *Loader[R]) Run(ctx context.Context, cb func(*Chunk[R]) error) error {
	for {
		c, err := l.Next(ctx)
		switch {
		case err == io.EOF:
			return nil
		case err != nil:
			return err
		}
		if err := cb(c); err != nil {
			return err
		}
	}
}

func share(indices []int, rank, size int) []int {
	out := make([]int, 0, len(indices)/size+1)
	for i := rank; i < len(indices); i += size {
		out = append(out, indices[i])
	}
	return out
}
