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

// Package tracker follows the completion markers of a dataset that is still
// being written and reports how many of its records are usable.
//
// A Tracker combines one or more marker sequences. A record is complete once
// every sequence has a nonzero marker for it. The tracker keeps a watermark,
// the highest record index that is resolved, and the set of records under the
// watermark that will never complete because the producer moved past them.
package tracker

import (
	"context"
	"slices"
	"time"

	"gonum.org/v1/gonum/floats"

	"go.chromium.org/luci/common/clock"
	"go.chromium.org/luci/common/errors"
	"go.chromium.org/luci/common/logging"
	"go.chromium.org/luci/common/tsmon/field"
	"go.chromium.org/luci/common/tsmon/metric"

	"go.chromium.org/livescan/markers"
)

// DefaultTimeout is the default Options.Timeout value.
const DefaultTimeout = 10 * time.Second

// ErrMixedStores is returned by New when the marker sequences are not all
// read from the same backing store.
var ErrMixedStores = errors.New("marker sequences read from different stores")

var (
	watermarkGauge = metric.NewInt(
		"livescan/tracker/watermark",
		"Highest resolved record index of a followed stream",
		nil,
		field.String("stream"),
	)

	skippedGauge = metric.NewInt(
		"livescan/tracker/skipped",
		"Number of records of a followed stream that will never complete",
		nil,
		field.String("stream"),
	)
)

// Options is the set of configuration parameters for a Tracker.
type Options struct {
	// Name labels the followed stream in logs and metrics.
	Name string

	// Sequences are the marker sequences that must all agree a record is
	// complete. At least one is required.
	Sequences []markers.Sequence

	// Timeout is how long the tracker waits for forward progress before it
	// finalizes a trailing run of zero markers as skipped.
	//
	// If zero, DefaultTimeout is used.
	Timeout time.Duration
}

// Tracker follows a set of marker sequences.
//
// Refresh is the only mutator. A Tracker is not goroutine-safe.
type Tracker struct {
	opts Options

	// currentMax is the watermark, -1 before anything is resolved.
	currentMax int
	// skipped holds indices <= currentMax that will never complete.
	skipped map[int]struct{}
	// capacity is the combined declared capacity as of the last Refresh.
	capacity int
	// lastProgress is when forward progress was last observed.
	lastProgress time.Time
}

// New returns a Tracker over the supplied sequences.
//
// Nothing is read until the first Refresh.
func New(ctx context.Context, o Options) (*Tracker, error) {
	if len(o.Sequences) == 0 {
		return nil, errors.New("at least one marker sequence is required")
	}
	for i, s := range o.Sequences {
		if s == nil {
			return nil, errors.Fmt("marker sequence #%d is nil", i)
		}
		if st, first := s.Store(), o.Sequences[0].Store(); st != first {
			return nil, errors.Fmt("marker sequence #%d is in %q, not %q: %w", i, st, first, ErrMixedStores)
		}
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	return &Tracker{
		opts:         o,
		currentMax:   -1,
		skipped:      map[int]struct{}{},
		lastProgress: clock.Now(ctx),
	}, nil
}

// Refresh re-reads every marker sequence and advances the watermark.
//
// It returns true if the watermark moved.
func (t *Tracker) Refresh(ctx context.Context) (bool, error) {
	for i, s := range t.opts.Sequences {
		if err := s.Refresh(ctx); err != nil {
			return false, errors.Fmt("refreshing marker sequence #%d: %w", i, err)
		}
	}

	merged := t.merge()
	t.capacity = len(merged)

	prevSkipped := len(t.skipped)
	advanced := t.advance(ctx, merged)

	if n := len(t.skipped) - prevSkipped; n > 0 {
		logging.Fields{
			"stream":  t.opts.Name,
			"skipped": len(t.skipped),
		}.Warningf(ctx, "%d more record(s) will never complete.", n)
	}
	if advanced {
		logging.Fields{
			"stream":    t.opts.Name,
			"watermark": t.currentMax,
			"capacity":  t.capacity,
		}.Debugf(ctx, "Watermark advanced.")
	}

	watermarkGauge.Set(ctx, int64(t.currentMax), t.opts.Name)
	skippedGauge.Set(ctx, int64(len(t.skipped)), t.opts.Name)
	return advanced, nil
}

// merge combines every sequence into one completion vector.
//
// With several sequences each is zero padded to the largest capacity, and
// the vectors are multiplied elementwise: a record is complete only if all
// markers are nonzero.
func (t *Tracker) merge() []float64 {
	seqs := t.opts.Sequences
	if len(seqs) == 1 {
		return seqs[0].Markers()
	}

	size := 0
	for _, s := range seqs {
		size = max(size, s.Capacity())
	}
	merged := make([]float64, size)
	copy(merged, seqs[0].Markers())

	padded := make([]float64, size)
	for _, s := range seqs[1:] {
		clear(padded)
		copy(padded, s.Markers())
		floats.Mul(merged, padded)
	}
	return merged
}

func (t *Tracker) advance(ctx context.Context, merged []float64) bool {
	start := t.currentMax + 1
	if start >= len(merged) {
		// Declared capacity is exhausted; nothing can move this round.
		return false
	}
	remaining := merged[start:]

	var block []float64
	if k := lastNonzero(remaining); k >= 0 {
		// Zeros before k are skipped: later records already completed.
		block = remaining[:k+1]
		t.lastProgress = clock.Now(ctx)
	} else if elapsed := clock.Since(ctx, t.lastProgress); elapsed > t.opts.Timeout {
		logging.Fields{
			"stream":  t.opts.Name,
			"elapsed": elapsed,
			"pending": len(remaining),
		}.Warningf(ctx, "No progress within timeout; finalizing pending records as skipped.")
		block = remaining
	}

	for i, v := range block {
		if v == 0 {
			t.skipped[start+i] = struct{}{}
		}
	}

	newMax := t.currentMax + len(block)
	if newMax < 0 && len(merged) > 0 && merged[0] != 0 {
		newMax = len(merged) - 1
	}
	if newMax == t.currentMax {
		return false
	}
	t.currentMax = newMax
	return true
}

func lastNonzero(v []float64) int {
	for i := len(v) - 1; i >= 0; i-- {
		if v[i] != 0 {
			return i
		}
	}
	return -1
}

// Watermark returns the highest resolved record index, or -1.
func (t *Tracker) Watermark() int { return t.currentMax }

// Capacity returns the combined declared capacity as of the last Refresh.
func (t *Tracker) Capacity() int { return t.capacity }

// Skipped returns the sorted indices of records that will never complete.
func (t *Tracker) Skipped() []int {
	out := make([]int, 0, len(t.skipped))
	for i := range t.skipped {
		out = append(out, i)
	}
	slices.Sort(out)
	return out
}

// AvailableCount returns the number of usable records at or below the
// watermark.
func (t *Tracker) AvailableCount() int {
	return t.currentMax + 1 - len(t.skipped)
}

// MaxPossible returns the number of records available once every pending
// marker resolves, given the current capacity.
func (t *Tracker) MaxPossible() int {
	return t.capacity - len(t.skipped)
}

// AllFramesMade reports whether the watermark covers the whole declared
// capacity.
func (t *Tracker) AllFramesMade() bool {
	return t.capacity == t.currentMax+1
}

// FrameFilter returns a mask over the declared capacity that is false for
// skipped records, optionally reshaped to shape.
func (t *Tracker) FrameFilter(shape ...int) (*Mask, error) {
	return NewMask(t.capacity, t.Skipped(), shape...)
}
