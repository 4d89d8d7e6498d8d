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

package loader

import (
	"go.chromium.org/luci/common/errors"

	"go.chromium.org/livescan/chunkload"
	"go.chromium.org/livescan/tracker"
)

// Layout maps a window of usable records, as decided by the Coordinator, to
// the raw record indices to fetch.
//
// Usable records are numbered densely: skipped records take no slot. A
// window running past the end of the layout is truncated.
type Layout interface {
	Window(cur chunkload.Cursor, start, count int) ([]int, error)
}

// Sequential lays records out in storage order. The n-th usable record is the
// n-th record that was not skipped.
type Sequential struct{}

// Window implements Layout.
func (Sequential) Window(cur chunkload.Cursor, start, count int) ([]int, error) {
	if len(cur.Skipped) == 0 {
		// Nothing skipped: the cursor may not know the capacity (e.g. a total
		// given by configuration), so don't build a mask.
		return span(start, count), nil
	}
	m, err := tracker.NewMask(cur.Capacity, cur.Skipped)
	if err != nil {
		return nil, errors.Fmt("building frame filter: %w", err)
	}
	kept, err := tracker.Select(span(0, m.Len()), m.Flat())
	if err != nil {
		return nil, err
	}
	return window(kept, start, count), nil
}

// Mapped lays records out along an explicit list of positions, such as the
// points of a raster scan. Positions whose record was skipped are dropped
// before the window is taken.
type Mapped struct {
	// Positions holds the record index of each point, after subsampling.
	Positions []int

	// Shape, if set, is the grid the records were produced on (e.g. rows and
	// columns of a raster). Its product must be the stream capacity.
	Shape []int

	// Step keeps every Step-th point along each axis of Shape. Values below 2
	// keep everything.
	Step int
}

// Window implements Layout.
func (l *Mapped) Window(cur chunkload.Cursor, start, count int) ([]int, error) {
	m, err := tracker.NewMask(cur.Capacity, cur.Skipped, l.Shape...)
	if err != nil {
		return nil, errors.Fmt("building frame filter: %w", err)
	}
	keep := m.Flat()
	if l.Step > 1 {
		keep = m.Subsample(l.Step)
	}
	kept, err := tracker.Select(l.Positions, keep)
	if err != nil {
		return nil, errors.Fmt("filtering positions: %w", err)
	}
	return window(kept, start, count), nil
}

func span(start, count int) []int {
	out := make([]int, count)
	for i := range out {
		out[i] = start + i
	}
	return out
}

func window(items []int, start, count int) []int {
	if start >= len(items) {
		return []int{}
	}
	end := min(start+count, len(items))
	return append([]int(nil), items[start:end]...)
}
