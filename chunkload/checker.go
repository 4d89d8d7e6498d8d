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

package chunkload

import (
	"context"
)

// Tracker reports how much of a source is usable. *tracker.Tracker follows a
// live source; tracker.Static describes one that is already complete.
type Tracker interface {
	// Refresh re-reads the backing storage. It is called on the leader only.
	Refresh(ctx context.Context) (bool, error)

	// AvailableCount is the number of usable records right now.
	AvailableCount() int
	// MaxPossible is the number of records once every pending one resolves.
	MaxPossible() int
	// Capacity is the declared number of record slots, 0 if the producer has
	// not allocated any yet.
	Capacity() int
	// Skipped lists, in ascending order, records that will never complete.
	Skipped() []int
}

// Verdict is what a check knows about the end of the scan.
type Verdict int

const (
	// Unknown means the check can not tell whether more records will appear.
	Unknown Verdict = iota
	// Ended means no more records can ever appear.
	Ended
)

// Checker answers how many records past a start offset can be fetched.
//
// It only reads the tracker: refreshing it is the caller's job, so that the
// storage cost is paid once per poll however many checks run.
type Checker struct {
	Tracker Tracker

	// Finished, if set, reports a definitive end marker written by the
	// producer.
	Finished func(ctx context.Context) bool
}

// Check returns the number of records in [start, start+requested) that can be
// fetched, and whether the scan is known to have ended.
//
// declaredTotal caps the number of records; <0 means no cap.
func (c *Checker) Check(ctx context.Context, requested, start, declaredTotal int) (frames int, eos Verdict) {
	available := c.Tracker.AvailableCount()
	if declaredTotal >= 0 {
		available = min(available, declaredTotal)
	}
	frames = max(0, min(requested, available-start))

	// A source that has not allocated anything yet can not be finished.
	if c.Tracker.Capacity() > 0 && available >= c.Tracker.MaxPossible() {
		eos = Ended
	}
	if c.Finished != nil && c.Finished(ctx) {
		eos = Ended
	}
	return frames, eos
}
