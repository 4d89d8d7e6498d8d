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

// Package chunkload decides, for a group of cooperating consumers, which
// window of a still-growing dataset can be loaded next.
//
// Every member of the group runs the same Coordinator. On each poll the
// leader alone refreshes the tracker and checks availability, then the group
// meets at a barrier and the leader broadcasts its findings, so every member
// returns the same Decision.
package chunkload

import (
	"context"
	"slices"

	"go.chromium.org/luci/common/errors"
	"go.chromium.org/luci/common/logging"
	"go.chromium.org/luci/common/tsmon/field"
	"go.chromium.org/luci/common/tsmon/metric"

	"go.chromium.org/livescan/group"
)

var (
	// ErrIndeterminateEnd is returned by Poll on every member when neither the
	// source nor the configuration bounds the number of records.
	ErrIndeterminateEnd = errors.New("unable to determine the end of scan: total is unknown and the source can not tell")

	// ErrLeaderFailed is returned on followers when the leader failed a check.
	ErrLeaderFailed = errors.New("leader failed")
)

var pollCounter = metric.NewCounter(
	"livescan/chunkload/polls",
	"Number of polls by decision",
	nil,
	field.String("scan"),
	field.String("decision"), // WAIT | LOAD | END_OF_SCAN | error
)

// Options is the set of configuration parameters for a Coordinator.
type Options struct {
	// Name labels the scan in logs and metrics.
	Name string

	// Tracker tells how much of the source is usable. It is only used by the
	// leader and may be nil on other members.
	Tracker Tracker

	// Group is the set of cooperating consumers. If nil, group.Single is used.
	Group group.Group

	// Checkpoints are ascending record counts at which loading pauses for one
	// poll. The first should exceed the chunk size.
	Checkpoints []int

	// MinChunk is the smallest number of records worth loading, except at the
	// end of the scan or right after a checkpoint.
	//
	// If zero, 1 is used.
	MinChunk int

	// MaxFrames, if positive, caps the number of records loaded in total.
	MaxFrames int

	// Total, if positive, is the expected number of records in the scan.
	Total int

	// Finished, if set, reports a definitive end marker from the producer. It
	// is only called on the leader.
	Finished func(ctx context.Context) bool
}

// Coordinator runs the chunk-loading protocol for one member of a group.
//
// A Coordinator holds no scan position: that lives in the Cursor passed to and
// returned from every call.
type Coordinator struct {
	o       Options
	leader  bool
	checker Checker
}

// New returns a Coordinator for this member of o.Group.
func New(o Options) (*Coordinator, error) {
	if o.Group == nil {
		o.Group = group.Single{}
	}
	leader := group.IsLeader(o.Group)
	if leader && o.Tracker == nil {
		return nil, errors.New("the leader needs a tracker")
	}
	if !slices.IsSorted(o.Checkpoints) {
		return nil, errors.Fmt("checkpoints must be ascending, got %v", o.Checkpoints)
	}
	if o.MinChunk < 0 {
		return nil, errors.Fmt("negative minimum chunk %d", o.MinChunk)
	}
	if o.MinChunk == 0 {
		o.MinChunk = 1
	}
	o.Checkpoints = slices.Clone(o.Checkpoints)
	return &Coordinator{
		o:       o,
		leader:  leader,
		checker: Checker{Tracker: o.Tracker, Finished: o.Finished},
	}, nil
}

// Leader reports whether this member leads the group.
func (c *Coordinator) Leader() bool { return c.leader }

// Group returns the group this member belongs to.
func (c *Coordinator) Group() group.Group { return c.o.Group }

// Begin starts a scan and returns the initial cursor. It is a collective call.
//
// The leader reads the source once to bound the total number of records by
// MaxFrames, Total and what the source can produce.
func (c *Coordinator) Begin(ctx context.Context) (Cursor, error) {
	var f flags
	var leaderErr error
	if c.leader {
		leaderErr = c.begin(ctx, &f)
	}

	got, err := c.exchange(ctx, &f, leaderErr)
	if err != nil {
		return Cursor{}, err
	}

	cur := Cursor{
		DeclaredTotal: got.DeclaredTotal,
		Checkpoints:   slices.Clone(c.o.Checkpoints),
		Capacity:      got.Capacity,
		Skipped:       got.Skipped,
	}
	logging.Fields{
		"scan":     c.o.Name,
		"total":    cur.DeclaredTotal,
		"capacity": cur.Capacity,
	}.Infof(ctx, "Scan started.")
	return cur, nil
}

func (c *Coordinator) begin(ctx context.Context, f *flags) error {
	if _, err := c.o.Tracker.Refresh(ctx); err != nil {
		return errors.Fmt("refreshing tracker: %w", err)
	}
	total := -1
	bound := func(n int) {
		if total < 0 || n < total {
			total = n
		}
	}
	if c.o.MaxFrames > 0 {
		bound(c.o.MaxFrames)
	}
	if c.o.Total > 0 {
		bound(c.o.Total)
	}
	if c.o.Tracker.Capacity() > 0 {
		bound(c.o.Tracker.MaxPossible())
	}
	f.DeclaredTotal = total
	f.Capacity = c.o.Tracker.Capacity()
	f.Skipped = c.o.Tracker.Skipped()
	return nil
}

// Poll decides what the group does next. It is a collective call: every
// member must call it with the same chunkSize and start.
//
// start, if not nil, overrides cur.FrameStart as the first record of the
// window. The returned cursor replaces cur. A Wait decision is returned
// immediately: backing off before the next poll is up to the caller.
func (c *Coordinator) Poll(ctx context.Context, cur Cursor, chunkSize int, start *int) (Decision, Cursor, error) {
	if cur.Finished {
		return Decision{Action: EndOfScan, Start: cur.FrameStart}, cur, nil
	}
	if chunkSize < 1 {
		return Decision{}, cur, errors.Fmt("chunk size must be positive, got %d", chunkSize)
	}

	s := cur.FrameStart
	if start != nil {
		s = *start
	}

	var f flags
	var leaderErr error
	if c.leader {
		leaderErr = c.check(ctx, cur, chunkSize, s, &f)
	}

	got, err := c.exchange(ctx, &f, leaderErr)
	if err != nil {
		pollCounter.Add(ctx, 1, c.o.Name, "error")
		return Decision{}, cur, err
	}
	if got.Abort {
		pollCounter.Add(ctx, 1, c.o.Name, "error")
		logging.Errorf(ctx, "Number of records not specified and the source can not tell the end of scan. Aborting.")
		return Decision{}, cur, ErrIndeterminateEnd
	}

	yielding := cur.CheckpointReached
	cur.DeclaredTotal = got.DeclaredTotal
	cur.EndOfScan = cur.EndOfScan || got.EndOfScan
	cur.CheckpointReached = got.CheckpointReached
	cur.Capacity = got.Capacity
	cur.Skipped = got.Skipped

	var d Decision
	if yielding {
		// The scan may already be fully available, yet the records past the
		// checkpoint are still to be loaded.
		d = Decision{Action: Wait, Start: s, Checkpoint: true}
	} else {
		d = c.decide(cur, chunkSize, s, got.Frames)
	}
	switch d.Action {
	case Load:
		cur.FrameStart += d.Count
	case EndOfScan:
		cur.Finished = true
	}

	pollCounter.Add(ctx, 1, c.o.Name, d.Action.String())
	logging.Fields{
		"scan":       c.o.Name,
		"decision":   d.String(),
		"checkpoint": cur.CheckpointReached,
		"total":      cur.DeclaredTotal,
	}.Debugf(ctx, "Polled.")
	return d, cur, nil
}

// decide maps the broadcast outcome of a check to a Decision.
func (c *Coordinator) decide(cur Cursor, chunkSize, s, frames int) Decision {
	// The first chunk must be full size: it fixes the largest buffer
	// downstream consumers allocate.
	starved := frames < c.o.MinChunk && !cur.CheckpointReached
	switch {
	case !cur.EndOfScan && (starved || (s == 0 && frames < chunkSize)):
		return Decision{Action: Wait, Start: s}
	case cur.EndOfScan && frames <= 0:
		return Decision{Action: EndOfScan, Start: s}
	default:
		return Decision{Action: Load, Start: s, Count: frames}
	}
}

// check runs on the leader only. It reads storage and fills f.
func (c *Coordinator) check(ctx context.Context, cur Cursor, chunkSize, s int, f *flags) error {
	f.DeclaredTotal = cur.DeclaredTotal
	f.Capacity = cur.Capacity
	f.Skipped = cur.Skipped

	// The previous poll crossed a checkpoint: yield no records this time so the
	// consumer gets to process what it has.
	if cur.CheckpointReached {
		f.Frames = 0
		f.EndOfScan = cur.EndOfScan
		return nil
	}

	t := c.o.Tracker
	if _, err := t.Refresh(ctx); err != nil {
		return errors.Fmt("refreshing tracker: %w", err)
	}
	f.Capacity = t.Capacity()
	f.Skipped = t.Skipped()
	if f.Capacity > 0 {
		if mp := t.MaxPossible(); f.DeclaredTotal < 0 || mp < f.DeclaredTotal {
			f.DeclaredTotal = mp
		}
	}

	frames, eos := c.checker.Check(ctx, chunkSize, s, f.DeclaredTotal)
	f.Frames = frames

	for _, cp := range cur.Checkpoints {
		if cp > s && cp > chunkSize && s+frames >= cp {
			logging.Fields{
				"scan":       c.o.Name,
				"checkpoint": cp,
			}.Infof(ctx, "Checkpoint reached; the next poll yields.")
			f.CheckpointReached = true
			break
		}
	}

	if eos == Unknown && f.DeclaredTotal < 0 {
		f.Abort = true
		return nil
	}
	f.EndOfScan = cur.EndOfScan || eos == Ended || s+frames >= f.DeclaredTotal
	return nil
}

// exchange makes the leader's flags known to every member: barrier, then
// broadcast.
//
// leaderErr is the leader's local failure, if any. It is broadcast too, so
// that every member fails the call.
func (c *Coordinator) exchange(ctx context.Context, f *flags, leaderErr error) (*flags, error) {
	var payload []byte
	if c.leader {
		if leaderErr != nil {
			logging.WithError(leaderErr).Errorf(ctx, "Leader check failed.")
			*f = flags{Err: leaderErr.Error()}
		}
		var err error
		if payload, err = f.encode(); err != nil {
			return nil, err
		}
	}

	g := c.o.Group
	if err := g.Barrier(ctx); err != nil {
		return nil, errors.Fmt("waiting for the leader: %w", err)
	}
	b, err := g.Broadcast(ctx, payload)
	if err != nil {
		return nil, errors.Fmt("receiving the leader's decision: %w", err)
	}
	got, err := decodeFlags(b)
	if err != nil {
		return nil, err
	}

	switch {
	case leaderErr != nil:
		return nil, leaderErr
	case got.Err != "":
		return nil, errors.Fmt("%w: %s", ErrLeaderFailed, got.Err)
	}
	return got, nil
}
