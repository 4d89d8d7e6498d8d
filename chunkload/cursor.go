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
	"fmt"
)

// Cursor is the position of a group of consumers in a scan.
//
// Every member of the group holds its own copy. Copies only change through
// Coordinator.Begin and Coordinator.Poll, which leave them identical on every
// member.
type Cursor struct {
	// FrameStart is the next record to load. It only moves forward.
	FrameStart int
	// DeclaredTotal is the expected final number of records, <0 if unknown. It
	// shrinks when the source learns it can not produce that many.
	DeclaredTotal int
	// EndOfScan turns true once no more records will appear, and stays true.
	EndOfScan bool
	// Checkpoints are ascending record counts at which loading pauses for one
	// poll.
	Checkpoints []int
	// CheckpointReached is set by the poll that crossed a checkpoint and
	// cleared by the next one.
	CheckpointReached bool

	// Capacity and Skipped mirror the leader's tracker so that every member can
	// build the same frame filter.
	Capacity int
	Skipped  []int

	// Finished is set once an EndOfScan decision has been returned.
	Finished bool
}

// Action is the outcome of a poll.
type Action int

const (
	// Wait means not enough records are available yet. The caller should back
	// off and poll again.
	Wait Action = iota
	// Load means the records of Decision's window are ready to be fetched.
	Load
	// EndOfScan means the scan is over and nothing is left to load.
	EndOfScan
)

func (a Action) String() string {
	switch a {
	case Wait:
		return "WAIT"
	case Load:
		return "LOAD"
	case EndOfScan:
		return "END_OF_SCAN"
	default:
		return fmt.Sprintf("Action(%d)", int(a))
	}
}

// Decision is the uniform result of a poll on every member.
type Decision struct {
	Action Action

	// Start and Count delimit the records to load. Count is 0 unless Action is
	// Load.
	Start int
	Count int

	// Checkpoint is set when a checkpoint forced this poll to yield no records,
	// leaving the consumer room for a processing burst.
	Checkpoint bool
}

func (d Decision) String() string {
	if d.Action == Load {
		return fmt.Sprintf("LOAD(%d, %d)", d.Start, d.Count)
	}
	return d.Action.String()
}
