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

// Package group implements collective synchronization for a fixed set of
// cooperating consumers.
//
// Every member of a group calls the same collective operations in the same
// order. Member 0 is the leader: it is the only member allowed to touch
// backing storage, and it is the source of every broadcast.
package group

import (
	"context"
)

// LeaderRank is the rank of the leading member of every group.
const LeaderRank = 0

// Group is one member's handle on a group of cooperating consumers.
//
// The methods are collective: every member must call them in the same order,
// and a call returns only once the rest of the group has made the matching
// call (or the context is done).
type Group interface {
	// Rank is this member's position in the group, in [0, Size).
	Rank() int

	// Size is the number of members.
	Size() int

	// Barrier blocks until every member has entered it.
	Barrier(ctx context.Context) error

	// Broadcast distributes the leader's payload to every member.
	//
	// On the leader payload is sent and returned unchanged. On the other members
	// payload is ignored and the leader's payload is returned.
	Broadcast(ctx context.Context, payload []byte) ([]byte, error)
}

// IsLeader reports whether g is the leading member of its group.
func IsLeader(g Group) bool {
	return g.Rank() == LeaderRank
}

// Single is the group of one: the member is its own leader, and collective
// operations return immediately.
type Single struct{}

var _ Group = Single{}

// Rank implements Group.
func (Single) Rank() int { return LeaderRank }

// Size implements Group.
func (Single) Size() int { return 1 }

// Barrier implements Group.
func (Single) Barrier(ctx context.Context) error { return ctx.Err() }

// Broadcast implements Group.
func (Single) Broadcast(ctx context.Context, payload []byte) ([]byte, error) {
	return payload, ctx.Err()
}
