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
)

// localGroup is the state shared by the members of an in-process group.
type localGroup struct {
	size int

	mu      sync.Mutex
	arrived int
	release chan struct{}

	// inbox[r-1] carries broadcasts to follower r. Each holds at most one
	// payload, so the leader can not run more than one broadcast ahead of the
	// slowest follower.
	inbox []chan []byte
}

type localMember struct {
	rank int
	g    *localGroup
}

// NewLocal returns the members of an in-process group of the given size,
// indexed by rank. Each member is meant to be driven by its own goroutine.
//
// A member whose collective call is abandoned through its context leaves the
// group unusable.
func NewLocal(size int) []Group {
	if size < 1 {
		panic(fmt.Sprintf("group size must be positive, got %d", size))
	}
	g := &localGroup{
		size:    size,
		release: make(chan struct{}),
		inbox:   make([]chan []byte, size-1),
	}
	for i := range g.inbox {
		g.inbox[i] = make(chan []byte, 1)
	}
	members := make([]Group, size)
	for r := range members {
		members[r] = &localMember{rank: r, g: g}
	}
	return members
}

// Rank implements Group.
func (m *localMember) Rank() int { return m.rank }

// Size implements Group.
func (m *localMember) Size() int { return m.g.size }

// Barrier implements Group.
func (m *localMember) Barrier(ctx context.Context) error {
	g := m.g
	g.mu.Lock()
	g.arrived++
	if g.arrived == g.size {
		close(g.release)
		g.release = make(chan struct{})
		g.arrived = 0
		g.mu.Unlock()
		return nil
	}
	release := g.release
	g.mu.Unlock()

	select {
	case <-release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Broadcast implements Group.
func (m *localMember) Broadcast(ctx context.Context, payload []byte) ([]byte, error) {
	if m.rank != LeaderRank {
		select {
		case p := <-m.g.inbox[m.rank-1]:
			return p, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	for _, ch := range m.g.inbox {
		select {
		case ch <- append([]byte(nil), payload...):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return payload, nil
}
