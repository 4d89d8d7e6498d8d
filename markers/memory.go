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
	"sync"
)

// Memory is an in-process marker sequence.
//
// The producer side (Set, Grow) is goroutine-safe and may run concurrently
// with the reader. The reader only observes producer writes after Refresh.
type Memory struct {
	name string

	mu       sync.Mutex
	pending  []float64
	capacity int

	// Snapshot as of the last Refresh.
	markers []float64
}

var _ Sequence = (*Memory)(nil)

// NewMemory returns an in-memory sequence with the given capacity and initial
// marker values. Values beyond capacity are ignored.
func NewMemory(name string, capacity int, values ...float64) *Memory {
	m := &Memory{
		name:     name,
		capacity: capacity,
		pending:  make([]float64, capacity),
	}
	copy(m.pending, values)
	return m
}

// Set writes marker values starting at index i, growing the capacity if the
// write extends past it.
func (m *Memory) Set(i int, values ...float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if end := i + len(values); end > m.capacity {
		m.capacity = end
		m.pending = pad(m.pending, end)
	}
	copy(m.pending[i:], values)
}

// Grow raises the declared capacity to n. It never shrinks the sequence.
func (m *Memory) Grow(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n > m.capacity {
		m.capacity = n
		m.pending = pad(m.pending, n)
	}
}

// Refresh implements Sequence.
func (m *Memory) Refresh(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.markers = append(m.markers[:0], m.pending...)
	return nil
}

// Markers implements Sequence.
func (m *Memory) Markers() []float64 { return m.markers }

// Capacity implements Sequence.
func (m *Memory) Capacity() int { return len(m.markers) }

// Store implements Sequence.
func (m *Memory) Store() string { return "memory:" }

// Name returns the name the sequence was created with.
func (m *Memory) Name() string { return m.name }
