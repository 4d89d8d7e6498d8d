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

// Package markers provides read-only views over completion marker sequences
// written by an external producer.
//
// A marker sequence is index-aligned with the records of a dataset. A record
// is done once its marker is nonzero. The producer only ever fills a sequence
// forward and may grow its capacity, but never shrinks it.
package markers

import (
	"context"
)

// Sequence is a refreshable view over a producer-owned marker sequence.
//
// A Sequence is not goroutine-safe. It is expected to be read by a single
// process (the leader of a consumer group).
type Sequence interface {
	// Refresh re-reads the current content and capacity from the backing
	// store.
	Refresh(ctx context.Context) error

	// Markers returns the markers as of the last Refresh. The returned slice
	// has exactly Capacity() elements and must not be modified.
	Markers() []float64

	// Capacity returns the declared (allocated) length of the sequence as of
	// the last Refresh.
	Capacity() int

	// Store identifies the backing store the sequence is read from. Sequences
	// describing the same logical stream must share a Store.
	Store() string
}

// pad returns v resized to n elements, zero filling any missing tail.
func pad(v []float64, n int) []float64 {
	if len(v) >= n {
		return v[:n]
	}
	out := make([]float64, n)
	copy(out, v)
	return out
}
