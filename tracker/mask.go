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

package tracker

import (
	"go.chromium.org/luci/common/errors"
)

// Mask is a frame filter: one flag per record of the declared capacity, false
// for records that will never complete. Flags are laid out row-major over
// Shape.
type Mask struct {
	keep  []bool
	shape []int
}

// NewMask builds the mask of a stream with the given capacity and skipped
// indices. If shape is given, its product must equal capacity.
func NewMask(capacity int, skipped []int, shape ...int) (*Mask, error) {
	if capacity < 0 {
		return nil, errors.Fmt("negative capacity %d", capacity)
	}
	if len(shape) == 0 {
		shape = []int{capacity}
	}
	n := 1
	for _, d := range shape {
		if d < 0 {
			return nil, errors.Fmt("bad mask shape %v", shape)
		}
		n *= d
	}
	if n != capacity {
		return nil, errors.Fmt("mask shape %v does not hold %d records", shape, capacity)
	}

	keep := make([]bool, capacity)
	for i := range keep {
		keep[i] = true
	}
	for _, i := range skipped {
		if i >= 0 && i < capacity {
			keep[i] = false
		}
	}
	return &Mask{keep: keep, shape: append([]int(nil), shape...)}, nil
}

// Len returns the number of flags.
func (m *Mask) Len() int { return len(m.keep) }

// Shape returns the grid the flags are laid out on.
func (m *Mask) Shape() []int { return append([]int(nil), m.shape...) }

// Flat returns a copy of the flags in row-major order.
func (m *Mask) Flat() []bool { return append([]bool(nil), m.keep...) }

// At returns the flag at the given grid coordinates.
func (m *Mask) At(idx ...int) bool {
	if len(idx) != len(m.shape) {
		panic(errors.Fmt("mask has %d dimensions, got %d coordinates", len(m.shape), len(idx)))
	}
	off := 0
	for d, i := range idx {
		off = off*m.shape[d] + i
	}
	return m.keep[off]
}

// Subsample keeps every step-th element along every axis and returns the
// result flattened row-major. Step values below 1 are treated as 1.
func (m *Mask) Subsample(step int) []bool {
	if step < 1 {
		step = 1
	}
	strides := make([]int, len(m.shape))
	s := 1
	for d := len(m.shape) - 1; d >= 0; d-- {
		strides[d] = s
		s *= m.shape[d]
	}

	var out []bool
	var walk func(d, off int)
	walk = func(d, off int) {
		if d == len(m.shape) {
			out = append(out, m.keep[off])
			return
		}
		for i := 0; i < m.shape[d]; i += step {
			walk(d+1, off+i*strides[d])
		}
	}
	walk(0, 0)
	return out
}

// Select returns the items whose flag in keep is true.
func Select[T any](items []T, keep []bool) ([]T, error) {
	if len(items) != len(keep) {
		return nil, errors.Fmt("have %d items but %d filter flags", len(items), len(keep))
	}
	out := make([]T, 0, len(items))
	for i, it := range items {
		if keep[i] {
			out = append(out, it)
		}
	}
	return out, nil
}
