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
	"context"
)

// Static describes a source that is fully written: all N records are
// available from the start and nothing is ever skipped.
type Static int

// Refresh never advances.
func (s Static) Refresh(context.Context) (bool, error) { return false, nil }

// Watermark returns N-1.
func (s Static) Watermark() int { return int(s) - 1 }

// Capacity returns N.
func (s Static) Capacity() int { return int(s) }

// Skipped returns nil.
func (s Static) Skipped() []int { return nil }

// AvailableCount returns N.
func (s Static) AvailableCount() int { return int(s) }

// MaxPossible returns N.
func (s Static) MaxPossible() int { return int(s) }
