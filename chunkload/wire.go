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
	"github.com/vmihailenco/msgpack/v5"

	"go.chromium.org/luci/common/errors"
)

// flags is what the leader broadcasts after each check.
type flags struct {
	Frames            int  `msgpack:"frames"`
	EndOfScan         bool `msgpack:"eos"`
	CheckpointReached bool `msgpack:"ckpt"`
	Abort             bool `msgpack:"abort"`

	DeclaredTotal int   `msgpack:"total"`
	Capacity      int   `msgpack:"cap"`
	Skipped       []int `msgpack:"skipped"`

	// Err carries a leader-side failure so that the whole group stops with it.
	Err string `msgpack:"err,omitempty"`
}

func (f *flags) encode() ([]byte, error) {
	b, err := msgpack.Marshal(f)
	if err != nil {
		return nil, errors.Fmt("encoding poll flags: %w", err)
	}
	return b, nil
}

func decodeFlags(b []byte) (*flags, error) {
	f := &flags{}
	if err := msgpack.Unmarshal(b, f); err != nil {
		return nil, errors.Fmt("decoding poll flags: %w", err)
	}
	return f, nil
}
