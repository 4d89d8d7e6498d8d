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
	"os"
	"path/filepath"

	"github.com/danjacques/gofslock/fslock"

	"go.chromium.org/luci/common/errors"
)

const (
	// LockFileName is the name of the leader lock file inside a file store.
	LockFileName = ".livescan.lock"

	// DoneFileName is created by the producer once it will not mark any more
	// records in a file store.
	DoneFileName = ".livescan.done"
)

// ErrLeaderExists is returned by LockStore when another process already leads
// the store.
var ErrLeaderExists = errors.New("another leader already holds the store")

// LockStore takes the exclusive leader lock of a file store directory.
//
// Only one process may read a store's markers at any time. The returned
// function releases the lock.
func LockStore(dir string) (unlock func() error, err error) {
	path := filepath.Join(dir, LockFileName)
	h, err := fslock.Lock(path)
	switch {
	case err == fslock.ErrLockHeld:
		return nil, errors.Fmt("%q: %w", dir, ErrLeaderExists)
	case err != nil:
		return nil, errors.Fmt("locking store %q: %w", dir, err)
	}
	return h.Unlock, nil
}

// MarkDone records that the producer of a file store is finished.
func MarkDone(dir string) error {
	if err := os.WriteFile(filepath.Join(dir, DoneFileName), nil, 0644); err != nil {
		return errors.Fmt("marking store %q done: %w", dir, err)
	}
	return nil
}

// Done reports whether the producer of a file store is finished.
func Done(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, DoneFileName))
	return err == nil
}
