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
	"encoding/binary"
	"io/fs"
	"math"
	"os"
	"path/filepath"

	"go.chromium.org/luci/common/errors"
	"go.chromium.org/luci/common/logging"
)

// FileExt is the extension of marker files inside a file store directory.
const FileExt = ".markers"

// markerSize is the on-disk size of one marker (little-endian float64).
const markerSize = 8

// File is a marker sequence stored as a flat file of little-endian float64
// values inside a store directory.
//
// The producer preallocates the file (zero markers) and overwrites markers
// in place as records complete, appending when it needs more room. A trailing
// partially written marker is ignored until it is complete.
type File struct {
	dir  string
	key  string
	path string

	markers []float64
}

var _ Sequence = (*File)(nil)

// NewFile returns a view over the marker file for key inside dir.
func NewFile(dir, key string) *File {
	return &File{
		dir:  dir,
		key:  key,
		path: FilePath(dir, key),
	}
}

// FilePath returns the path of the marker file for key inside dir.
func FilePath(dir, key string) string {
	return filepath.Join(dir, key+FileExt)
}

// Refresh implements Sequence.
//
// A marker file that does not exist yet reads as an empty sequence: the
// producer may not have created it.
func (f *File) Refresh(ctx context.Context) error {
	data, err := os.ReadFile(f.path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		logging.Debugf(ctx, "Marker file %q does not exist yet.", f.path)
		f.markers = f.markers[:0]
		return nil
	case err != nil:
		return errors.Fmt("reading marker file %q: %w", f.path, err)
	}

	n := len(data) / markerSize
	if n < len(f.markers) {
		return errors.Fmt("marker file %q shrank from %d to %d markers", f.path, len(f.markers), n)
	}
	f.markers = decodeMarkers(f.markers[:0], data[:n*markerSize])
	return nil
}

// Markers implements Sequence.
func (f *File) Markers() []float64 { return f.markers }

// Capacity implements Sequence.
func (f *File) Capacity() int { return len(f.markers) }

// Store implements Sequence.
func (f *File) Store() string { return "file://" + filepath.Clean(f.dir) }

func decodeMarkers(dst []float64, data []byte) []float64 {
	for off := 0; off+markerSize <= len(data); off += markerSize {
		dst = append(dst, math.Float64frombits(binary.LittleEndian.Uint64(data[off:])))
	}
	return dst
}

// FileWriter is the producer side of a File sequence.
type FileWriter struct {
	f *os.File
}

// CreateFile creates (or truncates) the marker file for key inside dir and
// preallocates capacity zero markers.
func CreateFile(dir, key string, capacity int) (*FileWriter, error) {
	f, err := os.OpenFile(FilePath(dir, key), os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, errors.Fmt("creating marker file: %w", err)
	}
	w := &FileWriter{f: f}
	if err := w.Grow(capacity); err != nil {
		f.Close()
		return nil, err
	}
	return w, nil
}

// Grow extends the file to hold n markers. It never shrinks it.
func (w *FileWriter) Grow(n int) error {
	st, err := w.f.Stat()
	if err != nil {
		return errors.Fmt("stat marker file: %w", err)
	}
	if size := int64(n) * markerSize; size > st.Size() {
		if err := w.f.Truncate(size); err != nil {
			return errors.Fmt("growing marker file: %w", err)
		}
	}
	return nil
}

// Mark writes the marker for record i.
func (w *FileWriter) Mark(i int, v float64) error {
	var buf [markerSize]byte
	binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
	if _, err := w.f.WriteAt(buf[:], int64(i)*markerSize); err != nil {
		return errors.Fmt("writing marker %d: %w", i, err)
	}
	return nil
}

// Close closes the underlying file.
func (w *FileWriter) Close() error {
	return w.f.Close()
}
