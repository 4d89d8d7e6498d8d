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

// Package config reads the description of a scan to follow and builds the
// objects that follow it.
package config

import (
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"time"

	"gopkg.in/yaml.v2"

	"go.chromium.org/luci/common/errors"
)

// ErrInvalid is wrapped by every configuration error.
var ErrInvalid = errors.New("invalid configuration")

// Group backends.
const (
	BackendSingle = "single"
	BackendLocal  = "local"
	BackendRedis  = "redis"
)

// Stream names one marker sequence and the store holding it.
type Stream struct {
	Key   string `yaml:"key"`
	Store string `yaml:"store"`
}

// Group describes the cooperating consumers.
type Group struct {
	// Backend is one of "single" (the default), "local" or "redis".
	Backend string `yaml:"backend"`
	Size    int    `yaml:"size"`
	Rank    int    `yaml:"rank"`

	// Addr and Namespace locate the Redis group.
	Addr      string `yaml:"addr"`
	Namespace string `yaml:"namespace"`
}

// Config describes a scan.
type Config struct {
	// Store is the default store of Keys: file:///dir or redis://host:port.
	Store string `yaml:"store"`
	// Keys are the marker sequences in Store.
	Keys []string `yaml:"keys"`
	// Streams are marker sequences given with their store.
	Streams []Stream `yaml:"streams"`

	Timeout     time.Duration `yaml:"timeout"`
	ChunkSize   int           `yaml:"chunk_size"`
	MinChunk    int           `yaml:"min_chunk"`
	MaxFrames   int           `yaml:"max_frames"`
	Total       int           `yaml:"total"`
	Checkpoints []int         `yaml:"checkpoints"`
	PollDelay   time.Duration `yaml:"poll_delay"`

	Group Group `yaml:"group"`
}

// Load reads and validates the configuration file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Fmt("reading %q: %w", path, err)
	}
	c, err := Parse(data)
	if err != nil {
		return nil, errors.Fmt("loading %q: %w", path, err)
	}
	return c, nil
}

// Parse decodes and validates a YAML configuration.
func Parse(data []byte) (*Config, error) {
	c := &Config{}
	if err := yaml.UnmarshalStrict(data, c); err != nil {
		return nil, errors.Fmt("%w: %w", ErrInvalid, err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func invalid(format string, args ...any) error {
	return errors.Fmt("%w: "+format, append([]any{ErrInvalid}, args...)...)
}

// AllStreams returns Keys resolved against Store, followed by Streams.
func (c *Config) AllStreams() []Stream {
	out := make([]Stream, 0, len(c.Keys)+len(c.Streams))
	for _, k := range c.Keys {
		out = append(out, Stream{Key: k, Store: c.Store})
	}
	return append(out, c.Streams...)
}

// Validate checks c and fills in defaults.
func (c *Config) Validate() error {
	streams := c.AllStreams()
	if len(streams) == 0 {
		return invalid("no marker keys")
	}

	var store *storeURL
	seen := map[string]bool{}
	for _, s := range streams {
		if s.Key == "" {
			return invalid("empty marker key")
		}
		if seen[s.Key] {
			return invalid("marker key %q is listed twice", s.Key)
		}
		seen[s.Key] = true
		if s.Store == "" {
			return invalid("marker key %q has no store", s.Key)
		}
		u, err := parseStore(s.Store)
		if err != nil {
			return err
		}
		switch {
		case store == nil:
			store = u
		case *u != *store:
			// The leader reads, and locks, a single store.
			return invalid("marker keys %q and %q are in different stores (%s and %s)",
				streams[0].Key, s.Key, store, u)
		}
	}

	switch {
	case c.Timeout < 0:
		return invalid("negative timeout %s", c.Timeout)
	case c.PollDelay < 0:
		return invalid("negative poll delay %s", c.PollDelay)
	case c.ChunkSize < 1:
		return invalid("chunk_size must be positive, got %d", c.ChunkSize)
	case c.MinChunk < 0:
		return invalid("negative min_chunk %d", c.MinChunk)
	case c.MaxFrames < 0:
		return invalid("negative max_frames %d", c.MaxFrames)
	case !slices.IsSorted(c.Checkpoints):
		return invalid("checkpoints must be ascending, got %v", c.Checkpoints)
	}

	return c.Group.validate()
}

func (g *Group) validate() error {
	if g.Backend == "" {
		g.Backend = BackendSingle
	}
	if g.Size == 0 {
		g.Size = 1
	}
	if g.Size < 1 {
		return invalid("group size must be positive, got %d", g.Size)
	}
	if g.Rank < 0 || g.Rank >= g.Size {
		return invalid("rank %d is outside of a group of %d", g.Rank, g.Size)
	}
	switch g.Backend {
	case BackendSingle:
		if g.Size != 1 {
			return invalid("a single consumer group has size 1, got %d", g.Size)
		}
	case BackendLocal:
	case BackendRedis:
		if g.Addr == "" || g.Namespace == "" {
			return invalid("a redis group needs addr and namespace")
		}
	default:
		return invalid("unknown group backend %q", g.Backend)
	}
	return nil
}

// storeURL is a parsed store reference.
type storeURL struct {
	scheme string
	// loc is the directory of a file store or the address of a Redis store.
	loc string
}

func (u storeURL) String() string { return u.scheme + "://" + u.loc }

func parseStore(s string) (*storeURL, error) {
	u, err := url.Parse(s)
	if err != nil {
		return nil, invalid("bad store %q: %w", s, err)
	}
	switch u.Scheme {
	case "file":
		loc := u.Host + u.Path
		if loc == "" {
			return nil, invalid("store %q has no directory", s)
		}
		return &storeURL{scheme: u.Scheme, loc: filepath.Clean(loc)}, nil
	case "redis":
		if u.Host == "" {
			return nil, invalid("store %q has no address", s)
		}
		return &storeURL{scheme: u.Scheme, loc: u.Host}, nil
	default:
		return nil, invalid("store %q: scheme must be file or redis", s)
	}
}

// store returns the single store of a validated configuration.
func (c *Config) store() *storeURL {
	u, err := parseStore(c.AllStreams()[0].Store)
	if err != nil {
		panic(errors.Fmt("configuration was not validated: %w", err))
	}
	return u
}

// StoreURL returns the store all marker sequences are read from.
func (c *Config) StoreURL() string { return c.store().String() }
