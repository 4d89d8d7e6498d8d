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

package main

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/maruel/subcommands"
	"golang.org/x/sync/errgroup"

	"go.chromium.org/luci/common/errors"
	log "go.chromium.org/luci/common/logging"

	"go.chromium.org/livescan/chunkload"
	"go.chromium.org/livescan/config"
	"go.chromium.org/livescan/group"
	"go.chromium.org/livescan/loader"
)

type cmdRunFollow struct {
	subcommands.CommandRunBase

	configPath string
	name       string
}

var subcommandFollow = subcommands.Command{
	UsageLine: "follow -config <path>",
	ShortDesc: "Follows a scan and reports every chunk as it becomes loadable.",
	LongDesc: "Follows a scan and reports every chunk as it becomes loadable. " +
		"If follow may start before the producer allocates its marker files, set total or max_frames " +
		"in the configuration: without either, an unallocated store has no known end and the scan aborts.",
	CommandRun: func() subcommands.CommandRun {
		var cmd cmdRunFollow

		cmd.Flags.StringVar(&cmd.configPath, "config", "", "Path to the scan configuration.")
		cmd.Flags.StringVar(&cmd.name, "name", "scan", "Name of the scan in logs and metrics.")

		return &cmd
	},
}

func (cmd *cmdRunFollow) Run(baseApp subcommands.Application, args []string, _ subcommands.Env) int {
	app, c := getApplication(baseApp)

	if cmd.configPath == "" {
		log.Errorf(c, "Missing required argument (-config).")
		return 1
	}
	cfg, err := config.Load(cmd.configPath)
	if err != nil {
		log.WithError(err).Errorf(c, "Failed to load configuration.")
		return 1
	}

	if err := follow(c, &reporter{out: app.out}, cfg, cmd.name); err != nil {
		renderErr(c, err)
		return 1
	}
	return 0
}

// reporter prints chunks from several members.
type reporter struct {
	mu  sync.Mutex
	out io.Writer
}

func (r *reporter) chunk(rank int, ch *loader.Chunk[int]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ch.Checkpoint {
		fmt.Fprintf(r.out, "rank %d: checkpoint at %d\n", rank, ch.Start)
		return
	}
	fmt.Fprintf(r.out, "rank %d: LOAD(%d, %d) %v\n", rank, ch.Start, ch.Count, ch.Indices)
}

// follow runs every group member hosted by this process until the end of the
// scan.
func follow(c context.Context, r *reporter, cfg *config.Config, name string) error {
	var pools config.Pools
	defer pools.Close()

	members, err := cfg.Groups(&pools)
	if err != nil {
		return err
	}

	// The records themselves are not read: report their indices.
	fetcher := loader.FetcherFunc[int](func(_ context.Context, indices []int) ([]int, error) {
		return indices, nil
	})

	// Build every member before starting any: a member left behind would block
	// the others at the first barrier.
	loaders := make([]*loader.Loader[int], len(members))
	for i, m := range members {
		var tr chunkload.Tracker
		if group.IsLeader(m) {
			unlock, err := cfg.Lock()
			if err != nil {
				return err
			}
			defer unlock()

			t, err := cfg.Tracker(c, name, cfg.Sequences(&pools))
			if err != nil {
				return err
			}
			tr = t
		}

		co, err := cfg.Coordinator(name, tr, m)
		if err != nil {
			return err
		}
		l, err := loader.New(loader.Options[int]{
			Coordinator: co,
			Fetcher:     fetcher,
			ChunkSize:   cfg.ChunkSize,
			Shard:       m.Size() > 1,
			Delay:       cfg.PollDelay,
		})
		if err != nil {
			return err
		}
		loaders[i] = l
	}

	eg, c := errgroup.WithContext(c)
	for i, m := range members {
		l := loaders[i]
		eg.Go(func() error {
			err := l.Run(c, func(ch *loader.Chunk[int]) error {
				r.chunk(m.Rank(), ch)
				return nil
			})
			if err != nil {
				return errors.Fmt("member %d: %w", m.Rank(), err)
			}
			log.Fields{
				"rank":     m.Rank(),
				"position": l.Cursor().FrameStart,
				"skipped":  len(l.Cursor().Skipped),
			}.Infof(c, "End of scan.")
			return nil
		})
	}
	return eg.Wait()
}
