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
	"time"

	"github.com/maruel/subcommands"

	"go.chromium.org/luci/common/clock"
	"go.chromium.org/luci/common/errors"
	luciflag "go.chromium.org/luci/common/flag"
	log "go.chromium.org/luci/common/logging"

	"go.chromium.org/livescan/markers"
)

type cmdRunSimulate struct {
	subcommands.CommandRunBase

	sim simulation
}

var subcommandSimulate = subcommands.Command{
	UsageLine: "simulate -dir <store> -key <name> [-key <name>...]",
	ShortDesc: "Writes the markers of a fake scan into a file store.",
	LongDesc: "Writes the markers of a fake scan into a file store, one record at a time, " +
		"optionally leaving gaps and stalling before the end. Useful to exercise follow.",
	CommandRun: func() subcommands.CommandRun {
		var cmd cmdRunSimulate

		cmd.Flags.StringVar(&cmd.sim.dir, "dir", "", "Directory of the file store.")
		cmd.Flags.Var(luciflag.StringSlice(&cmd.sim.keys), "key", "Marker key to write. Can be repeated.")
		cmd.Flags.IntVar(&cmd.sim.records, "records", 100, "Number of records in the scan.")
		cmd.Flags.IntVar(&cmd.sim.capacity, "capacity", 0,
			"Initially declared capacity. The files grow as needed. If zero, -records is used. "+
			"A follower bounds the scan by the capacity it sees first, so it stops there if the files grow later.")
		cmd.Flags.DurationVar(&cmd.sim.interval, "interval", 100*time.Millisecond, "Time between records.")
		cmd.Flags.IntVar(&cmd.sim.skip, "skip", 0, "If positive, every skip-th record never completes.")
		cmd.Flags.IntVar(&cmd.sim.stall, "stall", 0,
			"If positive, stop for good after this many records, without marking the store done.")

		return &cmd
	},
}

func (cmd *cmdRunSimulate) Run(baseApp subcommands.Application, args []string, _ subcommands.Env) int {
	_, c := getApplication(baseApp)

	switch {
	case cmd.sim.dir == "":
		log.Errorf(c, "Missing required argument (-dir).")
		return 1
	case len(cmd.sim.keys) == 0:
		log.Errorf(c, "Missing required argument (-key).")
		return 1
	}

	if err := cmd.sim.run(c); err != nil {
		renderErr(c, err)
		return 1
	}
	return 0
}

// simulation is a producer writing the markers of a scan.
type simulation struct {
	dir      string
	keys     []string
	records  int
	capacity int
	interval time.Duration
	skip     int
	stall    int
}

func (s *simulation) run(c context.Context) error {
	capacity := s.capacity
	if capacity <= 0 || capacity > s.records {
		capacity = s.records
	}

	writers := make([]*markers.FileWriter, len(s.keys))
	for i, key := range s.keys {
		w, err := markers.CreateFile(s.dir, key, capacity)
		if err != nil {
			return errors.Fmt("marker key %q: %w", key, err)
		}
		defer w.Close()
		writers[i] = w
	}

	for i := 0; i < s.records; i++ {
		if s.stall > 0 && i >= s.stall {
			log.Warningf(c, "Stalling after %d record(s).", i)
			return nil
		}

		if i >= capacity {
			capacity = min(2*capacity, s.records)
			log.Infof(c, "Growing declared capacity to %d.", capacity)
			for _, w := range writers {
				if err := w.Grow(capacity); err != nil {
					return err
				}
			}
		}

		if s.skip > 0 && (i+1)%s.skip == 0 {
			log.Debugf(c, "Leaving record #%d incomplete.", i)
		} else {
			for _, w := range writers {
				if err := w.Mark(i, 1); err != nil {
					return err
				}
			}
		}

		if tr := clock.Sleep(c, s.interval); tr.Err != nil {
			return tr.Err
		}
	}

	log.Infof(c, "Wrote %d record(s).", s.records)
	return markers.MarkDone(s.dir)
}
