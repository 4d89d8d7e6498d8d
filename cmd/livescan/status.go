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

	"github.com/maruel/subcommands"

	log "go.chromium.org/luci/common/logging"

	"go.chromium.org/livescan/config"
)

type cmdRunStatus struct {
	subcommands.CommandRunBase

	configPath string
}

var subcommandStatus = subcommands.Command{
	UsageLine: "status -config <path>",
	ShortDesc: "Reads the markers of a scan once and prints how far it got.",
	CommandRun: func() subcommands.CommandRun {
		var cmd cmdRunStatus

		cmd.Flags.StringVar(&cmd.configPath, "config", "", "Path to the scan configuration.")

		return &cmd
	},
}

func (cmd *cmdRunStatus) Run(baseApp subcommands.Application, args []string, _ subcommands.Env) int {
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

	if err := status(c, app.out, cfg); err != nil {
		renderErr(c, err)
		return 1
	}
	return 0
}

func status(c context.Context, out io.Writer, cfg *config.Config) error {
	var pools config.Pools
	defer pools.Close()

	tr, err := cfg.Tracker(c, "status", cfg.Sequences(&pools))
	if err != nil {
		return err
	}
	if _, err := tr.Refresh(c); err != nil {
		return err
	}

	fmt.Fprintf(out, "store:        %s\n", cfg.StoreURL())
	fmt.Fprintf(out, "capacity:     %d\n", tr.Capacity())
	fmt.Fprintf(out, "watermark:    %d\n", tr.Watermark())
	fmt.Fprintf(out, "available:    %d\n", tr.AvailableCount())
	fmt.Fprintf(out, "max possible: %d\n", tr.MaxPossible())
	fmt.Fprintf(out, "skipped:      %v\n", tr.Skipped())
	fmt.Fprintf(out, "all made:     %t\n", tr.AllFramesMade())
	return nil
}
