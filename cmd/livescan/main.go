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

// Package main implements a CLI tool to follow scans that are still being
// written.
package main

import (
	"context"
	"flag"
	"io"
	"os"

	"github.com/maruel/subcommands"

	"go.chromium.org/luci/common/cli"
	"go.chromium.org/luci/common/errors"
	log "go.chromium.org/luci/common/logging"
	"go.chromium.org/luci/common/logging/gologger"
)

type application struct {
	cli.Application

	// out receives the command reports.
	out io.Writer
}

func getApplication(base subcommands.Application) (*application, context.Context) {
	app := base.(*application)
	return app, app.Context(context.Background())
}

func mainImpl(c context.Context, out io.Writer, args []string) int {
	c = gologger.StdConfig.Use(c)

	logConfig := log.Config{
		Level: log.Info,
	}

	a := application{
		Application: cli.Application{
			Name:  "livescan",
			Title: "Follows scans while their producer is still writing them.",
			Context: func(ctx context.Context) context.Context {
				// Install configured logger.
				return logConfig.Set(gologger.StdConfig.Use(ctx))
			},

			Commands: []*subcommands.Command{
				subcommands.CmdHelp,

				&subcommandFollow,
				&subcommandStatus,
				&subcommandSimulate,
			},
		},
		out: out,
	}

	fs := flag.NewFlagSet("flags", flag.ExitOnError)
	logConfig.AddFlags(fs)
	fs.Parse(args)

	return subcommands.Run(&a, fs.Args())
}

func main() {
	os.Exit(mainImpl(context.Background(), os.Stdout, os.Args[1:]))
}

func renderErr(c context.Context, err error) {
	log.Errorf(c, "Error encountered during operation: %s\n%s", err,
		errors.RenderStack(err))
}
