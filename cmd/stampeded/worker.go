// Copyright 2018 The gVisor Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"flag"

	"github.com/google/subcommands"
	"github.com/sirupsen/logrus"
	"github.com/talismancer/stampeded/pkg/config"
	"github.com/talismancer/stampeded/pkg/daemon"
	"github.com/talismancer/stampeded/pkg/worker"
)

// workerCommand implements subcommands.Command for daemon.WorkerSubcommand.
// It is never invoked by a human; the daemon re-execs itself into this
// subcommand, passing the request key over fd 3.
type workerCommand struct {
	cfg config.Config
}

func (*workerCommand) Name() string     { return daemon.WorkerSubcommand }
func (*workerCommand) Synopsis() string { return "internal: run one task, never invoked directly" }
func (*workerCommand) Usage() string    { return daemon.WorkerSubcommand + " - internal use only.\n" }

func (c *workerCommand) SetFlags(f *flag.FlagSet) {
	c.cfg = config.Default()
	c.cfg.RegisterFlags(f)
}

func (c *workerCommand) Execute(ctx context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	applyLogSettings(c.cfg)

	t, err := resolveTask(c.cfg.TaskKind)
	if err != nil {
		logrus.Errorf("worker: %v", err)
		return subcommands.ExitFailure
	}

	// worker.Run calls os.Exit directly with the task's result; it never
	// returns, so there is no code to reach after it.
	worker.Run(c.cfg.AlarmTime, t)
	panic("unreachable")
}
