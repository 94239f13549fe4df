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
	"os"
	"os/signal"

	"github.com/google/subcommands"
	"github.com/sirupsen/logrus"
	"github.com/talismancer/stampeded/pkg/config"
	"github.com/talismancer/stampeded/pkg/daemon"
	"golang.org/x/sys/unix"
)

// runCommand implements subcommands.Command for "run", the daemon's main
// entrypoint.
type runCommand struct {
	cfg        config.Config
	configFile string
}

func (*runCommand) Name() string     { return "run" }
func (*runCommand) Synopsis() string { return "run the worker daemon in the foreground" }
func (*runCommand) Usage() string {
	return `run [flags] - bind <path>.sock and serve requests until terminated.
`
}

func (c *runCommand) SetFlags(f *flag.FlagSet) {
	c.cfg = config.Default()
	c.cfg.RegisterFlags(f)
	f.StringVar(&c.configFile, "config", "", "optional TOML file overlaying these flags.")
}

func (c *runCommand) Execute(ctx context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if c.configFile != "" {
		if err := c.cfg.MergeFile(c.configFile); err != nil {
			logrus.Errorf("run: %v", err)
			return subcommands.ExitFailure
		}
	}
	if err := c.cfg.Validate(); err != nil {
		logrus.Errorf("run: %v", err)
		return subcommands.ExitUsageError
	}
	applyLogSettings(c.cfg)

	t, err := resolveTask(c.cfg.TaskKind)
	if err != nil {
		logrus.Errorf("run: %v", err)
		return subcommands.ExitUsageError
	}

	d, err := daemon.New(c.cfg, t)
	if err != nil {
		logrus.Errorf("run: constructing daemon: %v", err)
		return subcommands.ExitFailure
	}
	if d.IsNoop() {
		logrus.Infof("run: another daemon already owns %s, exiting", c.cfg.LockPath())
		return subcommands.ExitSuccess
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, unix.SIGINT, unix.SIGTERM)
	go func() {
		sig := <-sigCh
		logrus.Infof("run: received %s, shutting down", sig)
		d.Stop()
	}()

	if err := d.Run(); err != nil {
		logrus.Errorf("run: %v", err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

// applyLogSettings wires Config's logging knobs into logrus before running
// anything else.
func applyLogSettings(cfg config.Config) {
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logrus.SetLevel(level)
	} else {
		logrus.Warnf("run: invalid log level %q, keeping default", cfg.LogLevel)
	}
	if cfg.LogFormat == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	}
}
