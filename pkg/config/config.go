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

// Package config holds daemon-wide configuration: the socket path prefix,
// the watchdog alarm duration, and logging knobs.
package config

import (
	"flag"
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
)

// DefaultAlarmTime is the watchdog timeout applied to a worker when none is
// configured.
const DefaultAlarmTime = 300 * time.Second

// Config is the full set of daemon-wide settings.
type Config struct {
	// Path is the base path prefix; the daemon derives "<Path>.sock",
	// "<Path>.sock-pending", and "<Path>.lock" from it.
	Path string

	// AlarmTime bounds how long a worker may run without calling
	// worker.Progress before the watchdog kills it.
	AlarmTime time.Duration

	// AcceptReadTimeout bounds how long the daemon waits for a client to
	// send its request line after connecting.
	AcceptReadTimeout time.Duration

	// LogLevel is parsed with logrus.ParseLevel; invalid values fall back
	// to "info".
	LogLevel string

	// LogFormat selects between "text" (default) and "json" log output.
	LogFormat string

	// TaskKind names which registered task.Task a worker process should
	// run. It is opaque to pkg/daemon; the embedder's registry (see
	// cmd/stampeded) resolves it to an actual task.Task.
	TaskKind string
}

// Default returns a Config with every field set to its default value.
func Default() Config {
	return Config{
		AlarmTime:         DefaultAlarmTime,
		AcceptReadTimeout: time.Second,
		LogLevel:          "info",
		LogFormat:         "text",
	}
}

// RegisterFlags registers c's fields onto flagSet, one flag per field.
func (c *Config) RegisterFlags(flagSet *flag.FlagSet) {
	flagSet.StringVar(&c.Path, "path", c.Path, "base path prefix; the daemon listens on <path>.sock and locks <path>.lock.")
	flagSet.DurationVar(&c.AlarmTime, "alarm-time", c.AlarmTime, "watchdog timeout for a worker that never calls Progress.")
	flagSet.DurationVar(&c.AcceptReadTimeout, "accept-read-timeout", c.AcceptReadTimeout, "how long to wait for a client's request line after accept.")
	flagSet.StringVar(&c.LogLevel, "log-level", c.LogLevel, "log level: trace, debug, info (default), warning, error.")
	flagSet.StringVar(&c.LogFormat, "log-format", c.LogFormat, "log format: text (default) or json.")
	flagSet.StringVar(&c.TaskKind, "task", c.TaskKind, "name of the registered task.Task implementation to run.")
}

// ToFlags renders c back into flag arguments, in the same "--name=value"
// form RegisterFlags parses. Used to relay the daemon's own configuration
// to a re-exec'd worker process.
func (c *Config) ToFlags() []string {
	return []string{
		"--path=" + c.Path,
		"--alarm-time=" + c.AlarmTime.String(),
		"--accept-read-timeout=" + c.AcceptReadTimeout.String(),
		"--log-level=" + c.LogLevel,
		"--log-format=" + c.LogFormat,
		"--task=" + c.TaskKind,
	}
}

// fileConfig mirrors Config for TOML decoding. Durations are strings in the
// file (e.g. "45s") since time.Duration has no TOML-native representation;
// MergeFile parses them with time.ParseDuration.
type fileConfig struct {
	Path              string `toml:"path"`
	AlarmTime         string `toml:"alarm_time"`
	AcceptReadTimeout string `toml:"accept_read_timeout"`
	LogLevel          string `toml:"log_level"`
	LogFormat         string `toml:"log_format"`
}

// MergeFile overlays values from a TOML file at path onto c. Only fields
// present in the file are overridden. A file that cannot be read, including
// one that does not exist, is reported as an error.
func (c *Config) MergeFile(path string) error {
	var fc fileConfig
	if _, err := toml.DecodeFile(path, &fc); err != nil {
		return fmt.Errorf("config: decoding %q: %w", path, err)
	}
	if fc.Path != "" {
		c.Path = fc.Path
	}
	if fc.AlarmTime != "" {
		d, err := time.ParseDuration(fc.AlarmTime)
		if err != nil {
			return fmt.Errorf("config: alarm_time: %w", err)
		}
		c.AlarmTime = d
	}
	if fc.AcceptReadTimeout != "" {
		d, err := time.ParseDuration(fc.AcceptReadTimeout)
		if err != nil {
			return fmt.Errorf("config: accept_read_timeout: %w", err)
		}
		c.AcceptReadTimeout = d
	}
	if fc.LogLevel != "" {
		c.LogLevel = fc.LogLevel
	}
	if fc.LogFormat != "" {
		c.LogFormat = fc.LogFormat
	}
	return nil
}

// Validate checks that c is usable.
func (c *Config) Validate() error {
	if c.Path == "" {
		return fmt.Errorf("config: path must not be empty")
	}
	if c.AlarmTime <= 0 {
		return fmt.Errorf("config: alarm-time must be positive, got %s", c.AlarmTime)
	}
	if c.AcceptReadTimeout <= 0 {
		return fmt.Errorf("config: accept-read-timeout must be positive, got %s", c.AcceptReadTimeout)
	}
	return nil
}

// SocketPath returns the Unix socket path the daemon listens on.
func (c *Config) SocketPath() string { return c.Path + ".sock" }

// StagingSocketPath returns the path the listener is bound to before the
// atomic rename into SocketPath.
func (c *Config) StagingSocketPath() string { return c.Path + ".sock-pending" }

// LockPath returns the instance-lock file path.
func (c *Config) LockPath() string { return c.Path + ".lock" }
