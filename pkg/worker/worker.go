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

// Package worker is the child-side counterpart to pkg/daemon: it runs
// inside the re-exec'd process a Daemon spawns, reads its key off a donated
// pipe, arms the watchdog alarm, and runs a task.Task to completion.
package worker

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/talismancer/stampeded/pkg/task"
	"golang.org/x/sys/unix"
)

// KeyFD is the file descriptor the daemon donates the key pipe on. Must
// match pkg/daemon's keyFD.
const KeyFD = 3

// Run reads the request key, arms the watchdog, runs t, and terminates the
// process with the resulting exit code. It never returns — the only way
// out is os.Exit, since the parent relies on this process's exit code
// rather than any return value.
func Run(alarmTime time.Duration, t task.Task) {
	key, err := readKey()
	if err != nil {
		logrus.Errorf("worker: reading key: %v", err)
		os.Exit(task.ExitException)
	}

	// The Go runtime catches SIGALRM and takes no action on it unless it is
	// requested through signal.Notify, so the watchdog is received here and
	// turned into an exit with ExitAlarm.
	alarmCh := make(chan os.Signal, 1)
	signal.Notify(alarmCh, unix.SIGALRM)
	go func() {
		<-alarmCh
		logrus.Errorf("worker: watchdog alarm fired")
		os.Exit(task.ExitAlarm)
	}()

	Progress(alarmTime)

	exitCode, err := t.Perform(key)
	switch e := err.(type) {
	case nil:
		os.Exit(exitCode)
	case *task.ExplicitExit:
		os.Exit(e.Code)
	default:
		logrus.Errorf("worker: task failed: %v", e)
		os.Exit(task.ExitException)
	}
}

// Progress re-arms the watchdog alarm for another d. A Task implementation
// that runs longer than its configured alarm time should call this
// periodically from within Perform to signal that it's still alive.
//
// Inside Run, an alarm that fires before being re-armed makes the worker exit
// with task.ExitAlarm. Outside Run no SIGALRM handler is installed, and the
// Go runtime ignores the signal.
func Progress(d time.Duration) {
	unix.Alarm(uint(d.Round(time.Second) / time.Second))
}

// readKey reads the full contents of the donated key pipe. The daemon closes
// its write end immediately after writing the key, so this read terminates
// on its own without needing a length prefix.
func readKey() ([]byte, error) {
	f := os.NewFile(uintptr(KeyFD), "key-pipe")
	if f == nil {
		return nil, fmt.Errorf("worker: fd %d not open", KeyFD)
	}
	defer f.Close()
	return readKeyFrom(f)
}

// readKeyFrom does the actual reading, split out from readKey so it can be
// exercised in tests without needing fd 3 to be open.
func readKeyFrom(r io.Reader) ([]byte, error) {
	key, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("worker: reading key: %w", err)
	}
	return key, nil
}
