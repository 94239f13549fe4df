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

package daemon

import (
	"os"
	"os/signal"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// newSigChldChan returns a channel that becomes readable whenever one or
// more SIGCHLD deliveries are pending. Go's signal.Notify already does the
// async-signal-safe write-a-byte-to-a-pipe dance internally, so no explicit
// self-pipe is needed here.
func newSigChldChan() chan os.Signal {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, unix.SIGCHLD)
	return ch
}

// runReaper implements the child-exit collector. It drains in two passes
// on every wakeup:
//
//  1. Consume every currently queued SIGCHLD record from sigChld
//     (non-blocking), to account for signal coalescing.
//  2. Regardless of how many records were seen in pass one, loop
//     unix.Wait4(-1, ..., WNOHANG, ...) until ECHILD. This is what
//     actually reaps every exited child; pass one only bounds how long
//     the goroutine stays awake before re-checking.
//
// Each reaped (pid, exitCode) pair is sent to exitCh for the loop
// goroutine to match against its tasks table.
func runReaper(sigChld <-chan os.Signal, exitCh chan<- childExit, done <-chan struct{}) {
	for {
		select {
		case <-sigChld:
			drainSignalRecords(sigChld)
			reapAll(exitCh)
		case <-done:
			signal.Stop(sigChld)
			return
		}
	}
}

// drainSignalRecords consumes every currently pending record on sigChld
// without blocking, so that N coalesced kernel signals collapse back down
// to a single reap pass rather than N redundant ones.
func drainSignalRecords(sigChld <-chan os.Signal) {
	for {
		select {
		case <-sigChld:
		default:
			return
		}
	}
}

// reapAll performs a non-blocking reap of every exited child, independent
// of how many SIGCHLD records were actually observed — this is what makes
// the reaper correct under signal coalescing.
func reapAll(exitCh chan<- childExit) {
	for {
		var status unix.WaitStatus
		pid, err := unix.Wait4(-1, &status, unix.WNOHANG, nil)
		switch {
		case err == unix.ECHILD:
			return
		case err != nil:
			logrus.Warnf("Reaper wait4 failed: %v", err)
			return
		case pid <= 0:
			return
		default:
			exitCh <- childExit{pid: pid, exitCode: normalizeStatus(status)}
		}
	}
}

// normalizeStatus converts a raw wait status into a single numeric exit
// code: WEXITSTATUS for a normal exit, -WTERMSIG for a signal death,
// WSTOPSIG for a stop.
func normalizeStatus(status unix.WaitStatus) int {
	switch {
	case status.Exited():
		return status.ExitStatus()
	case status.Signaled():
		return -int(status.Signal())
	case status.Stopped():
		return int(status.StopSignal())
	default:
		return -1
	}
}
