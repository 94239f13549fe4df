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

// Package task defines the pluggable unit of work a worker process runs.
//
// The daemon itself never interprets a key; it only coalesces concurrent
// requests for identical keys and hands the key to a Task, once, in a child
// process.
package task

// Exit codes a worker process may terminate with. These are the numbers a
// client observes in a wire.Reply's ExitCode field.
const (
	// ExitSuccess is the exit code of a task that completed normally. A
	// Perform that returns a nil error exits with whatever int it returned.
	ExitSuccess = 0

	// ExitException is reported when Perform returns a non-nil error that
	// isn't an ExplicitExit.
	ExitException = 255

	// ExitAlarm is the exit code (the SIGALRM signal number) a worker exits
	// with when the watchdog alarm fires before Perform returns or calls
	// Progress again.
	ExitAlarm = 14
)

// Task is the single pluggable seam of the daemon: the work to run for a
// given key. Implementations run inside a freshly re-exec'd worker process,
// never inside the daemon's event loop.
//
// Perform returns the exit code a worker should terminate with, and an
// error only when that exit code doesn't matter: a non-nil error yields
// ExitException regardless of the returned int, except an *ExplicitExit,
// whose Code is used instead.
type Task interface {
	Perform(key []byte) (exitCode int, err error)
}

// Func adapts a plain function to a Task.
type Func func(key []byte) (int, error)

// Perform implements Task.
func (f Func) Perform(key []byte) (int, error) {
	return f(key)
}

// ExplicitExit is returned by a Task that wants to request a specific exit
// code without it being treated as a failure (ExitException). The worker
// runner special-cases this error type; Code is reported verbatim.
type ExplicitExit struct {
	Code int
}

func (e *ExplicitExit) Error() string {
	return "explicit exit requested"
}
