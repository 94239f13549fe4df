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

// Package demo is a fixture Task used by the daemon's own tests and by
// `stampeded run --task=demo`. It is not the task implementation the
// daemon ships for production use — that is supplied by the embedder.
package demo

import (
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/talismancer/stampeded/pkg/task"
)

// Sentinel keys that trigger specific failure-mode and timing behaviors, so
// the daemon's own test suite can drive every outcome a Task can produce
// through a single compiled-in implementation.
const (
	// KeyFail causes Perform to return an error, yielding ExitException.
	KeyFail = "fail"

	// KeyExit123 causes Perform to request an explicit exit code of 123.
	KeyExit123 = "exit123"

	// sleepPrefix, followed by a time.ParseDuration string, sleeps before
	// succeeding: "sleep:350ms" sleeps 350ms then returns ExitSuccess.
	sleepPrefix = "sleep:"

	// KeyTimeout logs its start and then sleeps 2s before logging
	// completion, so a worker whose watchdog alarm is shorter than that is
	// ended before it logs completion.
	KeyTimeout = "timeout"
)

// New returns the demo Task.
func New() task.Task {
	return task.Func(perform)
}

func perform(key []byte) (int, error) {
	k := string(key)
	switch {
	case k == KeyFail:
		logrus.Errorf("Failed task %q", k)
		return 0, fmt.Errorf("Exception: FAIL")
	case k == KeyExit123:
		return 0, &task.ExplicitExit{Code: 123}
	case k == KeyTimeout:
		logrus.Infof("timeout STARTED")
		time.Sleep(2 * time.Second)
		logrus.Infof("timeout FAIL")
		return task.ExitSuccess, nil
	case strings.HasPrefix(k, sleepPrefix):
		d, err := time.ParseDuration(strings.TrimPrefix(k, sleepPrefix))
		if err != nil {
			return 0, fmt.Errorf("invalid sleep duration in key %q: %w", k, err)
		}
		time.Sleep(d)
		logrus.Infof("JOB %s EXECUTED", k)
		return task.ExitSuccess, nil
	default:
		logrus.Infof("JOB %s EXECUTED", k)
		return task.ExitSuccess, nil
	}
}
