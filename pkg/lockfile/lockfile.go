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

// Package lockfile implements the single-instance guard: an advisory,
// exclusive, non-blocking file lock that enforces one live daemon per
// socket path.
package lockfile

import (
	"fmt"

	"github.com/gofrs/flock"
)

// Lock wraps an acquired advisory file lock. It is held for the daemon's
// full lifetime; Release implies the daemon has exited. The backing file
// is never unlinked — a stale lock file is harmless.
type Lock struct {
	fl *flock.Flock
}

// TryAcquire attempts to acquire the exclusive, non-blocking lock on
// path+".lock". ok is false (with a nil error) if some other process
// already holds it — the caller should treat this as "a live daemon
// already owns this path", not as a failure.
func TryAcquire(path string) (l *Lock, ok bool, err error) {
	lockPath := path + ".lock"
	fl := flock.New(lockPath)
	locked, err := fl.TryLock()
	if err != nil {
		return nil, false, fmt.Errorf("lockfile: acquiring %q: %w", lockPath, err)
	}
	if !locked {
		return nil, false, nil
	}
	return &Lock{fl: fl}, true, nil
}

// Release drops the lock. The lock file itself is left in place.
func (l *Lock) Release() error {
	return l.fl.Unlock()
}

// Path returns the backing lock file's path, for logging.
func (l *Lock) Path() string {
	return l.fl.Path()
}
