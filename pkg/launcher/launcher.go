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

// Package launcher implements the client-side auto-spawn handshake: a
// client that doesn't know whether a daemon is already listening can call
// RequestAndSpawn and get the daemon started for it, racing harmlessly with
// any other launcher doing the same thing.
package launcher

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/gofrs/flock"
	"github.com/sirupsen/logrus"
	"github.com/talismancer/stampeded/pkg/client"
)

// pollInterval is how often RequestAndSpawn checks for the socket to
// appear.
const pollInterval = 10 * time.Millisecond

// Options configures RequestAndSpawn.
type Options struct {
	// Cmd builds the command used to start the daemon, detached, if one
	// needs to be spawned. Stdin is always set to /dev/null by
	// RequestAndSpawn regardless of what Cmd sets.
	Cmd func() *exec.Cmd

	// SockPath and LockPath are the daemon's socket and instance-lock
	// paths, derived the same way config.Config derives them.
	SockPath string
	LockPath string

	// Wait bounds how long RequestAndSpawn waits for the socket to appear
	// after spawning. Defaults to 1s.
	Wait time.Duration
}

// RequestAndSpawn ensures a daemon is listening at opts.SockPath, spawning
// one via opts.Cmd if necessary, then submits key and returns its result.
func RequestAndSpawn(opts Options, key []byte, requestTimeout time.Duration) (client.Result, error) {
	if opts.Wait <= 0 {
		opts.Wait = time.Second
	}

	if err := ensureRunning(opts); err != nil {
		return client.Result{}, err
	}
	return client.Request(opts.SockPath, key, requestTimeout)
}

// ensureRunning spawns the daemon if the socket is missing, or if the socket
// exists but its instance lock is acquirable (meaning the daemon that
// created it is gone and the socket is stale).
//
// Two launchers can race between checking and spawning; this is harmless,
// since a redundant daemon launch just becomes a no-op daemon.
func ensureRunning(opts Options) error {
	if _, err := os.Stat(opts.SockPath); err != nil {
		logrus.Debugf("launcher: %s not present, spawning daemon", opts.SockPath)
		return spawnAndWait(opts)
	}

	fl := flock.New(opts.LockPath)
	ok, err := fl.TryLock()
	if err != nil {
		return fmt.Errorf("launcher: probing %s: %w", opts.LockPath, err)
	}
	if !ok {
		// A live daemon holds the lock; nothing to do.
		return nil
	}
	fl.Unlock()

	logrus.Debugf("launcher: %s is stale, respawning daemon", opts.SockPath)
	if err := os.Remove(opts.SockPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("launcher: removing stale socket %s: %w", opts.SockPath, err)
	}
	return spawnAndWait(opts)
}

// spawnAndWait starts the daemon detached and polls for its socket to
// appear using a constant-backoff retry loop.
func spawnAndWait(opts Options) error {
	cmd := opts.Cmd()
	cmd.Stdin = nil
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("launcher: starting daemon: %w", err)
	}
	// The daemon is meant to outlive this process; losing track of it here
	// is intentional, not a leak (it's re-parented to init on exit).
	go cmd.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), opts.Wait)
	defer cancel()
	b := backoff.WithContext(backoff.NewConstantBackOff(pollInterval), ctx)

	op := func() error {
		if _, err := os.Stat(opts.SockPath); err != nil {
			return err
		}
		return nil
	}
	if err := backoff.Retry(op, b); err != nil {
		return fmt.Errorf("launcher: daemon socket %s did not appear within %s: %w", opts.SockPath, opts.Wait, err)
	}
	return nil
}
