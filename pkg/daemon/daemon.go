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

// Package daemon implements the worker daemon: the event loop over a
// listening Unix socket, the per-key workspace table that coalesces
// duplicate requests, the subprocess supervisor, the watchdog timeout, and
// the single-instance lock.
package daemon

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/talismancer/stampeded/pkg/config"
	"github.com/talismancer/stampeded/pkg/lockfile"
	"github.com/talismancer/stampeded/pkg/task"
)

// ErrSingletonViolation is returned by New when a Daemon has already been
// constructed in this process.
var ErrSingletonViolation = errors.New("daemon: a Daemon already exists in this process")

var (
	constructedMu sync.Mutex
	constructed   bool
)

// resetConstructedForTest clears the singleton slot. Only called from this
// package's own tests, which construct many short-lived Daemons in one test
// binary; a real embedder never needs this, since the singleton is meant to
// hold for the lifetime of one OS process.
func resetConstructedForTest() {
	constructedMu.Lock()
	defer constructedMu.Unlock()
	constructed = false
}

// Daemon is the worker daemon's process-wide state, plus the configuration
// and handles needed to run it.
//
// A Daemon constructed when another process already holds the instance
// lock for the same path is a "no-op daemon": Run returns immediately
// without binding a socket, so redundant launches self-cancel without
// noise.
type Daemon struct {
	cfg     config.Config
	task    task.Task
	selfExe string

	noop bool
	lock *lockfile.Lock

	listener *net.UnixListener

	// queues, tasks, and clients are touched exclusively by the loop
	// goroutine running inside Run; no mutex guards them.
	queues  map[string]*Workspace
	tasks   map[int]*Workspace
	clients map[*net.UnixConn]*ClientAttachment

	acceptCh chan *net.UnixConn
	readCh   chan readResult
	exitCh   chan childExit
	sigChld  chan os.Signal
	done     chan struct{}
	stop     chan struct{}
	stopOnce sync.Once
}

// readResult is what readLoop reports back to the loop goroutine.
type readResult struct {
	conn     *net.UnixConn
	reader   *bufio.Reader
	clientID string
	key      []byte
	err      error
}

// childExit is what the reaper reports back to the loop goroutine.
type childExit struct {
	pid      int
	exitCode int
}

// New constructs a Daemon for the given configuration and task
// implementation. Only one Daemon may be constructed per process; a second
// call returns ErrSingletonViolation.
//
// If another process already holds path's instance lock, New succeeds but
// returns a no-op Daemon whose Run does nothing — see the Daemon doc
// comment.
func New(cfg config.Config, t task.Task) (*Daemon, error) {
	constructedMu.Lock()
	defer constructedMu.Unlock()
	if constructed {
		return nil, ErrSingletonViolation
	}

	lock, ok, err := lockfile.TryAcquire(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("daemon: acquiring instance lock: %w", err)
	}
	constructed = true
	if !ok {
		logrus.Infof("Another daemon already holds %s; becoming a no-op daemon.", cfg.LockPath())
		return &Daemon{cfg: cfg, task: t, noop: true}, nil
	}

	selfExe, err := os.Executable()
	if err != nil {
		lock.Release()
		return nil, fmt.Errorf("daemon: resolving own executable path: %w", err)
	}

	return &Daemon{
		cfg:     cfg,
		task:    t,
		selfExe: selfExe,
		lock:    lock,
		queues:  make(map[string]*Workspace),
		tasks:   make(map[int]*Workspace),
		clients: make(map[*net.UnixConn]*ClientAttachment),
		stop:    make(chan struct{}),
	}, nil
}

// IsNoop reports whether this Daemon is a no-op stand-in because another
// process already holds the instance lock.
func (d *Daemon) IsNoop() bool { return d.noop }

// Stop asks a running Daemon's event loop to exit and Run to return. Safe to
// call more than once and safe to call on a no-op Daemon.
func (d *Daemon) Stop() {
	if d.noop {
		return
	}
	d.stopOnce.Do(func() { close(d.stop) })
}

// Run binds the listening socket and runs the event loop until Stop is
// called. It returns an error only if binding the listening socket fails,
// and nil otherwise, including when called on a no-op Daemon.
func (d *Daemon) Run() error {
	if d.noop {
		return nil
	}
	defer d.lock.Release()

	listener, err := bindListener(d.cfg.StagingSocketPath(), d.cfg.SocketPath())
	if err != nil {
		return fmt.Errorf("daemon: bind: %w", err)
	}
	d.listener = listener
	defer listener.Close()

	d.acceptCh = make(chan *net.UnixConn)
	d.readCh = make(chan readResult)
	d.exitCh = make(chan childExit)
	d.sigChld = newSigChldChan()
	d.done = make(chan struct{})
	defer close(d.done)

	go acceptLoop(listener, d.acceptCh, d.done)
	go runReaper(d.sigChld, d.exitCh, d.done)

	logrus.Infof("stampeded listening on %s", d.cfg.SocketPath())
	d.runLoop()
	return nil
}

// shutdown closes every connection still attached to the daemon
// (unattached, in d.clients, and attached waiters in d.queues). Called by
// runLoop when Stop is requested, just before it returns.
func (d *Daemon) shutdown() {
	for conn := range d.clients {
		conn.Close()
	}
	for _, ws := range d.queues {
		for _, c := range ws.Waiters {
			c.Conn.Close()
		}
	}
}
