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
	"net"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/talismancer/stampeded/pkg/task"
	"github.com/talismancer/stampeded/pkg/wire"
)

// diagnosticInterval is how often runLoop logs the current queue depth.
const diagnosticInterval = time.Second

// runLoop is the single-writer event loop: every field on
// d.queues/d.tasks/d.clients is read and written exclusively here, so none of
// it needs a mutex. acceptLoop, readLoop, and runReaper only ever hand
// results to this goroutine over channels.
func (d *Daemon) runLoop() {
	ticker := time.NewTicker(diagnosticInterval)
	defer ticker.Stop()

	for {
		select {
		case conn := <-d.acceptCh:
			d.handleAccept(conn)

		case res := <-d.readCh:
			d.handleRead(res)

		case ce := <-d.exitCh:
			d.handleChildExit(ce)

		case <-ticker.C:
			logrus.Infof("Queues => %d workspaces", len(d.queues))

		case <-d.stop:
			d.shutdown()
			return
		}
	}
}

// handleAccept registers a newly accepted connection and starts its
// dedicated read goroutine. The connection is not attached to any Workspace
// until its request key arrives.
func (d *Daemon) handleAccept(conn *net.UnixConn) {
	clientID := peerCredID(conn)
	d.clients[conn] = &ClientAttachment{Conn: conn, ClientID: clientID}
	go readLoop(conn, clientID, d.cfg.AcceptReadTimeout, d.readCh)
}

// handleRead applies the per-connection read outcomes: a read error closes
// the connection with no reply, an empty key is the quiet health probe
// (close with no reply), and a well-formed key attaches the connection to
// its Workspace and schedules it.
func (d *Daemon) handleRead(res readResult) {
	delete(d.clients, res.conn)

	if res.err != nil {
		logrus.Errorf("Failed to read request from client %s: %v", res.clientID, res.err)
		res.conn.Close()
		return
	}
	if len(res.key) == 0 {
		logrus.Debugf("Client %s: empty key (health probe), closing", res.clientID)
		res.conn.Close()
		return
	}

	k := string(res.key)
	ws := d.queues[k]
	if ws == nil {
		ws = &Workspace{Key: res.key}
		d.queues[k] = ws
	}
	ws.attach(&ClientAttachment{Conn: res.conn, Reader: res.reader, ClientID: res.clientID})

	d.scheduleWorkspace(ws)
}

// scheduleWorkspace spawns a worker for ws if one isn't already running. A
// workspace with a child already running is left alone — the newly attached
// waiter rides along with the in-flight run, which is the coalescing
// behavior the workspace table exists for.
func (d *Daemon) scheduleWorkspace(ws *Workspace) {
	if ws.running() {
		return
	}

	pid, err := spawnChild(d.selfExe, d.cfg, ws.Key)
	if err != nil {
		logrus.Errorf("Failed to spawn worker for key %q: %v", ws.Key, err)
		delete(d.queues, string(ws.Key))
		d.replyAndClose(ws, task.ExitException, 0)
		return
	}

	ws.ChildPID = pid
	d.tasks[pid] = ws
}

// handleChildExit matches a reaped pid back to its Workspace and delivers
// the result. A pid with no matching Workspace is a child of this process
// that scheduleWorkspace did not spawn; it is logged and otherwise ignored.
func (d *Daemon) handleChildExit(ce childExit) {
	ws, ok := d.tasks[ce.pid]
	if !ok {
		logrus.Debugf("Reaped untracked pid %d (exit %d)", ce.pid, ce.exitCode)
		return
	}
	delete(d.tasks, ce.pid)
	delete(d.queues, string(ws.Key))
	d.replyAndClose(ws, ce.exitCode, ce.pid)
}

// replyAndClose delivers a Workspace's result to every waiter in LIFO order
// and closes each connection. Write errors are logged and otherwise
// ignored — a waiter that has already gone away cannot be made to receive
// its reply.
func (d *Daemon) replyAndClose(ws *Workspace, exitCode, pid int) {
	reply := wire.Reply{ExitCode: exitCode, PID: pid}
	for _, c := range ws.drainLIFO() {
		if err := wire.WriteReply(c.Conn, reply); err != nil {
			logrus.Warnf("Client %s: failed to write reply: %v", c.ClientID, err)
		}
		c.Conn.Close()
	}
}
