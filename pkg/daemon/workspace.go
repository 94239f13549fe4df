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
	"bufio"
	"net"
)

// ClientAttachment is a connection attached to a Workspace, waiting for its
// child's result. Every field is only ever touched by the loop goroutine.
type ClientAttachment struct {
	Conn     net.Conn
	Reader   *bufio.Reader
	ClientID string
}

// Workspace is the per-key record coalescing concurrent requests.
type Workspace struct {
	Key      []byte
	Waiters  []*ClientAttachment
	ChildPID int // 0 means no child is currently running.
}

// running reports whether a child is currently executing this workspace.
func (w *Workspace) running() bool {
	return w.ChildPID != 0
}

// attach appends a waiter to the workspace.
func (w *Workspace) attach(c *ClientAttachment) {
	w.Waiters = append(w.Waiters, c)
}

// drainLIFO returns the workspace's waiters in LIFO order: completion
// replies are delivered most-recently-attached first. Implemented as a
// reverse copy rather than destructive popping so the original slice (and
// any logging that wants arrival order) stays intact.
func (w *Workspace) drainLIFO() []*ClientAttachment {
	out := make([]*ClientAttachment, len(w.Waiters))
	for i, c := range w.Waiters {
		out[len(w.Waiters)-1-i] = c
	}
	return out
}
