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
	"fmt"
	"net"
	"os"
	"os/user"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/talismancer/stampeded/pkg/wire"
	"golang.org/x/sys/unix"
)

// bindListener implements a staging-then-rename bind sequence, designed to
// avoid a race where a client connects before the daemon is actually
// listening: bind the staging name, Listen, then atomically rename into the
// final path. A pre-existing socket file at the final path is unlinked
// first — safe because the caller already holds the instance lock, proving
// no other daemon owns it.
func bindListener(stagingPath, finalPath string) (*net.UnixListener, error) {
	_ = os.Remove(stagingPath) // stale staging file from a previous crash.

	l, err := net.Listen("unix", stagingPath)
	if err != nil {
		return nil, fmt.Errorf("daemon: listen on %q: %w", stagingPath, err)
	}
	unixListener := l.(*net.UnixListener)

	if err := os.Remove(finalPath); err != nil && !os.IsNotExist(err) {
		unixListener.Close()
		return nil, fmt.Errorf("daemon: removing stale socket %q: %w", finalPath, err)
	}
	if err := os.Rename(stagingPath, finalPath); err != nil {
		unixListener.Close()
		return nil, fmt.Errorf("daemon: renaming %q to %q: %w", stagingPath, finalPath, err)
	}
	return unixListener, nil
}

// peerCredID queries the kernel for the pid/uid of the peer on conn and
// formats it as "<username>:<pid>" for use in log lines, resolving the uid
// to a username and falling back to the raw numeric uid if that lookup
// fails. It is advisory only; a failure to read credentials yields
// "unknown:unknown" rather than an error, since credentials are never used
// for anything but logging.
func peerCredID(conn *net.UnixConn) string {
	raw, err := conn.SyscallConn()
	if err != nil {
		logrus.Warnf("Failed to get raw conn for peer credentials: %v", err)
		return "unknown:unknown"
	}

	var ucred *unix.Ucred
	var getErr error
	err = raw.Control(func(fd uintptr) {
		ucred, getErr = unix.GetsockoptUcred(int(fd), unix.SOL_SOCKET, unix.SO_PEERCRED)
	})
	if err != nil || getErr != nil {
		logrus.Warnf("Failed to read peer credentials: %v", errOrErr(err, getErr))
		return "unknown:unknown"
	}
	return usernameOrUID(ucred.Uid) + ":" + strconv.Itoa(int(ucred.Pid))
}

// usernameOrUID resolves uid to a username, falling back to the raw
// numeric uid string if the lookup fails (e.g. no matching passwd entry).
func usernameOrUID(uid uint32) string {
	u, err := user.LookupId(strconv.Itoa(int(uid)))
	if err != nil {
		return strconv.Itoa(int(uid))
	}
	return u.Username
}

func errOrErr(a, b error) error {
	if a != nil {
		return a
	}
	return b
}

// acceptLoop runs in its own goroutine for the daemon's lifetime, accepting
// connections and handing them to the loop over acceptCh. It never touches
// the daemon's state directly, preserving the single-writer invariant.
func acceptLoop(listener *net.UnixListener, acceptCh chan<- *net.UnixConn, done <-chan struct{}) {
	for {
		conn, err := listener.AcceptUnix()
		if err != nil {
			select {
			case <-done:
				return
			default:
			}
			logrus.Errorf("Accept failed: %v", err)
			return
		}
		select {
		case acceptCh <- conn:
		case <-done:
			conn.Close()
			return
		}
	}
}

// readLoop performs the one-line blocked read for a single accepted
// connection, bounded by timeout, and reports the result to the loop over
// readCh. Like acceptLoop, it never touches the daemon's state directly.
func readLoop(conn *net.UnixConn, clientID string, timeout time.Duration, readCh chan<- readResult) {
	if timeout > 0 {
		conn.SetReadDeadline(time.Now().Add(timeout))
	}
	reader := bufio.NewReader(conn)
	key, err := wire.ReadRequest(reader)
	readCh <- readResult{
		conn:     conn,
		reader:   reader,
		clientID: clientID,
		key:      key,
		err:      err,
	}
}
