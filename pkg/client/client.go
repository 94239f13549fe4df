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

// Package client is the request-side half of the wire protocol in
// pkg/wire: dial the daemon's socket, send a key, and read back its result.
package client

import (
	"fmt"
	"io"
	"net"
	"time"

	"github.com/talismancer/stampeded/pkg/wire"
)

// Result is a completed task's outcome.
type Result struct {
	ExitCode int
	PID      int
}

// Failed reports whether the task exited non-zero.
func (r Result) Failed() bool { return r.ExitCode != 0 }

// InvalidKeyError wraps wire.ErrInvalidKey with the offending key: the key
// contains a CR or LF byte and cannot be sent as a request.
type InvalidKeyError struct {
	Key []byte
	Err error
}

func (e *InvalidKeyError) Error() string {
	return fmt.Sprintf("client: invalid key %q: %v", e.Key, e.Err)
}

func (e *InvalidKeyError) Unwrap() error { return e.Err }

// ConnectionError wraps any transport-level failure: dial, write, or read.
type ConnectionError struct {
	Op  string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("client: %s: %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// TaskFailedError is returned when the daemon's reply has a non-zero
// exit_code. It is not returned for a transport failure — callers that want
// the PID of a failed task inspect this error rather than treating every
// non-nil error as a connection problem.
type TaskFailedError struct {
	Result Result
}

func (e *TaskFailedError) Error() string {
	return fmt.Sprintf("client: task failed: exit_code=%d pid=%d", e.Result.ExitCode, e.Result.PID)
}

// Request dials the Unix socket at sockPath, submits key, and returns the
// daemon's reply. A non-zero exit code is reported as a *TaskFailedError
// rather than treated as a transport failure, so callers can distinguish "the
// task ran and failed" from "couldn't reach the daemon at all".
func Request(sockPath string, key []byte, timeout time.Duration) (Result, error) {
	if err := wire.ValidateKey(key); err != nil {
		return Result{}, &InvalidKeyError{Key: key, Err: err}
	}

	conn, err := net.DialTimeout("unix", sockPath, timeout)
	if err != nil {
		return Result{}, &ConnectionError{Op: "dial", Err: err}
	}
	defer conn.Close()

	if timeout > 0 {
		conn.SetDeadline(time.Now().Add(timeout))
	}

	line, err := wire.EncodeRequest(key)
	if err != nil {
		return Result{}, &InvalidKeyError{Key: key, Err: err}
	}
	if _, err := conn.Write(line); err != nil {
		return Result{}, &ConnectionError{Op: "write request", Err: err}
	}

	reply, err := wire.ReadReply(conn)
	if err != nil {
		return Result{}, &ConnectionError{Op: "read reply", Err: err}
	}

	result := Result{ExitCode: reply.ExitCode, PID: reply.PID}
	if reply.Failed() {
		return result, &TaskFailedError{Result: result}
	}
	return result, nil
}

// Probe sends a bare newline and expects the connection to close with no
// reply. It reports whether the daemon is alive and reading requests.
func Probe(sockPath string, timeout time.Duration) error {
	conn, err := net.DialTimeout("unix", sockPath, timeout)
	if err != nil {
		return &ConnectionError{Op: "dial", Err: err}
	}
	defer conn.Close()

	if timeout > 0 {
		conn.SetDeadline(time.Now().Add(timeout))
	}
	if _, err := conn.Write([]byte("\n")); err != nil {
		return &ConnectionError{Op: "write probe", Err: err}
	}
	buf := make([]byte, 1)
	n, err := conn.Read(buf)
	if n > 0 {
		return fmt.Errorf("client: probe: unexpected reply from daemon")
	}
	if err != io.EOF {
		return &ConnectionError{Op: "read probe", Err: err}
	}
	return nil
}
