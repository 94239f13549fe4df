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

package client

import (
	"bufio"
	"encoding/json"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/talismancer/stampeded/pkg/wire"
)

// fakeDaemon accepts exactly one connection, reads its request line, and
// writes back reply as JSON with no trailing newline, mirroring the real
// daemon's wire behavior closely enough to exercise the client end to end.
func fakeDaemon(t *testing.T, reply wire.Reply) string {
	t.Helper()
	dir := t.TempDir()
	sockPath := filepath.Join(dir, "d.sock")

	l, err := net.Listen("unix", sockPath)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	t.Cleanup(func() { l.Close() })

	go func() {
		conn, err := l.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		r := bufio.NewReader(conn)
		if _, err := r.ReadString('\n'); err != nil {
			return
		}
		b, _ := json.Marshal(reply)
		conn.Write(b)
	}()

	return sockPath
}

func TestRequestSuccess(t *testing.T) {
	sockPath := fakeDaemon(t, wire.Reply{ExitCode: 0, PID: 4242})
	result, err := Request(sockPath, []byte("some-key"), time.Second)
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if result.ExitCode != 0 || result.PID != 4242 {
		t.Errorf("Request() = %+v, want {ExitCode:0 PID:4242}", result)
	}
}

func TestRequestTaskFailed(t *testing.T) {
	sockPath := fakeDaemon(t, wire.Reply{ExitCode: 255, PID: 99})
	_, err := Request(sockPath, []byte("fail"), time.Second)
	taskErr, ok := err.(*TaskFailedError)
	if !ok {
		t.Fatalf("Request() error = %v (%T), want *TaskFailedError", err, err)
	}
	if taskErr.Result.ExitCode != 255 || taskErr.Result.PID != 99 {
		t.Errorf("TaskFailedError.Result = %+v, want {255 99}", taskErr.Result)
	}
}

func TestRequestInvalidKey(t *testing.T) {
	_, err := Request("/nonexistent.sock", []byte("bad\nkey"), time.Second)
	if _, ok := err.(*InvalidKeyError); !ok {
		t.Fatalf("Request() error = %v (%T), want *InvalidKeyError", err, err)
	}
}

func TestRequestConnectionError(t *testing.T) {
	dir := t.TempDir()
	_, err := Request(filepath.Join(dir, "missing.sock"), []byte("key"), 100*time.Millisecond)
	if _, ok := err.(*ConnectionError); !ok {
		t.Fatalf("Request() error = %v (%T), want *ConnectionError", err, err)
	}
}
