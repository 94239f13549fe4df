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

package worker

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func TestReadKeyFrom(t *testing.T) {
	key, err := readKeyFrom(strings.NewReader("some-key"))
	if err != nil {
		t.Fatalf("readKeyFrom: %v", err)
	}
	if got, want := string(key), "some-key"; got != want {
		t.Errorf("readKeyFrom() = %q, want %q", got, want)
	}
}

func TestReadKeyFromEmpty(t *testing.T) {
	key, err := readKeyFrom(bytes.NewReader(nil))
	if err != nil {
		t.Fatalf("readKeyFrom: %v", err)
	}
	if len(key) != 0 {
		t.Errorf("readKeyFrom() = %q, want empty", key)
	}
}

// TestProgressArmsAndDisarms exercises the watchdog alarm syscall wrapper
// without ever letting it fire: arming a long duration and then disarming
// (Alarm(0)) immediately after, the way a real Task calls Progress
// periodically to stay alive.
func TestProgressArmsAndDisarms(t *testing.T) {
	Progress(time.Hour)
	Progress(0)
}
