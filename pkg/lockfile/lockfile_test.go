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

package lockfile

import (
	"path/filepath"
	"testing"
)

func TestTryAcquireSingleton(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stampeded")

	l1, ok, err := TryAcquire(path)
	if err != nil {
		t.Fatalf("first TryAcquire: %v", err)
	}
	if !ok {
		t.Fatalf("first TryAcquire: ok = false, want true")
	}
	defer l1.Release()

	l2, ok, err := TryAcquire(path)
	if err != nil {
		t.Fatalf("second TryAcquire: %v", err)
	}
	if ok {
		t.Fatalf("second TryAcquire: ok = true, want false (lock already held)")
	}
	if l2 != nil {
		t.Fatalf("second TryAcquire: expected nil Lock, got %+v", l2)
	}
}

func TestReacquireAfterRelease(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stampeded")

	l1, ok, err := TryAcquire(path)
	if err != nil || !ok {
		t.Fatalf("first TryAcquire: ok=%v err=%v", ok, err)
	}
	if err := l1.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}

	l2, ok, err := TryAcquire(path)
	if err != nil {
		t.Fatalf("re-acquire: %v", err)
	}
	if !ok {
		t.Fatalf("re-acquire: ok = false, want true after release")
	}
	defer l2.Release()
}
