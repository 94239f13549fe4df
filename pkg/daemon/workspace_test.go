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

import "testing"

func TestWorkspaceRunning(t *testing.T) {
	w := &Workspace{Key: []byte("k")}
	if w.running() {
		t.Errorf("running() = true on a fresh Workspace, want false")
	}
	w.ChildPID = 123
	if !w.running() {
		t.Errorf("running() = false with ChildPID set, want true")
	}
}

func TestWorkspaceAttach(t *testing.T) {
	w := &Workspace{Key: []byte("k")}
	a := &ClientAttachment{ClientID: "a"}
	b := &ClientAttachment{ClientID: "b"}
	w.attach(a)
	w.attach(b)
	if len(w.Waiters) != 2 {
		t.Fatalf("len(Waiters) = %d, want 2", len(w.Waiters))
	}
	if w.Waiters[0] != a || w.Waiters[1] != b {
		t.Errorf("attach did not preserve arrival order")
	}
}

func TestWorkspaceDrainLIFO(t *testing.T) {
	w := &Workspace{Key: []byte("k")}
	a := &ClientAttachment{ClientID: "a"}
	b := &ClientAttachment{ClientID: "b"}
	c := &ClientAttachment{ClientID: "c"}
	w.attach(a)
	w.attach(b)
	w.attach(c)

	drained := w.drainLIFO()
	want := []*ClientAttachment{c, b, a}
	if len(drained) != len(want) {
		t.Fatalf("len(drainLIFO()) = %d, want %d", len(drained), len(want))
	}
	for i := range want {
		if drained[i] != want[i] {
			t.Errorf("drainLIFO()[%d] = %v, want %v", i, drained[i].ClientID, want[i].ClientID)
		}
	}
	// Non-destructive: the original slice is unchanged.
	if len(w.Waiters) != 3 {
		t.Errorf("drainLIFO mutated Waiters: len = %d, want 3", len(w.Waiters))
	}
}

func TestWorkspaceDrainLIFOEmpty(t *testing.T) {
	w := &Workspace{Key: []byte("k")}
	if drained := w.drainLIFO(); len(drained) != 0 {
		t.Errorf("drainLIFO() on empty Workspace = %v, want empty", drained)
	}
}
