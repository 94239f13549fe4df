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
	"fmt"
	"os"
	"os/exec"

	"github.com/sirupsen/logrus"
	"github.com/talismancer/stampeded/pkg/config"
	"golang.org/x/sys/unix"
)

// WorkerSubcommand is the hidden argument that tells a re-exec'd stampeded
// binary to run as a worker rather than as the daemon. The embedder's
// worker subcommand (see cmd/stampeded/worker.go) must register under this
// exact name for spawnChild's re-exec to land on it.
const WorkerSubcommand = "__worker"

// keyFD is the file descriptor index the worker reads its key from. Extra
// files start at 3 (0,1,2 are stdin/out/err); the key pipe is the first
// (and only) donated descriptor.
const keyFD = 3

// spawnChild forks a worker by re-executing the daemon's own binary with a
// hidden subcommand, rather than forking the running process directly. The
// key is passed over a dedicated pipe rather than argv, since argv cannot
// safely carry NUL bytes and the key may contain any byte other than
// CR/LF.
//
// Because exec replaces the process image and Go marks every descriptor
// close-on-exec unless explicitly donated via ExtraFiles, the child
// inherits neither the listener nor any client connection in d.clients,
// with no explicit close loop needed.
func spawnChild(selfExe string, cfg config.Config, key []byte) (pid int, err error) {
	r, w, err := os.Pipe()
	if err != nil {
		return 0, fmt.Errorf("daemon: creating key pipe: %w", err)
	}
	defer r.Close()

	cmd := exec.Command(selfExe, append([]string{WorkerSubcommand}, cfg.ToFlags()...)...)
	// Cosmetic, so the worker is easy to spot in `ps`.
	cmd.Args[0] = "stampeded-worker"
	cmd.Stdin = nil
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.ExtraFiles = []*os.File{r}
	// The worker takes every setting it needs via cfg.ToFlags() and the key
	// pipe; it has no use for the daemon's environment and inheriting it
	// unnecessarily widens what a compromised worker could read.
	cmd.Env = []string{}
	cmd.SysProcAttr = &unix.SysProcAttr{
		// Detach from this session so the worker isn't killed by a SIGHUP
		// or SIGCONT delivered to the daemon's controlling terminal.
		Setsid: true,
	}

	if err := cmd.Start(); err != nil {
		w.Close()
		return 0, fmt.Errorf("daemon: starting worker: %w", err)
	}
	pid = cmd.Process.Pid

	// The key is bounded to wire.MaxKeyLen (4KiB), far under a pipe's
	// default 64KiB buffer, so this write cannot block on the reader.
	if _, err := w.Write(key); err != nil {
		logrus.Warnf("Failed writing key to worker %d: %v", pid, err)
	}
	w.Close()

	return pid, nil
}
