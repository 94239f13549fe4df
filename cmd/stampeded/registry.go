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

package main

import (
	"fmt"

	"github.com/talismancer/stampeded/pkg/task"
	"github.com/talismancer/stampeded/pkg/task/demo"
)

// taskRegistry maps a Config.TaskKind name to the task.Task it selects. The
// daemon package never sees this table; it only ever holds a single
// resolved task.Task, per pkg/task's doc comment on the embedder owning the
// one pluggable seam. A production embedder would register its own real
// task implementations here alongside (or instead of) demo.
var taskRegistry = map[string]func() task.Task{
	"demo": demo.New,
}

// resolveTask looks up kind in taskRegistry.
func resolveTask(kind string) (task.Task, error) {
	factory, ok := taskRegistry[kind]
	if !ok {
		return nil, fmt.Errorf("unknown task kind %q", kind)
	}
	return factory(), nil
}
