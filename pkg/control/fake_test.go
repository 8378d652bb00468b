// Copyright 2025 UMH Systems GmbH
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

package control_test

import (
	"fmt"
	"sync"

	"github.com/united-manufacturing-hub/ircmux/pkg/coordinator"
	"github.com/united-manufacturing-hub/ircmux/pkg/standarderrors"
	"github.com/united-manufacturing-hub/ircmux/pkg/worker"
)

type fakeDispatcher struct {
	statuses map[string]worker.Status
	err      error
	reply    error
	commands []worker.Command
	mu       sync.Mutex
}

func newFakeDispatcher(statuses ...worker.Status) *fakeDispatcher {
	f := &fakeDispatcher{statuses: make(map[string]worker.Status)}
	for _, st := range statuses {
		f.statuses[st.Server] = st
	}

	return f
}

func (f *fakeDispatcher) Dispatch(cmd worker.Command) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.commands = append(f.commands, cmd)

	if f.err != nil {
		return f.err
	}

	if _, ok := f.statuses[cmd.Server]; !ok && cmd.Server != coordinator.ShutdownTarget {
		return fmt.Errorf("%w: %q", standarderrors.ErrCommandTargetNotFound, cmd.Server)
	}

	if cmd.Reply != nil {
		cmd.Reply <- f.reply
	}

	return nil
}

func (f *fakeDispatcher) Status(name string) (worker.Status, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	st, ok := f.statuses[name]
	if !ok {
		return worker.Status{}, fmt.Errorf("%w: %q", standarderrors.ErrCommandTargetNotFound, name)
	}

	return st, nil
}

func (f *fakeDispatcher) Statuses() []worker.Status {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]worker.Status, 0, len(f.statuses))
	for _, name := range []string{"alpha", "beta"} {
		if st, ok := f.statuses[name]; ok {
			out = append(out, st)
		}
	}

	return out
}

func (f *fakeDispatcher) Commands() []worker.Command {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]worker.Command(nil), f.commands...)
}
