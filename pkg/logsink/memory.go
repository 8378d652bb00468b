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

package logsink

import (
	"strings"
	"sync"
)

// Memory keeps rendered lines in memory. Tests and the terminal use it.
type Memory struct {
	fail  func(line string) error
	lines []string
	mu    sync.Mutex
}

// NewMemory returns an empty sink. fail, if not nil, decides per line
// whether the write errors.
func NewMemory(fail func(line string) error) *Memory {
	return &Memory{fail: fail}
}

func (m *Memory) Write(line []byte) error {
	text := strings.TrimRight(string(line), "\r\n")

	if m.fail != nil {
		if err := m.fail(text); err != nil {
			return err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.lines = append(m.lines, text)

	return nil
}

// Lines returns a copy of the written lines.
func (m *Memory) Lines() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]string(nil), m.lines...)
}

// Matching returns the lines containing every one of parts.
func (m *Memory) Matching(parts ...string) []string {
	var out []string

	for _, line := range m.Lines() {
		ok := true

		for _, part := range parts {
			if !strings.Contains(line, part) {
				ok = false

				break
			}
		}

		if ok {
			out = append(out, line)
		}
	}

	return out
}
