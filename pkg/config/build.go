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

package config

import (
	"errors"
	"fmt"
	"strings"
)

// IssueSeverity tells whether a server was still usable after an issue.
type IssueSeverity string

const (
	// IssueWarning means the server is kept with a reduced configuration.
	IssueWarning IssueSeverity = "warning"
	// IssueRejected means the server is excluded from the spawn set.
	IssueRejected IssueSeverity = "rejected"
)

// Issue is a configuration problem of one server.
type Issue struct {
	Err      error
	Server   string
	Severity IssueSeverity
}

func (i Issue) Error() string {
	return fmt.Sprintf("%s: %s", i.Server, i.Err)
}

func (i Issue) Unwrap() error {
	return i.Err
}

var (
	// ErrChannelListMismatch means channels and channelsPW have different lengths.
	ErrChannelListMismatch = errors.New("number of channels does not match number of channel passwords, no channels will be joined")
	// ErrInvalidChannelName means a channel entry was skipped.
	ErrInvalidChannelName = errors.New("invalid channel name skipped")
	// ErrDuplicateChannel means a channel was listed twice; the first entry wins.
	ErrDuplicateChannel = errors.New("duplicate channel skipped")
	// ErrDuplicateServer means a server name was used twice; the later entry is rejected.
	ErrDuplicateServer = errors.New("duplicate server name")
)

// BuildDefinitions converts file entries into ServerDefinitions, one per
// entry and in file order. Channel problems are reported as warnings and
// leave the server usable. Required fields are not checked here; that is
// done once by ServerDefinition.Validate when the coordinator starts.
func BuildDefinitions(servers []ServerConfig) ([]ServerDefinition, []Issue) {
	var issues []Issue

	defs := make([]ServerDefinition, 0, len(servers))

	for _, sc := range servers {
		def := ServerDefinition{
			Name:             strings.TrimSpace(sc.Name),
			Address:          strings.TrimSpace(sc.Address),
			Port:             sc.Port,
			TLS:              sc.SSL,
			TLSSkipVerify:    sc.SSLSkipVerify,
			ServerPassword:   sc.ServerPW,
			Username:         strings.TrimSpace(sc.User),
			Nickname:         strings.TrimSpace(sc.Nick),
			NickServPassword: sc.NickPW,
			RealName:         strings.TrimSpace(sc.RealName),
			AutoConnect:      sc.AutoConnect == nil || *sc.AutoConnect,
		}

		if def.Nickname == "" {
			def.Nickname = def.Username
		}

		channels, channelIssues := buildChannels(def.Name, sc.Channels, sc.ChannelsPW)
		def.Channels = channels
		issues = append(issues, channelIssues...)

		defs = append(defs, def)
	}

	return defs, issues
}

// buildChannels pairs channel names with passwords by position. A missing
// password list means no channel has a key. Lists of different length
// yield no channels at all.
func buildChannels(server string, names, passwords StringList) (map[string]string, []Issue) {
	channels := map[string]string{}

	if names.blank() {
		return channels, nil
	}

	if passwords == nil {
		passwords = make(StringList, len(names))
	}

	if len(names) != len(passwords) {
		return channels, []Issue{{
			Server:   server,
			Severity: IssueWarning,
			Err:      fmt.Errorf("%w (%d channels, %d passwords)", ErrChannelListMismatch, len(names), len(passwords)),
		}}
	}

	var issues []Issue

	// channel names compare case-insensitively; the first spelling is kept
	seen := make(map[string]struct{}, len(names))

	for i, name := range names {
		if !ValidChannelName(name) {
			issues = append(issues, Issue{Server: server, Severity: IssueWarning, Err: fmt.Errorf("%w: %q", ErrInvalidChannelName, name)})

			continue
		}

		folded := strings.ToLower(name)
		if _, dup := seen[folded]; dup {
			issues = append(issues, Issue{Server: server, Severity: IssueWarning, Err: fmt.Errorf("%w: %q", ErrDuplicateChannel, name)})

			continue
		}

		seen[folded] = struct{}{}
		channels[name] = passwords[i]
	}

	return channels, issues
}
