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
	"fmt"
	"maps"
	"net"
	"sort"
	"strconv"
	"strings"

	"github.com/tiendc/go-deepcopy"

	"github.com/united-manufacturing-hub/ircmux/pkg/standarderrors"
)

// ServerDefinition is the validated, typed description of one server. It is
// created once at startup and never mutated afterwards.
type ServerDefinition struct {
	// Channels maps channel name to join key. An empty key joins without one.
	Channels map[string]string

	Name    string
	Address string

	ServerPassword   string
	Username         string
	Nickname         string
	NickServPassword string
	RealName         string

	Port int

	TLS           bool
	TLSSkipVerify bool
	// AutoConnect starts the connection as soon as the worker is spawned.
	AutoConnect bool
}

// Validate checks the required fields. The error wraps ErrConfigInvalid.
func (d ServerDefinition) Validate() error {
	invalid := func(format string, args ...interface{}) error {
		return fmt.Errorf("%w: server %q: %s", standarderrors.ErrConfigInvalid, d.Name, fmt.Sprintf(format, args...))
	}

	switch {
	case strings.TrimSpace(d.Name) == "":
		return invalid("name is missing")
	case strings.TrimSpace(d.Address) == "":
		return invalid("address is missing")
	case strings.ContainsAny(d.Address, " \t"):
		return invalid("address %q contains whitespace", d.Address)
	case d.Port < 1 || d.Port > 65535:
		return invalid("port %d out of range", d.Port)
	case strings.TrimSpace(d.Username) == "":
		return invalid("user is missing")
	case strings.ContainsAny(d.Username, " \t@"):
		return invalid("user %q contains whitespace or @", d.Username)
	case strings.ContainsAny(d.Nickname, " \t,*?!@"):
		return invalid("nick %q contains invalid characters", d.Nickname)
	}

	return nil
}

// Addr returns address:port.
func (d ServerDefinition) Addr() string {
	return net.JoinHostPort(d.Address, strconv.Itoa(d.Port))
}

// Nick returns the nickname, defaulting to the username.
func (d ServerDefinition) Nick() string {
	if d.Nickname != "" {
		return d.Nickname
	}

	return d.Username
}

// RealNameOrDefault returns the real name, defaulting to the username.
func (d ServerDefinition) RealNameOrDefault() string {
	if d.RealName != "" {
		return d.RealName
	}

	return d.Username
}

// ChannelNames returns the configured channels in sorted order.
func (d ServerDefinition) ChannelNames() []string {
	names := make([]string, 0, len(d.Channels))
	for name := range d.Channels {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// Clone returns a deep copy so the channel map is never shared between owners.
func (d ServerDefinition) Clone() ServerDefinition {
	var clone ServerDefinition
	if err := deepcopy.Copy(&clone, &d); err != nil {
		clone = d
		clone.Channels = maps.Clone(d.Channels)
	}

	if clone.Channels == nil {
		clone.Channels = map[string]string{}
	}

	return clone
}

// ValidChannelName reports whether name can be joined: it starts with # or &
// and contains no space, comma or BEL.
func ValidChannelName(name string) bool {
	if len(name) < 2 || len(name) > 200 {
		return false
	}

	if name[0] != '#' && name[0] != '&' {
		return false
	}

	return !strings.ContainsAny(name, " ,\x07\r\n")
}
