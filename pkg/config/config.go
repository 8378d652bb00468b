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
	"strings"

	"gopkg.in/yaml.v3"
)

// FullConfig is the whole configuration file.
type FullConfig struct {
	Bot     BotConfig      `yaml:"bot"`
	Servers []ServerConfig `yaml:"servers"`
}

// BotConfig holds process-wide settings.
type BotConfig struct {
	// LogPath is the file the log sink appends to.
	LogPath string `yaml:"logPath,omitempty"`
	// LogLevel is the minimum severity written to LogPath.
	LogLevel string `yaml:"logLevel,omitempty"`
	// SentryDSN enables error reporting when set.
	SentryDSN string `yaml:"sentryDSN,omitempty"`
	// MetricsPort serves /metrics. Zero disables it.
	MetricsPort int `yaml:"metricsPort,omitempty"`
	// ControlPort serves the HTTP control API. Zero disables it.
	ControlPort int `yaml:"controlPort,omitempty"`
	// LogMaxBackups is the number of rotated files kept. Zero keeps all.
	LogMaxBackups int `yaml:"logMaxBackups,omitempty"`
	// LogCompress compresses rotated files with zstd.
	LogCompress bool `yaml:"logCompress,omitempty"`
	// LogSync fsyncs the log file after every line.
	LogSync bool `yaml:"logSync,omitempty"`
	// SocksProxy routes every server connection through a SOCKS5 proxy.
	SocksProxy string `yaml:"socksProxy,omitempty"`
}

// ServerConfig is one server entry as written in the file. It is turned into
// a ServerDefinition by BuildDefinitions.
type ServerConfig struct {
	AutoConnect   *bool      `yaml:"autoConnect,omitempty"`
	Name          string     `yaml:"name"`
	Address       string     `yaml:"address"`
	ServerPW      string     `yaml:"serverPW,omitempty"`
	User          string     `yaml:"user"`
	Nick          string     `yaml:"nick,omitempty"`
	NickPW        string     `yaml:"nickPW,omitempty"`
	RealName      string     `yaml:"realName,omitempty"`
	Channels      StringList `yaml:"channels,omitempty"`
	ChannelsPW    StringList `yaml:"channelsPW,omitempty"`
	Port          int        `yaml:"port"`
	SSL           bool       `yaml:"ssl,omitempty"`
	SSLSkipVerify bool       `yaml:"sslSkipVerify,omitempty"`
}

// StringList accepts either a YAML sequence or a comma separated string.
// Entries are trimmed but empty entries are kept, so positions line up
// between channels and channelsPW.
type StringList []string

// UnmarshalYAML implements yaml.Unmarshaler.
func (l *StringList) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		var raw string
		if err := value.Decode(&raw); err != nil {
			return err
		}

		parts := strings.Split(raw, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}

		*l = parts

		return nil
	case yaml.SequenceNode:
		var raw []string
		if err := value.Decode(&raw); err != nil {
			return err
		}

		for i := range raw {
			raw[i] = strings.TrimSpace(raw[i])
		}

		if raw == nil {
			raw = []string{}
		}

		*l = raw

		return nil
	default:
		return fmt.Errorf("line %d: expected a list or a comma separated string", value.Line)
	}
}

// blank reports whether no value was configured at all.
func (l StringList) blank() bool {
	return len(l) == 0 || (len(l) == 1 && l[0] == "")
}
