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
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/united-manufacturing-hub/umh-utils/env"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/united-manufacturing-hub/ircmux/pkg/constants"
	"github.com/united-manufacturing-hub/ircmux/pkg/logpipeline"
	"github.com/united-manufacturing-hub/ircmux/pkg/sentry"
)

// DefaultConfigPath is used when neither the -c flag nor IRCMUX_CONFIG is set.
const DefaultConfigPath = "/etc/ircmux/config.yaml"

// Parse decodes a YAML document. Unknown keys are rejected.
func Parse(r io.Reader) (FullConfig, error) {
	var cfg FullConfig

	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)

	if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return FullConfig{}, fmt.Errorf("failed to parse config: %w", err)
	}

	return cfg, nil
}

// Load reads and parses the file at path.
func Load(path string) (FullConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return FullConfig{}, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	return Parse(bytes.NewReader(data))
}

// LoadWithEnvOverrides loads path and applies environment overrides and defaults.
//
// Order of precedence (highest to lowest):
// 1. Environment variables (LOGGING_LEVEL, IRCMUX_LOG_PATH, IRCMUX_METRICS_PORT, IRCMUX_CONTROL_PORT, SENTRY_DSN)
// 2. Config file values
// 3. Default values
func LoadWithEnvOverrides(path string, log *zap.SugaredLogger) (FullConfig, error) {
	cfg, err := Load(path)
	if err != nil {
		return FullConfig{}, err
	}

	ApplyEnvOverrides(&cfg, log)
	ApplyDefaults(&cfg, log)

	return cfg, nil
}

// PathFromEnv returns IRCMUX_CONFIG or fallback.
func PathFromEnv(fallback string) string {
	path, err := env.GetAsString("IRCMUX_CONFIG", false, fallback)
	if err != nil || path == "" {
		return fallback
	}

	return path
}

// ApplyEnvOverrides replaces bot settings with non-empty environment values.
func ApplyEnvOverrides(cfg *FullConfig, log *zap.SugaredLogger) {
	logLevel, err := env.GetAsString("LOGGING_LEVEL", false, "")
	if err != nil {
		sentry.ReportIssuef(sentry.IssueTypeWarning, log, "Failed to get LOGGING_LEVEL: %v", err)
	} else if logLevel != "" {
		cfg.Bot.LogLevel = logLevel
	}

	logPath, err := env.GetAsString("IRCMUX_LOG_PATH", false, "")
	if err != nil {
		sentry.ReportIssuef(sentry.IssueTypeWarning, log, "Failed to get IRCMUX_LOG_PATH: %v", err)
	} else if logPath != "" {
		cfg.Bot.LogPath = logPath
	}

	sentryDSN, err := env.GetAsString("SENTRY_DSN", false, "")
	if err != nil {
		sentry.ReportIssuef(sentry.IssueTypeWarning, log, "Failed to get SENTRY_DSN: %v", err)
	} else if sentryDSN != "" {
		cfg.Bot.SentryDSN = sentryDSN
	}

	metricsPort, err := env.GetAsInt("IRCMUX_METRICS_PORT", false, -1)
	if err != nil {
		sentry.ReportIssuef(sentry.IssueTypeWarning, log, "Failed to get IRCMUX_METRICS_PORT: %v", err)
	} else if metricsPort >= 0 {
		cfg.Bot.MetricsPort = metricsPort
	}

	controlPort, err := env.GetAsInt("IRCMUX_CONTROL_PORT", false, -1)
	if err != nil {
		sentry.ReportIssuef(sentry.IssueTypeWarning, log, "Failed to get IRCMUX_CONTROL_PORT: %v", err)
	} else if controlPort >= 0 {
		cfg.Bot.ControlPort = controlPort
	}

	socksProxy, err := env.GetAsString("IRCMUX_SOCKS_PROXY", false, "")
	if err != nil {
		sentry.ReportIssuef(sentry.IssueTypeWarning, log, "Failed to get IRCMUX_SOCKS_PROXY: %v", err)
	} else if socksProxy != "" {
		cfg.Bot.SocksProxy = socksProxy
	}
}

// ApplyDefaults fills in the log path and level. An unknown level falls back to INFO.
func ApplyDefaults(cfg *FullConfig, log *zap.SugaredLogger) {
	if strings.TrimSpace(cfg.Bot.LogPath) == "" {
		cfg.Bot.LogPath = constants.DefaultLogPath
	}

	if strings.TrimSpace(cfg.Bot.LogLevel) == "" {
		cfg.Bot.LogLevel = constants.DefaultLogLevel
	}

	if _, err := logpipeline.ParseLevel(cfg.Bot.LogLevel); err != nil {
		if log != nil {
			log.Warnf("%v, using %s", err, constants.DefaultLogLevel)
		}

		cfg.Bot.LogLevel = constants.DefaultLogLevel
	}
}

// MinLevel returns the parsed minimum log level.
func (b BotConfig) MinLevel() logpipeline.Level {
	level, err := logpipeline.ParseLevel(b.LogLevel)
	if err != nil {
		return logpipeline.LevelInfo
	}

	return level
}
