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

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/united-manufacturing-hub/ircmux/pkg/config"
	"github.com/united-manufacturing-hub/ircmux/pkg/control"
	"github.com/united-manufacturing-hub/ircmux/pkg/coordinator"
	"github.com/united-manufacturing-hub/ircmux/pkg/logger"
	"github.com/united-manufacturing-hub/ircmux/pkg/logpipeline"
	"github.com/united-manufacturing-hub/ircmux/pkg/logsink"
	"github.com/united-manufacturing-hub/ircmux/pkg/metrics"
	"github.com/united-manufacturing-hub/ircmux/pkg/sentry"
	"github.com/united-manufacturing-hub/ircmux/pkg/version"
	"github.com/united-manufacturing-hub/ircmux/pkg/worker"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("c", "", "configuration file (default $IRCMUX_CONFIG or "+config.DefaultConfigPath+")")
	daemon := flag.Bool("d", false, "run as a daemon without the interactive terminal")
	debug := flag.Bool("debug", false, "write DEBUG records to the log file")
	showVersion := flag.Bool("v", false, "print the version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.GetAppVersion())

		return 0
	}

	// Initialize the global logger first thing
	logger.Initialize(func(core zapcore.Core) zapcore.Core {
		return sentry.NewSentryHook(core)
	})
	defer func() { _ = logger.Sync() }()

	log := logger.For(logger.ComponentCore)
	log.Infof("Starting ircmux %s", version.GetAppVersion())

	path := *configPath
	if path == "" {
		path = config.PathFromEnv(config.DefaultConfigPath)
	}

	cfg, err := config.LoadWithEnvOverrides(path, logger.For(logger.ComponentConfig))
	if err != nil {
		sentry.ReportIssuef(sentry.IssueTypeError, log, "Failed to load config: %v", err)

		return 1
	}

	sentry.InitSentry(cfg.Bot.SentryDSN, version.GetAppVersion(), true)

	minLevel := cfg.Bot.MinLevel()
	if *debug {
		minLevel = logpipeline.LevelDebug
	}

	sink, err := logsink.OpenRotatingFile(cfg.Bot.LogPath, logsink.FileOptions{
		MaxBackups: cfg.Bot.LogMaxBackups,
		Compress:   cfg.Bot.LogCompress,
		Sync:       cfg.Bot.LogSync,
	})
	if err != nil {
		sentry.ReportIssuef(sentry.IssueTypeError, log, "Failed to open log file: %v", err)

		return 1
	}

	defer func() {
		if err := sink.Close(); err != nil {
			log.Warnf("Failed to close log file: %v", err)
		}
	}()

	var workerOpts worker.Options

	if cfg.Bot.SocksProxy != "" {
		workerOpts.Dialer, err = worker.ProxyDialer(cfg.Bot.SocksProxy)
		if err != nil {
			sentry.ReportIssuef(sentry.IssueTypeError, log, "Invalid socksProxy: %v", err)

			return 1
		}

		log.Infof("Connecting through SOCKS5 proxy %s", cfg.Bot.SocksProxy)
	}

	coord, err := coordinator.New(coordinator.Options{
		Sink:     sink,
		Fallback: logger.Stderr(logger.ComponentLogAggregator),
		Worker:   workerOpts,
		MinLevel: minLevel,
	})
	if err != nil {
		sentry.ReportIssuef(sentry.IssueTypeError, log, "Failed to create coordinator: %v", err)

		return 1
	}

	defs, issues := config.BuildDefinitions(cfg.Servers)
	coord.ReportIssues(issues)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Bot.MetricsPort > 0 {
		server := metrics.SetupMetricsEndpoint(fmt.Sprintf(":%d", cfg.Bot.MetricsPort))
		defer shutdownServer(log, "metrics", server.Shutdown)
	}

	if cfg.Bot.ControlPort > 0 {
		httpServer := control.NewHTTPServer(coord, zap.L().Named(logger.ComponentControlHTTP))
		httpServer.Start(fmt.Sprintf(":%d", cfg.Bot.ControlPort))
		defer shutdownServer(log, "control", httpServer.Shutdown)
	}

	// Workers are stopped through ShutdownAll so that every one of them can
	// send QUIT within the grace timeout.
	report, err := coord.Start(context.Background(), defs)
	if err != nil {
		sentry.ReportIssuef(sentry.IssueTypeError, log, "Failed to start coordinator: %v", err)
		coord.ShutdownAll()

		return 1
	}

	for _, issue := range report.Rejected {
		log.Warnf("Server skipped: %v", issue)
	}

	log.Infow("Servers started", "spawned", report.Spawned, "log", cfg.Bot.LogPath)

	if !*daemon {
		terminal := control.NewTerminal(coord, os.Stdin, os.Stdout, coord.Producer().Logger("bot.control"))

		go func() {
			if err := terminal.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.For(logger.ComponentTerminal).Warnf("Terminal stopped: %v", err)
			}
		}()
	}

	select {
	case <-ctx.Done():
		log.Info("Signal received, shutting down")
	case <-coord.Done():
	}

	coord.ShutdownAll()
	log.Info("ircmux stopped")

	return 0
}

func shutdownServer(log *zap.SugaredLogger, name string, shutdown func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if err := shutdown(ctx); err != nil {
		sentry.ReportIssuef(sentry.IssueTypeError, log, "Failed to shutdown %s server: %v", name, err)
	}
}
