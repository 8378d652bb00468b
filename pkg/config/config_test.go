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

package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/united-manufacturing-hub/ircmux/pkg/config"
	"github.com/united-manufacturing-hub/ircmux/pkg/constants"
	"github.com/united-manufacturing-hub/ircmux/pkg/logpipeline"
	"github.com/united-manufacturing-hub/ircmux/pkg/standarderrors"
)

const sampleConfig = `
bot:
  logPath: /tmp/ircmux.log
  logLevel: debug
  metricsPort: 9102
servers:
  - name: libera
    address: irc.libera.chat
    port: 6697
    ssl: true
    user: ircmux
    nickPW: hunter2
    channels: "#test,#open"
    channelsPW: "secret,"
  - name: oftc
    address: irc.oftc.net
    port: 6667
    user: ircmux
    nick: muxbot
    realName: Mux Bot
    autoConnect: false
    channels: ["#a", "#b"]
    channelsPW: ["x"]
`

var _ = Describe("Parse", func() {
	It("reads bot settings and server entries", func() {
		cfg, err := config.Parse(strings.NewReader(sampleConfig))
		Expect(err).NotTo(HaveOccurred())

		Expect(cfg.Bot.LogPath).To(Equal("/tmp/ircmux.log"))
		Expect(cfg.Bot.MinLevel()).To(Equal(logpipeline.LevelDebug))
		Expect(cfg.Bot.MetricsPort).To(Equal(9102))
		Expect(cfg.Servers).To(HaveLen(2))

		libera := cfg.Servers[0]
		Expect(libera.SSL).To(BeTrue())
		Expect(libera.Channels).To(Equal(config.StringList{"#test", "#open"}))
		Expect(libera.ChannelsPW).To(Equal(config.StringList{"secret", ""}))

		Expect(cfg.Servers[1].Channels).To(Equal(config.StringList{"#a", "#b"}))
		Expect(*cfg.Servers[1].AutoConnect).To(BeFalse())
	})

	It("rejects unknown keys", func() {
		_, err := config.Parse(strings.NewReader("bot:\n  logfile: x\n"))
		Expect(err).To(HaveOccurred())
	})

	It("accepts an empty document", func() {
		cfg, err := config.Parse(strings.NewReader(""))
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.Servers).To(BeEmpty())
	})
})

var _ = Describe("BuildDefinitions", func() {
	build := func(sc config.ServerConfig) (config.ServerDefinition, []config.Issue) {
		defs, issues := config.BuildDefinitions([]config.ServerConfig{sc})
		Expect(defs).To(HaveLen(1))

		return defs[0], issues
	}

	base := func() config.ServerConfig {
		return config.ServerConfig{Name: "libera", Address: "irc.libera.chat", Port: 6667, User: "ircmux"}
	}

	It("pairs channels with passwords by position", func() {
		sc := base()
		sc.Channels = config.StringList{"#test", "#open"}
		sc.ChannelsPW = config.StringList{"secret", ""}

		def, issues := build(sc)
		Expect(issues).To(BeEmpty())
		Expect(def.Channels).To(Equal(map[string]string{"#test": "secret", "#open": ""}))
	})

	It("joins without keys when no passwords are configured", func() {
		sc := base()
		sc.Channels = config.StringList{"#test", "#open"}

		def, issues := build(sc)
		Expect(issues).To(BeEmpty())
		Expect(def.Channels).To(Equal(map[string]string{"#test": "", "#open": ""}))
	})

	It("joins nothing and warns once when the lists differ in length", func() {
		sc := base()
		sc.Channels = config.StringList{"#a", "#b"}
		sc.ChannelsPW = config.StringList{"x"}

		def, issues := build(sc)
		Expect(def.Channels).To(BeEmpty())
		Expect(issues).To(HaveLen(1))
		Expect(issues[0].Severity).To(Equal(config.IssueWarning))
		Expect(errors.Is(issues[0], config.ErrChannelListMismatch)).To(BeTrue())
	})

	It("skips invalid and duplicate channel names with a warning each", func() {
		sc := base()
		sc.Channels = config.StringList{"#ok", "nohash", "#ok", "#with space"}

		def, issues := build(sc)
		Expect(def.ChannelNames()).To(Equal([]string{"#ok"}))
		Expect(issues).To(HaveLen(3))
	})

	It("treats channel names differing only in case as duplicates", func() {
		sc := base()
		sc.Channels = config.StringList{"#Go", "#go", "#GO", "#rust"}
		sc.ChannelsPW = config.StringList{"first", "second", "third", ""}

		def, issues := build(sc)
		Expect(def.Channels).To(Equal(map[string]string{"#Go": "first", "#rust": ""}))
		Expect(issues).To(HaveLen(2))
		for _, issue := range issues {
			Expect(errors.Is(issue, config.ErrDuplicateChannel)).To(BeTrue())
		}
	})

	It("defaults the nickname to the user name", func() {
		def, _ := build(base())
		Expect(def.Nickname).To(Equal("ircmux"))
		Expect(def.RealNameOrDefault()).To(Equal("ircmux"))
		Expect(def.AutoConnect).To(BeTrue())
	})

	It("keeps incomplete entries for the coordinator to reject", func() {
		sc := base()
		sc.Address = "  "

		def, _ := build(sc)
		Expect(def.Validate()).To(MatchError(standarderrors.ErrConfigInvalid))
	})
})

var _ = Describe("ServerDefinition", func() {
	valid := func() config.ServerDefinition {
		return config.ServerDefinition{
			Name:     "libera",
			Address:  "irc.libera.chat",
			Port:     6697,
			Username: "ircmux",
			Channels: map[string]string{"#test": "secret"},
		}
	}

	DescribeTable("Validate",
		func(mutate func(*config.ServerDefinition), ok bool) {
			def := valid()
			mutate(&def)

			err := def.Validate()
			if ok {
				Expect(err).NotTo(HaveOccurred())
			} else {
				Expect(err).To(MatchError(standarderrors.ErrConfigInvalid))
			}
		},
		Entry("valid", func(*config.ServerDefinition) {}, true),
		Entry("blank address", func(d *config.ServerDefinition) { d.Address = "" }, false),
		Entry("zero port", func(d *config.ServerDefinition) { d.Port = 0 }, false),
		Entry("port too large", func(d *config.ServerDefinition) { d.Port = 70000 }, false),
		Entry("blank user", func(d *config.ServerDefinition) { d.Username = " " }, false),
		Entry("blank name", func(d *config.ServerDefinition) { d.Name = "" }, false),
		Entry("nick with space", func(d *config.ServerDefinition) { d.Nickname = "a b" }, false),
	)

	It("clones the channel map", func() {
		def := valid()
		clone := def.Clone()
		clone.Channels["#other"] = ""

		Expect(def.Channels).To(HaveLen(1))
		Expect(clone.Addr()).To(Equal("irc.libera.chat:6697"))
	})
})

var _ = Describe("Defaults and environment", func() {
	It("fills in path and level and replaces unknown levels", func() {
		cfg := config.FullConfig{Bot: config.BotConfig{LogLevel: "loud"}}
		config.ApplyDefaults(&cfg, zap.NewNop().Sugar())

		Expect(cfg.Bot.LogPath).To(Equal(constants.DefaultLogPath))
		Expect(cfg.Bot.LogLevel).To(Equal(constants.DefaultLogLevel))
	})

	It("lets the environment override the file", func() {
		dir := GinkgoT().TempDir()
		path := filepath.Join(dir, "config.yaml")
		Expect(os.WriteFile(path, []byte(sampleConfig), 0o600)).To(Succeed())

		Expect(os.Setenv("IRCMUX_LOG_PATH", filepath.Join(dir, "bot.log"))).To(Succeed())
		Expect(os.Setenv("IRCMUX_CONTROL_PORT", "8081")).To(Succeed())
		DeferCleanup(os.Unsetenv, "IRCMUX_LOG_PATH")
		DeferCleanup(os.Unsetenv, "IRCMUX_CONTROL_PORT")
		Expect(os.Setenv("IRCMUX_SOCKS_PROXY", "127.0.0.1:1080")).To(Succeed())
		DeferCleanup(os.Unsetenv, "IRCMUX_SOCKS_PROXY")

		cfg, err := config.LoadWithEnvOverrides(path, zap.NewNop().Sugar())
		Expect(err).NotTo(HaveOccurred())

		Expect(cfg.Bot.LogPath).To(Equal(filepath.Join(dir, "bot.log")))
		Expect(cfg.Bot.ControlPort).To(Equal(8081))
		Expect(cfg.Bot.MetricsPort).To(Equal(9102))
		Expect(cfg.Bot.SocksProxy).To(Equal("127.0.0.1:1080"))
	})

	It("fails for a missing file", func() {
		_, err := config.Load(filepath.Join(GinkgoT().TempDir(), "missing.yaml"))
		Expect(err).To(HaveOccurred())
	})
})
