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
	"bytes"
	"context"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/united-manufacturing-hub/ircmux/pkg/control"
	"github.com/united-manufacturing-hub/ircmux/pkg/coordinator"
	"github.com/united-manufacturing-hub/ircmux/pkg/standarderrors"
	"github.com/united-manufacturing-hub/ircmux/pkg/worker"
)

var _ = Describe("Terminal", func() {
	var (
		dispatcher *fakeDispatcher
		out        *bytes.Buffer
		terminal   *control.Terminal
	)

	BeforeEach(func() {
		dispatcher = newFakeDispatcher(
			worker.Status{Server: "alpha", State: worker.StateActive, Nickname: "bot", Joined: []string{"#a", "#b"}},
			worker.Status{Server: "beta", State: worker.StateReconnecting, LastError: "connection refused"},
		)
		out = &bytes.Buffer{}
		terminal = control.NewTerminal(dispatcher, strings.NewReader(""), out, nil)
	})

	last := func() worker.Command {
		commands := dispatcher.Commands()
		ExpectWithOffset(1, commands).NotTo(BeEmpty())

		return commands[len(commands)-1]
	}

	DescribeTable("turns lines into commands",
		func(line string, kind worker.CommandKind, server, payload string) {
			Expect(terminal.Execute(line)).To(BeFalse())

			cmd := last()
			Expect(cmd.Kind).To(Equal(kind))
			Expect(cmd.Server).To(Equal(server))
			Expect(cmd.Payload).To(Equal(payload))
			Expect(out.String()).To(HavePrefix("ok: "))
		},
		Entry("connect", "connect alpha", worker.CommandConnect, "alpha", ""),
		Entry("disconnect without reason", "disconnect alpha", worker.CommandDisconnect, "alpha", ""),
		Entry("disconnect with reason", "  disconnect   alpha  going home ", worker.CommandDisconnect, "alpha", "going home"),
		Entry("raw keeps the line", "raw alpha PRIVMSG #a :hello  world", worker.CommandSendRaw, "alpha", "PRIVMSG #a :hello  world"),
		Entry("send alias", "SEND beta PING x", worker.CommandSendRaw, "beta", "PING x"),
	)

	DescribeTable("answers malformed lines without dispatching",
		func(line, answer string) {
			Expect(terminal.Execute(line)).To(BeFalse())
			Expect(dispatcher.Commands()).To(BeEmpty())
			Expect(out.String()).To(ContainSubstring(answer))
		},
		Entry("unknown verb", "explode alpha", "unknown command"),
		Entry("connect without server", "connect", "usage: connect"),
		Entry("connect with extra words", "connect alpha beta", "usage: connect"),
		Entry("raw without line", "raw alpha", "usage: raw"),
		Entry("disconnect without server", "disconnect", "usage: disconnect"),
	)

	It("ignores blank lines", func() {
		Expect(terminal.Execute("   ")).To(BeFalse())
		Expect(out.String()).To(BeEmpty())
	})

	It("reports unknown servers", func() {
		Expect(terminal.Execute("connect gamma")).To(BeFalse())
		Expect(out.String()).To(Equal("no such server: gamma\n"))
	})

	It("reports dispatch errors", func() {
		dispatcher.err = standarderrors.ErrCommandQueueFull

		terminal.Execute("raw alpha PING x")
		Expect(out.String()).To(ContainSubstring("error: command queue full"))
	})

	It("prints a status table", func() {
		terminal.Execute("status")

		lines := strings.Split(strings.TrimSpace(out.String()), "\n")
		Expect(lines).To(HaveLen(3))
		Expect(lines[0]).To(HavePrefix("SERVER"))
		Expect(lines[1]).To(MatchRegexp(`^alpha\s+active\s+bot\s+#a,#b`))
		Expect(lines[2]).To(MatchRegexp(`^beta\s+reconnecting\s+.*connection refused$`))
	})

	It("prints the status of one server", func() {
		terminal.Execute("status beta")
		Expect(out.String()).To(ContainSubstring("beta"))
		Expect(out.String()).NotTo(ContainSubstring("alpha"))

		out.Reset()
		terminal.Execute("status gamma")
		Expect(out.String()).To(Equal("no such server: gamma\n"))
	})

	It("prints help", func() {
		terminal.Execute("help")
		Expect(out.String()).To(ContainSubstring("disconnect <server> [reason]"))
	})

	It("shuts everything down on quit", func() {
		Expect(terminal.Execute("quit")).To(BeTrue())

		cmd := last()
		Expect(cmd.Kind).To(Equal(worker.CommandShutdown))
		Expect(cmd.Server).To(Equal(coordinator.ShutdownTarget))
	})

	It("stops reading after shutdown", func() {
		input := strings.NewReader("connect alpha\nshutdown\nconnect beta\n")
		terminal = control.NewTerminal(dispatcher, input, out, nil)

		Expect(terminal.Run(context.Background())).To(Succeed())

		commands := dispatcher.Commands()
		Expect(commands).To(HaveLen(2))
		Expect(commands[0].Server).To(Equal("alpha"))
		Expect(commands[1].Kind).To(Equal(worker.CommandShutdown))
	})

	It("returns at the end of input", func() {
		terminal = control.NewTerminal(dispatcher, strings.NewReader("status\n"), out, nil)

		Expect(terminal.Run(context.Background())).To(Succeed())
		Expect(dispatcher.Commands()).To(BeEmpty())
	})
})
