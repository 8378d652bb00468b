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
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"

	"github.com/goccy/go-json"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/united-manufacturing-hub/ircmux/pkg/control"
	"github.com/united-manufacturing-hub/ircmux/pkg/standarderrors"
	"github.com/united-manufacturing-hub/ircmux/pkg/worker"
)

var _ = Describe("HTTPServer", func() {
	var (
		dispatcher *fakeDispatcher
		handler    http.Handler
	)

	BeforeEach(func() {
		dispatcher = newFakeDispatcher(
			worker.Status{Server: "alpha", State: worker.StateActive, Joined: []string{"#a"}},
			worker.Status{Server: "beta", State: worker.StateIdle},
		)
		handler = control.NewHTTPServer(dispatcher, nil).Handler()
	})

	do := func(method, path, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, strings.NewReader(body))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		return rec
	}

	It("answers health checks", func() {
		rec := do(http.MethodGet, "/healthz", "")
		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Body.String()).To(MatchJSON(`{"status":"ok"}`))
	})

	It("lists every server", func() {
		rec := do(http.MethodGet, "/api/v1/servers", "")
		Expect(rec.Code).To(Equal(http.StatusOK))

		var statuses []worker.Status
		Expect(json.Unmarshal(rec.Body.Bytes(), &statuses)).To(Succeed())
		Expect(statuses).To(HaveLen(2))
		Expect(statuses[0].Server).To(Equal("alpha"))
		Expect(statuses[0].Joined).To(Equal([]string{"#a"}))
	})

	It("returns one server or 404", func() {
		rec := do(http.MethodGet, "/api/v1/servers/beta", "")
		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Body.String()).To(ContainSubstring(`"state":"idle"`))

		rec = do(http.MethodGet, "/api/v1/servers/gamma", "")
		Expect(rec.Code).To(Equal(http.StatusNotFound))
	})

	Describe("POST commands", func() {
		It("accepts a command for a known server", func() {
			rec := do(http.MethodPost, "/api/v1/servers/alpha/commands", `{"kind":"send-raw","payload":"PRIVMSG #a :hi"}`)
			Expect(rec.Code).To(Equal(http.StatusAccepted))

			var resp control.CommandResponse
			Expect(json.Unmarshal(rec.Body.Bytes(), &resp)).To(Succeed())
			Expect(resp.Server).To(Equal("alpha"))
			Expect(resp.ID).NotTo(BeEmpty())

			commands := dispatcher.Commands()
			Expect(commands).To(HaveLen(1))
			Expect(commands[0].Kind).To(Equal(worker.CommandSendRaw))
			Expect(commands[0].Payload).To(Equal("PRIVMSG #a :hi"))
			Expect(commands[0].ID.String()).To(Equal(resp.ID))
		})

		It("waits for the worker when asked to", func() {
			rec := do(http.MethodPost, "/api/v1/servers/alpha/commands?wait=true", `{"kind":"connect"}`)
			Expect(rec.Code).To(Equal(http.StatusOK))

			dispatcher.reply = standarderrors.ErrNotConnected
			rec = do(http.MethodPost, "/api/v1/servers/beta/commands?wait=true", `{"kind":"send-raw","payload":"PING x"}`)
			Expect(rec.Code).To(Equal(http.StatusConflict))
			Expect(rec.Body.String()).To(ContainSubstring("not connected"))
		})

		DescribeTable("maps failures to status codes",
			func(path, body string, dispatchErr error, code int) {
				dispatcher.err = dispatchErr

				Expect(do(http.MethodPost, path, body).Code).To(Equal(code))
			},
			Entry("unknown server", "/api/v1/servers/gamma/commands", `{"kind":"connect"}`, nil, http.StatusNotFound),
			Entry("full queue", "/api/v1/servers/alpha/commands", `{"kind":"connect"}`, standarderrors.ErrCommandQueueFull, http.StatusServiceUnavailable),
			Entry("stopped", "/api/v1/servers/alpha/commands", `{"kind":"connect"}`, standarderrors.ErrCoordinatorStopped, http.StatusServiceUnavailable),
			Entry("other", "/api/v1/servers/alpha/commands", `{"kind":"connect"}`, errors.New("boom"), http.StatusBadRequest),
			Entry("malformed body", "/api/v1/servers/alpha/commands", `{"kind":`, nil, http.StatusBadRequest),
			Entry("unknown kind", "/api/v1/servers/alpha/commands", `{"kind":"explode"}`, nil, http.StatusBadRequest),
		)
	})
})
