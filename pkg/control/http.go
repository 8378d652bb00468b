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

package control

import (
	"context"
	"errors"
	"net/http"
	"time"

	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/united-manufacturing-hub/ircmux/pkg/sentry"
	"github.com/united-manufacturing-hub/ircmux/pkg/standarderrors"
	"github.com/united-manufacturing-hub/ircmux/pkg/worker"
)

// ReplyTimeout bounds how long a request with ?wait=true waits for the worker.
const ReplyTimeout = 5 * time.Second

// CommandRequest is the body of POST /api/v1/servers/:name/commands.
type CommandRequest struct {
	Kind    worker.CommandKind `json:"kind"`
	Payload string             `json:"payload,omitempty"`
}

// CommandResponse acknowledges a dispatched command.
type CommandResponse struct {
	ID     string `json:"id"`
	Server string `json:"server"`
	Kind   string `json:"kind"`
	Error  string `json:"error,omitempty"`
}

// HTTPServer exposes worker status and command dispatch over HTTP.
type HTTPServer struct {
	dispatcher Dispatcher
	router     *gin.Engine
	log        *zap.Logger
	server     *http.Server
}

// NewHTTPServer builds the router. Requests are logged to log.
func NewHTTPServer(dispatcher Dispatcher, log *zap.Logger) *HTTPServer {
	if log == nil {
		log = zap.NewNop()
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	router.Use(ginzap.Ginzap(log, time.RFC3339, true))
	router.Use(ginzap.RecoveryWithZap(log, true))

	s := &HTTPServer{
		dispatcher: dispatcher,
		router:     router,
		log:        log,
	}

	router.GET("/healthz", s.healthz)

	v1 := router.Group("/api/v1")
	v1.GET("/servers", s.listServers)
	v1.GET("/servers/:name", s.getServer)
	v1.POST("/servers/:name/commands", s.postCommand)

	return s
}

// Handler returns the router.
func (s *HTTPServer) Handler() http.Handler {
	return s.router
}

// Start listens on addr in the background.
func (s *HTTPServer) Start(addr string) {
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			sentry.ReportIssue(err, sentry.IssueTypeError, s.log.Sugar())
		}
	}()
}

// Shutdown stops a started server.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}

	return s.server.Shutdown(ctx)
}

func (s *HTTPServer) healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *HTTPServer) listServers(c *gin.Context) {
	c.JSON(http.StatusOK, s.dispatcher.Statuses())
}

func (s *HTTPServer) getServer(c *gin.Context) {
	st, err := s.dispatcher.Status(c.Param("name"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})

		return
	}

	c.JSON(http.StatusOK, st)
}

func (s *HTTPServer) postCommand(c *gin.Context) {
	var req CommandRequest
	if err := json.NewDecoder(c.Request.Body).Decode(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})

		return
	}

	if !req.Kind.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown command kind " + string(req.Kind)})

		return
	}

	cmd := worker.NewCommand(req.Kind, c.Param("name"), req.Payload)

	wait := c.Query("wait") == "true"
	if wait {
		cmd = cmd.WithReply()
	}

	resp := CommandResponse{ID: cmd.ID.String(), Server: cmd.Server, Kind: string(cmd.Kind)}

	if err := s.dispatcher.Dispatch(cmd); err != nil {
		resp.Error = err.Error()
		c.JSON(statusFor(err), resp)

		return
	}

	if !wait {
		c.JSON(http.StatusAccepted, resp)

		return
	}

	select {
	case err := <-cmd.Reply:
		if err != nil {
			resp.Error = err.Error()
			c.JSON(statusFor(err), resp)

			return
		}

		c.JSON(http.StatusOK, resp)
	case <-time.After(ReplyTimeout):
		resp.Error = "no reply from worker"
		c.JSON(http.StatusGatewayTimeout, resp)
	case <-c.Request.Context().Done():
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, standarderrors.ErrCommandTargetNotFound):
		return http.StatusNotFound
	case errors.Is(err, standarderrors.ErrCommandQueueFull), errors.Is(err, standarderrors.ErrCoordinatorStopped):
		return http.StatusServiceUnavailable
	case errors.Is(err, standarderrors.ErrNotConnected):
		return http.StatusConflict
	default:
		return http.StatusBadRequest
	}
}
