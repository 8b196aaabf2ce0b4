// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Helmsman Authors
//
// Licensed under the GNU Affero General Public License v3.0 (AGPL-3.0) (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.gnu.org/licenses/agpl-3.0.en.html
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package server is the HTTP and WebSocket edge: REST endpoints for
// one-shot calls and agent runs, WebSocket endpoints for streaming, plus
// health, schema, metrics and the OAuth callback.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/helmsman-ai/helmsman/pkg/agent"
	"github.com/helmsman-ai/helmsman/pkg/config"
	"github.com/helmsman-ai/helmsman/pkg/llms"
	"github.com/helmsman-ai/helmsman/pkg/logger"
	"github.com/helmsman-ai/helmsman/pkg/metrics"
	"github.com/helmsman-ai/helmsman/pkg/tools"
)

// Server wires the agent service, broker and LLM port to the network.
type Server struct {
	cfg     *config.Config
	llm     llms.Port
	broker  *tools.Broker
	service *agent.Service
	httpSrv *http.Server
	log     *slog.Logger
}

// New assembles the edge around the given components.
func New(cfg *config.Config, llm llms.Port, broker *tools.Broker, service *agent.Service) *Server {
	s := &Server{
		cfg:     cfg,
		llm:     llm,
		broker:  broker,
		service: service,
		log:     logger.GetLogger(),
	}
	s.httpSrv = &http.Server{
		Addr:              cfg.Server.Address(),
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Router builds the route table. Exposed for tests.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(requestLogging(s.log))
	r.Use(corsMiddleware)

	// Unauthenticated surface: metrics, config schema and the OAuth
	// callback (the authorization server redirects a browser here, it
	// cannot carry our bearer token).
	r.Get("/schema", s.handleSchema)
	r.Method("GET", "/metrics", metrics.Handler())
	r.Get("/mcp/oauth/callback", s.handleOAuthCallback)

	r.Group(func(r chi.Router) {
		r.Use(bearerAuth(s.cfg.Server.BearerToken))

		r.Get("/health", s.handleHealth)
		r.Get("/tools", s.handleTools)
		r.Post("/call", s.handleCall)
		r.Post("/call_mcp", s.handleCallMCP)
		r.Post("/agent", s.handleAgent)
	})

	// WebSocket routes authenticate after the upgrade so a bad token can
	// be answered with a proper close code instead of a failed handshake.
	r.Get("/ws/call", s.handleWSCall)
	r.Get("/ws/call_mcp", s.handleWSCallMCP)
	r.Get("/ws/agent", s.handleWSAgent)

	return r
}

// Start serves until the listener fails or Stop is called.
func (s *Server) Start() error {
	s.log.Info("HTTP server listening", "address", s.cfg.Server.Address())
	if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("HTTP server failed: %w", err)
	}
	return nil
}

// Stop drains in-flight requests and shuts the listener down.
func (s *Server) Stop(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

// runTimeout bounds one-shot (non-streaming) runs.
func (s *Server) runTimeout() time.Duration {
	return time.Duration(s.cfg.Server.RunTimeoutSeconds) * time.Second
}
