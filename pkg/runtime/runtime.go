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

// Package runtime assembles the process: config, LLM port, tool broker,
// agent service and the HTTP edge, with ordered startup and shutdown.
package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/helmsman-ai/helmsman/pkg/agent"
	"github.com/helmsman-ai/helmsman/pkg/config"
	"github.com/helmsman-ai/helmsman/pkg/llms"
	"github.com/helmsman-ai/helmsman/pkg/logger"
	"github.com/helmsman-ai/helmsman/pkg/server"
	"github.com/helmsman-ai/helmsman/pkg/tools"
)

// shutdownGrace bounds the drain of in-flight requests on shutdown.
const shutdownGrace = 15 * time.Second

// Runtime is the assembled process.
type Runtime struct {
	cfg    *config.Config
	llm    llms.Port
	broker *tools.Broker
	server *server.Server
	log    *slog.Logger
}

// New builds all components from the config. The broker is created but
// not yet connected; Run connects it in the background so the edge can
// come up immediately and report readiness via /health.
func New(cfg *config.Config) (*Runtime, error) {
	llm, err := llms.NewFromConfig(&cfg.LLM)
	if err != nil {
		return nil, fmt.Errorf("failed to create LLM port: %w", err)
	}

	broker := tools.NewBroker()
	service := agent.NewService(llm, broker, cfg.Agent)

	return &Runtime{
		cfg:    cfg,
		llm:    llm,
		broker: broker,
		server: server.New(cfg, llm, broker, service),
		log:    logger.GetLogger(),
	}, nil
}

// Run starts the edge and the broker and blocks until SIGINT/SIGTERM or a
// server failure. Shutdown is ordered: listener drains first, then tool
// servers disconnect.
func (r *Runtime) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The broker initializes in the background: OAuth-protected servers
	// cannot finish their bootstrap before the callback endpoint is
	// listening.
	go func() {
		if err := r.broker.Init(ctx, r.cfg.ToolServers); err != nil {
			r.log.Error("Tool broker initialization failed", "error", err)
		}
	}()

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- r.server.Start()
	}()

	select {
	case err := <-serverErr:
		r.shutdown()
		return err
	case <-ctx.Done():
		r.log.Info("Shutting down")
	}

	drainCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := r.server.Stop(drainCtx); err != nil {
		r.log.Warn("HTTP server shutdown incomplete", "error", err)
	}

	r.shutdown()
	return nil
}

func (r *Runtime) shutdown() {
	r.broker.Shutdown()
	if err := r.llm.Close(); err != nil {
		r.log.Warn("LLM port close failed", "error", err)
	}
}
