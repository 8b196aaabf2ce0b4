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

package mcp

import (
	"context"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/client"

	"github.com/helmsman-ai/helmsman/pkg/config"
	"github.com/helmsman-ai/helmsman/pkg/logger"
)

// stdioHandshakeTimeout bounds the subprocess handshake. Slow-starting
// servers get exactly one retry.
const stdioHandshakeTimeout = 30 * time.Second

// NewStdioConnector creates a connector that spawns the configured command
// and speaks MCP over its stdio pipes.
func NewStdioConnector(cfg config.ToolServerConfig) Connector {
	return newServiceConn(cfg.ServerID, config.TransportStdio, func(ctx context.Context) (*client.Client, error) {
		mcpClient, err := dialStdio(ctx, cfg)
		if err == nil || !isTimeout(err) {
			return mcpClient, err
		}

		// Some servers take a while on first spawn (package downloads,
		// interpreter startup). One retry covers that.
		logger.GetLogger().Warn("stdio handshake timed out, retrying once",
			"server_id", cfg.ServerID, "command", cfg.Command)
		return dialStdio(ctx, cfg)
	})
}

func dialStdio(ctx context.Context, cfg config.ToolServerConfig) (*client.Client, error) {
	mcpClient, err := client.NewStdioMCPClient(cfg.Command, convertEnv(cfg.Env), cfg.Args...)
	if err != nil {
		return nil, fmt.Errorf("failed to spawn %s: %w", cfg.Command, err)
	}

	handshakeCtx, cancel := context.WithTimeout(ctx, stdioHandshakeTimeout)
	defer cancel()

	if err := handshake(handshakeCtx, mcpClient); err != nil {
		_ = mcpClient.Close()
		return nil, err
	}
	return mcpClient, nil
}

// NewConnector builds the connector matching the server config's transport.
func NewConnector(cfg config.ToolServerConfig) (Connector, error) {
	switch cfg.Type {
	case config.TransportHTTP:
		return NewHTTPConnector(cfg), nil
	case config.TransportStdio:
		return NewStdioConnector(cfg), nil
	default:
		return nil, fmt.Errorf("server %s: unknown transport %q", cfg.ServerID, cfg.Type)
	}
}
