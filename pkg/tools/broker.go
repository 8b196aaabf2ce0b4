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

// Package tools provides the multi-server tool broker. It owns one
// connector per configured MCP server and exposes their tools under a
// single flat, collision-checked namespace.
package tools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/helmsman-ai/helmsman/pkg/config"
	"github.com/helmsman-ai/helmsman/pkg/logger"
	"github.com/helmsman-ai/helmsman/pkg/mcp"
	"github.com/helmsman-ai/helmsman/pkg/metrics"
)

// ErrToolNotFound is returned by CallTool for names absent from the
// registry.
var ErrToolNotFound = errors.New("tool not found")

// ErrNotReady is returned while the broker has not finished Init.
var ErrNotReady = errors.New("tool broker not ready")

// ToolDescriptor is the broker's JSON-serializable view of one tool.
type ToolDescriptor struct {
	Name        string               `json:"name"`
	Description string               `json:"description"`
	InputSchema map[string]any       `json:"input_schema"`
	ServerID    string               `json:"server_id"`
	Transport   config.TransportType `json:"transport"`
}

// connectorFactory builds a connector from a server config. Swapped out in
// tests.
type connectorFactory func(cfg config.ToolServerConfig) (mcp.Connector, error)

// Broker aggregates tools from all configured servers.
type Broker struct {
	factory connectorFactory
	log     *slog.Logger

	mu         sync.RWMutex
	ready      bool
	configs    map[string]config.ToolServerConfig
	connectors map[string]mcp.Connector
	tools      map[string]ToolDescriptor
}

// NewBroker creates an empty, not-yet-ready broker.
func NewBroker() *Broker {
	return newBroker(mcp.NewConnector)
}

func newBroker(factory connectorFactory) *Broker {
	return &Broker{
		factory:    factory,
		log:        logger.GetLogger(),
		configs:    make(map[string]config.ToolServerConfig),
		connectors: make(map[string]mcp.Connector),
		tools:      make(map[string]ToolDescriptor),
	}
}

// Init connects all configured servers and builds the tool registry.
// Servers without interactive auth connect concurrently; OAuth servers
// connect one at a time because each bootstrap occupies the process-wide
// authorization callback.
//
// A server that fails to connect or list is logged and skipped; Init only
// fails on tool name collisions or a duplicated server id.
func (b *Broker) Init(ctx context.Context, configs []config.ToolServerConfig) error {
	// Reject duplicated ids before dialing anything, so a bad config never
	// costs a connection.
	b.mu.Lock()
	for _, cfg := range configs {
		if _, dup := b.configs[cfg.ServerID]; dup {
			b.mu.Unlock()
			return fmt.Errorf("duplicate server id %q", cfg.ServerID)
		}
		b.configs[cfg.ServerID] = cfg
	}
	b.mu.Unlock()

	var plain, oauth []config.ToolServerConfig
	for _, cfg := range configs {
		if cfg.Auth.IsOAuth() {
			oauth = append(oauth, cfg)
		} else {
			plain = append(plain, cfg)
		}
	}

	var mu sync.Mutex
	connected := make(map[string]mcp.Connector)

	g, gctx := errgroup.WithContext(ctx)
	for _, cfg := range plain {
		g.Go(func() error {
			conn, err := b.connectOne(gctx, cfg)
			if err != nil {
				b.log.Error("Tool server unavailable, skipping", "server_id", cfg.ServerID, "error", err)
				return nil
			}
			mu.Lock()
			connected[cfg.ServerID] = conn
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for _, cfg := range oauth {
		conn, err := b.connectOne(ctx, cfg)
		if err != nil {
			b.log.Error("Tool server unavailable, skipping", "server_id", cfg.ServerID, "error", err)
			continue
		}
		connected[cfg.ServerID] = conn
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	// A failed registration must not leak owner goroutines or child
	// processes: tear down everything this call connected.
	fail := func(err error) error {
		for serverID, conn := range connected {
			conn.Disconnect()
			delete(b.connectors, serverID)
		}
		for name, tool := range b.tools {
			if _, ours := connected[tool.ServerID]; ours {
				delete(b.tools, name)
			}
		}
		return err
	}

	for serverID, conn := range connected {
		if err := b.registerLocked(ctx, conn); err != nil {
			return fail(err)
		}
		b.connectors[serverID] = conn
	}

	b.ready = true
	b.log.Info("Tool broker ready", "servers", len(b.connectors), "tools", len(b.tools))
	return nil
}

// connectOne dials a server and verifies its tool listing. A listing
// failure right after connect gets exactly one reconnect attempt before
// the server is dropped.
func (b *Broker) connectOne(ctx context.Context, cfg config.ToolServerConfig) (mcp.Connector, error) {
	conn, err := b.factory(cfg)
	if err != nil {
		return nil, err
	}
	if err := conn.Connect(ctx); err != nil {
		return nil, err
	}

	if _, err := conn.ListTools(ctx); err != nil {
		b.log.Warn("Tool listing failed after connect, reconnecting once",
			"server_id", cfg.ServerID, "error", err)
		conn.Disconnect()

		conn, err = b.factory(cfg)
		if err != nil {
			return nil, err
		}
		if err := conn.Connect(ctx); err != nil {
			return nil, err
		}
		if _, err := conn.ListTools(ctx); err != nil {
			conn.Disconnect()
			return nil, fmt.Errorf("tool listing failed twice: %w", err)
		}
	}
	return conn, nil
}

// registerLocked merges a connector's tools into the registry. Caller
// holds b.mu.
func (b *Broker) registerLocked(ctx context.Context, conn mcp.Connector) error {
	listed, err := conn.ListTools(ctx)
	if err != nil {
		return fmt.Errorf("server %s: %w", conn.ServerID(), err)
	}

	for _, tool := range listed {
		if existing, dup := b.tools[tool.Name]; dup {
			return fmt.Errorf("tool name collision: %q exposed by both %s and %s",
				tool.Name, existing.ServerID, conn.ServerID())
		}
		b.tools[tool.Name] = ToolDescriptor{
			Name:        tool.Name,
			Description: tool.Description,
			InputSchema: tool.InputSchema,
			ServerID:    conn.ServerID(),
			Transport:   conn.Transport(),
		}
	}
	return nil
}

// Ready reports whether Init has completed.
func (b *Broker) Ready() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.ready
}

// ListTools returns a snapshot of the registry, sorted by tool name.
func (b *Broker) ListTools() []ToolDescriptor {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]ToolDescriptor, 0, len(b.tools))
	for _, tool := range b.tools {
		out = append(out, tool)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// HasTool reports whether a name is in the registry.
func (b *Broker) HasTool(name string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.tools[name]
	return ok
}

// CallTool routes a call to the owning server and returns the first text
// content of the result.
func (b *Broker) CallTool(ctx context.Context, name string, args map[string]any) (string, error) {
	b.mu.RLock()
	if !b.ready {
		b.mu.RUnlock()
		return "", ErrNotReady
	}
	tool, ok := b.tools[name]
	if !ok {
		b.mu.RUnlock()
		return "", fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}
	conn := b.connectors[tool.ServerID]
	b.mu.RUnlock()

	started := time.Now()
	result, err := conn.CallTool(ctx, name, args)
	metrics.RecordToolCall(name, err, time.Since(started))
	return result, err
}

// Reconnect tears down and re-establishes one server's connection,
// refreshing its registry entries. Tool names owned by other servers are
// untouched.
func (b *Broker) Reconnect(ctx context.Context, serverID string) error {
	b.mu.Lock()
	cfg, ok := b.configs[serverID]
	if !ok {
		b.mu.Unlock()
		return fmt.Errorf("unknown server id %q", serverID)
	}
	if old, connected := b.connectors[serverID]; connected {
		old.Disconnect()
		delete(b.connectors, serverID)
	}
	for name, tool := range b.tools {
		if tool.ServerID == serverID {
			delete(b.tools, name)
		}
	}
	b.mu.Unlock()

	conn, err := b.connectOne(ctx, cfg)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.registerLocked(ctx, conn); err != nil {
		conn.Disconnect()
		return err
	}
	b.connectors[serverID] = conn
	return nil
}

// Shutdown disconnects all servers. Best effort; always succeeds.
func (b *Broker) Shutdown() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, conn := range b.connectors {
		conn.Disconnect()
	}
	b.connectors = make(map[string]mcp.Connector)
	b.tools = make(map[string]ToolDescriptor)
	b.ready = false
}
