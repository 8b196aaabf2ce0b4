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

// Package mcp manages connections to MCP (Model Context Protocol) tool
// servers over streamable HTTP and stdio transports.
//
// Each connection is owned by a single goroutine. All protocol requests
// are funneled through a request channel, so calls against one server are
// serialized and the underlying client is never touched concurrently.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/mark3labs/mcp-go/client"
	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/helmsman-ai/helmsman/pkg/config"
	"github.com/helmsman-ai/helmsman/pkg/logger"
)

const protocolVersion = "2024-11-05"

const (
	clientName    = "helmsman"
	clientVersion = "0.1.0"
)

// Tool describes one tool exposed by a connected server.
type Tool struct {
	Name        string
	Description string
	InputSchema map[string]any
}

// Connector is one managed MCP server connection.
type Connector interface {
	// ServerID is the configured identifier of this server.
	ServerID() string

	// Transport reports the transport kind.
	Transport() config.TransportType

	// Connect dials and performs the MCP handshake. It blocks until the
	// connection is usable or has failed. Safe to call once per connector.
	Connect(ctx context.Context) error

	// Disconnect tears the connection down. Idempotent.
	Disconnect()

	// ListTools returns the server's tool inventory.
	ListTools(ctx context.Context) ([]Tool, error)

	// CallTool invokes a tool and returns the first text content part.
	// A tool-level failure (IsError result) is returned as an error whose
	// message carries the failure text.
	CallTool(ctx context.Context, name string, args map[string]any) (string, error)
}

// dialFunc creates and handshakes an MCP client. It returns a client that
// has completed Start and Initialize.
type dialFunc func(ctx context.Context) (*client.Client, error)

type connRequest struct {
	ctx  context.Context
	fn   func(ctx context.Context, c *client.Client) (any, error)
	resp chan connResult
}

type connResult struct {
	value any
	err   error
}

// serviceConn is the shared owner-goroutine implementation behind both
// transports.
type serviceConn struct {
	serverID  string
	transport config.TransportType
	dial      dialFunc
	log       *slog.Logger

	requests chan connRequest
	ready    chan struct{}
	dialErr  error

	cancel     context.CancelFunc
	disconnect sync.Once
	done       chan struct{}
}

func newServiceConn(serverID string, transport config.TransportType, dial dialFunc) *serviceConn {
	return &serviceConn{
		serverID:  serverID,
		transport: transport,
		dial:      dial,
		log:       logger.GetLogger().With("server_id", serverID, "transport", transport),
		requests:  make(chan connRequest),
		ready:     make(chan struct{}),
		done:      make(chan struct{}),
	}
}

func (s *serviceConn) ServerID() string                { return s.serverID }
func (s *serviceConn) Transport() config.TransportType { return s.transport }

// Connect starts the owner goroutine and blocks until the handshake
// finishes one way or the other.
func (s *serviceConn) Connect(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	go s.run(runCtx)

	select {
	case <-s.ready:
		if s.dialErr != nil {
			return fmt.Errorf("server %s: %w", s.serverID, s.dialErr)
		}
		s.log.Info("MCP server connected")
		return nil
	case <-ctx.Done():
		s.Disconnect()
		return fmt.Errorf("server %s: connect cancelled: %w", s.serverID, ctx.Err())
	}
}

// run owns the client for the connection's whole lifetime.
func (s *serviceConn) run(ctx context.Context) {
	defer close(s.done)

	mcpClient, err := s.dial(ctx)
	if err != nil {
		s.dialErr = err
		close(s.ready)
		return
	}
	close(s.ready)

	defer func() {
		if err := mcpClient.Close(); err != nil {
			s.log.Debug("MCP client close failed", "error", err)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case req := <-s.requests:
			value, err := req.fn(req.ctx, mcpClient)
			select {
			case req.resp <- connResult{value: value, err: err}:
			case <-req.ctx.Done():
			}
		}
	}
}

// Disconnect cancels the owner goroutine and waits for the client to close.
func (s *serviceConn) Disconnect() {
	s.disconnect.Do(func() {
		if s.cancel != nil {
			s.cancel()
			<-s.done
		}
		s.log.Info("MCP server disconnected")
	})
}

// do submits a request to the owner goroutine and waits for the result.
func (s *serviceConn) do(ctx context.Context, fn func(ctx context.Context, c *client.Client) (any, error)) (any, error) {
	req := connRequest{ctx: ctx, fn: fn, resp: make(chan connResult, 1)}

	select {
	case s.requests <- req:
	case <-s.done:
		return nil, fmt.Errorf("server %s: connection closed", s.serverID)
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case result := <-req.resp:
		return result.value, result.err
	case <-s.done:
		return nil, fmt.Errorf("server %s: connection closed", s.serverID)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// ListTools implements Connector.
func (s *serviceConn) ListTools(ctx context.Context) ([]Tool, error) {
	value, err := s.do(ctx, func(ctx context.Context, c *client.Client) (any, error) {
		resp, err := c.ListTools(ctx, mcplib.ListToolsRequest{})
		if err != nil {
			return nil, fmt.Errorf("failed to list tools: %w", err)
		}

		tools := make([]Tool, 0, len(resp.Tools))
		for _, t := range resp.Tools {
			tools = append(tools, Tool{
				Name:        t.Name,
				Description: t.Description,
				InputSchema: convertSchema(t.InputSchema),
			})
		}
		return tools, nil
	})
	if err != nil {
		return nil, err
	}
	return value.([]Tool), nil
}

// CallTool implements Connector.
func (s *serviceConn) CallTool(ctx context.Context, name string, args map[string]any) (string, error) {
	value, err := s.do(ctx, func(ctx context.Context, c *client.Client) (any, error) {
		req := mcplib.CallToolRequest{}
		req.Params.Name = name
		req.Params.Arguments = args

		resp, err := c.CallTool(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("MCP call failed: %w", err)
		}

		text := firstTextContent(resp.Content)
		if resp.IsError {
			if text == "" {
				text = "unknown error"
			}
			return nil, fmt.Errorf("tool %s failed: %s", name, text)
		}
		return text, nil
	})
	if err != nil {
		return "", err
	}
	return value.(string), nil
}

// handshake performs Start and Initialize on a freshly created client.
func handshake(ctx context.Context, mcpClient *client.Client) error {
	if err := mcpClient.Start(ctx); err != nil {
		return fmt.Errorf("failed to start MCP client: %w", err)
	}

	initReq := mcplib.InitializeRequest{}
	initReq.Params.ProtocolVersion = protocolVersion
	initReq.Params.ClientInfo = mcplib.Implementation{
		Name:    clientName,
		Version: clientVersion,
	}

	if _, err := mcpClient.Initialize(ctx, initReq); err != nil {
		return fmt.Errorf("failed to initialize MCP: %w", err)
	}
	return nil
}

// firstTextContent extracts the first text part of a tool result. When
// the result carries no text part at all, the first part's JSON form is
// returned instead.
func firstTextContent(content []mcplib.Content) string {
	for _, part := range content {
		if textContent, ok := part.(mcplib.TextContent); ok {
			return textContent.Text
		}
	}
	if len(content) > 0 {
		if raw, err := json.Marshal(content[0]); err == nil {
			return string(raw)
		}
	}
	return ""
}

func convertSchema(schema mcplib.ToolInputSchema) map[string]any {
	out := map[string]any{
		"type": schema.Type,
	}
	if len(schema.Properties) > 0 {
		out["properties"] = schema.Properties
	}
	if len(schema.Required) > 0 {
		out["required"] = schema.Required
	}
	return out
}

// convertEnv flattens an env map to "KEY=VALUE" form for subprocess spawn.
func convertEnv(env map[string]string) []string {
	out := make([]string, 0, len(env))
	for key, value := range env {
		out = append(out, fmt.Sprintf("%s=%s", key, value))
	}
	return out
}

// isTimeout reports whether an error looks like a handshake timeout.
func isTimeout(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "deadline exceeded")
}
