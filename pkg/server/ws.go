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

package server

import (
	"context"
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/helmsman-ai/helmsman/pkg/agent"
	"github.com/helmsman-ai/helmsman/pkg/llms"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

const wsCloseTimeout = 5 * time.Second

// acceptWS upgrades the connection, enforces the query token and reads the
// first text frame as the prompt. Returns a nil conn when the handshake
// did not complete.
func (s *Server) acceptWS(w http.ResponseWriter, r *http.Request) (*websocket.Conn, string, bool) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug("WebSocket upgrade failed", "error", err)
		return nil, "", false
	}

	if token := s.cfg.Server.BearerToken; token != "" {
		presented := r.URL.Query().Get("token")
		if subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
			s.closeWS(conn, websocket.ClosePolicyViolation, "unauthorized")
			conn.Close()
			return nil, "", false
		}
	}

	_, message, err := conn.ReadMessage()
	if err != nil {
		conn.Close()
		return nil, "", false
	}
	return conn, string(message), true
}

func (s *Server) closeWS(conn *websocket.Conn, code int, reason string) {
	deadline := time.Now().Add(wsCloseTimeout)
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason), deadline)
}

// watchDisconnect cancels the run when the client goes away. The client is
// not expected to send further frames; any read result other than a
// timeout means the connection is done.
func watchDisconnect(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn) {
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				cancel()
				return
			}
			select {
			case <-ctx.Done():
				return
			default:
			}
		}
	}()
}

// handleWSCall streams a direct LLM completion token by token, ending with
// a {complete, result} frame.
func (s *Server) handleWSCall(w http.ResponseWriter, r *http.Request) {
	conn, prompt, ok := s.acceptWS(w, r)
	if !ok {
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(r.Context(), s.runTimeout())
	defer cancel()
	watchDisconnect(ctx, cancel, conn)

	stream, err := s.llm.CallStream(ctx, llms.CallRequest{Prompt: prompt})
	if err != nil {
		_ = conn.WriteJSON(map[string]any{"error": err.Error()})
		s.closeWS(conn, websocket.CloseInternalServerErr, "stream failed")
		return
	}

	for chunk := range stream {
		if chunk.Error != nil {
			_ = conn.WriteJSON(map[string]any{"error": chunk.Error.Error()})
			s.closeWS(conn, websocket.CloseInternalServerErr, "stream failed")
			return
		}
		switch chunk.Type {
		case llms.ChunkTypeText:
			if err := conn.WriteMessage(websocket.TextMessage, []byte(chunk.Text)); err != nil {
				cancel()
				return
			}
		case llms.ChunkTypeDone:
			_ = conn.WriteJSON(map[string]any{"complete": true, "result": chunk.Text})
		}
	}
	s.closeWS(conn, websocket.CloseNormalClosure, "")
}

// handleWSCallMCP runs a single-step agent loop and replies with one
// {result, trace} frame.
func (s *Server) handleWSCallMCP(w http.ResponseWriter, r *http.Request) {
	conn, prompt, ok := s.acceptWS(w, r)
	if !ok {
		return
	}
	defer conn.Close()

	if !s.broker.Ready() {
		_ = conn.WriteJSON(map[string]any{"error": "tool broker not ready"})
		s.closeWS(conn, websocket.CloseTryAgainLater, "broker not ready")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.runTimeout())
	defer cancel()
	watchDisconnect(ctx, cancel, conn)

	session := agent.NewSession(prompt, 1)
	result, trace := s.service.Run(ctx, session, nil)

	_ = conn.WriteJSON(runResponse{Result: result, Trace: trace})
	s.closeWS(conn, websocket.CloseNormalClosure, "")
}

// handleWSAgent runs the full loop and streams lifecycle events as
// {event, data} frames, terminated by {event:"final", result, trace} or
// {event:"error", error}.
func (s *Server) handleWSAgent(w http.ResponseWriter, r *http.Request) {
	conn, prompt, ok := s.acceptWS(w, r)
	if !ok {
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(r.Context(), s.runTimeout())
	defer cancel()
	watchDisconnect(ctx, cancel, conn)

	session := agent.NewSession(prompt, s.cfg.Agent.MaxSteps)
	bus := agent.NewEventBus()
	events := bus.Subscribe()

	var result string
	var trace []agent.TraceEntry

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer bus.Close()
		result, trace = s.service.Run(gctx, session, bus)
		return nil
	})
	g.Go(func() error {
		for event := range events {
			if err := conn.WriteJSON(event); err != nil {
				// Client is gone; stop the run too.
				cancel()
				return err
			}
		}
		return nil
	})

	writeErr := g.Wait()
	if writeErr != nil {
		// Client disconnected; nothing left to report to.
		return
	}
	if ctx.Err() != nil {
		_ = conn.WriteJSON(map[string]any{"event": "error", "error": "Operation timed out"})
		s.closeWS(conn, websocket.CloseGoingAway, "")
		return
	}

	if session.State == agent.StateError {
		_ = conn.WriteJSON(map[string]any{"event": "error", "error": result})
	} else {
		_ = conn.WriteJSON(map[string]any{"event": "final", "result": result, "trace": trace})
	}
	s.closeWS(conn, websocket.CloseNormalClosure, "")
}
