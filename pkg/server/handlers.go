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
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/invopop/jsonschema"

	"github.com/helmsman-ai/helmsman/pkg/agent"
	"github.com/helmsman-ai/helmsman/pkg/config"
	"github.com/helmsman-ai/helmsman/pkg/llms"
	"github.com/helmsman-ai/helmsman/pkg/mcp"
)

type promptRequest struct {
	Prompt string `json:"prompt"`
}

type runResponse struct {
	Result string             `json:"result"`
	Trace  []agent.TraceEntry `json:"trace"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func readPrompt(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req promptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return "", false
	}
	if req.Prompt == "" {
		writeError(w, http.StatusBadRequest, "prompt is required")
		return "", false
	}
	return req.Prompt, true
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"mcp_ready": s.broker.Ready(),
	})
}

// handleTools returns the broker registry snapshot as a flat array.
func (s *Server) handleTools(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.broker.ListTools())
}

// handleCall is a direct LLM round trip with no planning and no tools.
// The response keeps the trace and plan slots, both null.
func (s *Server) handleCall(w http.ResponseWriter, r *http.Request) {
	prompt, ok := readPrompt(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.runTimeout())
	defer cancel()

	result, err := s.llm.Call(ctx, llms.CallRequest{Prompt: prompt})
	if err != nil {
		s.log.Error("Direct call failed", "error", err)
		writeError(w, http.StatusInternalServerError, runErrorMessage(ctx, err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"result": result,
		"trace":  nil,
		"plan":   nil,
	})
}

// handleCallMCP runs a single-step agent loop: one plan, at most one tool
// call, one summary.
func (s *Server) handleCallMCP(w http.ResponseWriter, r *http.Request) {
	if !s.broker.Ready() {
		writeError(w, http.StatusServiceUnavailable, "tool broker not ready")
		return
	}

	prompt, ok := readPrompt(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.runTimeout())
	defer cancel()

	session := agent.NewSession(prompt, 1)
	result, trace := s.service.Run(ctx, session, nil)
	writeJSON(w, http.StatusOK, runResponse{Result: result, Trace: trace})
}

// handleAgent runs the full loop with the configured max_steps.
func (s *Server) handleAgent(w http.ResponseWriter, r *http.Request) {
	prompt, ok := readPrompt(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.runTimeout())
	defer cancel()

	session := agent.NewSession(prompt, s.cfg.Agent.MaxSteps)
	result, trace := s.service.Run(ctx, session, nil)

	if ctx.Err() != nil {
		writeError(w, http.StatusInternalServerError, "Operation timed out")
		return
	}
	if session.State == agent.StateError {
		writeJSON(w, http.StatusInternalServerError, runResponse{Result: result, Trace: trace})
		return
	}
	writeJSON(w, http.StatusOK, runResponse{Result: result, Trace: trace})
}

// handleSchema serves the JSON schema of the YAML config file.
func (s *Server) handleSchema(w http.ResponseWriter, r *http.Request) {
	reflector := &jsonschema.Reflector{ExpandedStruct: true}
	schema := reflector.Reflect(&config.Config{})
	writeJSON(w, http.StatusOK, schema)
}

// handleOAuthCallback receives the authorization server redirect and hands
// the code to the connector waiting in its OAuth bootstrap.
func (s *Server) handleOAuthCallback(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	state := r.URL.Query().Get("state")
	if code == "" {
		http.Error(w, "missing code parameter", http.StatusBadRequest)
		return
	}

	if err := mcp.EnqueueAuthCode(code, state); err != nil {
		s.log.Warn("OAuth callback had no consumer", "error", err)
		http.Error(w, "no authorization flow in progress", http.StatusConflict)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintln(w, "Auth received. You can close this window and return to the application.")
}

func runErrorMessage(ctx context.Context, err error) string {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return "Operation timed out"
	}
	return err.Error()
}
