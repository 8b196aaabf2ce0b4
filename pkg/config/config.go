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

// Package config defines the Helmsman runtime configuration.
//
// Configuration is loaded from a YAML file with ${VAR} / ${VAR:-default}
// environment expansion, plus a handful of required environment variables
// (LLM_PROVIDER, API_BEARER_TOKEN, provider credentials). Every struct has
// SetDefaults and Validate; loading fails fast on invalid config.
package config

import (
	"fmt"
)

// Config is the root configuration.
type Config struct {
	// Server configures the edge HTTP/WS server.
	Server ServerConfig `yaml:"server,omitempty" json:"server,omitempty" jsonschema:"title=Server,description=Edge HTTP/WS server settings"`

	// LLM configures the language model provider.
	LLM LLMProviderConfig `yaml:"llm,omitempty" json:"llm,omitempty" jsonschema:"title=LLM,description=Language model provider settings"`

	// Agent configures the agent loop.
	Agent AgentConfig `yaml:"agent,omitempty" json:"agent,omitempty" jsonschema:"title=Agent,description=Agent loop settings"`

	// ToolServers is the ordered list of MCP tool servers to connect at startup.
	ToolServers []ToolServerConfig `yaml:"tool_servers,omitempty" json:"tool_servers,omitempty" jsonschema:"title=Tool Servers,description=MCP tool servers connected at startup"`
}

// SetDefaults applies default values recursively.
func (c *Config) SetDefaults() {
	c.Server.SetDefaults()
	c.LLM.SetDefaults()
	c.Agent.SetDefaults()
	for i := range c.ToolServers {
		c.ToolServers[i].SetDefaults()
	}
}

// Validate checks the configuration, returning the first problem found.
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	if err := c.LLM.Validate(); err != nil {
		return fmt.Errorf("llm: %w", err)
	}
	if err := c.Agent.Validate(); err != nil {
		return fmt.Errorf("agent: %w", err)
	}

	seen := make(map[string]bool, len(c.ToolServers))
	for i := range c.ToolServers {
		sc := &c.ToolServers[i]
		if err := sc.Validate(); err != nil {
			return fmt.Errorf("tool_servers[%d]: %w", i, err)
		}
		if seen[sc.ServerID] {
			return fmt.Errorf("tool_servers: duplicate server_id %q", sc.ServerID)
		}
		seen[sc.ServerID] = true
	}
	return nil
}

// ServerConfig configures the edge server.
type ServerConfig struct {
	// Host to bind. Default: 0.0.0.0
	Host string `yaml:"host,omitempty" json:"host,omitempty" jsonschema:"title=Host,default=0.0.0.0"`

	// Port to listen on. Default: 8000
	Port int `yaml:"port,omitempty" json:"port,omitempty" jsonschema:"title=Port,default=8000"`

	// BearerToken is the shared edge secret. Normally injected from the
	// API_BEARER_TOKEN environment variable; required.
	BearerToken string `yaml:"bearer_token,omitempty" json:"-" jsonschema:"-"`

	// RunTimeoutSeconds bounds a one-shot agent run at the edge. Default: 180.
	RunTimeoutSeconds int `yaml:"run_timeout_seconds,omitempty" json:"run_timeout_seconds,omitempty" jsonschema:"title=Run Timeout,description=One-shot agent run timeout in seconds,default=180"`
}

func (c *ServerConfig) SetDefaults() {
	if c.Host == "" {
		c.Host = "0.0.0.0"
	}
	if c.Port == 0 {
		c.Port = 8000
	}
	if c.RunTimeoutSeconds == 0 {
		c.RunTimeoutSeconds = 180
	}
}

func (c *ServerConfig) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.BearerToken == "" {
		return fmt.Errorf("bearer token is required (set API_BEARER_TOKEN)")
	}
	return nil
}

// Address returns the host:port bind address.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// AgentConfig configures the agent loop.
type AgentConfig struct {
	// MaxSteps is the default step budget per run. Default: 6.
	MaxSteps int `yaml:"max_steps,omitempty" json:"max_steps,omitempty" jsonschema:"title=Max Steps,description=Default step budget per agent run,default=6"`

	// ObservationTokenBudget clips tool observations folded into prompts.
	// Default: 2048.
	ObservationTokenBudget int `yaml:"observation_token_budget,omitempty" json:"observation_token_budget,omitempty" jsonschema:"title=Observation Token Budget,default=2048"`

	// ToolCallTimeoutSeconds bounds a single MCP tool call. Default: 60.
	ToolCallTimeoutSeconds int `yaml:"tool_call_timeout_seconds,omitempty" json:"tool_call_timeout_seconds,omitempty" jsonschema:"title=Tool Call Timeout,default=60"`
}

func (c *AgentConfig) SetDefaults() {
	if c.MaxSteps == 0 {
		c.MaxSteps = 6
	}
	if c.ObservationTokenBudget == 0 {
		c.ObservationTokenBudget = 2048
	}
	if c.ToolCallTimeoutSeconds == 0 {
		c.ToolCallTimeoutSeconds = 60
	}
}

func (c *AgentConfig) Validate() error {
	if c.MaxSteps < 1 {
		return fmt.Errorf("max_steps must be >= 1, got %d", c.MaxSteps)
	}
	return nil
}
