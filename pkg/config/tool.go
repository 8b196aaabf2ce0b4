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

package config

import "fmt"

// TransportType identifies the MCP transport kind.
type TransportType string

const (
	// TransportHTTP is a long-lived streamable HTTP connection.
	TransportHTTP TransportType = "http"

	// TransportStdio spawns a child process and speaks over its stdio pipes.
	TransportStdio TransportType = "stdio"
)

// Tool server auth types.
const (
	AuthNone         = ""
	AuthOAuth        = "oauth"
	AuthOAuthBrowser = "oauth_browser"
	AuthBearer       = "bearer"
	AuthAPIKey       = "api_key"
)

// ToolServerConfig configures one MCP tool server.
type ToolServerConfig struct {
	// ServerID uniquely identifies this server in the broker.
	ServerID string `yaml:"server_id" json:"server_id" jsonschema:"title=Server ID,description=Unique server identifier"`

	// Type of transport (http or stdio).
	Type TransportType `yaml:"type" json:"type" jsonschema:"title=Type,enum=http,enum=stdio"`

	// URL is the MCP server URL (for type: http).
	URL string `yaml:"url,omitempty" json:"url,omitempty" jsonschema:"title=URL,description=MCP server URL (for type=http)"`

	// Auth configures HTTP authentication (for type: http).
	Auth *ToolAuthConfig `yaml:"auth,omitempty" json:"auth,omitempty" jsonschema:"title=Auth,description=HTTP authentication settings"`

	// Command to spawn (for type: stdio).
	Command string `yaml:"command,omitempty" json:"command,omitempty" jsonschema:"title=Command,description=Command to execute (for type=stdio)"`

	// Args for the spawned command.
	Args []string `yaml:"args,omitempty" json:"args,omitempty" jsonschema:"title=Args"`

	// Env for the spawned command.
	Env map[string]string `yaml:"env,omitempty" json:"env,omitempty" jsonschema:"title=Environment Variables"`
}

// ToolAuthConfig configures authentication for an HTTP tool server.
type ToolAuthConfig struct {
	// Type is oauth, oauth_browser, bearer, or api_key.
	Type string `yaml:"type" json:"type" jsonschema:"title=Type,enum=oauth,enum=oauth_browser,enum=bearer,enum=api_key"`

	// ClientName registered with the OAuth authorization server.
	ClientName string `yaml:"client_name,omitempty" json:"client_name,omitempty" jsonschema:"title=Client Name"`

	// RedirectURI for the OAuth authorization code flow.
	RedirectURI string `yaml:"redirect_uri,omitempty" json:"redirect_uri,omitempty" jsonschema:"title=Redirect URI"`

	// Scope requested during the OAuth flow (space separated).
	Scope string `yaml:"scope,omitempty" json:"scope,omitempty" jsonschema:"title=Scope"`

	// Token for bearer/api_key auth.
	Token string `yaml:"token,omitempty" json:"-" jsonschema:"-"`
}

// IsOAuth reports whether this auth block requires the interactive
// authorization code flow.
func (a *ToolAuthConfig) IsOAuth() bool {
	return a != nil && (a.Type == AuthOAuth || a.Type == AuthOAuthBrowser)
}

// IsToken reports whether this auth block carries a static token.
func (a *ToolAuthConfig) IsToken() bool {
	return a != nil && (a.Type == AuthBearer || a.Type == AuthAPIKey) && a.Token != ""
}

func (c *ToolServerConfig) SetDefaults() {
	if c.Type == "" {
		c.Type = TransportHTTP
	}
}

func (c *ToolServerConfig) Validate() error {
	if c.ServerID == "" {
		return fmt.Errorf("server_id is required")
	}
	switch c.Type {
	case TransportHTTP:
		if c.URL == "" {
			return fmt.Errorf("url is required for http transport")
		}
		if c.Auth != nil {
			switch c.Auth.Type {
			case AuthOAuth, AuthOAuthBrowser:
				if c.Auth.RedirectURI == "" {
					return fmt.Errorf("auth.redirect_uri is required for oauth")
				}
			case AuthBearer, AuthAPIKey, AuthNone:
			default:
				return fmt.Errorf("unknown auth type %q", c.Auth.Type)
			}
		}
	case TransportStdio:
		if c.Command == "" {
			return fmt.Errorf("command is required for stdio transport")
		}
	default:
		return fmt.Errorf("unknown transport type %q", c.Type)
	}
	return nil
}
