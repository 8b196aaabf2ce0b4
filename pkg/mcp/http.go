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
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"

	"github.com/helmsman-ai/helmsman/pkg/config"
	"github.com/helmsman-ai/helmsman/pkg/logger"
)

// httpConnectTimeout bounds the handshake for token-authenticated servers.
// OAuth servers get no timeout: the handshake waits on a human completing
// the authorization flow.
const httpConnectTimeout = 30 * time.Second

// NewHTTPConnector creates a connector for a streamable HTTP server.
func NewHTTPConnector(cfg config.ToolServerConfig) Connector {
	return newServiceConn(cfg.ServerID, config.TransportHTTP, func(ctx context.Context) (*client.Client, error) {
		if cfg.Auth.IsOAuth() {
			return dialOAuth(ctx, cfg)
		}
		return dialToken(ctx, cfg)
	})
}

// authHeaders builds the static auth headers for a server. Bearer and
// api_key credentials both travel as a bearer token.
func authHeaders(auth *config.ToolAuthConfig) map[string]string {
	if !auth.IsToken() {
		return nil
	}
	return map[string]string{"Authorization": "Bearer " + auth.Token}
}

// dialToken connects with optional static bearer/api_key auth.
func dialToken(ctx context.Context, cfg config.ToolServerConfig) (*client.Client, error) {
	opts := []transport.StreamableHTTPCOption{
		transport.WithHTTPTimeout(httpConnectTimeout),
	}
	if headers := authHeaders(cfg.Auth); headers != nil {
		opts = append(opts, transport.WithHTTPHeaders(headers))
	}

	mcpClient, err := client.NewStreamableHttpClient(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create MCP client: %w", err)
	}

	handshakeCtx, cancel := context.WithTimeout(ctx, httpConnectTimeout)
	defer cancel()

	if err := handshake(handshakeCtx, mcpClient); err != nil {
		_ = mcpClient.Close()
		return nil, err
	}
	return mcpClient, nil
}

// dialOAuth connects through the OAuth authorization code flow with PKCE.
// When the server demands authorization, the user is pointed at the
// authorization URL and the flow blocks until the callback endpoint
// delivers a code.
func dialOAuth(ctx context.Context, cfg config.ToolServerConfig) (*client.Client, error) {
	log := logger.GetLogger().With("server_id", cfg.ServerID)

	oauthConfig := transport.OAuthConfig{
		RedirectURI: cfg.Auth.RedirectURI,
		Scopes:      strings.Fields(cfg.Auth.Scope),
		TokenStore:  transport.NewMemoryTokenStore(),
		PKCEEnabled: true,
	}

	mcpClient, err := client.NewOAuthStreamableHttpClient(cfg.URL, oauthConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create MCP client: %w", err)
	}

	err = handshake(ctx, mcpClient)
	if err == nil {
		return mcpClient, nil
	}
	if !client.IsOAuthAuthorizationRequiredError(err) {
		_ = mcpClient.Close()
		return nil, err
	}

	handler := client.GetOAuthHandler(err)

	name := cfg.Auth.ClientName
	if name == "" {
		name = clientName
	}
	if err := handler.RegisterClient(ctx, name); err != nil {
		_ = mcpClient.Close()
		return nil, fmt.Errorf("OAuth client registration failed: %w", err)
	}

	state, err := client.GenerateState()
	if err != nil {
		_ = mcpClient.Close()
		return nil, fmt.Errorf("failed to generate OAuth state: %w", err)
	}
	verifier, err := client.GenerateCodeVerifier()
	if err != nil {
		_ = mcpClient.Close()
		return nil, fmt.Errorf("failed to generate code verifier: %w", err)
	}
	challenge := client.GenerateCodeChallenge(verifier)

	authURL, err := handler.GetAuthorizationURL(ctx, state, challenge)
	if err != nil {
		_ = mcpClient.Close()
		return nil, fmt.Errorf("failed to build authorization URL: %w", err)
	}

	log.Info("Authorization required, waiting for callback", "url", authURL)
	if cfg.Auth.Type == config.AuthOAuthBrowser {
		if err := openBrowser(authURL); err != nil {
			log.Warn("Could not open browser, open the URL manually", "error", err)
		}
	}

	code, err := awaitAuthCode(ctx)
	if err != nil {
		_ = mcpClient.Close()
		return nil, err
	}
	if code.State != state {
		_ = mcpClient.Close()
		return nil, fmt.Errorf("OAuth state mismatch")
	}

	if err := handler.ProcessAuthorizationResponse(ctx, code.Code, code.State, verifier); err != nil {
		_ = mcpClient.Close()
		return nil, fmt.Errorf("OAuth token exchange failed: %w", err)
	}

	// Retry the handshake now that a token is in the store.
	if err := handshake(ctx, mcpClient); err != nil {
		_ = mcpClient.Close()
		return nil, err
	}

	log.Info("OAuth authorization completed")
	return mcpClient, nil
}

func openBrowser(url string) error {
	switch runtime.GOOS {
	case "darwin":
		return exec.Command("open", url).Start()
	case "windows":
		return exec.Command("rundll32", "url.dll,FileProtocolHandler", url).Start()
	default:
		return exec.Command("xdg-open", url).Start()
	}
}
