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

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validLLM() LLMProviderConfig {
	return LLMProviderConfig{
		Provider: ProviderOpenAI,
		APIKey:   "sk-test",
	}
}

func TestConfig_Defaults(t *testing.T) {
	cfg := &Config{LLM: validLLM()}
	cfg.SetDefaults()

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8000, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0:8000", cfg.Server.Address())
	assert.Equal(t, 180, cfg.Server.RunTimeoutSeconds)
	assert.Equal(t, 6, cfg.Agent.MaxSteps)
	assert.Equal(t, 2048, cfg.Agent.ObservationTokenBudget)
	assert.Equal(t, 60, cfg.Agent.ToolCallTimeoutSeconds)
	assert.Equal(t, "gpt-4o-mini", cfg.LLM.Model)
	require.NotNil(t, cfg.LLM.Temperature)
	assert.InDelta(t, 0.2, *cfg.LLM.Temperature, 1e-9)
}

func TestConfig_ValidateDuplicateServerIDs(t *testing.T) {
	cfg := &Config{
		Server: ServerConfig{BearerToken: "test-token"},
		LLM:    validLLM(),
		ToolServers: []ToolServerConfig{
			{ServerID: "math", Type: TransportHTTP, URL: "http://one"},
			{ServerID: "math", Type: TransportHTTP, URL: "http://two"},
		},
	}
	cfg.SetDefaults()
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate")
}

func TestLLMProviderConfig_Validate(t *testing.T) {
	t.Run("missing provider", func(t *testing.T) {
		cfg := LLMProviderConfig{APIKey: "k"}
		assert.Error(t, cfg.Validate())
	})

	t.Run("missing api key", func(t *testing.T) {
		cfg := LLMProviderConfig{Provider: ProviderOpenAI}
		assert.Error(t, cfg.Validate())
	})

	t.Run("azure requires endpoint and deployment", func(t *testing.T) {
		cfg := LLMProviderConfig{Provider: ProviderAzureOpenAI, APIKey: "k"}
		assert.Error(t, cfg.Validate())

		cfg.Host = "https://example.openai.azure.com"
		assert.Error(t, cfg.Validate())

		cfg.Deployment = "gpt4"
		assert.NoError(t, cfg.Validate())
	})

	t.Run("unknown provider", func(t *testing.T) {
		cfg := LLMProviderConfig{Provider: "GROK", APIKey: "k"}
		assert.Error(t, cfg.Validate())
	})
}

func TestToolServerConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     ToolServerConfig
		wantErr bool
	}{
		{
			name: "http ok",
			cfg:  ToolServerConfig{ServerID: "a", Type: TransportHTTP, URL: "http://x"},
		},
		{
			name:    "http without url",
			cfg:     ToolServerConfig{ServerID: "a", Type: TransportHTTP},
			wantErr: true,
		},
		{
			name: "stdio ok",
			cfg:  ToolServerConfig{ServerID: "a", Type: TransportStdio, Command: "npx"},
		},
		{
			name:    "stdio without command",
			cfg:     ToolServerConfig{ServerID: "a", Type: TransportStdio},
			wantErr: true,
		},
		{
			name:    "missing server id",
			cfg:     ToolServerConfig{Type: TransportHTTP, URL: "http://x"},
			wantErr: true,
		},
		{
			name: "oauth needs redirect uri",
			cfg: ToolServerConfig{
				ServerID: "a", Type: TransportHTTP, URL: "http://x",
				Auth: &ToolAuthConfig{Type: AuthOAuth},
			},
			wantErr: true,
		},
		{
			name: "oauth with redirect uri",
			cfg: ToolServerConfig{
				ServerID: "a", Type: TransportHTTP, URL: "http://x",
				Auth: &ToolAuthConfig{Type: AuthOAuth, RedirectURI: "http://localhost:8000/mcp/oauth/callback"},
			},
		},
		{
			name: "unknown auth type",
			cfg: ToolServerConfig{
				ServerID: "a", Type: TransportHTTP, URL: "http://x",
				Auth: &ToolAuthConfig{Type: "kerberos"},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("HELMSMAN_TEST_VALUE", "hello")
	os.Unsetenv("HELMSMAN_TEST_UNSET")

	assert.Equal(t, "hello", ExpandEnvVars("${HELMSMAN_TEST_VALUE}"))
	assert.Equal(t, "hello", ExpandEnvVars("$HELMSMAN_TEST_VALUE"))
	assert.Equal(t, "fallback", ExpandEnvVars("${HELMSMAN_TEST_UNSET:-fallback}"))
	assert.Equal(t, "", ExpandEnvVars("${HELMSMAN_TEST_UNSET}"))
	assert.Equal(t, "no refs here", ExpandEnvVars("no refs here"))
}

func TestLoad(t *testing.T) {
	t.Setenv("API_BEARER_TOKEN", "edge-secret")
	t.Setenv("HELMSMAN_TEST_KEY", "sk-from-env")

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  port: 9000
llm:
  provider: OPENAI
  api_key: ${HELMSMAN_TEST_KEY}
tool_servers:
  - server_id: math
    type: http
    url: http://localhost:7000/mcp
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "edge-secret", cfg.Server.BearerToken)
	assert.Equal(t, "sk-from-env", cfg.LLM.APIKey)
	require.Len(t, cfg.ToolServers, 1)
	assert.Equal(t, "math", cfg.ToolServers[0].ServerID)

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(dir, "nope.yaml"))
		assert.Error(t, err)
	})
}
