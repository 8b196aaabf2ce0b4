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
	"fmt"
	"os"
	"strings"
)

// LLM provider types.
const (
	ProviderOpenAI      = "OPENAI"
	ProviderAzureOpenAI = "AZURE_OPENAI"
)

// LLMProviderConfig configures the language model provider.
type LLMProviderConfig struct {
	// Provider is OPENAI or AZURE_OPENAI. Normally injected from the
	// LLM_PROVIDER environment variable; required.
	Provider string `yaml:"provider,omitempty" json:"provider,omitempty" jsonschema:"title=Provider,enum=OPENAI,enum=AZURE_OPENAI"`

	// Model name (OpenAI) or deployment's underlying model (Azure).
	Model string `yaml:"model,omitempty" json:"model,omitempty" jsonschema:"title=Model,default=gpt-4o-mini"`

	// APIKey for the provider. Defaults to OPENAI_API_KEY or
	// AZURE_OPENAI_API_KEY depending on the provider.
	APIKey string `yaml:"api_key,omitempty" json:"-" jsonschema:"-"`

	// Host is the API base URL. OpenAI default: https://api.openai.com/v1.
	// Azure: the resource endpoint (AZURE_OPENAI_ENDPOINT).
	Host string `yaml:"host,omitempty" json:"host,omitempty" jsonschema:"title=Host"`

	// Deployment is the Azure OpenAI deployment name.
	Deployment string `yaml:"deployment,omitempty" json:"deployment,omitempty" jsonschema:"title=Deployment,description=Azure OpenAI deployment name"`

	// APIVersion is the Azure OpenAI API version. Default: 2024-06-01.
	APIVersion string `yaml:"api_version,omitempty" json:"api_version,omitempty" jsonschema:"title=API Version"`

	// Temperature for generation. Default: 0.2.
	Temperature *float64 `yaml:"temperature,omitempty" json:"temperature,omitempty" jsonschema:"title=Temperature,default=0.2"`

	// TopP nucleus sampling parameter. Unset means provider default.
	TopP *float64 `yaml:"top_p,omitempty" json:"top_p,omitempty" jsonschema:"title=Top P"`

	// MaxTokens per completion. Default: 1024.
	MaxTokens int `yaml:"max_tokens,omitempty" json:"max_tokens,omitempty" jsonschema:"title=Max Tokens,default=1024"`

	// Timeout per request in seconds. Default: 60.
	Timeout int `yaml:"timeout,omitempty" json:"timeout,omitempty" jsonschema:"title=Timeout,default=60"`

	// MaxRetries on retryable HTTP failures. Default: 3.
	MaxRetries int `yaml:"max_retries,omitempty" json:"max_retries,omitempty" jsonschema:"title=Max Retries,default=3"`

	// RetryDelay base delay in seconds. Default: 2.
	RetryDelay int `yaml:"retry_delay,omitempty" json:"retry_delay,omitempty" jsonschema:"title=Retry Delay,default=2"`
}

func (c *LLMProviderConfig) SetDefaults() {
	if c.Provider == "" {
		c.Provider = strings.ToUpper(os.Getenv("LLM_PROVIDER"))
	}
	if c.Model == "" {
		c.Model = "gpt-4o-mini"
	}
	if c.APIKey == "" {
		switch c.Provider {
		case ProviderAzureOpenAI:
			c.APIKey = os.Getenv("AZURE_OPENAI_API_KEY")
		default:
			c.APIKey = os.Getenv("OPENAI_API_KEY")
		}
	}
	if c.Host == "" {
		switch c.Provider {
		case ProviderAzureOpenAI:
			c.Host = os.Getenv("AZURE_OPENAI_ENDPOINT")
		default:
			c.Host = "https://api.openai.com/v1"
		}
	}
	if c.Deployment == "" {
		c.Deployment = os.Getenv("AZURE_OPENAI_DEPLOYMENT")
	}
	if c.APIVersion == "" {
		c.APIVersion = "2024-06-01"
	}
	if c.Temperature == nil {
		t := 0.2
		c.Temperature = &t
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = 1024
	}
	if c.Timeout == 0 {
		c.Timeout = 60
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.RetryDelay == 0 {
		c.RetryDelay = 2
	}
}

func (c *LLMProviderConfig) Validate() error {
	switch c.Provider {
	case ProviderOpenAI:
	case ProviderAzureOpenAI:
		if c.Host == "" {
			return fmt.Errorf("azure endpoint is required (set AZURE_OPENAI_ENDPOINT)")
		}
		if c.Deployment == "" {
			return fmt.Errorf("azure deployment is required (set AZURE_OPENAI_DEPLOYMENT)")
		}
	case "":
		return fmt.Errorf("provider is required (set LLM_PROVIDER to OPENAI or AZURE_OPENAI)")
	default:
		return fmt.Errorf("unknown provider %q (want OPENAI or AZURE_OPENAI)", c.Provider)
	}
	if c.APIKey == "" {
		return fmt.Errorf("API key is required for provider %s", c.Provider)
	}
	return nil
}
