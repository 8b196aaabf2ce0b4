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

package llms

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/helmsman-ai/helmsman/pkg/config"
	"github.com/helmsman-ai/helmsman/pkg/httpclient"
	"github.com/helmsman-ai/helmsman/pkg/metrics"
)

// AzureOpenAIPort talks to an Azure OpenAI deployment. Same chat
// completions protocol as OpenAI; the endpoint is deployment-scoped and
// auth uses the api-key header.
type AzureOpenAIPort struct {
	config     *config.LLMProviderConfig
	httpClient *httpclient.Client
}

// NewAzureOpenAIPort creates a port backed by an Azure OpenAI deployment.
func NewAzureOpenAIPort(cfg *config.LLMProviderConfig) *AzureOpenAIPort {
	return &AzureOpenAIPort{
		config:     cfg,
		httpClient: newRetryClient(cfg),
	}
}

func (p *AzureOpenAIPort) completionsURL() string {
	return fmt.Sprintf("%s/openai/deployments/%s/chat/completions?api-version=%s",
		strings.TrimSuffix(p.config.Host, "/"),
		url.PathEscape(p.config.Deployment),
		url.QueryEscape(p.config.APIVersion))
}

func (p *AzureOpenAIPort) applyAuth(req *http.Request) {
	req.Header.Set("api-key", p.config.APIKey)
}

func (p *AzureOpenAIPort) buildRequest(req CallRequest, stream bool) chatRequest {
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = p.config.MaxTokens
	}
	temperature := p.config.Temperature
	if req.Temperature != nil {
		temperature = req.Temperature
	}
	topP := p.config.TopP
	if req.TopP != nil {
		topP = req.TopP
	}

	// The deployment pins the model; the model field stays empty.
	out := chatRequest{
		Messages:    buildMessages(req),
		MaxTokens:   &maxTokens,
		Temperature: temperature,
		TopP:        topP,
		Stream:      stream,
	}
	if req.JSONMode {
		out.ResponseFormat = &responseFormat{Type: "json_object"}
	}
	return out
}

// Call implements Port.
func (p *AzureOpenAIPort) Call(ctx context.Context, req CallRequest) (string, error) {
	text, err := sendChat(ctx, p.httpClient, p, p.buildRequest(req, false))
	metrics.RecordLLMCall(config.ProviderAzureOpenAI, err)
	return text, err
}

// CallStream implements Port.
func (p *AzureOpenAIPort) CallStream(ctx context.Context, req CallRequest) (<-chan StreamChunk, error) {
	out := make(chan StreamChunk, 64)
	go func() {
		defer close(out)
		text, tokens, err := streamChat(ctx, p.httpClient, p, p.buildRequest(req, true), out)
		metrics.RecordLLMCall(config.ProviderAzureOpenAI, err)
		if err != nil {
			out <- StreamChunk{Error: err}
			return
		}
		out <- StreamChunk{Type: ChunkTypeDone, Text: text, Tokens: tokens}
	}()
	return out, nil
}

// ModelName implements Port.
func (p *AzureOpenAIPort) ModelName() string {
	return p.config.Deployment
}

// Close implements Port.
func (p *AzureOpenAIPort) Close() error {
	return nil
}
