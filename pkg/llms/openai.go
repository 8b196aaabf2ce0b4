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
	"net/http"
	"time"

	"github.com/helmsman-ai/helmsman/pkg/config"
	"github.com/helmsman-ai/helmsman/pkg/httpclient"
	"github.com/helmsman-ai/helmsman/pkg/metrics"
)

func newRetryClient(cfg *config.LLMProviderConfig) *httpclient.Client {
	return httpclient.New(
		httpclient.WithHTTPClient(&http.Client{
			Timeout: time.Duration(cfg.Timeout) * time.Second,
		}),
		httpclient.WithMaxRetries(cfg.MaxRetries),
		httpclient.WithBaseDelay(time.Duration(cfg.RetryDelay)*time.Second),
		httpclient.WithHeaderParser(httpclient.ParseOpenAIRateLimitHeaders),
	)
}

// OpenAIPort talks to the OpenAI chat completions API.
type OpenAIPort struct {
	config     *config.LLMProviderConfig
	httpClient *httpclient.Client
}

// NewOpenAIPort creates a port backed by the OpenAI API.
func NewOpenAIPort(cfg *config.LLMProviderConfig) *OpenAIPort {
	return &OpenAIPort{
		config:     cfg,
		httpClient: newRetryClient(cfg),
	}
}

func (p *OpenAIPort) completionsURL() string {
	return p.config.Host + "/chat/completions"
}

func (p *OpenAIPort) applyAuth(req *http.Request) {
	if p.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.config.APIKey)
	}
}

func (p *OpenAIPort) buildRequest(req CallRequest, stream bool) chatRequest {
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

	out := chatRequest{
		Model:       p.config.Model,
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
func (p *OpenAIPort) Call(ctx context.Context, req CallRequest) (string, error) {
	text, err := sendChat(ctx, p.httpClient, p, p.buildRequest(req, false))
	metrics.RecordLLMCall(config.ProviderOpenAI, err)
	return text, err
}

// CallStream implements Port.
func (p *OpenAIPort) CallStream(ctx context.Context, req CallRequest) (<-chan StreamChunk, error) {
	out := make(chan StreamChunk, 64)
	go func() {
		defer close(out)
		text, tokens, err := streamChat(ctx, p.httpClient, p, p.buildRequest(req, true), out)
		metrics.RecordLLMCall(config.ProviderOpenAI, err)
		if err != nil {
			out <- StreamChunk{Error: err}
			return
		}
		out <- StreamChunk{Type: ChunkTypeDone, Text: text, Tokens: tokens}
	}()
	return out, nil
}

// ModelName implements Port.
func (p *OpenAIPort) ModelName() string {
	return p.config.Model
}

// Close implements Port.
func (p *OpenAIPort) Close() error {
	return nil
}
