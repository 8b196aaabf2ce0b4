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
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/helmsman-ai/helmsman/pkg/httpclient"
)

// Chat completions wire types, shared by the OpenAI and Azure ports.
// Both speak the same protocol; they differ only in endpoint URL and
// auth headers.

type chatRequest struct {
	Model          string          `json:"model,omitempty"`
	Messages       []chatMessage   `json:"messages"`
	MaxTokens      *int            `json:"max_tokens,omitempty"`
	Temperature    *float64        `json:"temperature,omitempty"`
	TopP           *float64        `json:"top_p,omitempty"`
	Stream         bool            `json:"stream"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []chatChoice `json:"choices"`
	Usage   *chatUsage   `json:"usage,omitempty"`
	Error   *apiError    `json:"error,omitempty"`
}

type chatChoice struct {
	Message      chatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type streamResponse struct {
	Choices []streamChoice `json:"choices"`
	Usage   *chatUsage     `json:"usage,omitempty"`
	Error   *apiError      `json:"error,omitempty"`
}

type streamChoice struct {
	Delta        streamDelta `json:"delta"`
	FinishReason string      `json:"finish_reason"`
}

type streamDelta struct {
	Content string `json:"content,omitempty"`
}

type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code"`
}

func parseErrorResponse(body []byte) *apiError {
	var wrapper struct {
		Error *apiError `json:"error"`
	}
	if err := json.Unmarshal(body, &wrapper); err != nil {
		return nil
	}
	return wrapper.Error
}

// chatEndpoint abstracts the vendor-specific parts of the protocol.
type chatEndpoint interface {
	// completionsURL is the full chat completions URL.
	completionsURL() string

	// applyAuth sets vendor auth headers on the request.
	applyAuth(req *http.Request)
}

func buildMessages(req CallRequest) []chatMessage {
	messages := make([]chatMessage, 0, 2)
	if req.SystemPrompt != "" {
		messages = append(messages, chatMessage{Role: "system", Content: req.SystemPrompt})
	}
	messages = append(messages, chatMessage{Role: "user", Content: req.Prompt})
	return messages
}

func newChatHTTPRequest(ctx context.Context, ep chatEndpoint, request chatRequest) (*http.Request, error) {
	requestBody, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", ep.completionsURL(), bytes.NewReader(requestBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(requestBody)), nil
	}
	req.Header.Set("Content-Type", "application/json")
	ep.applyAuth(req)
	return req, nil
}

// checkResponse normalizes the client's response-plus-error contract. The
// retrying client may return both a response and an error for non-2xx
// statuses; the body can still carry a structured API error worth
// surfacing.
func checkResponse(resp *http.Response, err error) error {
	if resp != nil && resp.StatusCode != http.StatusOK {
		body, readErr := io.ReadAll(resp.Body)
		errorBody := string(body)
		if readErr != nil {
			errorBody = fmt.Sprintf("(failed to read error body: %v)", readErr)
		}
		if apiErr := parseErrorResponse(body); apiErr != nil {
			return fmt.Errorf("API request failed with status %d: %s (type: %s, code: %s)",
				resp.StatusCode, apiErr.Message, apiErr.Type, apiErr.Code)
		}
		return fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, errorBody)
	}
	if err != nil {
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	if resp == nil {
		return fmt.Errorf("HTTP request failed: no response received")
	}
	return nil
}

// sendChat performs a synchronous chat completion.
func sendChat(ctx context.Context, client *httpclient.Client, ep chatEndpoint, request chatRequest) (string, error) {
	req, err := newChatHTTPRequest(ctx, ep, request)
	if err != nil {
		return "", err
	}

	resp, err := client.Do(req)
	if resp != nil {
		defer resp.Body.Close()
	}
	if err := checkResponse(resp, err); err != nil {
		return "", err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	var response chatResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return "", fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if response.Error != nil {
		return "", fmt.Errorf("API error: %s", response.Error.Message)
	}
	if len(response.Choices) == 0 {
		return "", fmt.Errorf("API response contained no choices")
	}
	return response.Choices[0].Message.Content, nil
}

// streamChat performs a streaming chat completion, emitting text chunks on
// outputCh as SSE events arrive. It returns the accumulated text and token
// count on success.
func streamChat(ctx context.Context, client *httpclient.Client, ep chatEndpoint, request chatRequest, outputCh chan<- StreamChunk) (string, int, error) {
	req, err := newChatHTTPRequest(ctx, ep, request)
	if err != nil {
		return "", 0, err
	}

	resp, err := client.Do(req)
	if resp != nil {
		defer resp.Body.Close()
	}
	if err := checkResponse(resp, err); err != nil {
		return "", 0, err
	}

	reader := bufio.NewReader(resp.Body)
	var accumulated strings.Builder
	totalTokens := 0

	for {
		line, err := reader.ReadBytes('\n')
		if err != nil {
			if err == io.EOF {
				break
			}
			return "", 0, fmt.Errorf("failed to read stream: %w", err)
		}

		line = bytes.TrimSpace(line)
		if len(line) == 0 || !bytes.HasPrefix(line, []byte("data: ")) {
			continue
		}
		line = line[6:]

		if bytes.Equal(line, []byte("[DONE]")) {
			break
		}

		var streamResp streamResponse
		if err := json.Unmarshal(line, &streamResp); err != nil {
			// Malformed keep-alive or comment lines are skipped.
			continue
		}

		if streamResp.Error != nil {
			return "", 0, fmt.Errorf("API error: %s", streamResp.Error.Message)
		}
		if streamResp.Usage != nil {
			totalTokens = streamResp.Usage.TotalTokens
		}
		if len(streamResp.Choices) == 0 {
			continue
		}

		if text := streamResp.Choices[0].Delta.Content; text != "" {
			accumulated.WriteString(text)
			select {
			case outputCh <- StreamChunk{Type: ChunkTypeText, Text: text}:
			case <-ctx.Done():
				return "", 0, ctx.Err()
			}
		}
	}

	return accumulated.String(), totalTokens, nil
}
