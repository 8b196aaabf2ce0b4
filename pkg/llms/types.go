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

// Package llms contains the language model port abstraction and the
// OpenAI and Azure OpenAI implementations.
package llms

import "context"

// Stream chunk types.
const (
	ChunkTypeText = "text"
	ChunkTypeDone = "done"
)

// StreamChunk is one unit of a streaming completion. The stream always
// ends with a terminal chunk: either ChunkTypeDone (carrying the full
// accumulated text) or a chunk with Error set.
type StreamChunk struct {
	Type   string
	Text   string
	Tokens int
	Error  error
}

// CallRequest carries one completion request to a provider.
type CallRequest struct {
	// Prompt is the user message.
	Prompt string

	// SystemPrompt, if non-empty, is prepended as a system message.
	SystemPrompt string

	// JSONMode constrains the model to emit a single JSON object.
	JSONMode bool

	// MaxTokens caps the completion length. Zero means the provider
	// config default.
	MaxTokens int

	// Temperature overrides the configured temperature when non-nil.
	Temperature *float64

	// TopP overrides the configured nucleus sampling when non-nil.
	TopP *float64
}

// Port is the language model abstraction the agent plans and summarises
// through. Implementations are safe for concurrent use.
type Port interface {
	// Call performs a synchronous completion and returns the full text.
	Call(ctx context.Context, req CallRequest) (string, error)

	// CallStream performs a streaming completion. The returned channel is
	// closed after a terminal chunk (ChunkTypeDone or an error chunk) is
	// delivered. Cancelling ctx aborts the stream.
	CallStream(ctx context.Context, req CallRequest) (<-chan StreamChunk, error)

	// ModelName reports the configured model or deployment.
	ModelName() string

	// Close releases provider resources.
	Close() error
}
