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
	"fmt"

	"github.com/helmsman-ai/helmsman/pkg/config"
)

// NewFromConfig builds the Port selected by the provider config.
func NewFromConfig(cfg *config.LLMProviderConfig) (Port, error) {
	switch cfg.Provider {
	case config.ProviderOpenAI:
		return NewOpenAIPort(cfg), nil
	case config.ProviderAzureOpenAI:
		return NewAzureOpenAIPort(cfg), nil
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", cfg.Provider)
	}
}
