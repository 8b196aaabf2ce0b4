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

package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDecision(t *testing.T) {
	tests := []struct {
		name     string
		response string
		want     Decision
		wantErr  bool
	}{
		{
			name:     "call with arguments",
			response: `{"call_function": "sum", "arguments": {"a": 2, "b": 3}}`,
			want:     Decision{Kind: DecisionCall, ToolName: "sum", Arguments: map[string]any{"a": float64(2), "b": float64(3)}},
		},
		{
			name:     "call without arguments defaults to empty map",
			response: `{"call_function": "ping"}`,
			want:     Decision{Kind: DecisionCall, ToolName: "ping", Arguments: map[string]any{}},
		},
		{
			name:     "goal reached",
			response: `{"goal_reached": true}`,
			want:     Decision{Kind: DecisionGoalReached},
		},
		{
			name:     "terminate with reason",
			response: `{"terminate": true, "reason": "precondition unmet"}`,
			want:     Decision{Kind: DecisionTerminate, Reason: "precondition unmet"},
		},
		{
			name:     "extra fields ignored",
			response: `{"goal_reached": true, "confidence": 0.9}`,
			want:     Decision{Kind: DecisionGoalReached},
		},
		{
			name:     "code fence stripped",
			response: "```json\n{\"goal_reached\": true}\n```",
			want:     Decision{Kind: DecisionGoalReached},
		},
		{
			name:     "not json",
			response: "I think we should call sum",
			wantErr:  true,
		},
		{
			name:     "no variant",
			response: `{"arguments": {"a": 1}}`,
			wantErr:  true,
		},
		{
			name:     "two variants",
			response: `{"call_function": "sum", "goal_reached": true}`,
			wantErr:  true,
		},
		{
			name:     "goal_reached false does not count",
			response: `{"goal_reached": false}`,
			wantErr:  true,
		},
		{
			name:     "empty call_function",
			response: `{"call_function": ""}`,
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDecision(tt.response)
			if tt.wantErr {
				var parseErr *ParseError
				require.ErrorAs(t, err, &parseErr)
				assert.Equal(t, tt.response, parseErr.Raw)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecision_IsTerminal(t *testing.T) {
	assert.False(t, Decision{Kind: DecisionCall, ToolName: "x"}.IsTerminal())
	assert.True(t, Decision{Kind: DecisionGoalReached}.IsTerminal())
	assert.True(t, Decision{Kind: DecisionTerminate}.IsTerminal())
}
