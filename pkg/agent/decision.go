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

// Package agent implements the plan-act-summarise loop over a typed
// session state machine.
package agent

import (
	"encoding/json"
	"fmt"
	"strings"
)

// DecisionKind discriminates the planner's decision variants.
type DecisionKind string

const (
	// DecisionCall selects one tool invocation.
	DecisionCall DecisionKind = "call"

	// DecisionGoalReached declares the goal already achieved.
	DecisionGoalReached DecisionKind = "goal_reached"

	// DecisionTerminate aborts: no further progress is possible.
	DecisionTerminate DecisionKind = "terminate"
)

// Decision is the planner's verdict for one step. Exactly one variant is
// populated, selected by Kind.
type Decision struct {
	Kind DecisionKind `json:"kind"`

	// ToolName and Arguments are set for DecisionCall.
	ToolName  string         `json:"tool_name,omitempty"`
	Arguments map[string]any `json:"arguments,omitempty"`

	// Reason is set for DecisionTerminate.
	Reason string `json:"reason,omitempty"`
}

// IsTerminal reports whether this decision ends the run without acting.
func (d Decision) IsTerminal() bool {
	return d.Kind == DecisionGoalReached || d.Kind == DecisionTerminate
}

// ParseError reports a planner response that could not be turned into a
// Decision. It moves the session to ERROR.
type ParseError struct {
	Raw string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse planner decision: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// rawDecision mirrors the JSON contract the planner prompt demands.
type rawDecision struct {
	CallFunction *string        `json:"call_function"`
	Arguments    map[string]any `json:"arguments"`
	GoalReached  *bool          `json:"goal_reached"`
	Terminate    *bool          `json:"terminate"`
	Reason       string         `json:"reason"`
}

// ParseDecision parses and validates a planner response. The response must
// be a JSON object carrying exactly one of call_function, goal_reached:
// true, or terminate: true. Additional fields are ignored. Missing
// arguments default to the empty map.
//
// Models in JSON mode occasionally wrap output in a code fence; that
// wrapper is stripped before parsing.
func ParseDecision(response string) (Decision, error) {
	cleaned := stripCodeFence(response)

	var raw rawDecision
	if err := json.Unmarshal([]byte(cleaned), &raw); err != nil {
		return Decision{}, &ParseError{Raw: response, Err: err}
	}

	variants := 0
	if raw.CallFunction != nil {
		variants++
	}
	if raw.GoalReached != nil && *raw.GoalReached {
		variants++
	}
	if raw.Terminate != nil && *raw.Terminate {
		variants++
	}
	if variants != 1 {
		return Decision{}, &ParseError{
			Raw: response,
			Err: fmt.Errorf("expected exactly one of call_function, goal_reached or terminate, got %d", variants),
		}
	}

	switch {
	case raw.CallFunction != nil:
		if *raw.CallFunction == "" {
			return Decision{}, &ParseError{Raw: response, Err: fmt.Errorf("call_function is empty")}
		}
		args := raw.Arguments
		if args == nil {
			args = map[string]any{}
		}
		return Decision{Kind: DecisionCall, ToolName: *raw.CallFunction, Arguments: args}, nil
	case raw.GoalReached != nil && *raw.GoalReached:
		return Decision{Kind: DecisionGoalReached}, nil
	default:
		return Decision{Kind: DecisionTerminate, Reason: raw.Reason}, nil
	}
}

func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
