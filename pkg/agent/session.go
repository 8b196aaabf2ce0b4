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
	"fmt"

	"github.com/google/uuid"

	"github.com/helmsman-ai/helmsman/pkg/tools"
)

// AgentState is the session lifecycle state.
type AgentState string

const (
	StatePlanning    AgentState = "PLANNING"
	StateExecuting   AgentState = "EXECUTING"
	StateSummarising AgentState = "SUMMARISING"
	StateDone        AgentState = "DONE"
	StateError       AgentState = "ERROR"
)

// Terminal reports whether no further transitions are legal.
func (s AgentState) Terminal() bool {
	return s == StateDone || s == StateError
}

// TraceEntry records one completed step: the decision, the raw tool
// result (nil when the step ended without acting) and the step's
// observation text.
type TraceEntry struct {
	Plan        Decision `json:"plan"`
	Act         *string  `json:"act"`
	Observation string   `json:"observation"`
}

// TransitionError reports an illegal state machine edge.
type TransitionError struct {
	From AgentState
	Op   string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("illegal transition: %s in state %s", e.Op, e.From)
}

// AgentSession is the per-run state. Created per run, never shared across
// concurrent runs, discarded after a terminal state.
type AgentSession struct {
	ID         string
	UserPrompt string
	State      AgentState
	MaxSteps   int
	StepIndex  int

	// ToolsMeta is the registry snapshot taken on first use.
	ToolsMeta []tools.ToolDescriptor

	// PreselectedTool, when non-empty, pins the planner to one tool and
	// switches it to parameter-only mode.
	PreselectedTool string

	LastDecision    *Decision
	LastObservation *string
	Trace           []TraceEntry
}

// NewSession creates a session in its initial state.
func NewSession(userPrompt string, maxSteps int) *AgentSession {
	if maxSteps < 1 {
		maxSteps = 1
	}
	return &AgentSession{
		ID:         uuid.NewString(),
		UserPrompt: userPrompt,
		State:      StatePlanning,
		MaxSteps:   maxSteps,
	}
}

// The transition functions below are the only mutation points of the
// session state. They are synchronous and perform no I/O.

// Start validates the initial state. A session is started at most once.
func (s *AgentSession) Start() error {
	if s.State != StatePlanning || s.StepIndex != 0 || len(s.Trace) != 0 {
		return &TransitionError{From: s.State, Op: "start"}
	}
	return nil
}

// OnPlanned applies a planner decision. A Call decision moves the session
// to EXECUTING; a terminal decision moves it to DONE.
func (s *AgentSession) OnPlanned(decision Decision) error {
	if s.State != StatePlanning {
		return &TransitionError{From: s.State, Op: "on_planned"}
	}
	d := decision
	s.LastDecision = &d
	if decision.IsTerminal() {
		s.State = StateDone
	} else {
		s.State = StateExecuting
	}
	return nil
}

// OnExecuted records a tool observation and moves to SUMMARISING.
func (s *AgentSession) OnExecuted(observation string) error {
	if s.State != StateExecuting {
		return &TransitionError{From: s.State, Op: "on_executed"}
	}
	s.LastObservation = &observation
	s.State = StateSummarising
	return nil
}

// OnSummarised closes the step. This is the only transition that advances
// step_index. The session continues in PLANNING while steps remain,
// otherwise it is DONE.
func (s *AgentSession) OnSummarised() error {
	if s.State != StateSummarising {
		return &TransitionError{From: s.State, Op: "on_summarised"}
	}
	s.StepIndex++
	if s.StepIndex < s.MaxSteps {
		s.State = StatePlanning
	} else {
		s.State = StateDone
	}
	return nil
}

// OnError moves to ERROR from any non-terminal state.
func (s *AgentSession) OnError() error {
	if s.State.Terminal() {
		return &TransitionError{From: s.State, Op: "on_error"}
	}
	s.State = StateError
	return nil
}

// AppendTrace appends one entry to the append-only trace.
func (s *AgentSession) AppendTrace(entry TraceEntry) {
	s.Trace = append(s.Trace, entry)
}

// ExecutedPairs returns the (tool, arguments) pairs of all executed steps,
// used by the replanner to veto exact repeats.
func (s *AgentSession) ExecutedPairs() []ExecutedCall {
	var out []ExecutedCall
	for _, entry := range s.Trace {
		if entry.Plan.Kind == DecisionCall && entry.Act != nil {
			out = append(out, ExecutedCall{
				ToolName:  entry.Plan.ToolName,
				Arguments: entry.Plan.Arguments,
			})
		}
	}
	return out
}

// ExecutedCall is one historical (tool, arguments) pair.
type ExecutedCall struct {
	ToolName  string         `json:"tool_name"`
	Arguments map[string]any `json:"arguments"`
}
