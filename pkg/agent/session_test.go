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

func callDecision(tool string) Decision {
	return Decision{Kind: DecisionCall, ToolName: tool, Arguments: map[string]any{}}
}

func TestSession_FullStepCycle(t *testing.T) {
	s := NewSession("add 2 and 3", 2)
	require.Equal(t, StatePlanning, s.State)
	require.NoError(t, s.Start())

	require.NoError(t, s.OnPlanned(callDecision("sum")))
	assert.Equal(t, StateExecuting, s.State)
	require.NotNil(t, s.LastDecision)

	require.NoError(t, s.OnExecuted("5"))
	assert.Equal(t, StateSummarising, s.State)

	require.NoError(t, s.OnSummarised())
	assert.Equal(t, StatePlanning, s.State, "steps remain, back to planning")
	assert.Equal(t, 1, s.StepIndex)
}

func TestSession_LastStepEndsDone(t *testing.T) {
	s := NewSession("goal", 1)
	require.NoError(t, s.Start())
	require.NoError(t, s.OnPlanned(callDecision("sum")))
	require.NoError(t, s.OnExecuted("ok"))
	require.NoError(t, s.OnSummarised())

	assert.Equal(t, StateDone, s.State)
	assert.Equal(t, 1, s.StepIndex)
	assert.True(t, s.State.Terminal())
}

func TestSession_TerminalDecisionEndsPlanning(t *testing.T) {
	s := NewSession("goal", 3)
	require.NoError(t, s.Start())
	require.NoError(t, s.OnPlanned(Decision{Kind: DecisionGoalReached}))
	assert.Equal(t, StateDone, s.State)
	assert.Equal(t, 0, s.StepIndex)
}

func TestSession_IllegalTransitions(t *testing.T) {
	t.Run("on_executed while planning", func(t *testing.T) {
		s := NewSession("goal", 1)
		var transErr *TransitionError
		require.ErrorAs(t, s.OnExecuted("x"), &transErr)
		assert.Equal(t, StatePlanning, transErr.From)
	})

	t.Run("on_summarised while executing", func(t *testing.T) {
		s := NewSession("goal", 1)
		require.NoError(t, s.OnPlanned(callDecision("sum")))
		assert.Error(t, s.OnSummarised())
	})

	t.Run("on_planned after done", func(t *testing.T) {
		s := NewSession("goal", 1)
		require.NoError(t, s.OnPlanned(Decision{Kind: DecisionTerminate}))
		assert.Error(t, s.OnPlanned(callDecision("sum")))
	})

	t.Run("on_error from terminal state", func(t *testing.T) {
		s := NewSession("goal", 1)
		require.NoError(t, s.OnPlanned(Decision{Kind: DecisionGoalReached}))
		assert.Error(t, s.OnError())
	})

	t.Run("start twice", func(t *testing.T) {
		s := NewSession("goal", 2)
		require.NoError(t, s.Start())
		require.NoError(t, s.OnPlanned(callDecision("sum")))
		require.NoError(t, s.OnExecuted("x"))
		require.NoError(t, s.OnSummarised())
		assert.Error(t, s.Start(), "restart after progress is illegal")
	})
}

func TestSession_StepIndexOnlyAdvancesOnSummarised(t *testing.T) {
	s := NewSession("goal", 3)
	require.NoError(t, s.Start())

	require.NoError(t, s.OnPlanned(callDecision("a")))
	assert.Equal(t, 0, s.StepIndex)
	require.NoError(t, s.OnExecuted("x"))
	assert.Equal(t, 0, s.StepIndex)
	require.NoError(t, s.OnSummarised())
	assert.Equal(t, 1, s.StepIndex)
	assert.LessOrEqual(t, s.StepIndex, s.MaxSteps)
}

func TestSession_ExecutedPairs(t *testing.T) {
	s := NewSession("goal", 3)
	act := "raw"
	s.AppendTrace(TraceEntry{
		Plan:        Decision{Kind: DecisionCall, ToolName: "sum", Arguments: map[string]any{"a": 1}},
		Act:         &act,
		Observation: "summary",
	})
	s.AppendTrace(TraceEntry{
		Plan:        Decision{Kind: DecisionGoalReached},
		Observation: "Planning indicated completion.",
	})

	pairs := s.ExecutedPairs()
	require.Len(t, pairs, 1, "entries without an act are not executed pairs")
	assert.Equal(t, "sum", pairs[0].ToolName)
}

func TestNewSession_ClampsMaxSteps(t *testing.T) {
	s := NewSession("goal", 0)
	assert.Equal(t, 1, s.MaxSteps)
	assert.NotEmpty(t, s.ID)
}
