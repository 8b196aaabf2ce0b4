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
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helmsman-ai/helmsman/pkg/config"
	"github.com/helmsman-ai/helmsman/pkg/tools"
)

// fakeBroker implements ToolCaller with canned tool results.
type fakeBroker struct {
	descriptors []tools.ToolDescriptor
	results     map[string]string
	calls       []string
}

func (f *fakeBroker) ListTools() []tools.ToolDescriptor { return f.descriptors }

func (f *fakeBroker) CallTool(ctx context.Context, name string, args map[string]any) (string, error) {
	f.calls = append(f.calls, name)
	result, ok := f.results[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", tools.ErrToolNotFound, name)
	}
	return result, nil
}

func newTestService(llm *fakeLLM, broker *fakeBroker) *Service {
	cfg := config.AgentConfig{}
	cfg.SetDefaults()
	return NewService(llm, broker, cfg)
}

func mathBroker() *fakeBroker {
	return &fakeBroker{
		descriptors: []tools.ToolDescriptor{sumDescriptor()},
		results:     map[string]string{"sum": "5"},
	}
}

func TestService_SingleStepSuccess(t *testing.T) {
	llm := &fakeLLM{responses: []string{
		`{"call_function": "sum", "arguments": {"a": 2, "b": 3}}`,
		"The sum is 5.",
	}}
	broker := mathBroker()
	service := newTestService(llm, broker)

	session := NewSession("Add 2 and 3", 1)
	result, trace := service.Run(context.Background(), session, nil)

	assert.Equal(t, "The sum is 5.", result)
	assert.Equal(t, StateDone, session.State)
	assert.Equal(t, 1, session.StepIndex)
	require.Len(t, trace, 1)
	assert.Equal(t, DecisionCall, trace[0].Plan.Kind)
	require.NotNil(t, trace[0].Act)
	assert.Equal(t, "5", *trace[0].Act)
	assert.Equal(t, "The sum is 5.", trace[0].Observation)
	assert.Equal(t, []string{"sum"}, broker.calls)
}

func TestService_GoalReachedBeforeActing(t *testing.T) {
	llm := &fakeLLM{responses: []string{`{"goal_reached": true}`}}
	broker := mathBroker()
	service := newTestService(llm, broker)

	session := NewSession("nothing to do", 3)
	result, trace := service.Run(context.Background(), session, nil)

	assert.Equal(t, StateDone, session.State)
	assert.Equal(t, 0, session.StepIndex)
	require.Len(t, trace, 1)
	assert.Nil(t, trace[0].Act)
	assert.Equal(t, "Planning indicated completion.", trace[0].Observation)
	assert.Equal(t, "Planning indicated completion.", result)
	assert.Empty(t, broker.calls)
}

func TestService_TerminateOnBlockedPreconditions(t *testing.T) {
	llm := &fakeLLM{responses: []string{
		`{"call_function": "sum", "arguments": {"a": 1, "b": 1}}`,
		"The sum is 2.",
		`{"terminate": true, "reason": "remaining input unavailable"}`,
	}}
	broker := mathBroker()
	service := newTestService(llm, broker)

	session := NewSession("goal", 3)
	result, trace := service.Run(context.Background(), session, nil)

	assert.Equal(t, StateDone, session.State)
	require.Len(t, trace, 2)
	assert.Equal(t, "Planning indicated completion.", trace[1].Observation)
	assert.Equal(t, DecisionTerminate, trace[1].Plan.Kind)
	// The first step already produced a summary; that stays the result.
	assert.Equal(t, "The sum is 2.", result)
}

func TestService_ToolNotFoundBecomesObservation(t *testing.T) {
	llm := &fakeLLM{responses: []string{
		`{"call_function": "nope", "arguments": {}}`,
		"The tool was missing. NOT_READY",
		`{"terminate": true, "reason": "no usable tool"}`,
	}}
	broker := mathBroker()
	service := newTestService(llm, broker)

	session := NewSession("goal", 3)
	_, trace := service.Run(context.Background(), session, nil)

	assert.Equal(t, StateDone, session.State)
	require.GreaterOrEqual(t, len(trace), 1)
	require.NotNil(t, trace[0].Act)
	assert.Contains(t, *trace[0].Act, "Tool call failed")
	assert.Contains(t, *trace[0].Act, "tool not found")
}

func TestService_PlannerParseFailureEndsInError(t *testing.T) {
	llm := &fakeLLM{responses: []string{"definitely not json"}}
	broker := mathBroker()
	service := newTestService(llm, broker)

	session := NewSession("goal", 3)
	result, trace := service.Run(context.Background(), session, nil)

	assert.Equal(t, StateError, session.State)
	assert.True(t, strings.HasPrefix(result, "Agent error: "), result)
	assert.Empty(t, trace)
}

func TestService_NotReadySummaryTriggersReplan(t *testing.T) {
	llm := &fakeLLM{responses: []string{
		`{"call_function": "sum", "arguments": {"a": 1, "b": 1}}`,
		"Partial result only. NOT_READY",
		`{"call_function": "sum", "arguments": {"a": 4, "b": 4}}`,
		"All done now.",
	}}
	broker := mathBroker()
	service := newTestService(llm, broker)

	session := NewSession("goal", 2)
	result, trace := service.Run(context.Background(), session, nil)

	assert.Equal(t, StateDone, session.State)
	assert.Equal(t, "All done now.", result)
	require.Len(t, trace, 2)

	// The second planning round went through the replanner: its system
	// prompt carries the executed history.
	require.Len(t, llm.requests, 4)
	assert.Contains(t, llm.requests[2].SystemPrompt, "Already executed")
}

func TestService_StreamsLifecycleEvents(t *testing.T) {
	llm := &fakeLLM{responses: []string{
		`{"call_function": "sum", "arguments": {"a": 2, "b": 3}}`,
		"The sum is 5.",
	}}
	broker := mathBroker()
	service := newTestService(llm, broker)

	bus := NewEventBus()
	events := bus.Subscribe()

	session := NewSession("Add 2 and 3", 1)
	done := make(chan struct{})
	var got []AgentEventType
	go func() {
		defer close(done)
		for event := range events {
			got = append(got, event.Type)
		}
	}()

	service.Run(context.Background(), session, bus)
	bus.Close()
	<-done

	assert.Equal(t, []AgentEventType{
		EventSessionStarted,
		EventPlanningStarted,
		EventPlanGenerated,
		EventStepStarted,
		EventToolExecStarted,
		EventToolExecFinished,
		EventSummaryReceived,
		EventStepFinished,
	}, got)
}

func TestService_MaxStepsBoundsTheLoop(t *testing.T) {
	llm := &fakeLLM{responses: []string{
		`{"call_function": "sum", "arguments": {"a": 1}}`,
		"step one",
		`{"call_function": "sum", "arguments": {"a": 2}}`,
		"step two",
	}}
	broker := mathBroker()
	service := newTestService(llm, broker)

	session := NewSession("goal", 2)
	result, trace := service.Run(context.Background(), session, nil)

	assert.Equal(t, StateDone, session.State)
	assert.Equal(t, 2, session.StepIndex)
	assert.Len(t, trace, 2)
	assert.Equal(t, "step two", result)
	assert.Empty(t, llm.responses, "exactly max_steps plan/summary rounds")
}
