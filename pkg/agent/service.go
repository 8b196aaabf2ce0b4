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
	"log/slog"
	"strings"
	"time"

	"github.com/helmsman-ai/helmsman/pkg/config"
	"github.com/helmsman-ai/helmsman/pkg/llms"
	"github.com/helmsman-ai/helmsman/pkg/logger"
	"github.com/helmsman-ai/helmsman/pkg/metrics"
	"github.com/helmsman-ai/helmsman/pkg/prompts"
	"github.com/helmsman-ai/helmsman/pkg/tools"
	"github.com/helmsman-ai/helmsman/pkg/utils"
)

// completionObservation is the trace observation of a step that ended in a
// terminal decision instead of a tool call.
const completionObservation = "Planning indicated completion."

// ToolCaller is the broker surface the loop needs.
type ToolCaller interface {
	ListTools() []tools.ToolDescriptor
	CallTool(ctx context.Context, name string, args map[string]any) (string, error)
}

// Service runs agent sessions through the plan-act-summarise loop.
// One Service hosts any number of concurrent runs; all per-run state lives
// in the session.
type Service struct {
	llm      llms.Port
	broker   ToolCaller
	planner  *Planner
	registry *prompts.Registry
	cfg      config.AgentConfig
	counter  *utils.TokenCounter
	log      *slog.Logger
}

// NewService assembles the loop around an LLM port and a tool broker.
func NewService(llm llms.Port, broker ToolCaller, cfg config.AgentConfig) *Service {
	counter, err := utils.NewTokenCounter("gpt-4o")
	if err != nil {
		logger.GetLogger().Warn("Token counter unavailable, observations will not be clipped", "error", err)
	}
	return &Service{
		llm:      llm,
		broker:   broker,
		planner:  NewPlanner(llm),
		registry: prompts.Default,
		cfg:      cfg,
		counter:  counter,
		log:      logger.GetLogger(),
	}
}

// Run executes one session to a terminal state and returns the final
// observation plus the trace. It never returns an error: failures are
// reported in the result text, the session ends in ERROR, and an error
// event is published.
//
// The bus may be nil for non-streaming runs.
func (s *Service) Run(ctx context.Context, session *AgentSession, bus *EventBus) (string, []TraceEntry) {
	result, err := s.run(ctx, session, bus)
	metrics.RecordAgentRun(err)
	if err != nil {
		if stateErr := session.OnError(); stateErr != nil {
			s.log.Debug("Session already terminal on error", "session_id", session.ID)
		}
		s.publish(ctx, bus, AgentEvent{Type: EventError, Data: map[string]any{
			"message": err.Error(),
		}})
		s.log.Error("Agent run failed", "session_id", session.ID, "error", err)
		return fmt.Sprintf("Agent error: %s", err.Error()), session.Trace
	}
	return result, session.Trace
}

func (s *Service) run(ctx context.Context, session *AgentSession, bus *EventBus) (string, error) {
	if err := session.Start(); err != nil {
		return "", err
	}
	if len(session.ToolsMeta) == 0 {
		session.ToolsMeta = s.broker.ListTools()
	}

	s.publish(ctx, bus, AgentEvent{Type: EventSessionStarted, Data: map[string]any{
		"session_id": session.ID,
		"max_steps":  session.MaxSteps,
	}})

	finalObservation := ""
	replanNext := false
	lastSummary := ""

	for !session.State.Terminal() && session.StepIndex < session.MaxSteps {
		stepStart := time.Now()

		var decision Decision
		var err error
		if replanNext {
			s.publish(ctx, bus, AgentEvent{Type: EventReplanningStarted, Data: stepData(session)})
			decision, err = s.planner.Replan(ctx, session, lastSummary)
			replanNext = false
		} else {
			s.publish(ctx, bus, AgentEvent{Type: EventPlanningStarted, Data: stepData(session)})
			decision, err = s.planner.Plan(ctx, session)
		}
		if err != nil {
			return "", err
		}

		s.publish(ctx, bus, AgentEvent{Type: EventPlanGenerated, Data: map[string]any{
			"step_index": session.StepIndex,
			"decision":   decision,
		}})

		if decision.IsTerminal() {
			if err := session.OnPlanned(decision); err != nil {
				return "", err
			}
			session.AppendTrace(TraceEntry{
				Plan:        decision,
				Act:         nil,
				Observation: completionObservation,
			})
			if finalObservation == "" {
				finalObservation = completionObservation
				if decision.Kind == DecisionTerminate && decision.Reason != "" {
					finalObservation = decision.Reason
				}
			}
			break
		}

		if err := session.OnPlanned(decision); err != nil {
			return "", err
		}

		s.publish(ctx, bus, AgentEvent{Type: EventStepStarted, Data: stepData(session)})
		s.publish(ctx, bus, AgentEvent{Type: EventToolExecStarted, Data: map[string]any{
			"step_index": session.StepIndex,
			"tool":       decision.ToolName,
			"arguments":  decision.Arguments,
		}})

		observation := s.act(ctx, decision)

		s.publish(ctx, bus, AgentEvent{Type: EventToolExecFinished, Data: map[string]any{
			"step_index": session.StepIndex,
			"tool":       decision.ToolName,
		}})

		if err := session.OnExecuted(observation); err != nil {
			return "", err
		}

		summary, err := s.summarise(ctx, session, decision, observation)
		if err != nil {
			return "", err
		}

		s.publish(ctx, bus, AgentEvent{Type: EventSummaryReceived, Data: map[string]any{
			"step_index": session.StepIndex,
			"summary":    summary,
		}})

		act := observation
		session.AppendTrace(TraceEntry{
			Plan:        decision,
			Act:         &act,
			Observation: summary,
		})
		finalObservation = summary
		lastSummary = summary
		replanNext = strings.Contains(summary, prompts.NotReadyMarker)

		if err := session.OnSummarised(); err != nil {
			return "", err
		}

		s.publish(ctx, bus, AgentEvent{Type: EventStepFinished, Data: stepData(session)})
		metrics.ObserveStepDuration(time.Since(stepStart))
	}

	return finalObservation, nil
}

// act invokes the chosen tool with the configured timeout. Failures come
// back as observation text, never as errors; the planner sees them on the
// next step.
func (s *Service) act(ctx context.Context, decision Decision) string {
	callCtx, cancel := context.WithTimeout(ctx, time.Duration(s.cfg.ToolCallTimeoutSeconds)*time.Second)
	defer cancel()

	observation, err := s.broker.CallTool(callCtx, decision.ToolName, decision.Arguments)
	if err != nil {
		return fmt.Sprintf("Tool call failed: %s", err.Error())
	}
	return s.clip(observation)
}

func (s *Service) summarise(ctx context.Context, session *AgentSession, decision Decision, observation string) (string, error) {
	prompt, err := s.registry.Render(prompts.SummariserUserID, prompts.V1, map[string]any{
		"goal":        session.UserPrompt,
		"tool_name":   decision.ToolName,
		"arguments":   marshalCompact(decision.Arguments),
		"observation": observation,
	})
	if err != nil {
		return "", err
	}

	summary, err := s.llm.Call(ctx, llms.CallRequest{Prompt: prompt})
	if err != nil {
		return "", fmt.Errorf("summariser LLM call failed: %w", err)
	}
	return strings.TrimSpace(summary), nil
}

// clip bounds an observation to the configured token budget so one huge
// tool result cannot blow the next prompt.
func (s *Service) clip(observation string) string {
	if s.counter == nil || s.cfg.ObservationTokenBudget <= 0 {
		return observation
	}
	return s.counter.Truncate(observation, s.cfg.ObservationTokenBudget)
}

func (s *Service) publish(ctx context.Context, bus *EventBus, event AgentEvent) {
	if bus == nil {
		return
	}
	if err := bus.Publish(ctx, event); err != nil {
		s.log.Debug("Event publication cancelled", "type", event.Type)
	}
}

func stepData(session *AgentSession) map[string]any {
	return map[string]any{
		"step_index": session.StepIndex,
		"state":      session.State,
	}
}
