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
	"encoding/json"
	"fmt"
	"strings"

	"github.com/helmsman-ai/helmsman/pkg/llms"
	"github.com/helmsman-ai/helmsman/pkg/prompts"
	"github.com/helmsman-ai/helmsman/pkg/tools"
)

// Planner turns session state into the next Decision via the LLM.
//
// Mode A (full plan) lets the model pick any registered tool or declare
// the run finished. Mode B (parameter-only) applies when the session pins
// a tool: the model only fills arguments and the tool name is force-set
// regardless of what it answered.
type Planner struct {
	llm      llms.Port
	registry *prompts.Registry
}

// NewPlanner creates a planner over the default prompt registry.
func NewPlanner(llm llms.Port) *Planner {
	return &Planner{llm: llm, registry: prompts.Default}
}

// Plan produces the decision for the session's current step.
func (p *Planner) Plan(ctx context.Context, session *AgentSession) (Decision, error) {
	if session.PreselectedTool != "" {
		return p.planParameters(ctx, session)
	}
	return p.planFull(ctx, session)
}

func (p *Planner) planFull(ctx context.Context, session *AgentSession) (Decision, error) {
	system, err := p.registry.Render(prompts.PlannerSystemID, prompts.V1, map[string]any{
		"tools":        formatTools(session.ToolsMeta),
		"context_note": contextNote(session),
	})
	if err != nil {
		return Decision{}, err
	}
	user, err := p.registry.Render(prompts.PlannerUserID, prompts.V1, map[string]any{
		"goal":       session.UserPrompt,
		"step_index": session.StepIndex,
	})
	if err != nil {
		return Decision{}, err
	}

	response, err := p.llm.Call(ctx, llms.CallRequest{
		Prompt:       user,
		SystemPrompt: system,
		JSONMode:     true,
	})
	if err != nil {
		return Decision{}, fmt.Errorf("planner LLM call failed: %w", err)
	}
	return ParseDecision(response)
}

func (p *Planner) planParameters(ctx context.Context, session *AgentSession) (Decision, error) {
	var schema string
	for _, tool := range session.ToolsMeta {
		if tool.Name == session.PreselectedTool {
			schema = marshalCompact(tool.InputSchema)
			break
		}
	}
	if schema == "" {
		schema = "{}"
	}

	system, err := p.registry.Render(prompts.PlannerParamSystemID, prompts.V1, map[string]any{
		"tool_name":   session.PreselectedTool,
		"tool_schema": schema,
	})
	if err != nil {
		return Decision{}, err
	}
	user, err := p.registry.Render(prompts.PlannerUserID, prompts.V1, map[string]any{
		"goal":       session.UserPrompt,
		"step_index": session.StepIndex,
	})
	if err != nil {
		return Decision{}, err
	}

	response, err := p.llm.Call(ctx, llms.CallRequest{
		Prompt:       user,
		SystemPrompt: system,
		JSONMode:     true,
	})
	if err != nil {
		return Decision{}, fmt.Errorf("planner LLM call failed: %w", err)
	}

	decision, err := ParseDecision(response)
	if err != nil {
		return Decision{}, err
	}
	if decision.Kind == DecisionCall {
		// The tool was chosen before planning; the model only fills
		// arguments.
		decision.ToolName = session.PreselectedTool
	}
	return decision, nil
}

// Replan is invoked when a step's summary signalled that the run is not
// ready to proceed. The model sees the latest summary, accumulated facts
// and the executed history; an exact repeat of an executed (tool, args)
// pair is rejected and degrades to Terminate.
func (p *Planner) Replan(ctx context.Context, session *AgentSession, summary string) (Decision, error) {
	executed := session.ExecutedPairs()

	system, err := p.registry.Render(prompts.ReplannerSystemID, prompts.V1, map[string]any{
		"summary":  summary,
		"facts":    formatFacts(session),
		"executed": formatExecuted(executed),
		"tools":    formatTools(session.ToolsMeta),
	})
	if err != nil {
		return Decision{}, err
	}
	user, err := p.registry.Render(prompts.PlannerUserID, prompts.V1, map[string]any{
		"goal":       session.UserPrompt,
		"step_index": session.StepIndex,
	})
	if err != nil {
		return Decision{}, err
	}

	response, err := p.llm.Call(ctx, llms.CallRequest{
		Prompt:       user,
		SystemPrompt: system,
		JSONMode:     true,
	})
	if err != nil {
		return Decision{}, fmt.Errorf("replanner LLM call failed: %w", err)
	}

	decision, err := ParseDecision(response)
	if err != nil {
		return Decision{}, err
	}
	if decision.Kind == DecisionCall && isExecuted(decision, executed) {
		return Decision{
			Kind:   DecisionTerminate,
			Reason: fmt.Sprintf("replanner proposed already-executed call to %s", decision.ToolName),
		}, nil
	}
	return decision, nil
}

func isExecuted(decision Decision, executed []ExecutedCall) bool {
	proposed := marshalCompact(decision.Arguments)
	for _, call := range executed {
		if call.ToolName == decision.ToolName && marshalCompact(call.Arguments) == proposed {
			return true
		}
	}
	return false
}

// contextNote summarises the previous step for the planner system prompt.
// Empty on step 0.
func contextNote(session *AgentSession) string {
	if len(session.Trace) == 0 {
		return ""
	}
	last := session.Trace[len(session.Trace)-1]
	if last.Plan.Kind != DecisionCall {
		return ""
	}
	return fmt.Sprintf("Previous step: called %s with arguments %s. Outcome: %s\n\n",
		last.Plan.ToolName, marshalCompact(last.Plan.Arguments), last.Observation)
}

func formatTools(descriptors []tools.ToolDescriptor) string {
	if len(descriptors) == 0 {
		return "(no tools available)"
	}
	var b strings.Builder
	for _, tool := range descriptors {
		fmt.Fprintf(&b, "- %s: %s\n  schema: %s\n",
			tool.Name, tool.Description, marshalCompact(tool.InputSchema))
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatFacts(session *AgentSession) string {
	if len(session.Trace) == 0 {
		return "(none)"
	}
	var b strings.Builder
	for i, entry := range session.Trace {
		fmt.Fprintf(&b, "%d. %s\n", i+1, entry.Observation)
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatExecuted(executed []ExecutedCall) string {
	if len(executed) == 0 {
		return "(none)"
	}
	var b strings.Builder
	for _, call := range executed {
		fmt.Fprintf(&b, "- %s %s\n", call.ToolName, marshalCompact(call.Arguments))
	}
	return strings.TrimRight(b.String(), "\n")
}

func marshalCompact(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(data)
}
