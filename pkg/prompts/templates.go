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

package prompts

// NotReadyMarker is the literal the summariser emits when the executed step
// did not produce the effects required to proceed. The agent loop watches
// for it to trigger re-planning.
const NotReadyMarker = "NOT_READY"

// Built-in template identifiers.
const (
	PlannerSystemID      = "planner.system"
	PlannerUserID        = "planner.user"
	PlannerParamSystemID = "planner.param.system"
	ReplannerSystemID    = "replanner.system"
	SummariserUserID     = "summariser.user"

	// V1 is the only shipped version of the built-in templates.
	V1 = "v1"
)

const plannerSystemTemplate = `You are a planning assistant that decides the single next action toward a goal.

{context_note?}Available tools:
{tools}

Respond with a single JSON object in exactly one of these forms:
  {"call_function": "<tool name>", "arguments": {<arguments matching the tool schema>}}
  {"goal_reached": true}
  {"terminate": true, "reason": "<why no further progress is possible>"}

Rules:
- Do not repeat a tool call that was already executed with the same arguments.
- If a precondition for every remaining action is unmet, return terminate with a reason.
- If the goal has already been achieved, return goal_reached.
- Output only the JSON object, with no surrounding text.`

const plannerUserTemplate = `Goal: {goal}
This is planning step {step_index}. Decide the next action.`

const plannerParamSystemTemplate = `You are a planning assistant. The next tool has already been chosen: {tool_name}.

Tool schema:
{tool_schema}

Respond with a single JSON object of the form:
  {"call_function": "{tool_name}", "arguments": {<arguments matching the schema>}}

Fill in the arguments only. Output only the JSON object.`

const replannerSystemTemplate = `You are a planning assistant. The previous step did not produce the effects required to proceed, so a new action must be chosen.

Latest step summary:
{summary}

Known facts:
{facts}

Already executed (do NOT propose any of these again with identical arguments):
{executed}

Available tools:
{tools}

Respond with a single JSON object in exactly one of these forms:
  {"call_function": "<tool name>", "arguments": {<arguments matching the tool schema>}}
  {"goal_reached": true}
  {"terminate": true, "reason": "<why no further progress is possible>"}

Output only the JSON object, with no surrounding text.`

const summariserUserTemplate = `A tool was just executed as part of working toward this goal: {goal}

Tool: {tool_name}
Arguments: {arguments}
Result:
{observation}

Summarise what this result means for the goal in one or two sentences.
If the result shows the step failed or is missing effects required to proceed, include the literal token NOT_READY in your answer. Otherwise do not mention NOT_READY.`

func init() {
	MustRegister(Spec{
		ID:           PlannerSystemID,
		Version:      V1,
		Kind:         KindPlanner,
		Template:     plannerSystemTemplate,
		RequiredVars: []string{"tools"},
		JSONMode:     true,
	})
	MustRegister(Spec{
		ID:           PlannerUserID,
		Version:      V1,
		Kind:         KindPlanner,
		Template:     plannerUserTemplate,
		RequiredVars: []string{"goal", "step_index"},
		JSONMode:     true,
	})
	MustRegister(Spec{
		ID:           PlannerParamSystemID,
		Version:      V1,
		Kind:         KindPlanner,
		Template:     plannerParamSystemTemplate,
		RequiredVars: []string{"tool_name", "tool_schema"},
		JSONMode:     true,
	})
	MustRegister(Spec{
		ID:           ReplannerSystemID,
		Version:      V1,
		Kind:         KindReplanner,
		Template:     replannerSystemTemplate,
		RequiredVars: []string{"summary", "facts", "executed", "tools"},
		JSONMode:     true,
	})
	MustRegister(Spec{
		ID:           SummariserUserID,
		Version:      V1,
		Kind:         KindSummariser,
		Template:     summariserUserTemplate,
		RequiredVars: []string{"goal", "tool_name", "arguments", "observation"},
	})
}
