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

// AgentEventType names the streamed lifecycle events of a run.
type AgentEventType string

const (
	EventSessionStarted     AgentEventType = "session.started"
	EventPlanningStarted    AgentEventType = "planning.started"
	EventReplanningStarted  AgentEventType = "replanning.started"
	EventPlanGenerated      AgentEventType = "plan.generated"
	EventStepStarted        AgentEventType = "step.started"
	EventStepFinished       AgentEventType = "step.finished"
	EventToolExecStarted    AgentEventType = "step.tool_execution.started"
	EventToolExecFinished   AgentEventType = "step.tool_execution.finished"
	EventSummaryReceived    AgentEventType = "summary.received"
	EventError              AgentEventType = "error"
	EventFinal              AgentEventType = "final"
)

// AgentEvent is one value-typed lifecycle event. Data maps are never
// mutated after publication.
type AgentEvent struct {
	Type AgentEventType `json:"event"`
	Data map[string]any `json:"data,omitempty"`
}
