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

// Package metrics exposes Prometheus counters and histograms for agent
// runs, tool calls and LLM calls, served on GET /metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

var registry = prometheus.NewRegistry()

var (
	agentRuns = promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
		Name: "agent_runs_total",
		Help: "Completed agent runs by outcome.",
	}, []string{"outcome"})

	toolCalls = promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
		Name: "tool_calls_total",
		Help: "Tool invocations by tool name and outcome.",
	}, []string{"tool", "outcome"})

	llmCalls = promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
		Name: "llm_calls_total",
		Help: "LLM provider calls by provider and outcome.",
	}, []string{"provider", "outcome"})

	stepDuration = promauto.With(registry).NewHistogram(prometheus.HistogramOpts{
		Name:    "agent_step_duration_seconds",
		Help:    "Duration of a full plan-act-summarise step.",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
	})

	toolCallDuration = promauto.With(registry).NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tool_call_duration_seconds",
		Help:    "Duration of individual tool calls.",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
	}, []string{"tool"})
)

func init() {
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

func outcome(err error) string {
	if err != nil {
		return OutcomeError
	}
	return OutcomeOK
}

// RecordAgentRun counts one finished agent run.
func RecordAgentRun(err error) {
	agentRuns.WithLabelValues(outcome(err)).Inc()
}

// RecordToolCall counts one tool invocation and observes its duration.
func RecordToolCall(tool string, err error, elapsed time.Duration) {
	toolCalls.WithLabelValues(tool, outcome(err)).Inc()
	toolCallDuration.WithLabelValues(tool).Observe(elapsed.Seconds())
}

// RecordLLMCall counts one provider call.
func RecordLLMCall(provider string, err error) {
	llmCalls.WithLabelValues(provider, outcome(err)).Inc()
}

// ObserveStepDuration records the wall time of one agent step.
func ObserveStepDuration(elapsed time.Duration) {
	stepDuration.Observe(elapsed.Seconds())
}

// Handler serves the metrics registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
