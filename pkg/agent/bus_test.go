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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventBus_OrderPreserved(t *testing.T) {
	bus := NewEventBus()
	events := bus.Subscribe()

	ctx := context.Background()
	require.NoError(t, bus.Publish(ctx, AgentEvent{Type: EventSessionStarted}))
	require.NoError(t, bus.Publish(ctx, AgentEvent{Type: EventPlanningStarted}))
	require.NoError(t, bus.Publish(ctx, AgentEvent{Type: EventPlanGenerated}))
	bus.Close()

	var got []AgentEventType
	for event := range events {
		got = append(got, event.Type)
	}
	assert.Equal(t, []AgentEventType{EventSessionStarted, EventPlanningStarted, EventPlanGenerated}, got)
}

func TestEventBus_DropsWithoutSubscriber(t *testing.T) {
	bus := NewEventBus()

	ctx := context.Background()
	require.NoError(t, bus.Publish(ctx, AgentEvent{Type: EventSessionStarted}))

	events := bus.Subscribe()
	require.NoError(t, bus.Publish(ctx, AgentEvent{Type: EventPlanningStarted}))
	bus.Close()

	var got []AgentEventType
	for event := range events {
		got = append(got, event.Type)
	}
	assert.Equal(t, []AgentEventType{EventPlanningStarted}, got)
}

func TestEventBus_PublishBackpressureCancellation(t *testing.T) {
	bus := NewEventBus()
	bus.Subscribe()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	// Nobody drains: fill the buffer, then the next publish must block
	// until the context gives up.
	for i := 0; i < busCapacity; i++ {
		require.NoError(t, bus.Publish(context.Background(), AgentEvent{Type: EventStepStarted}))
	}
	err := bus.Publish(ctx, AgentEvent{Type: EventStepFinished})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestEventBus_CloseIsIdempotent(t *testing.T) {
	bus := NewEventBus()
	bus.Close()
	bus.Close()

	_, open := <-bus.Subscribe()
	assert.False(t, open)
}
