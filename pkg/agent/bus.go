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
	"sync"
	"sync/atomic"
)

// busCapacity bounds the in-flight events per session.
const busCapacity = 16

// EventBus is the per-session event channel between one agent run and one
// streaming consumer. Publication applies backpressure once the buffer is
// full; events published before anyone subscribes are dropped.
type EventBus struct {
	ch         chan AgentEvent
	subscribed atomic.Bool
	closeOnce  sync.Once
	closed     chan struct{}
}

// NewEventBus creates a bus for one run.
func NewEventBus() *EventBus {
	return &EventBus{
		ch:     make(chan AgentEvent, busCapacity),
		closed: make(chan struct{}),
	}
}

// Subscribe returns the event stream. The first subscriber wins; events
// published earlier are gone.
func (b *EventBus) Subscribe() <-chan AgentEvent {
	b.subscribed.Store(true)
	return b.ch
}

// Publish delivers an event to the subscriber, blocking when the buffer is
// full until the subscriber catches up, ctx is cancelled, or the bus
// closes. Without a subscriber the event is dropped.
func (b *EventBus) Publish(ctx context.Context, event AgentEvent) error {
	if !b.subscribed.Load() {
		return nil
	}
	select {
	case b.ch <- event:
		return nil
	case <-b.closed:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close ends the stream. Idempotent. Only the publishing side may call
// it, and only after its final Publish; the subscriber then sees a closed
// channel once buffered events drain.
func (b *EventBus) Close() {
	b.closeOnce.Do(func() {
		close(b.closed)
		close(b.ch)
	})
}
