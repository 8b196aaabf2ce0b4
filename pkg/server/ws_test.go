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

package server

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helmsman-ai/helmsman/pkg/llms"
)

// blockingLLM parks every Call on its context and reports when the
// cancellation arrives.
type blockingLLM struct {
	started    chan struct{}
	cancelled  chan struct{}
	startOnce  sync.Once
	cancelOnce sync.Once
}

func newBlockingLLM() *blockingLLM {
	return &blockingLLM{
		started:   make(chan struct{}),
		cancelled: make(chan struct{}),
	}
}

func (b *blockingLLM) Call(ctx context.Context, req llms.CallRequest) (string, error) {
	b.startOnce.Do(func() { close(b.started) })
	<-ctx.Done()
	b.cancelOnce.Do(func() { close(b.cancelled) })
	return "", ctx.Err()
}

func (b *blockingLLM) CallStream(ctx context.Context, req llms.CallRequest) (<-chan llms.StreamChunk, error) {
	ch := make(chan llms.StreamChunk)
	close(ch)
	return ch, nil
}

func (b *blockingLLM) ModelName() string { return "blocking" }
func (b *blockingLLM) Close() error      { return nil }

func wsURL(ts *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + path
}

func dialWS(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var frame map[string]any
	require.NoError(t, conn.ReadJSON(&frame))
	return frame
}

func TestWSAgent_StreamsEventsToFinal(t *testing.T) {
	llm := &scriptedLLM{responses: []string{`{"goal_reached": true}`}}
	srv := newTestServer(t, llm, "", true)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	conn := dialWS(t, wsURL(ts, "/ws/agent"))
	defer conn.Close()
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("do nothing")))

	var events []string
	var final map[string]any
	for final == nil {
		frame := readFrame(t, conn)
		event, _ := frame["event"].(string)
		events = append(events, event)
		if event == "final" {
			final = frame
		}
	}

	assert.Equal(t, "session.started", events[0])
	assert.Contains(t, events, "planning.started")
	assert.Contains(t, events, "plan.generated")
	assert.NotEmpty(t, final["result"])

	// A clean close follows the final frame.
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure))
}

func TestWSAgent_ClientDisconnectCancelsRun(t *testing.T) {
	llm := newBlockingLLM()
	srv := newTestServer(t, llm, "", true)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	conn := dialWS(t, wsURL(ts, "/ws/agent"))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("slow goal")))

	// Wait until the run is parked inside the planner, then walk away.
	select {
	case <-llm.started:
	case <-time.After(2 * time.Second):
		t.Fatal("run never reached the planner")
	}
	require.NoError(t, conn.Close())

	// The dropped connection must unwind the in-flight LLM call.
	select {
	case <-llm.cancelled:
	case <-time.After(2 * time.Second):
		t.Fatal("client disconnect did not cancel the run")
	}
}

func TestWSAgent_RejectsBadToken(t *testing.T) {
	srv := newTestServer(t, &scriptedLLM{}, "secret", true)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	conn := dialWS(t, wsURL(ts, "/ws/agent?token=wrong"))
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.ClosePolicyViolation),
		"expected close 1008, got %v", err)
}

func TestWSCall_StreamsAndCompletes(t *testing.T) {
	llm := &scriptedLLM{responses: []string{"hello back"}}
	srv := newTestServer(t, llm, "", true)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	conn := dialWS(t, wsURL(ts, "/ws/call"))
	defer conn.Close()
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("hello")))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, text, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "hello back", string(text))

	var done map[string]any
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&done))
	assert.Equal(t, true, done["complete"])
	assert.Equal(t, "hello back", done["result"])
}

func TestWSCallMCP_SingleStepRun(t *testing.T) {
	llm := &scriptedLLM{responses: []string{`{"goal_reached": true}`}}
	srv := newTestServer(t, llm, "", true)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	conn := dialWS(t, wsURL(ts, "/ws/call_mcp"))
	defer conn.Close()
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("nothing to do")))

	var body runResponse
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&body))
	require.Len(t, body.Trace, 1)
	assert.Equal(t, "Planning indicated completion.", body.Trace[0].Observation)

	var raw json.RawMessage
	err := conn.ReadJSON(&raw)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure))
}
