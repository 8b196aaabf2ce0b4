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

package mcp

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drainAuthCodes() {
	for {
		select {
		case <-authCodes:
		default:
			return
		}
	}
}

func TestAuthCodeQueue(t *testing.T) {
	drainAuthCodes()

	require.NoError(t, EnqueueAuthCode("code-1", "state-1"))

	t.Run("second enqueue without consumer fails", func(t *testing.T) {
		assert.Error(t, EnqueueAuthCode("code-2", "state-2"))
	})

	t.Run("await receives the queued code", func(t *testing.T) {
		code, err := awaitAuthCode(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "code-1", code.Code)
		assert.Equal(t, "state-1", code.State)
	})

	t.Run("await honors cancellation", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		_, err := awaitAuthCode(ctx)
		assert.Error(t, err)
	})
}

func TestIsTimeout(t *testing.T) {
	assert.False(t, isTimeout(nil))
	assert.True(t, isTimeout(context.DeadlineExceeded))
	assert.False(t, isTimeout(assert.AnError))
}
