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
	"fmt"
)

// AuthCode is one authorization code delivered to the OAuth callback.
type AuthCode struct {
	Code  string
	State string
}

// authCodes is the process-global queue feeding authorization codes from
// the HTTP callback handler to whichever connector is currently waiting in
// its OAuth bootstrap. Buffered with capacity 1: OAuth bootstraps run
// serially, so at most one code is ever in flight.
var authCodes = make(chan AuthCode, 1)

// EnqueueAuthCode hands an authorization code to the waiting connector.
// Returns an error when no bootstrap is consuming and the buffer is
// already occupied.
func EnqueueAuthCode(code, state string) error {
	select {
	case authCodes <- AuthCode{Code: code, State: state}:
		return nil
	default:
		return fmt.Errorf("authorization code queue is full")
	}
}

// awaitAuthCode blocks until a code arrives on the callback queue.
func awaitAuthCode(ctx context.Context) (AuthCode, error) {
	select {
	case code := <-authCodes:
		return code, nil
	case <-ctx.Done():
		return AuthCode{}, fmt.Errorf("waiting for authorization code: %w", ctx.Err())
	}
}
