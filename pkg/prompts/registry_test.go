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

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_Register(t *testing.T) {
	r := NewRegistry()

	err := r.Register(Spec{ID: "greet", Version: "v1", Template: "Hello {name}"})
	require.NoError(t, err)

	t.Run("duplicate fails", func(t *testing.T) {
		err := r.Register(Spec{ID: "greet", Version: "v1", Template: "other"})
		assert.Error(t, err)
	})

	t.Run("same id new version succeeds", func(t *testing.T) {
		err := r.Register(Spec{ID: "greet", Version: "v2", Template: "Hi {name}"})
		assert.NoError(t, err)
	})

	t.Run("missing id fails", func(t *testing.T) {
		err := r.Register(Spec{Version: "v1", Template: "x"})
		assert.Error(t, err)
	})

	t.Run("missing version fails", func(t *testing.T) {
		err := r.Register(Spec{ID: "x", Template: "x"})
		assert.Error(t, err)
	})

	t.Run("no template or fn fails", func(t *testing.T) {
		err := r.Register(Spec{ID: "empty", Version: "v1"})
		assert.Error(t, err)
	})
}

func TestRegistry_Render(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(Spec{
		ID:           "greet",
		Version:      "v1",
		Template:     "Hello {name}, step {step}{suffix?}",
		RequiredVars: []string{"name", "step"},
	}))

	t.Run("all required vars present", func(t *testing.T) {
		out, err := r.Render("greet", "v1", map[string]any{"name": "Ada", "step": 2})
		require.NoError(t, err)
		assert.Equal(t, "Hello Ada, step 2", out)
	})

	t.Run("optional var substituted when present", func(t *testing.T) {
		out, err := r.Render("greet", "v1", map[string]any{"name": "Ada", "step": 2, "suffix": "!"})
		require.NoError(t, err)
		assert.Equal(t, "Hello Ada, step 2!", out)
	})

	t.Run("missing required var", func(t *testing.T) {
		_, err := r.Render("greet", "v1", map[string]any{"name": "Ada"})
		var missingErr *MissingVarsError
		require.True(t, errors.As(err, &missingErr))
		assert.Equal(t, []string{"step"}, missingErr.Missing)
	})

	t.Run("unknown template", func(t *testing.T) {
		_, err := r.Render("greet", "v9", map[string]any{"name": "Ada", "step": 0})
		assert.Error(t, err)
	})
}

func TestRegistry_RenderFn(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(Spec{
		ID:      "fn",
		Version: "v1",
		Fn: func(vars map[string]any) (string, error) {
			return "goal=" + vars["goal"].(string), nil
		},
		RequiredVars: []string{"goal"},
	}))

	out, err := r.Render("fn", "v1", map[string]any{"goal": "test"})
	require.NoError(t, err)
	assert.Equal(t, "goal=test", out)
}

func TestInterpolate_LeavesJSONBracesAlone(t *testing.T) {
	template := `Respond with {"goal_reached": true} or fill {name}.`
	out := interpolate(template, map[string]any{"name": "sum"})
	assert.Equal(t, `Respond with {"goal_reached": true} or fill sum.`, out)
}

func TestListPlaceholders(t *testing.T) {
	names := ListPlaceholders("a {x} b {y?} c {x} {not-an-id}")
	assert.Equal(t, []string{"x", "y"}, names)
}

func TestBuiltinTemplatesRegistered(t *testing.T) {
	for _, id := range []string{
		PlannerSystemID, PlannerUserID, PlannerParamSystemID,
		ReplannerSystemID, SummariserUserID,
	} {
		_, ok := Default.Get(id, V1)
		assert.True(t, ok, "builtin %s@%s not registered", id, V1)
	}

	spec, _ := Default.Get(PlannerSystemID, V1)
	assert.True(t, spec.JSONMode)

	spec, _ = Default.Get(SummariserUserID, V1)
	assert.False(t, spec.JSONMode)
}
