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

// Package prompts provides a versioned registry of prompt templates.
//
// Templates are keyed by (id, version) and rendered with strict
// required-variable checking. A template is either a literal string with
// {variable} placeholders or a pure function of the variable map; both
// paths are side-effect free.
//
// The built-in planner/summariser prompts register themselves at package
// init; duplicate registration is fatal at startup.
package prompts

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"unicode"
)

// Kind categorizes a prompt template.
type Kind string

const (
	KindPlanner    Kind = "planner"
	KindReplanner  Kind = "replanner"
	KindSummariser Kind = "summariser"
	KindGeneric    Kind = "generic"
)

// Spec describes one versioned prompt template.
type Spec struct {
	// ID identifies the template family (e.g. "planner.system").
	ID string

	// Version of the template (e.g. "v1").
	Version string

	// Kind categorizes the template.
	Kind Kind

	// Template is a literal string with {variable} placeholders.
	// Ignored when Fn is set.
	Template string

	// Fn renders the template from the variable map. Must be pure.
	Fn func(vars map[string]any) (string, error)

	// RequiredVars must all be present in the variable map at render time.
	RequiredVars []string

	// JSONMode indicates the LLM should be invoked in JSON mode when this
	// prompt is used.
	JSONMode bool
}

// MissingVarsError reports required variables absent from a Render call.
type MissingVarsError struct {
	ID      string
	Version string
	Missing []string
}

func (e *MissingVarsError) Error() string {
	return fmt.Sprintf("prompt %s@%s: missing required vars: %s",
		e.ID, e.Version, strings.Join(e.Missing, ", "))
}

// placeholderRegex matches {variable} and {variable?} placeholders.
var placeholderRegex = regexp.MustCompile(`{+[^{}]*}+`)

type key struct {
	id      string
	version string
}

// Registry is a keyed store of versioned prompt templates.
// Immutable after startup by convention; Register is still safe for
// concurrent use.
type Registry struct {
	mu    sync.RWMutex
	items map[key]Spec
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{items: make(map[key]Spec)}
}

// Register adds a template. It fails when (id, version) already exists or
// the spec is structurally invalid.
func (r *Registry) Register(spec Spec) error {
	if spec.ID == "" {
		return fmt.Errorf("prompt id cannot be empty")
	}
	if spec.Version == "" {
		return fmt.Errorf("prompt %s: version cannot be empty", spec.ID)
	}
	if spec.Template == "" && spec.Fn == nil {
		return fmt.Errorf("prompt %s@%s: either template or fn is required", spec.ID, spec.Version)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	k := key{id: spec.ID, version: spec.Version}
	if _, exists := r.items[k]; exists {
		return fmt.Errorf("prompt %s@%s already registered", spec.ID, spec.Version)
	}
	r.items[k] = spec
	return nil
}

// Get retrieves a template by id and version.
func (r *Registry) Get(id, version string) (Spec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	spec, ok := r.items[key{id: id, version: version}]
	return spec, ok
}

// List returns all registered (id, version) pairs, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.items))
	for k := range r.items {
		out = append(out, k.id+"@"+k.version)
	}
	sort.Strings(out)
	return out
}

// Render resolves the template with the given variables. Missing required
// variables yield a *MissingVarsError.
func (r *Registry) Render(id, version string, vars map[string]any) (string, error) {
	spec, ok := r.Get(id, version)
	if !ok {
		return "", fmt.Errorf("prompt %s@%s not registered", id, version)
	}

	var missing []string
	for _, name := range spec.RequiredVars {
		if _, present := vars[name]; !present {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return "", &MissingVarsError{ID: id, Version: version, Missing: missing}
	}

	if spec.Fn != nil {
		return spec.Fn(vars)
	}
	return interpolate(spec.Template, vars), nil
}

// interpolate substitutes {variable} placeholders from vars.
// {variable?} is optional and resolves to the empty string when absent.
// Placeholders that are not valid identifiers are left as-is.
func interpolate(template string, vars map[string]any) string {
	var result strings.Builder
	lastIndex := 0

	for _, m := range placeholderRegex.FindAllStringIndex(template, -1) {
		start, end := m[0], m[1]
		result.WriteString(template[lastIndex:start])

		match := template[start:end]
		name := strings.TrimSpace(strings.Trim(match, "{}"))
		optional := strings.HasSuffix(name, "?")
		name = strings.TrimSuffix(name, "?")

		if !isIdentifier(name) {
			result.WriteString(match)
		} else if value, ok := vars[name]; ok {
			result.WriteString(fmt.Sprintf("%v", value))
		} else if !optional {
			// Required-but-unlisted placeholders surface verbatim so the
			// omission is visible in the rendered prompt.
			result.WriteString(match)
		}

		lastIndex = end
	}

	result.WriteString(template[lastIndex:])
	return result.String()
}

// ListPlaceholders returns the distinct placeholder names in a template.
func ListPlaceholders(template string) []string {
	var names []string
	seen := make(map[string]bool)
	for _, match := range placeholderRegex.FindAllString(template, -1) {
		name := strings.TrimSpace(strings.Trim(match, "{}"))
		name = strings.TrimSuffix(name, "?")
		if isIdentifier(name) && !seen[name] {
			names = append(names, name)
			seen[name] = true
		}
	}
	return names
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		if i == 0 {
			if !unicode.IsLetter(r) && r != '_' {
				return false
			}
		} else if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' {
			return false
		}
	}
	return true
}

// Default is the process-global registry populated at startup.
var Default = NewRegistry()

// MustRegister registers into the default registry and panics on failure.
// Intended for package-init registration where a duplicate is a bug.
func MustRegister(spec Spec) {
	if err := Default.Register(spec); err != nil {
		panic(fmt.Sprintf("prompts.MustRegister: %v", err))
	}
}
