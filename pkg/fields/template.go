// Copyright 2025 seqops LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package fields

import (
	"fmt"
	"regexp"
)

// placeholderPattern matches <name> and namespaced <name.sub> placeholders
var placeholderPattern = regexp.MustCompile(`<([a-zA-Z_][a-zA-Z0-9_]*(?:\.[a-zA-Z_][a-zA-Z0-9_]*)*)>`)

// ❌ TemplateError reports a placeholder with no corresponding value.
// Substitution fails closed: an unknown placeholder is an error, never a
// blank.
type TemplateError struct {
	Template    string
	Placeholder string
}

func (e *TemplateError) Error() string {
	return fmt.Sprintf("template %q references unknown field %q", e.Template, e.Placeholder)
}

// 📝 Render substitutes every placeholder in template from m in a single
// pass
func Render(template string, m Map) (string, error) {
	var missing string
	out := placeholderPattern.ReplaceAllStringFunc(template, func(ph string) string {
		name := ph[1 : len(ph)-1]
		v, ok := m[name]
		if !ok {
			if missing == "" {
				missing = name
			}
			return ph
		}
		return v.String()
	})

	if missing != "" {
		return "", &TemplateError{Template: template, Placeholder: missing}
	}
	return out, nil
}

// 🔍 Placeholders returns the distinct placeholder names in template, in
// order of first appearance
func Placeholders(template string) []string {
	var names []string
	seen := map[string]bool{}
	for _, groups := range placeholderPattern.FindAllStringSubmatch(template, -1) {
		if !seen[groups[1]] {
			seen[groups[1]] = true
			names = append(names, groups[1])
		}
	}
	return names
}

// 🔍 References reports whether template contains the named placeholder
func References(template, name string) bool {
	for _, ph := range Placeholders(template) {
		if ph == name {
			return true
		}
	}
	return false
}
