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

// Package match discovers candidate files under the drop folder and extracts
// their structured identity from the file path.
package match

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/rs/zerolog"
	"github.com/seqops/dropsync/pkg/config"
	"github.com/seqops/dropsync/pkg/fields"
	"gitlab.com/tozd/go/errors"
)

// 📄 Candidate is one discovered source file. It is immutable once captured.
type Candidate struct {
	AbsPath string     // absolute source path
	RelPath string     // path relative to the drop root (slash-separated)
	Fields  fields.Map // named capture groups from the pattern
	Derived fields.Map // derived/overridden values from transform rules
}

// 🔀 Values returns the candidate's substitution map: captured fields with
// derived values layered on top
func (c Candidate) Values() fields.Map {
	return c.Fields.Merge(c.Derived)
}

// 🔍 Matcher discovers files and extracts their fields
type Matcher struct {
	root    string
	glob    string
	pattern *regexp.Regexp
	rules   []config.TransformRule
}

// 🏭 New compiles the discovery configuration into a matcher. The capture
// pattern is anchored on both ends regardless of how it was written.
func New(root string, disc config.Discovery) (*Matcher, error) {
	expr := disc.Pattern
	if !strings.HasPrefix(expr, "^") {
		expr = "^" + expr
	}
	if !strings.HasSuffix(expr, "$") {
		expr = expr + "$"
	}

	pattern, err := regexp.Compile(expr)
	if err != nil {
		return nil, errors.Errorf("compiling capture pattern: %w", err)
	}

	return &Matcher{
		root:    root,
		glob:    disc.Glob,
		pattern: pattern,
		rules:   disc.Rules,
	}, nil
}

// 🔍 FieldNames returns the named capture groups of the pattern
func (m *Matcher) FieldNames() []string {
	var names []string
	for _, name := range m.pattern.SubexpNames() {
		if name != "" {
			names = append(names, name)
		}
	}
	return names
}

// 🔍 Discover walks the drop root and returns the matched candidates plus
// the relative paths that matched the glob but not the capture pattern.
// A file that fails the pattern is reported, not fatal; zero matches plan
// zero actions.
func (m *Matcher) Discover(ctx context.Context) ([]Candidate, []string, error) {
	logger := zerolog.Ctx(ctx)

	paths, err := doublestar.Glob(os.DirFS(m.root), m.glob)
	if err != nil {
		return nil, nil, errors.Errorf("matching glob %q: %w", m.glob, err)
	}

	var candidates []Candidate
	var unmatched []string
	for _, rel := range paths {
		abs := filepath.Join(m.root, filepath.FromSlash(rel))
		info, err := os.Stat(abs)
		if err != nil {
			logger.Warn().Str("path", rel).Err(err).Msg("skipping unreadable path")
			continue
		}
		if info.IsDir() {
			continue
		}
		// Sidecars and overlays are pipeline bookkeeping, never candidates
		if isAuxiliary(rel) {
			continue
		}

		captured, ok := m.capture(rel)
		if !ok {
			logger.Debug().Str("path", rel).Msg("path does not match capture pattern")
			unmatched = append(unmatched, rel)
			continue
		}

		derived, err := m.deriveFields(captured, info)
		if err != nil {
			// A transform miss disqualifies the file, not the run
			logger.Warn().Str("path", rel).Err(err).Msg("field transform failed")
			unmatched = append(unmatched, rel)
			continue
		}

		candidates = append(candidates, Candidate{
			AbsPath: abs,
			RelPath: rel,
			Fields:  captured,
			Derived: derived,
		})
	}

	logger.Info().
		Int("matched", len(candidates)).
		Int("unmatched", len(unmatched)).
		Str("glob", m.glob).
		Msg("discovery complete")

	return candidates, unmatched, nil
}

// 🔍 capture applies the anchored pattern and extracts named groups
func (m *Matcher) capture(rel string) (fields.Map, bool) {
	groups := m.pattern.FindStringSubmatch(rel)
	if groups == nil {
		return nil, false
	}

	captured := fields.Map{}
	for i, name := range m.pattern.SubexpNames() {
		if name != "" {
			captured[name] = fields.String(groups[i])
		}
	}
	return captured, true
}

// 🔄 deriveFields runs the transform rules and adds the built-in derived
// fields. Transforms run before any templating.
func (m *Matcher) deriveFields(captured fields.Map, info fs.FileInfo) (fields.Map, error) {
	derived := fields.Map{
		"mtime": fields.Time(info.ModTime()),
		"today": fields.Time(time.Now()),
	}

	for _, rule := range m.rules {
		src, ok := captured[rule.Field]
		if !ok {
			if src, ok = derived[rule.Field]; !ok {
				return nil, errors.Errorf("transform rule references unknown field %q", rule.Field)
			}
		}

		target := rule.Target
		if target == "" {
			target = rule.Field
		}

		switch rule.Op {
		case "lower":
			derived[target] = fields.String(strings.ToLower(src.String()))
		case "upper":
			derived[target] = fields.String(strings.ToUpper(src.String()))
		case "map":
			mapped, ok := rule.Values[src.String()]
			if !ok {
				return nil, errors.Errorf("transform rule for %q has no mapping for value %q", rule.Field, src.String())
			}
			derived[target] = fields.String(mapped)
		}
	}

	return derived, nil
}

// 🔍 isAuxiliary reports whether rel is a sidecar or overlay file
func isAuxiliary(rel string) bool {
	base := filepath.Base(rel)
	return strings.HasSuffix(base, ".md5") ||
		strings.HasSuffix(base, ".blake3") ||
		base == config.DropOverlayName
}
