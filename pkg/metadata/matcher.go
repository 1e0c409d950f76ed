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

package metadata

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/seqops/dropsync/pkg/config"
	"github.com/seqops/dropsync/pkg/fields"
	"gitlab.com/tozd/go/errors"
)

// 📄 Match is the per-file metadata match result
type Match struct {
	Key    string            // rendered lookup key
	Source string            // source that produced the hit, empty when none
	Record map[string]string // the matched record
	Found  bool
}

// 🔀 Fields returns the matched record as template values under the
// "match." namespace
func (m Match) Fields() fields.Map {
	out := fields.Map{}
	for k, v := range m.Record {
		out["match."+k] = fields.String(v)
	}
	return out
}

// 🔗 Matcher searches ordered sources for a record matching each file
type Matcher struct {
	catalog *Catalog
	rules   []config.MatchRule
}

// 🏭 NewMatcher creates a matcher over a loaded catalog
func NewMatcher(catalog *Catalog, rules []config.MatchRule) *Matcher {
	return &Matcher{catalog: catalog, rules: rules}
}

// 🔍 Match renders each rule's lookup key from the file's captured and
// derived fields (external-source fields do not exist yet at this point)
// and consults sources in rule order. The first rule that yields a hit
// wins; later rules are not consulted.
func (m *Matcher) Match(ctx context.Context, values fields.Map) (Match, error) {
	logger := zerolog.Ctx(ctx)

	var lastKey string
	for _, rule := range m.rules {
		key, err := fields.Render(rule.Key, values)
		if err != nil {
			return Match{}, errors.Errorf("rendering lookup key: %w", err)
		}
		lastKey = key

		src := m.catalog.Source(rule.Source)
		if src == nil || src.Err != nil {
			continue
		}

		for _, row := range src.Rows {
			if compareValues(row[rule.Field], key, rule.Compare) {
				logger.Debug().
					Str("key", key).
					Str("source", rule.Source).
					Str("field", rule.Field).
					Msg("metadata match")
				return Match{Key: key, Source: rule.Source, Record: row, Found: true}, nil
			}
		}
	}

	return Match{Key: lastKey}, nil
}
