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

// Package target renders collision-free repository paths from extracted
// fields.
package target

import (
	"context"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/seqops/dropsync/pkg/config"
	"github.com/seqops/dropsync/pkg/fields"
	"github.com/seqops/dropsync/pkg/integrity"
	"gitlab.com/tozd/go/errors"
)

// RunPlaceholder is the reserved placeholder resolved by the
// disambiguation strategy
const RunPlaceholder = "run"

// 📄 Rendered is the resolved destination for one file
type Rendered struct {
	Path   string   // repository-relative target path
	Run    string   // disambiguation value substituted for <run>
	Probed []string // candidate paths probed by the sequential strategy
}

// 🎯 Renderer renders target paths and resolves naming collisions
type Renderer struct {
	template string
	strategy string
	initial  int
	repoRoot string

	// planned holds every target rendered in this invocation; no two files
	// planned in a single run may share a target path
	planned map[string]bool
}

// 🏭 NewRenderer creates a renderer for one pipeline invocation
func NewRenderer(repoRoot string, tgt config.Target) *Renderer {
	return &Renderer{
		template: tgt.Template,
		strategy: tgt.Disambiguation,
		initial:  tgt.InitialRun,
		repoRoot: repoRoot,
		planned:  map[string]bool{},
	}
}

// 📝 Render substitutes every placeholder in the target template and
// resolves the reserved <run> placeholder via the configured strategy.
// srcPath is the source file, consulted only by the content-hash strategy.
func (r *Renderer) Render(ctx context.Context, srcPath string, values fields.Map) (Rendered, error) {
	if !fields.References(r.template, RunPlaceholder) {
		path, err := fields.Render(r.template, values)
		if err != nil {
			return Rendered{}, err
		}
		if r.planned[path] {
			return Rendered{}, errors.Errorf("target %s already planned in this run", path)
		}
		r.planned[path] = true
		return Rendered{Path: path}, nil
	}

	switch r.strategy {
	case config.DisambiguationHash:
		return r.renderHash(ctx, srcPath, values)
	default:
		return r.renderSequential(ctx, values)
	}
}

// 🔢 renderSequential probes candidate paths from the initial run value
// upward until one is free both on disk and among the paths already planned
// in this invocation
func (r *Renderer) renderSequential(ctx context.Context, values fields.Map) (Rendered, error) {
	var probed []string
	for run := r.initial; ; run++ {
		vals := values.Merge(fields.Map{RunPlaceholder: fields.Int(int64(run))})
		path, err := fields.Render(r.template, vals)
		if err != nil {
			return Rendered{}, err
		}

		if r.planned[path] {
			probed = append(probed, path)
			continue
		}

		exists, err := r.existsInRepo(path)
		if err != nil {
			return Rendered{}, err
		}
		if exists {
			probed = append(probed, path)
			continue
		}

		r.planned[path] = true
		zerolog.Ctx(ctx).Debug().
			Str("target", path).
			Int("run", run).
			Int("probed", len(probed)).
			Msg("rendered sequential target")

		return Rendered{
			Path:   path,
			Run:    fields.Int(int64(run)).String(),
			Probed: probed,
		}, nil
	}
}

// 🔢 renderHash substitutes a short content digest for <run>. Collisions
// are content-addressed identity, not errors: two files with identical
// content legitimately render the same target.
func (r *Renderer) renderHash(ctx context.Context, srcPath string, values fields.Map) (Rendered, error) {
	digest, err := integrity.ShortContentHash(srcPath)
	if err != nil {
		return Rendered{}, errors.Errorf("hashing %s for disambiguation: %w", srcPath, err)
	}

	vals := values.Merge(fields.Map{RunPlaceholder: fields.String(digest)})
	path, err := fields.Render(r.template, vals)
	if err != nil {
		return Rendered{}, err
	}

	r.planned[path] = true
	zerolog.Ctx(ctx).Debug().Str("target", path).Str("hash", digest).Msg("rendered content-hash target")

	return Rendered{Path: path, Run: digest}, nil
}

func (r *Renderer) existsInRepo(rel string) (bool, error) {
	_, err := os.Stat(filepath.Join(r.repoRoot, filepath.FromSlash(rel)))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, errors.Errorf("probing target path: %w", err)
}
