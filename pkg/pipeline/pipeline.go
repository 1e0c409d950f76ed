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

// Package pipeline orchestrates a synchronization run: discovery, integrity
// pre-checks, metadata matching, target rendering, presence queries, per-file
// decisions and finally execution.
package pipeline

import (
	"context"
	"strings"

	"github.com/rs/zerolog"
	"github.com/seqops/dropsync/pkg/config"
	"github.com/seqops/dropsync/pkg/executor"
	"github.com/seqops/dropsync/pkg/fields"
	"github.com/seqops/dropsync/pkg/integrity"
	"github.com/seqops/dropsync/pkg/match"
	"github.com/seqops/dropsync/pkg/metadata"
	"github.com/seqops/dropsync/pkg/metastore"
	"github.com/seqops/dropsync/pkg/plan"
	"github.com/seqops/dropsync/pkg/runner"
	"github.com/seqops/dropsync/pkg/target"
	"gitlab.com/tozd/go/errors"
)

// 📄 PlanResult is the complete decided plan for one run
type PlanResult struct {
	Files     []*plan.FilePlan
	Unmatched []string // discovered paths that failed identity extraction
}

// 🎯 Pipeline drives one synchronization run
type Pipeline struct {
	cfg     *config.Config
	store   metastore.Client
	engine  *integrity.Engine
	matcher *match.Matcher
	gates   plan.Gates
}

// 🏭 New assembles a pipeline. store may be nil when no store section is
// configured. persistBaseline is false for dry runs: baselines are computed
// but never written.
func New(cfg *config.Config, store metastore.Client, persistBaseline bool) (*Pipeline, error) {
	matcher, err := match.New(cfg.DropFolder, cfg.Discovery)
	if err != nil {
		return nil, err
	}
	if err := checkTemplate(cfg, matcher); err != nil {
		return nil, err
	}

	gates := plan.Gates{
		PresenceConfigured: cfg.Presence != nil && store != nil,
		WriteBackEnabled:   cfg.WriteBack != nil && store != nil,
		ArchiveEnabled:     cfg.ArchiveFolder != "",
	}
	if cfg.Metadata != nil {
		gates.MetadataConfigured = true
		gates.MetadataRequired = cfg.Metadata.Required
	}
	if cfg.WriteBack != nil {
		gates.CreatesDisabled = cfg.WriteBack.DisableCreate
	}

	return &Pipeline{
		cfg:     cfg,
		store:   store,
		engine:  integrity.NewEngine(persistBaseline),
		matcher: matcher,
		gates:   gates,
	}, nil
}

// 🔍 checkTemplate verifies every configured template placeholder can resolve
// from captured, derived or matched fields. An unresolvable placeholder is a
// configuration error and aborts before any file is processed.
func checkTemplate(cfg *config.Config, matcher *match.Matcher) error {
	known := map[string]bool{
		target.RunPlaceholder: true,
		"source":              true,
		"mtime":               true,
		"today":               true,
	}
	for _, name := range matcher.FieldNames() {
		known[name] = true
	}
	for _, rule := range cfg.Discovery.Rules {
		if rule.Target != "" {
			known[rule.Target] = true
		}
	}

	for _, ph := range fields.Placeholders(cfg.Target.Template) {
		if strings.HasPrefix(ph, "match.") {
			if cfg.Metadata == nil {
				return errors.Errorf("target template references %q but no metadata section is configured", ph)
			}
			continue
		}
		if !known[ph] {
			return errors.Errorf("target template references unknown field %q", ph)
		}
	}

	if cfg.WriteBack != nil {
		// Write-back values additionally see the rendered target path
		known["target"] = true
		for column, tmpl := range cfg.WriteBack.Fields {
			for _, ph := range fields.Placeholders(tmpl) {
				if strings.HasPrefix(ph, "match.") {
					if cfg.Metadata == nil {
						return errors.Errorf("write_back field %s references %q but no metadata section is configured", column, ph)
					}
					continue
				}
				if !known[ph] {
					return errors.Errorf("write_back field %s references unknown field %q", column, ph)
				}
			}
		}
	}

	return nil
}

// 📋 Plan discovers candidates and decides every file's actions without
// touching the repository or the store records. Per-file failures are carried
// on the file plan; only run-level failures return an error.
func (p *Pipeline) Plan(ctx context.Context) (*PlanResult, error) {
	logger := zerolog.Ctx(ctx)

	candidates, unmatched, err := p.matcher.Discover(ctx)
	if err != nil {
		return nil, err
	}

	var catalog *metadata.Catalog
	var metaMatcher *metadata.Matcher
	if p.cfg.Metadata != nil {
		catalog = metadata.LoadCatalog(ctx, *p.cfg.Metadata, p.cfg.DropFolder, p.store)
		metaMatcher = metadata.NewMatcher(catalog, p.cfg.Metadata.Rules)
	}

	renderer := target.NewRenderer(p.cfg.RepositoryFolder, p.cfg.Target)

	result := &PlanResult{Unmatched: unmatched}
	for _, cand := range candidates {
		fp := p.planFile(ctx, cand, metaMatcher, renderer)
		result.Files = append(result.Files, fp)
	}

	logger.Info().
		Int("planned", len(result.Files)).
		Int("unmatched", len(result.Unmatched)).
		Msg("planning complete")

	return result, nil
}

// 📋 planFile runs one candidate through pre-check, matching, rendering and
// the presence query, then decides its actions
func (p *Pipeline) planFile(ctx context.Context, cand match.Candidate, metaMatcher *metadata.Matcher, renderer *target.Renderer) *plan.FilePlan {
	logger := zerolog.Ctx(ctx)

	fp := &plan.FilePlan{Candidate: cand}

	integ, err := p.engine.PreCheck(ctx, cand.AbsPath)
	if err != nil {
		fp.Err = err
		fp.Plan = plan.ActionPlan{
			Copy: plan.CopyDecision{Reason: plan.ReasonVerifyFailed},
		}
		logger.Error().Str("path", cand.RelPath).Err(err).Msg("integrity pre-check failed")
		return fp
	}
	fp.Integrity = integ

	values := cand.Values().Merge(fields.Map{
		"source": fields.String(cand.RelPath),
	})

	if metaMatcher != nil {
		md, err := metaMatcher.Match(ctx, values)
		if err != nil {
			fp.Err = err
			fp.Plan = plan.ActionPlan{
				Copy: plan.CopyDecision{Reason: plan.ReasonMetadataMissing},
			}
			logger.Error().Str("path", cand.RelPath).Err(err).Msg("metadata matching failed")
			return fp
		}
		fp.Metadata = md
		values = values.Merge(md.Fields())
	}
	fp.Values = values

	// A file vetoed by the metadata or integrity gate never claims a target
	// path, so disambiguation cannot skip over it
	if p.vetoed(fp) {
		fp.Plan = plan.Decide(ctx, p.gates, fp.Integrity, fp.Metadata, plan.Presence{})
		return fp
	}

	rendered, err := renderer.Render(ctx, cand.AbsPath, values)
	if err != nil {
		fp.Err = err
		fp.Plan = plan.ActionPlan{
			Copy: plan.CopyDecision{Reason: plan.ReasonCopyFailed},
		}
		logger.Error().Str("path", cand.RelPath).Err(err).Msg("target rendering failed")
		return fp
	}
	fp.Target = rendered
	values = values.Merge(fields.Map{
		"target": fields.String(rendered.Path),
		"run":    fields.String(rendered.Run),
	})
	fp.Values = values

	fp.Presence = p.queryPresence(ctx, rendered.Path)
	fp.Plan = plan.Decide(ctx, p.gates, fp.Integrity, fp.Metadata, fp.Presence)

	return fp
}

// 🔍 vetoed reports whether the file fails a gate evaluated before rendering
func (p *Pipeline) vetoed(fp *plan.FilePlan) bool {
	if fp.Integrity.Result == integrity.MatchFailed {
		return true
	}
	return p.gates.MetadataConfigured && p.gates.MetadataRequired && !fp.Metadata.Found
}

// 🔍 queryPresence asks the store whether a record already references the
// target path. Store failures leave presence unknown, never abort the run.
func (p *Pipeline) queryPresence(ctx context.Context, targetPath string) plan.Presence {
	if !p.gates.PresenceConfigured {
		return plan.Presence{}
	}

	logger := zerolog.Ctx(ctx)
	pc := p.cfg.Presence

	compare := metastore.CompareEqual
	if pc.Compare == config.CompareContains {
		compare = metastore.CompareContains
	}

	rows, err := p.store.SelectRows(ctx, pc.Schema, pc.Query, nil, []metastore.Filter{
		{Field: pc.Field, Value: targetPath, Compare: compare},
	})
	if err != nil {
		logger.Warn().Str("target", targetPath).Err(err).Msg("presence query failed")
		return plan.Presence{Checked: true, Err: err}
	}

	if len(rows) == 0 {
		return plan.Presence{Checked: true}
	}

	pres := plan.Presence{Checked: true, Found: true}
	if id, ok := rows[0].ID(); ok {
		pres.RowID = id
		pres.HasID = true
	}
	return pres
}

// 🏃 Execute carries out a decided plan. workers bounds concurrent file
// transfers; sequential disambiguation already happened at planning time, so
// execution order is free. Per-file failures land in the results.
func (p *Pipeline) Execute(ctx context.Context, pr *PlanResult, workers int) ([]executor.Result, error) {
	exec := executor.New(p.cfg, p.store)

	results := make([]executor.Result, len(pr.Files))
	tasks := make([]runner.Task, len(pr.Files))
	for i, fp := range pr.Files {
		i, fp := i, fp
		tasks[i] = func(ctx context.Context) error {
			results[i] = exec.Execute(ctx, fp)
			return nil
		}
	}

	if err := runner.New(workers).Run(ctx, tasks); err != nil {
		return results, errors.Errorf("executing plan: %w", err)
	}

	return results, nil
}
