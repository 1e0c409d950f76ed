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

// Package executor carries out per-file action plans: copy, post-transfer
// verification, sidecar propagation, record write-back and archival. One
// file's failure never aborts the batch.
package executor

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/seqops/dropsync/pkg/config"
	"github.com/seqops/dropsync/pkg/fields"
	"github.com/seqops/dropsync/pkg/integrity"
	"github.com/seqops/dropsync/pkg/match"
	"github.com/seqops/dropsync/pkg/metastore"
	"github.com/seqops/dropsync/pkg/plan"
	"gitlab.com/tozd/go/errors"
)

// 📄 Result records what actually happened to one file
type Result struct {
	RelPath    string      // source path relative to the drop root
	TargetPath string      // repository-relative destination
	Copied     bool        // destination was written and verified
	Verified   bool        // post-transfer byte comparison passed
	Sidecar    integrity.Algorithm // sidecar kind propagated, if any
	WroteBack  plan.WriteBackMode  // write-back that was performed
	RowID      int64               // identifier of the created or updated record
	Archived   bool
	Skipped    bool        // the plan vetoed the copy before execution
	Reason     plan.Reason // first failure or skip reason, if any
	Err        error
}

// 🔌 Verifier compares a source and its copied destination byte-for-byte
type Verifier interface {
	Verify(ctx context.Context, src, dst string) (bool, error)
}

// 🔧 Executor applies action plans against the filesystem and the store
type Executor struct {
	verifier Verifier
	store    metastore.Client
	wb       *config.WriteBack
	dropRoot string
	repoRoot string
	archive  string // empty disables archival
}

// 🏭 New creates an executor. store may be nil when no write-back is
// configured; archive may be empty when archival is disabled.
func New(cfg *config.Config, store metastore.Client) *Executor {
	return &Executor{
		verifier: integrity.NewEngine(true),
		store:    store,
		wb:       cfg.WriteBack,
		dropRoot: cfg.DropFolder,
		repoRoot: cfg.RepositoryFolder,
		archive:  cfg.ArchiveFolder,
	}
}

// 🏃 Execute carries out one file's action plan. Every failure is captured in
// the result; the caller decides nothing mid-file.
func (e *Executor) Execute(ctx context.Context, fp *plan.FilePlan) Result {
	logger := zerolog.Ctx(ctx)

	res := Result{
		RelPath:    fp.Candidate.RelPath,
		TargetPath: fp.Target.Path,
	}

	if !fp.Plan.Copy.Execute {
		res.Skipped = true
		res.Reason = fp.Plan.Copy.Reason
		logger.Info().
			Str("path", res.RelPath).
			Str("reason", string(res.Reason)).
			Msg("skipped by plan")
		return res
	}

	dst := filepath.Join(e.repoRoot, filepath.FromSlash(fp.Target.Path))

	if err := e.copyFile(fp.Candidate.AbsPath, dst); err != nil {
		res.Reason = plan.ReasonCopyFailed
		res.Err = err
		logger.Error().Str("path", res.RelPath).Err(err).Msg("copy failed")
		return res
	}
	res.Copied = true

	ok, err := e.verifier.Verify(ctx, fp.Candidate.AbsPath, dst)
	if err != nil {
		res.Reason = plan.ReasonVerifyFailed
		res.Err = err
		return res
	}
	if !ok {
		// The copied destination stays in place, flagged for the operator;
		// no rollback is attempted
		res.Reason = plan.ReasonVerifyFailed
		res.Err = errors.Errorf("destination %s does not match source after copy", fp.Target.Path)
		logger.Error().Str("path", res.RelPath).Str("target", fp.Target.Path).Msg("post-transfer verification failed")
		return res
	}
	res.Verified = true

	alg, err := integrity.PropagateSidecar(ctx, fp.Candidate.AbsPath, dst)
	if err != nil {
		// Missing sidecar is unexpected after a pre-check but not worth
		// failing a verified transfer over
		logger.Warn().Str("path", res.RelPath).Err(err).Msg("sidecar propagation failed")
	} else {
		res.Sidecar = alg
	}

	e.writeBack(ctx, fp, &res)

	if fp.Plan.Archive.Execute && res.Verified {
		if err := e.archiveSource(ctx, fp.Candidate); err != nil {
			res.Err = err
			logger.Error().Str("path", res.RelPath).Err(err).Msg("archival failed")
		} else {
			res.Archived = true
		}
	}

	logger.Info().
		Str("path", res.RelPath).
		Str("target", fp.Target.Path).
		Str("write_back", res.WroteBack.String()).
		Bool("archived", res.Archived).
		Msg("file synchronized")

	return res
}

// 📋 copyFile streams src to dst in fixed-size blocks, creating parent
// directories as needed
func (e *Executor) copyFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return errors.Errorf("creating target directory: %w", err)
	}

	in, err := os.Open(src)
	if err != nil {
		return errors.Errorf("opening source: %w", err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return errors.Errorf("creating destination: %w", err)
	}

	buf := make([]byte, integrity.BlockSize)
	if _, err := io.CopyBuffer(out, in, buf); err != nil {
		out.Close()
		return errors.Errorf("copying to %s: %w", dst, err)
	}

	if err := out.Close(); err != nil {
		return errors.Errorf("flushing destination: %w", err)
	}

	return nil
}

// ✍️ writeBack performs the planned record update or create. Store failures
// are recorded on the result, never propagated.
func (e *Executor) writeBack(ctx context.Context, fp *plan.FilePlan, res *Result) {
	logger := zerolog.Ctx(ctx)

	mode := fp.Plan.WriteBack.Mode
	if mode == plan.WriteBackSkip {
		res.Reason = firstReason(res.Reason, fp.Plan.WriteBack.Reason)
		return
	}

	row, err := e.renderRow(fp.Values)
	if err != nil {
		res.Reason = firstReason(res.Reason, plan.ReasonStoreError)
		res.Err = err
		logger.Error().Str("path", res.RelPath).Err(err).Msg("rendering write-back fields")
		return
	}

	switch mode {
	case plan.WriteBackUpdate:
		row[metastore.RowIDField] = fp.Plan.WriteBack.RowID
		err = e.store.UpdateRow(ctx, e.wb.Schema, e.wb.Query, row)
		res.RowID = fp.Plan.WriteBack.RowID
	case plan.WriteBackCreate:
		err = e.store.InsertRow(ctx, e.wb.Schema, e.wb.Query, row)
	}

	if err != nil {
		res.Reason = firstReason(res.Reason, plan.ReasonStoreError)
		res.Err = err
		logger.Error().
			Str("path", res.RelPath).
			Str("mode", mode.String()).
			Err(err).
			Msg("write-back failed")
		return
	}

	res.WroteBack = mode
}

// 📝 renderRow substitutes the file's values into every configured column
// template
func (e *Executor) renderRow(values fields.Map) (metastore.Row, error) {
	row := metastore.Row{}
	for column, tmpl := range e.wb.Fields {
		rendered, err := fields.Render(tmpl, values)
		if err != nil {
			return nil, errors.Errorf("rendering write-back column %s: %w", column, err)
		}
		row[column] = rendered
	}
	return row, nil
}

// 📦 archiveSource moves the source file and its sidecars under the archive
// root, preserving the drop-relative path
func (e *Executor) archiveSource(ctx context.Context, c match.Candidate) error {
	logger := zerolog.Ctx(ctx)

	dst := filepath.Join(e.archive, filepath.FromSlash(c.RelPath))
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return errors.Errorf("creating archive directory: %w", err)
	}

	if err := moveFile(c.AbsPath, dst); err != nil {
		return err
	}

	// Sidecars travel with their data file
	for _, alg := range []integrity.Algorithm{integrity.AlgMD5, integrity.AlgBLAKE3} {
		sidecar := integrity.SidecarPath(c.AbsPath, alg)
		if _, err := os.Stat(sidecar); os.IsNotExist(err) {
			continue
		}
		if err := moveFile(sidecar, integrity.SidecarPath(dst, alg)); err != nil {
			logger.Warn().Str("sidecar", sidecar).Err(err).Msg("could not archive sidecar")
		}
	}

	logger.Debug().Str("path", c.RelPath).Str("archive", dst).Msg("archived source")
	return nil
}

// 🔀 moveFile renames, falling back to copy-and-remove when the archive sits
// on a different filesystem
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return errors.Errorf("opening source for archival: %w", err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return errors.Errorf("creating archive file: %w", err)
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return errors.Errorf("copying into archive: %w", err)
	}
	if err := out.Close(); err != nil {
		return errors.Errorf("flushing archive file: %w", err)
	}

	if err := os.Remove(src); err != nil {
		return errors.Errorf("removing archived source: %w", err)
	}
	return nil
}

// 🔖 firstReason keeps the earliest recorded reason
func firstReason(existing, next plan.Reason) plan.Reason {
	if existing != plan.ReasonNone {
		return existing
	}
	return next
}
