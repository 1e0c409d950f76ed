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

// Package plan turns integrity, metadata and presence state into a per-file
// action plan.
package plan

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/seqops/dropsync/pkg/fields"
	"github.com/seqops/dropsync/pkg/integrity"
	"github.com/seqops/dropsync/pkg/match"
	"github.com/seqops/dropsync/pkg/metadata"
	"github.com/seqops/dropsync/pkg/target"
)

// 🏷️ Reason is a machine-readable skip reason
type Reason string

const (
	ReasonNone             Reason = ""
	ReasonMetadataMissing  Reason = "metadata_missing"
	ReasonChecksumMismatch Reason = "checksum_mismatch"
	ReasonNoIdentifier     Reason = "no_identifier"
	ReasonCreatesDisabled  Reason = "creates_disabled"
	ReasonStoreError       Reason = "store_error"
	ReasonVerifyFailed     Reason = "verify_failed"
	ReasonCopyFailed       Reason = "copy_failed"
)

// 📋 CopyDecision says whether the file will be copied
type CopyDecision struct {
	Execute bool
	Reason  Reason // first disqualifying reason when skipped
}

// 🏷️ WriteBackMode enumerates the write-back outcomes
type WriteBackMode int

const (
	WriteBackSkip WriteBackMode = iota
	WriteBackUpdate
	WriteBackCreate
)

// String returns a string representation of WriteBackMode
func (m WriteBackMode) String() string {
	switch m {
	case WriteBackUpdate:
		return "update"
	case WriteBackCreate:
		return "create"
	default:
		return "skip"
	}
}

// 📋 WriteBackDecision says how the external record will be written
type WriteBackDecision struct {
	Mode   WriteBackMode
	Reason Reason // populated for skip
	RowID  int64  // stable identifier, for updates
}

// 📋 ArchiveDecision says whether the source will be moved to the archive.
// Execution of the archive is additionally contingent on post-transfer
// verification, evaluated at execution time.
type ArchiveDecision struct {
	Execute bool
	Reason  Reason
}

// 📄 Presence is the result of the existing-record query
type Presence struct {
	Checked bool  // a presence check was configured and attempted
	Found   bool  // a record referencing the target exists
	RowID   int64 // stable identifier of that record
	HasID   bool
	Err     error // store failure; presence unknown
}

// 📄 ActionPlan is the pipeline's terminal decision for one file
type ActionPlan struct {
	Copy      CopyDecision
	WriteBack WriteBackDecision
	Archive   ArchiveDecision
}

// 📄 FilePlan ties one candidate to everything decided about it
type FilePlan struct {
	Candidate match.Candidate
	Target    target.Rendered
	Integrity integrity.Record
	Metadata  metadata.Match
	Presence  Presence
	Values    fields.Map // captured + derived + match.* + target/source
	Plan      ActionPlan
	Err       error // per-file pipeline failure before a decision was possible
}

// 🔧 Gates are the run-level conditions the decision depends on
type Gates struct {
	MetadataConfigured bool
	MetadataRequired   bool
	PresenceConfigured bool
	WriteBackEnabled   bool
	CreatesDisabled    bool
	ArchiveEnabled     bool
}

// 🎯 Decide combines integrity, metadata and presence state into the action
// plan. The evaluation is a strict waterfall: an earlier veto short-circuits
// later evaluation and the plan records the first disqualifying reason.
func Decide(ctx context.Context, g Gates, integ integrity.Record, md metadata.Match, pres Presence) ActionPlan {
	logger := zerolog.Ctx(ctx)

	// Metadata gate
	if g.MetadataConfigured && g.MetadataRequired && !md.Found {
		return vetoed(ReasonMetadataMissing)
	}

	// Integrity gate: a reference digest that existed and did not match
	if integ.Result == integrity.MatchFailed {
		return vetoed(ReasonChecksumMismatch)
	}

	plan := ActionPlan{
		Copy: CopyDecision{Execute: true},
	}

	// Write-back resolution
	switch {
	case !g.WriteBackEnabled:
		plan.WriteBack = WriteBackDecision{Mode: WriteBackSkip}
	case pres.Err != nil:
		plan.WriteBack = WriteBackDecision{Mode: WriteBackSkip, Reason: ReasonStoreError}
	case pres.Found && pres.HasID:
		plan.WriteBack = WriteBackDecision{Mode: WriteBackUpdate, RowID: pres.RowID}
	case pres.Found:
		plan.WriteBack = WriteBackDecision{Mode: WriteBackSkip, Reason: ReasonNoIdentifier}
	case g.CreatesDisabled:
		plan.WriteBack = WriteBackDecision{Mode: WriteBackSkip, Reason: ReasonCreatesDisabled}
	default:
		plan.WriteBack = WriteBackDecision{Mode: WriteBackCreate}
	}

	// Archive is contingent on copy executing and post-transfer
	// verification succeeding, which is evaluated at execution time
	if g.ArchiveEnabled {
		plan.Archive = ArchiveDecision{Execute: true}
	}

	logger.Debug().
		Bool("copy", plan.Copy.Execute).
		Str("write_back", plan.WriteBack.Mode.String()).
		Bool("archive", plan.Archive.Execute).
		Msg("decided action plan")

	return plan
}

// ❌ vetoed propagates one disqualifying reason to every decision
func vetoed(reason Reason) ActionPlan {
	return ActionPlan{
		Copy:      CopyDecision{Execute: false, Reason: reason},
		WriteBack: WriteBackDecision{Mode: WriteBackSkip, Reason: reason},
		Archive:   ArchiveDecision{Execute: false, Reason: reason},
	}
}
