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

package report

import (
	"bytes"
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/seqops/dropsync/pkg/executor"
	"github.com/seqops/dropsync/pkg/integrity"
	"github.com/seqops/dropsync/pkg/match"
	"github.com/seqops/dropsync/pkg/metadata"
	"github.com/seqops/dropsync/pkg/plan"
	"github.com/seqops/dropsync/pkg/target"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 🧪 TestPlanTable checks the plan table carries decisions and reasons
func TestPlanTable(t *testing.T) {
	files := []*plan.FilePlan{
		{
			Candidate: match.Candidate{RelPath: "S1_L001.fastq.gz"},
			Target:    target.Rendered{Path: "raw/S1/1.fastq.gz"},
			Integrity: integrity.Record{Result: integrity.MatchOK},
			Metadata:  metadata.Match{Found: true, Source: "samples"},
			Presence:  plan.Presence{Checked: true, Found: true, HasID: true},
			Plan: plan.ActionPlan{
				Copy:      plan.CopyDecision{Execute: true},
				WriteBack: plan.WriteBackDecision{Mode: plan.WriteBackUpdate, RowID: 7},
				Archive:   plan.ArchiveDecision{Execute: true},
			},
		},
		{
			Candidate: match.Candidate{RelPath: "S2_L001.fastq.gz"},
			Integrity: integrity.Record{Result: integrity.MatchFailed},
			Metadata:  metadata.Match{Found: true, Source: "samples"},
			Plan: plan.ActionPlan{
				Copy: plan.CopyDecision{Execute: false, Reason: plan.ReasonChecksumMismatch},
			},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, PlanTable(&buf, files, []string{"notes.txt"}))

	out := buf.String()
	assert.Contains(t, out, "S1_L001.fastq.gz")
	assert.Contains(t, out, "raw/S1/1.fastq.gz")
	assert.Contains(t, out, "copy+update+archive")
	assert.Contains(t, out, "checksum_mismatch")
	assert.Contains(t, out, "notes.txt")
	assert.Contains(t, out, "no_pattern_match")
}

// 🧪 TestSummaryTable checks execution results render
func TestSummaryTable(t *testing.T) {
	results := []executor.Result{
		{
			RelPath:    "S1_L001.fastq.gz",
			TargetPath: "raw/S1/1.fastq.gz",
			Copied:     true,
			Verified:   true,
			Sidecar:    integrity.AlgMD5,
			WroteBack:  plan.WriteBackCreate,
			Archived:   true,
		},
		{
			RelPath: "S2_L001.fastq.gz",
			Skipped: true,
			Reason:  plan.ReasonMetadataMissing,
		},
	}

	var buf bytes.Buffer
	require.NoError(t, SummaryTable(&buf, results))

	out := buf.String()
	assert.Contains(t, out, "raw/S1/1.fastq.gz")
	assert.Contains(t, out, "create")
	assert.Contains(t, out, "metadata_missing")
}

// 🧪 TestOutcome checks the result-to-console mapping
func TestOutcome(t *testing.T) {
	tests := []struct {
		name       string
		res        executor.Result
		wantAction string
	}{
		{
			name:       "copy with update",
			res:        executor.Result{WroteBack: plan.WriteBackUpdate, Copied: true},
			wantAction: "copy+update",
		},
		{
			name:       "copy with create",
			res:        executor.Result{WroteBack: plan.WriteBackCreate, Copied: true},
			wantAction: "copy+create",
		},
		{
			name:       "plain copy",
			res:        executor.Result{Copied: true},
			wantAction: "copy",
		},
		{
			name:       "skip",
			res:        executor.Result{Skipped: true, Reason: plan.ReasonNoIdentifier},
			wantAction: "skip",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := Outcome(tt.res)
			assert.Equal(t, tt.wantAction, out.Action)
		})
	}
}

// 🧪 TestLoggerConsoleOutput checks messages reach the console writer
func TestLoggerConsoleOutput(t *testing.T) {
	var console bytes.Buffer
	logger := New(&console, zerolog.New(zerolog.NewTestWriter(t)))

	logger.Header("planning run")
	logger.Success("2 files synchronized")
	logger.Warning("1 file skipped")
	logger.LogFileOutcome(context.Background(), FileOutcome{
		Source: "S1_L001.fastq.gz",
		Target: "raw/S1/1.fastq.gz",
		Action: "copy+create",
	})

	out := console.String()
	assert.Contains(t, out, "dropsync")
	assert.Contains(t, out, "2 files synchronized")
	assert.Contains(t, out, "1 file skipped")
	assert.Contains(t, out, "S1_L001.fastq.gz")
	assert.Contains(t, out, "copy+create")
}
